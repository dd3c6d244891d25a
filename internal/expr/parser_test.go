package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexKinds(t *testing.T) {
	toks, err := Lex(`max(1, "braid") >= 2.5 and not done`)
	require.NoError(t, err)

	kinds := make([]Kind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	assert.Equal(t, []Kind{
		TokIdent, TokPunct, TokInt, TokPunct, TokString, TokPunct,
		TokPunct, TokDouble, TokKeyword, TokKeyword, TokIdent, TokEnd,
	}, kinds)

	// String token text is unquoted.
	assert.Equal(t, "braid", toks[4].Text)
	assert.Equal(t, ">=", toks[6].Text)
}

func TestLexNumbers(t *testing.T) {
	cases := []struct {
		src  string
		kind Kind
	}{
		{"42", TokInt},
		{"4.2", TokDouble},
		{"1e3", TokDouble},
		{"1.5e-3", TokDouble},
	}
	for _, tc := range cases {
		toks, err := Lex(tc.src)
		require.NoError(t, err)
		assert.Equal(t, tc.kind, toks[0].Kind, tc.src)
		assert.Equal(t, tc.src, toks[0].Text)
	}
}

func TestLexErrors(t *testing.T) {
	_, err := Lex(`"unterminated`)
	assert.ErrorIs(t, err, ErrParse)

	_, err = Lex("a @ b")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3).
	node, err := Parse("1 + 2 * 3")
	require.NoError(t, err)

	add, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)
	mul, ok := add.RHS.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

func TestParseComparisonBindsLooserThanMath(t *testing.T) {
	node, err := Parse("1 + 2 < 4")
	require.NoError(t, err)

	cmp, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "<", cmp.Op)
	_, ok = cmp.LHS.(*Binary)
	assert.True(t, ok)
}

func TestParseLogicalChain(t *testing.T) {
	node, err := Parse("true and false or true")
	require.NoError(t, err)

	or, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "or", or.Op)
	and, ok := or.LHS.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "and", and.Op)
}

func TestParseCallAndMember(t *testing.T) {
	node, err := Parse(`max("braid").position`)
	require.NoError(t, err)

	member, ok := node.(*Member)
	require.True(t, ok)
	assert.Equal(t, "position", member.Field)

	call, ok := member.Obj.(*Call)
	require.True(t, ok)
	assert.Equal(t, "max", call.Name)
	require.Len(t, call.Args, 1)
	str, ok := call.Args[0].(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "braid", str.Value)
}

func TestParseIfExpr(t *testing.T) {
	node, err := Parse("if 1 < 2 then 10 else 20")
	require.NoError(t, err)

	ifn, ok := node.(*If)
	require.True(t, ok)
	_, ok = ifn.Cond.(*Binary)
	assert.True(t, ok)
	then, ok := ifn.Then.(*IntegerLit)
	require.True(t, ok)
	assert.Equal(t, int64(10), then.Value)
}

func TestParseUnary(t *testing.T) {
	node, err := Parse("-2 * 3")
	require.NoError(t, err)

	mul, ok := node.(*Binary)
	require.True(t, ok)
	neg, ok := mul.LHS.(*Unary)
	require.True(t, ok)
	assert.Equal(t, "-", neg.Op)
}

func TestParseSpans(t *testing.T) {
	node, err := Parse("1 + 23")
	require.NoError(t, err)
	assert.Equal(t, Span{0, 6}, node.Span())
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"1 +",
		"max(1,",
		"(1 + 2",
		"if 1 then 2",
		"1 2",
		"",
	} {
		_, err := Parse(src)
		assert.ErrorIs(t, err, ErrParse, src)
	}
}

func TestOverloadResolutionFirstMatchWins(t *testing.T) {
	fns := Builtins()

	// Two scalars resolve to the scalar overload, never the field one.
	sig, err := fns.Resolve("max", []string{TypeScalar, TypeScalar})
	require.NoError(t, err)
	assert.Equal(t, "scalar_max", sig.FilterName)

	sig, err = fns.Resolve("max", []string{TypeMeshVar})
	require.NoError(t, err)
	assert.Equal(t, "field_max", sig.FilterName)

	sig, err = fns.Resolve("min", []string{TypeMeshVar})
	require.NoError(t, err)
	assert.Equal(t, "field_min", sig.FilterName)
}

func TestOverloadResolutionErrors(t *testing.T) {
	fns := Builtins()

	_, err := fns.Resolve("nope", []string{TypeScalar})
	assert.ErrorIs(t, err, ErrNoMatchingOverload)

	// Right name, no overload with three args.
	_, err = fns.Resolve("max", []string{TypeScalar, TypeScalar, TypeScalar})
	assert.ErrorIs(t, err, ErrArityMismatch)

	// Right arity, wrong tags; the message lists candidates.
	_, err = fns.Resolve("max", []string{TypeHistogram})
	require.ErrorIs(t, err, ErrNoMatchingOverload)
	assert.Contains(t, err.Error(), "field_max")
	assert.Contains(t, err.Error(), "meshvar")
}

func TestStringSlotAcceptsQuotedLiteral(t *testing.T) {
	fns := Builtins()

	// Quoted literals lower as meshvar; string slots take them.
	sig, err := fns.Resolve("quantile", []string{TypeHistogram, TypeScalar, TypeMeshVar})
	require.NoError(t, err)
	assert.Len(t, sig.Args, 3)
}
