package expr

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/graph"
)

// attributeTags maps result attributes reachable through member access to
// the tag of the value they produce.
var attributeTags = map[string]string{
	AttPosition: TypeVector,
	AttIndex:    TypeScalar,
	AttDomainID: TypeScalar,
	AttRank:     TypeScalar,
	AttCount:    TypeScalar,
}

// lowering walks an AST and emits one filter per node into the working
// graph. It is a pure translation; no filter executes until the workspace
// runs.
type lowering struct {
	g     *graph.Graph
	fns   Functions
	cache Cache
}

// Lower compiles the AST into g and returns the root filter's instance name
// and its static type tag.
func Lower(g *graph.Graph, fns Functions, cache Cache, root Node) (string, string, error) {
	l := &lowering{g: g, fns: fns, cache: cache}
	return l.lower(root)
}

func (l *lowering) emit(typeName string, params cty.Value) (string, error) {
	inst, err := l.g.AddFilter(typeName, "", params)
	if err != nil {
		return "", err
	}
	return inst.Name, nil
}

func (l *lowering) lower(n Node) (string, string, error) {
	switch n := n.(type) {
	case *IntegerLit:
		name, err := l.emit("expr_integer",
			cty.ObjectVal(map[string]cty.Value{"value": cty.NumberIntVal(n.Value)}))
		return name, TypeScalar, err

	case *DoubleLit:
		name, err := l.emit("expr_double",
			cty.ObjectVal(map[string]cty.Value{"value": cty.NumberFloatVal(n.Value)}))
		return name, TypeScalar, err

	case *StringLit:
		name, err := l.emit("expr_meshvar",
			cty.ObjectVal(map[string]cty.Value{"value": cty.StringVal(n.Value)}))
		return name, TypeMeshVar, err

	case *BoolLit:
		name, err := l.emit("expr_boolean",
			cty.ObjectVal(map[string]cty.Value{"value": cty.BoolVal(n.Value)}))
		return name, TypeBoolean, err

	case *Ident:
		// The identifier's static type is whatever its latest cached
		// result carries; an identifier never seen before cannot lower.
		latest, ok := l.cache.Latest(n.Name)
		if !ok {
			return "", "", fmt.Errorf("%w: %q at %s", ErrUnknownIdentifier, n.Name, n.Span())
		}
		name, err := l.emit("expr_identifier",
			cty.ObjectVal(map[string]cty.Value{"value": cty.StringVal(n.Name)}))
		return name, latest.Type, err

	case *Binary:
		return l.lowerBinary(n)

	case *Unary:
		return l.lowerUnary(n)

	case *Call:
		return l.lowerCall(n)

	case *If:
		return l.lowerIf(n)

	case *Member:
		return l.lowerMember(n)
	}
	return "", "", fmt.Errorf("%w: unsupported syntax at %s", ErrParse, n.Span())
}

// binary op typing: logical ops take booleans to a boolean, comparisons
// take scalars to a boolean, math ops take scalars to a scalar.
func (l *lowering) lowerBinary(n *Binary) (string, string, error) {
	lhsName, lhsType, err := l.lower(n.LHS)
	if err != nil {
		return "", "", err
	}
	rhsName, rhsType, err := l.lower(n.RHS)
	if err != nil {
		return "", "", err
	}

	var wantOperand, resultType string
	switch n.Op {
	case "and", "or":
		wantOperand, resultType = TypeBoolean, TypeBoolean
	case "<", "<=", ">", ">=", "==", "!=":
		wantOperand, resultType = TypeScalar, TypeBoolean
	default:
		wantOperand, resultType = TypeScalar, TypeScalar
	}
	if lhsType != wantOperand || rhsType != wantOperand {
		return "", "", fmt.Errorf("%w: operator %q at %s needs %s operands, got %s and %s",
			ErrNoMatchingOverload, n.Op, n.Span(), wantOperand, lhsType, rhsType)
	}

	name, err := l.emit("expr_binary_op",
		cty.ObjectVal(map[string]cty.Value{"op_string": cty.StringVal(n.Op)}))
	if err != nil {
		return "", "", err
	}
	if err := l.g.Connect(lhsName, name, "lhs"); err != nil {
		return "", "", err
	}
	if err := l.g.Connect(rhsName, name, "rhs"); err != nil {
		return "", "", err
	}
	return name, resultType, nil
}

func (l *lowering) lowerUnary(n *Unary) (string, string, error) {
	opName, opType, err := l.lower(n.Operand)
	if err != nil {
		return "", "", err
	}

	want := TypeScalar
	if n.Op == "!" {
		want = TypeBoolean
	}
	if opType != want {
		return "", "", fmt.Errorf("%w: operator %q at %s needs a %s operand, got %s",
			ErrNoMatchingOverload, n.Op, n.Span(), want, opType)
	}

	name, err := l.emit("expr_unary_op",
		cty.ObjectVal(map[string]cty.Value{"op_string": cty.StringVal(n.Op)}))
	if err != nil {
		return "", "", err
	}
	if err := l.g.Connect(opName, name, "operand"); err != nil {
		return "", "", err
	}
	return name, want, nil
}

func (l *lowering) lowerCall(n *Call) (string, string, error) {
	argNames := make([]string, len(n.Args))
	argTypes := make([]string, len(n.Args))
	for i, arg := range n.Args {
		name, typ, err := l.lower(arg)
		if err != nil {
			return "", "", err
		}
		argNames[i], argTypes[i] = name, typ
	}

	sig, err := l.fns.Resolve(n.Name, argTypes)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", n.Span(), err)
	}

	inst, err := l.g.AddFilter(sig.FilterName, "", cty.NilVal)
	if err != nil {
		return "", "", err
	}
	connected := make(map[string]struct{}, len(sig.Args))
	for i, a := range sig.Args {
		if err := l.g.Connect(argNames[i], inst.Name, a.Name); err != nil {
			return "", "", err
		}
		connected[a.Name] = struct{}{}
	}
	// Shorter overloads of the same filter leave trailing ports unused;
	// mark them empty so validation passes.
	for _, port := range inst.Interface.PortNames {
		if _, ok := connected[port]; ok {
			continue
		}
		if err := l.g.MarkEmpty(inst.Name, port); err != nil {
			return "", "", err
		}
	}
	return inst.Name, sig.ReturnType, nil
}

func (l *lowering) lowerIf(n *If) (string, string, error) {
	condName, condType, err := l.lower(n.Cond)
	if err != nil {
		return "", "", err
	}
	if condType != TypeBoolean {
		return "", "", fmt.Errorf("%w: if condition at %s must be boolean, got %s",
			ErrNoMatchingOverload, n.Cond.Span(), condType)
	}
	thenName, thenType, err := l.lower(n.Then)
	if err != nil {
		return "", "", err
	}
	elseName, elseType, err := l.lower(n.Else)
	if err != nil {
		return "", "", err
	}
	if thenType != elseType {
		return "", "", fmt.Errorf("%w: if branches at %s disagree, %s vs %s",
			ErrNoMatchingOverload, n.Span(), thenType, elseType)
	}

	name, err := l.emit("expr_if", cty.NilVal)
	if err != nil {
		return "", "", err
	}
	if err := l.g.Connect(condName, name, "condition"); err != nil {
		return "", "", err
	}
	if err := l.g.Connect(thenName, name, "then"); err != nil {
		return "", "", err
	}
	if err := l.g.Connect(elseName, name, "else"); err != nil {
		return "", "", err
	}
	return name, thenType, nil
}

func (l *lowering) lowerMember(n *Member) (string, string, error) {
	objName, _, err := l.lower(n.Obj)
	if err != nil {
		return "", "", err
	}
	tag, ok := attributeTags[n.Field]
	if !ok {
		return "", "", fmt.Errorf("%w: attribute %q at %s", ErrUnknownIdentifier, n.Field, n.Span())
	}

	name, err := l.emit("expr_dot",
		cty.ObjectVal(map[string]cty.Value{"field": cty.StringVal(n.Field)}))
	if err != nil {
		return "", "", err
	}
	if err := l.g.Connect(objName, name, "obj"); err != nil {
		return "", "", err
	}
	return name, tag, nil
}
