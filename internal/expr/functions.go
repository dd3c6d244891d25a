package expr

import (
	"fmt"
	"strings"
)

// Evaluator error kinds.
var (
	ErrNoMatchingOverload = fmt.Errorf("no matching overload")
	ErrArityMismatch      = fmt.Errorf("arity mismatch")
	ErrUnknownIdentifier  = fmt.Errorf("unknown identifier")
)

// Arg is one positional argument of an overload. Name doubles as the input
// port name of the emitted filter.
type Arg struct {
	Name string
	Type string
}

// Signature is one overload of a builtin: the tag it returns, the filter
// type it lowers to, and its argument tags by position.
type Signature struct {
	ReturnType string
	FilterName string
	Args       []Arg
}

func (s Signature) String() string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = a.Type
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(args, ", "), s.ReturnType)
}

// Functions maps a builtin name to its overloads in resolution order:
// first match wins, so the most specific overloads come first.
type Functions map[string][]Signature

func args(types ...string) []Arg {
	out := make([]Arg, len(types))
	for i, t := range types {
		out[i] = Arg{Name: fmt.Sprintf("arg%d", i+1), Type: t}
	}
	return out
}

// Builtins returns the default function table. Scalar overloads of max and
// min precede the field overloads so that two-scalar calls never reduce a
// field.
func Builtins() Functions {
	return Functions{
		"max": {
			{ReturnType: TypeScalar, FilterName: "scalar_max", Args: args(TypeScalar, TypeScalar)},
			{ReturnType: TypeScalar, FilterName: "field_max", Args: args(TypeMeshVar)},
		},
		"min": {
			{ReturnType: TypeScalar, FilterName: "scalar_min", Args: args(TypeScalar, TypeScalar)},
			{ReturnType: TypeScalar, FilterName: "field_min", Args: args(TypeMeshVar)},
		},
		"avg": {
			{ReturnType: TypeScalar, FilterName: "field_avg", Args: args(TypeMeshVar)},
		},
		"sum": {
			{ReturnType: TypeScalar, FilterName: "field_sum", Args: args(TypeMeshVar)},
		},
		"nan_count": {
			{ReturnType: TypeScalar, FilterName: "field_nan_count", Args: args(TypeMeshVar)},
		},
		"inf_count": {
			{ReturnType: TypeScalar, FilterName: "field_inf_count", Args: args(TypeMeshVar)},
		},
		"cycle": {
			{ReturnType: TypeScalar, FilterName: "cycle"},
		},
		"position": {
			{ReturnType: TypeVector, FilterName: "expr_position", Args: args(TypeScalar)},
		},
		"histogram": {
			{ReturnType: TypeHistogram, FilterName: "histogram",
				Args: args(TypeMeshVar, TypeScalar, TypeScalar, TypeScalar)},
			{ReturnType: TypeHistogram, FilterName: "histogram",
				Args: args(TypeMeshVar, TypeScalar)},
		},
		"entropy": {
			{ReturnType: TypeScalar, FilterName: "entropy", Args: args(TypeHistogram)},
		},
		"pdf": {
			{ReturnType: TypeHistogram, FilterName: "pdf", Args: args(TypeHistogram)},
		},
		"cdf": {
			{ReturnType: TypeHistogram, FilterName: "cdf", Args: args(TypeHistogram)},
		},
		"quantile": {
			{ReturnType: TypeScalar, FilterName: "quantile",
				Args: args(TypeHistogram, TypeScalar, TypeString)},
			{ReturnType: TypeScalar, FilterName: "quantile",
				Args: args(TypeHistogram, TypeScalar)},
		},
		"binning": {
			{ReturnType: TypeBinning, FilterName: "binning",
				Args: args(TypeMeshVar, TypeString,
					TypeString, TypeScalar, TypeScalar, TypeScalar,
					TypeString, TypeScalar, TypeScalar, TypeScalar)},
			{ReturnType: TypeBinning, FilterName: "binning",
				Args: args(TypeMeshVar, TypeString,
					TypeString, TypeScalar, TypeScalar, TypeScalar)},
		},
		"paint_binning": {
			{ReturnType: TypeMeshVar, FilterName: "paint_binning",
				Args: args(TypeBinning, TypeString)},
		},
	}
}

// tagMatches checks one argument tag against a signature slot. Quoted
// literals lower as meshvar; slots declared string accept them, since both
// carry plain text.
func tagMatches(want, got string) bool {
	if want == got {
		return true
	}
	return want == TypeString && got == TypeMeshVar
}

// Resolve picks the first overload whose argument tags match. A name with
// overloads but none of the right arity fails with ArityMismatch; matching
// arity with wrong tags fails with NoMatchingOverload listing candidates.
func (f Functions) Resolve(name string, argTypes []string) (Signature, error) {
	overloads, ok := f[name]
	if !ok {
		return Signature{}, fmt.Errorf("%w: unknown function %q", ErrNoMatchingOverload, name)
	}

	arityMatched := false
	for _, sig := range overloads {
		if len(sig.Args) != len(argTypes) {
			continue
		}
		arityMatched = true
		match := true
		for i, a := range sig.Args {
			if !tagMatches(a.Type, argTypes[i]) {
				match = false
				break
			}
		}
		if match {
			return sig, nil
		}
	}

	if !arityMatched {
		return Signature{}, fmt.Errorf("%w: %s takes no %d-argument form",
			ErrArityMismatch, name, len(argTypes))
	}
	var candidates []string
	for _, sig := range overloads {
		candidates = append(candidates, name+sig.String())
	}
	return Signature{}, fmt.Errorf("%w: %s(%s); candidates: %s",
		ErrNoMatchingOverload, name, strings.Join(argTypes, ", "),
		strings.Join(candidates, "; "))
}
