package expr

// Node is one AST node. Every variant carries its source span for
// diagnostics.
type Node interface {
	Span() Span
}

type span struct{ at Span }

func (s span) Span() Span { return s.at }

// IntegerLit is an integer literal. The integer tag survives lowering until
// a double joins the expression.
type IntegerLit struct {
	span
	Value int64
}

// DoubleLit is a floating point literal.
type DoubleLit struct {
	span
	Value float64
}

// StringLit is a double-quoted literal naming a mesh field.
type StringLit struct {
	span
	Value string
}

// BoolLit is a true/false literal.
type BoolLit struct {
	span
	Value bool
}

// Ident references a previously cached named expression result.
type Ident struct {
	span
	Name string
}

// Binary applies an arithmetic, comparison or logical operator.
type Binary struct {
	span
	Op  string
	LHS Node
	RHS Node
}

// Unary applies negation or logical not.
type Unary struct {
	span
	Op      string
	Operand Node
}

// Call invokes a builtin function.
type Call struct {
	span
	Name string
	Args []Node
}

// If is the ternary if-then-else expression.
type If struct {
	span
	Cond Node
	Then Node
	Else Node
}

// Member accesses an attribute of a result, such as the position of an
// extremum.
type Member struct {
	span
	Obj   Node
	Field string
}
