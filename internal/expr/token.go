package expr

import "fmt"

// Kind classifies a lexed token.
type Kind int

const (
	TokEnd Kind = iota
	TokInt
	TokDouble
	TokString
	TokIdent
	TokKeyword
	TokPunct
)

func (k Kind) String() string {
	switch k {
	case TokEnd:
		return "end"
	case TokInt:
		return "integer"
	case TokDouble:
		return "double"
	case TokString:
		return "string"
	case TokIdent:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokPunct:
		return "punctuation"
	}
	return "unknown"
}

// keywords reserved by the grammar. Identifiers may not shadow them.
var keywords = map[string]struct{}{
	"if":    {},
	"then":  {},
	"else":  {},
	"and":   {},
	"or":    {},
	"not":   {},
	"true":  {},
	"false": {},
}

// Span is a half-open byte range into the source expression.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string {
	return fmt.Sprintf("[%d:%d]", s.Start, s.End)
}

// Token is one lexed unit. Text holds the literal source slice; for string
// tokens it is the unquoted content.
type Token struct {
	Kind Kind
	Text string
	Span Span
}
