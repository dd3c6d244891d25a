package expr

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ErrParse covers both lexical and syntactic failures; the message carries
// the offending span.
var ErrParse = fmt.Errorf("parse error")

// punctuation accepted by the grammar, longest first so two-rune operators
// win over their one-rune prefixes.
var puncts = []string{
	"<=", ">=", "==", "!=",
	"+", "-", "*", "/", "%", "<", ">", "!", "(", ")", ",", ".",
}

type lexer struct {
	src string
	pos int
}

// Lex tokenizes the whole source, appending a TokEnd sentinel.
func Lex(src string) ([]Token, error) {
	lx := &lexer{src: src}
	var out []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == TokEnd {
			return out, nil
		}
	}
}

func (lx *lexer) peek() rune {
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	return r
}

func (lx *lexer) next() (Token, error) {
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		lx.pos += size
	}
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return Token{Kind: TokEnd, Span: Span{start, start}}, nil
	}

	r := lx.peek()
	switch {
	case unicode.IsDigit(r):
		return lx.number(start)
	case r == '"':
		return lx.str(start)
	case unicode.IsLetter(r) || r == '_':
		return lx.ident(start)
	}

	for _, p := range puncts {
		if len(lx.src)-lx.pos >= len(p) && lx.src[lx.pos:lx.pos+len(p)] == p {
			lx.pos += len(p)
			return Token{Kind: TokPunct, Text: p, Span: Span{start, lx.pos}}, nil
		}
	}
	return Token{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrParse, r, start)
}

// number lexes an integer or, if a fractional part or exponent appears, a
// double.
func (lx *lexer) number(start int) (Token, error) {
	kind := TokInt
	for lx.pos < len(lx.src) && unicode.IsDigit(lx.peek()) {
		lx.pos++
	}
	if lx.pos < len(lx.src) && lx.peek() == '.' {
		// A dot not followed by a digit is member access on the literal.
		if lx.pos+1 < len(lx.src) {
			r, _ := utf8.DecodeRuneInString(lx.src[lx.pos+1:])
			if unicode.IsDigit(r) {
				kind = TokDouble
				lx.pos++
				for lx.pos < len(lx.src) && unicode.IsDigit(lx.peek()) {
					lx.pos++
				}
			}
		}
	}
	if lx.pos < len(lx.src) && (lx.peek() == 'e' || lx.peek() == 'E') {
		mark := lx.pos
		lx.pos++
		if lx.pos < len(lx.src) && (lx.peek() == '+' || lx.peek() == '-') {
			lx.pos++
		}
		if lx.pos < len(lx.src) && unicode.IsDigit(lx.peek()) {
			kind = TokDouble
			for lx.pos < len(lx.src) && unicode.IsDigit(lx.peek()) {
				lx.pos++
			}
		} else {
			lx.pos = mark
		}
	}
	return Token{Kind: kind, Text: lx.src[start:lx.pos], Span: Span{start, lx.pos}}, nil
}

func (lx *lexer) str(start int) (Token, error) {
	lx.pos++ // opening quote
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		lx.pos += size
		if r == '"' {
			return Token{
				Kind: TokString,
				Text: lx.src[start+1 : lx.pos-1],
				Span: Span{start, lx.pos},
			}, nil
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated string starting at offset %d", ErrParse, start)
}

func (lx *lexer) ident(start int) (Token, error) {
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		lx.pos += size
	}
	text := lx.src[start:lx.pos]
	kind := TokIdent
	if _, ok := keywords[text]; ok {
		kind = TokKeyword
	}
	return Token{Kind: kind, Text: text, Span: Span{start, lx.pos}}, nil
}
