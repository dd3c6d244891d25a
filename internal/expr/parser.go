package expr

import (
	"fmt"
	"strconv"
)

type parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses one expression, requiring the whole input to be
// consumed.
func Parse(src string) (Node, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != TokEnd {
		return nil, fmt.Errorf("%w: trailing input at %s: %q", ErrParse, p.cur().Span, p.cur().Text)
	}
	return node, nil
}

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// acceptPunct consumes the current token if it is one of the given
// punctuation strings.
func (p *parser) acceptPunct(ops ...string) (string, bool) {
	if p.cur().Kind != TokPunct {
		return "", false
	}
	for _, op := range ops {
		if p.cur().Text == op {
			p.advance()
			return op, true
		}
	}
	return "", false
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.cur().Kind == TokKeyword && p.cur().Text == kw {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectPunct(op string) error {
	if _, ok := p.acceptPunct(op); !ok {
		return fmt.Errorf("%w: expected %q at %s, got %q", ErrParse, op, p.cur().Span, p.cur().Text)
	}
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return fmt.Errorf("%w: expected %q at %s, got %q", ErrParse, kw, p.cur().Span, p.cur().Text)
	}
	return nil
}

func spanning(from, to Node) span {
	return span{Span{from.Span().Start, to.Span().End}}
}

func (p *parser) orExpr() (Node, error) {
	lhs, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		rhs, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{span: spanning(lhs, rhs), Op: "or", LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) andExpr() (Node, error) {
	lhs, err := p.cmpExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		rhs, err := p.cmpExpr()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{span: spanning(lhs, rhs), Op: "and", LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

// cmpExpr allows at most one comparison; chained comparisons are a syntax
// error by construction.
func (p *parser) cmpExpr() (Node, error) {
	lhs, err := p.addExpr()
	if err != nil {
		return nil, err
	}
	if op, ok := p.acceptPunct("<=", ">=", "==", "!=", "<", ">"); ok {
		rhs, err := p.addExpr()
		if err != nil {
			return nil, err
		}
		return &Binary{span: spanning(lhs, rhs), Op: op, LHS: lhs, RHS: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) addExpr() (Node, error) {
	lhs, err := p.mulExpr()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptPunct("+", "-")
		if !ok {
			return lhs, nil
		}
		rhs, err := p.mulExpr()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{span: spanning(lhs, rhs), Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *parser) mulExpr() (Node, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptPunct("*", "/", "%")
		if !ok {
			return lhs, nil
		}
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{span: spanning(lhs, rhs), Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *parser) unary() (Node, error) {
	start := p.cur().Span.Start
	if op, ok := p.acceptPunct("-", "!"); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{span: span{Span{start, operand.Span().End}}, Op: op, Operand: operand}, nil
	}
	if p.acceptKeyword("not") {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{span: span{Span{start, operand.Span().End}}, Op: "!", Operand: operand}, nil
	}
	return p.postfix()
}

// postfix handles member access chains. Call syntax is folded into primary:
// only named builtins are callable, so a '(' after a plain identifier is a
// function call, while results of other postfix forms are not callable.
func (p *parser) postfix() (Node, error) {
	node, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptPunct("."); !ok {
			return node, nil
		}
		tok := p.cur()
		if tok.Kind != TokIdent {
			return nil, fmt.Errorf("%w: expected attribute name at %s, got %q", ErrParse, tok.Span, tok.Text)
		}
		p.advance()
		node = &Member{span: span{Span{node.Span().Start, tok.Span.End}}, Obj: node, Field: tok.Text}
	}
}

func (p *parser) primary() (Node, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokInt:
		p.advance()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad integer %q at %s", ErrParse, tok.Text, tok.Span)
		}
		return &IntegerLit{span: span{tok.Span}, Value: v}, nil

	case TokDouble:
		p.advance()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad double %q at %s", ErrParse, tok.Text, tok.Span)
		}
		return &DoubleLit{span: span{tok.Span}, Value: v}, nil

	case TokString:
		p.advance()
		return &StringLit{span: span{tok.Span}, Value: tok.Text}, nil

	case TokIdent:
		p.advance()
		if _, ok := p.acceptPunct("("); ok {
			return p.callArgs(tok)
		}
		return &Ident{span: span{tok.Span}, Name: tok.Text}, nil

	case TokKeyword:
		switch tok.Text {
		case "true", "false":
			p.advance()
			return &BoolLit{span: span{tok.Span}, Value: tok.Text == "true"}, nil
		case "if":
			return p.ifExpr()
		}

	case TokPunct:
		if tok.Text == "(" {
			p.advance()
			inner, err := p.orExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %s %q at %s", ErrParse, tok.Kind, tok.Text, tok.Span)
}

func (p *parser) callArgs(name Token) (Node, error) {
	call := &Call{span: span{name.Span}, Name: name.Text}
	if _, ok := p.acceptPunct(")"); ok {
		call.at.End = p.toks[p.pos-1].Span.End
		return call, nil
	}
	for {
		arg, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if _, ok := p.acceptPunct(","); ok {
			continue
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		call.at.End = p.toks[p.pos-1].Span.End
		return call, nil
	}
}

func (p *parser) ifExpr() (Node, error) {
	start := p.cur().Span.Start
	p.advance() // "if"
	cond, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	then, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("else"); err != nil {
		return nil, err
	}
	els, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	return &If{span: span{Span{start, els.Span().End}}, Cond: cond, Then: then, Else: els}, nil
}
