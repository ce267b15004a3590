// Package query parses and evaluates the filter-and-projection subset of
// the document store's query language served by the devstore:
//
//	*[path == value && path != $param ...][index]{"alias": path, alias: a->b, path, ...}
//
// Values are string, number, boolean or null literals, or $parameters.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMissingParam = errors.New("missing query parameter")

// Step is one segment of a path. Deref means the value reached so far is a
// reference that must be resolved before Name is read.
type Step struct {
	Name  string
	Deref bool
}

// Path addresses a value inside a document.
type Path []Step

func (p Path) String() string {
	var sb strings.Builder
	for i, s := range p {
		switch {
		case s.Deref:
			sb.WriteString("->")
		case i > 0:
			sb.WriteByte('.')
		}
		sb.WriteString(s.Name)
	}
	return sb.String()
}

// Operand is a literal value or a parameter reference.
type Operand struct {
	Literal any
	Param   string
}

// Condition compares the value at Path with an operand.
type Condition struct {
	Path    Path
	Negated bool
	Value   Operand
}

// Field is one projection entry. Spread copies every field of the document.
type Field struct {
	Alias  string
	Path   Path
	Spread bool
}

// Query is a parsed query.
type Query struct {
	Source     string
	Filter     []Condition
	Index      *int
	Projection []Field
}

// Parse parses src.
func Parse(src string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	p := &parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	q.Source = src
	return q, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at %d, found %s", kind, t.pos, t.kind)
	}
	return t, nil
}

func (p *parser) parseQuery() (*Query, error) {
	if _, err := p.expect(tokStar); err != nil {
		return nil, err
	}
	q := &Query{}

	if p.peek().kind == tokLBracket {
		p.next()
		conds, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		q.Filter = conds
	}

	if p.peek().kind == tokLBracket {
		p.next()
		t, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		idx, err := strconv.Atoi(t.text)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid index %q at %d", t.text, t.pos)
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		q.Index = &idx
	}

	if p.peek().kind == tokLBrace {
		p.next()
		fields, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		q.Projection = fields
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at %d", t.kind, t.pos)
	}
	return q, nil
}

func (p *parser) parseFilter() ([]Condition, error) {
	var conds []Condition
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)

		t := p.next()
		switch t.kind {
		case tokAnd:
			continue
		case tokRBracket:
			return conds, nil
		default:
			return nil, fmt.Errorf("expected '&&' or ']' at %d, found %s", t.pos, t.kind)
		}
	}
}

func (p *parser) parseCondition() (Condition, error) {
	path, err := p.parsePath()
	if err != nil {
		return Condition{}, err
	}
	cond := Condition{Path: path}

	switch t := p.next(); t.kind {
	case tokEq:
	case tokNeq:
		cond.Negated = true
	default:
		return Condition{}, fmt.Errorf("expected '==' or '!=' at %d, found %s", t.pos, t.kind)
	}

	operand, err := p.parseOperand()
	if err != nil {
		return Condition{}, err
	}
	cond.Value = operand
	return cond, nil
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Operand{Literal: t.text}, nil
	case tokParam:
		return Operand{Param: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid number %q at %d", t.text, t.pos)
		}
		return Operand{Literal: f}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return Operand{Literal: true}, nil
		case "false":
			return Operand{Literal: false}, nil
		case "null":
			return Operand{Literal: nil}, nil
		}
	}
	return Operand{}, fmt.Errorf("expected a value at %d, found %s", t.pos, t.kind)
}

func (p *parser) parsePath() (Path, error) {
	t, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	path := Path{{Name: t.text}}
	for {
		var deref bool
		switch p.peek().kind {
		case tokDot:
		case tokArrow:
			deref = true
		default:
			return path, nil
		}
		p.next()
		t, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		path = append(path, Step{Name: t.text, Deref: deref})
	}
}

func (p *parser) parseProjection() ([]Field, error) {
	var fields []Field
	for {
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)

		t := p.next()
		switch t.kind {
		case tokComma:
			if p.peek().kind == tokRBrace {
				p.next()
				return fields, nil
			}
			continue
		case tokRBrace:
			return fields, nil
		default:
			return nil, fmt.Errorf("expected ',' or '}' at %d, found %s", t.pos, t.kind)
		}
	}
}

func (p *parser) parseField() (Field, error) {
	switch t := p.peek(); t.kind {
	case tokEllipsis:
		p.next()
		return Field{Spread: true}, nil
	case tokString:
		p.next()
		if _, err := p.expect(tokColon); err != nil {
			return Field{}, err
		}
		path, err := p.parsePath()
		if err != nil {
			return Field{}, err
		}
		return Field{Alias: t.text, Path: path}, nil
	}

	path, err := p.parsePath()
	if err != nil {
		return Field{}, err
	}
	if p.peek().kind == tokColon {
		if len(path) != 1 {
			return Field{}, fmt.Errorf("invalid alias %q", path.String())
		}
		p.next()
		target, err := p.parsePath()
		if err != nil {
			return Field{}, err
		}
		return Field{Alias: path[0].Name, Path: target}, nil
	}
	return Field{Alias: path[len(path)-1].Name, Path: path}, nil
}
