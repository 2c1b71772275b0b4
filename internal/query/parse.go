package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// ParseError reports a syntax error in a predicate expression.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}

// Parse reads a predicate written in the text syntax:
//
//	year > 2000 and (title = 'Dune' or tags contains 'classic')
//	status not in ('draft', 'deleted')
//
// Keywords are case-insensitive. AND binds tighter than OR; both are left
// associative. Comparison operators are = == != <> < <= > >= in, not in and
// contains. Literals are 'single' or "double" quoted strings (a doubled quote
// escapes itself), numbers, true, false and null.
//
// With a schema, literals are converted to the field's declared kind
// (timestamps from quoted RFC 3339 strings, integers widened for float
// fields); a literal that cannot be converted, or an unknown field, yields an
// INVALID_PREDICATE error. Without a schema, literals keep their lexical kind.
// Parse does not otherwise validate the predicate.
//
// An empty or all-whitespace expression, or "*", parses to nil (match all).
func Parse(src string, s *schema.Schema) (Predicate, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" || trimmed == "*" {
		return nil, nil
	}

	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, schema: s}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &ParseError{Offset: tok.pos, Message: fmt.Sprintf("unexpected %s", tok)}
	}
	return pred, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return strconv.Quote(t.text)
}

// keyword reports whether t is the identifier kw, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '\'' || c == '"':
			text, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, text, i})
			i += n
		case strings.ContainsRune("=!<>", rune(c)):
			start := i
			i++
			if i < len(src) && (src[i] == '=' || (c == '<' && src[i] == '>')) {
				i++
			}
			op := src[start:i]
			if op == "!" {
				return nil, &ParseError{Offset: start, Message: "expected '!='"}
			}
			toks = append(toks, token{tokOp, op, start})
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(src) && isNumberChar(src[i], src[i-1]) {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(src) && (src[i] == '_' || unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i]))) {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		default:
			return nil, &ParseError{Offset: i, Message: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isNumberChar(c, prev byte) bool {
	switch {
	case c >= '0' && c <= '9', c == '.', c == 'e', c == 'E':
		return true
	case (c == '-' || c == '+') && (prev == 'e' || prev == 'E'):
		return true
	}
	return false
}

// lexString reads a quoted string starting at src[start]. A doubled quote
// character inside the string stands for one quote.
func lexString(src string, start int) (string, int, error) {
	q := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == q {
			if i+1 < len(src) && src[i+1] == q {
				b.WriteByte(q)
				i += 2
				continue
			}
			return b.String(), i + 1 - start, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, &ParseError{Offset: start, Message: "unterminated string"}
}

type parser struct {
	toks   []token
	pos    int
	schema *schema.Schema
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, &ParseError{Offset: t.pos, Message: fmt.Sprintf("expected %s, got %s", what, t)}
	}
	return t, nil
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("and") {
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = And(left, right)
	}
	return left, nil
}

func (p *parser) parsePrimary() (Predicate, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Predicate, error) {
	fieldTok, err := p.expect(tokIdent, "field name")
	if err != nil {
		return nil, err
	}
	field := fieldTok.text

	opTok := p.next()
	var op Op
	switch {
	case opTok.kind == tokOp:
		switch opTok.text {
		case "=", "==":
			op = OpEq
		case "!=", "<>":
			op = OpNeq
		default:
			op = Op(opTok.text)
		}
	case opTok.keyword("in"):
		op = OpIn
	case opTok.keyword("not"):
		if _, err := p.expectKeyword("in"); err != nil {
			return nil, err
		}
		op = OpNotIn
	case opTok.keyword("contains"):
		op = OpContains
	default:
		return nil, &ParseError{Offset: opTok.pos, Message: fmt.Sprintf("expected operator, got %s", opTok)}
	}

	if op == OpIn || op == OpNotIn {
		values, err := p.parseList(field)
		if err != nil {
			return nil, err
		}
		return Comparison{Field: field, Op: op, Value: values}, nil
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	val, err := p.typed(field, op, lit)
	if err != nil {
		return nil, err
	}
	return Comparison{Field: field, Op: op, Value: val}, nil
}

func (p *parser) expectKeyword(kw string) (token, error) {
	t := p.next()
	if !t.keyword(kw) {
		return t, &ParseError{Offset: t.pos, Message: fmt.Sprintf("expected %s, got %s", strings.ToUpper(kw), t)}
	}
	return t, nil
}

func (p *parser) parseList(field string) (ir.List, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	out := ir.List{}
	if p.peek().kind == tokRParen {
		p.next()
		return out, nil
	}
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		val, err := p.typed(field, OpIn, lit)
		if err != nil {
			return nil, err
		}
		out = append(out, val)

		t := p.next()
		if t.kind == tokRParen {
			return out, nil
		}
		if t.kind != tokComma {
			return nil, &ParseError{Offset: t.pos, Message: fmt.Sprintf("expected ',' or ')', got %s", t)}
		}
	}
}

// parseLiteral returns the raw Go value of the next literal.
func (p *parser) parseLiteral() (any, error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return t.text, nil
	case t.kind == tokNumber:
		if !strings.ContainsAny(t.text, ".eE") {
			i, err := strconv.ParseInt(t.text, 10, 64)
			if err != nil {
				return nil, &ParseError{Offset: t.pos, Message: fmt.Sprintf("invalid integer %s", t.text)}
			}
			return i, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &ParseError{Offset: t.pos, Message: fmt.Sprintf("invalid number %s", t.text)}
		}
		return f, nil
	case t.keyword("true"):
		return true, nil
	case t.keyword("false"):
		return false, nil
	case t.keyword("null"):
		return nil, nil
	}
	return nil, &ParseError{Offset: t.pos, Message: fmt.Sprintf("expected literal, got %s", t)}
}

// typed converts a raw literal using the schema, when there is one.
func (p *parser) typed(field string, op Op, raw any) (ir.Value, error) {
	if p.schema == nil {
		return ir.FromAny(raw)
	}
	f, ok := p.schema.Field(field)
	if !ok {
		return nil, ir.InvalidPredicate(field, "unknown field")
	}
	if op == OpContains {
		if f.Kind == ir.KindList || f.Kind == ir.KindObject {
			return ir.FromAny(raw)
		}
	}
	val, err := p.schema.DecodeValue(field, raw)
	if err != nil {
		return nil, ir.InvalidPredicate(field, "%v", err)
	}
	return val, nil
}
