package tenantdb

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// Expr is a parsed filter expression applied to records during select,
	// update, delete, and count operations
	Expr interface {
		Match(Record) bool
	}

	andExpr struct {
		left, right Expr
	}

	compareExpr struct {
		field string
		value string
		op    string
	}

	matchAll struct{}

	parser struct {
		input string
		pos   int
	}
)

// Filter operators. LIKE patterns use % as a wildcard; ILIKE matches
// case-insensitively
const (
	opEq    = "="
	opNotEq = "!="
	opLike  = "LIKE"
	opILike = "ILIKE"
)

var (
	ErrFilterSyntax = errors.New("filter syntax error")
	ErrFilterOp     = errors.New("unknown filter operator")
)

// ParseFilter compiles a filter expression. The grammar is a conjunction
// of field comparisons: name = 'Ada' AND role != 'admin'. An empty filter
// matches every record
func ParseFilter(input string) (Expr, error) {
	p := &parser{input: input}
	p.skipSpace()
	if p.pos >= len(p.input) {
		return matchAll{}, nil
	}

	expr, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf(
			"%w: trailing input at %d", ErrFilterSyntax, p.pos,
		)
	}
	return expr, nil
}

func (matchAll) Match(Record) bool {
	return true
}

func (e andExpr) Match(r Record) bool {
	return e.left.Match(r) && e.right.Match(r)
}

func (e compareExpr) Match(r Record) bool {
	val := r[e.field]
	switch e.op {
	case opEq:
		return val == e.value
	case opNotEq:
		return val != e.value
	case opLike:
		return likeMatch(val, e.value)
	case opILike:
		return likeMatch(strings.ToLower(val), strings.ToLower(e.value))
	}
	return false
}

// likeMatch checks value against a pattern whose % segments may match any
// run of characters
func likeMatch(val, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return val == pattern
	}

	if first := parts[0]; first != "" {
		if !strings.HasPrefix(val, first) {
			return false
		}
		val = val[len(first):]
	}

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(val, part)
		if idx < 0 {
			return false
		}
		val = val[idx+len(part):]
	}
	return strings.HasSuffix(val, last)
}

func (p *parser) parseConjunction() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for {
		p.skipSpace()
		if !p.consumeKeyword("AND") {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = andExpr{left: left, right: right}
	}
}

func (p *parser) parseComparison() (Expr, error) {
	field, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return compareExpr{field: field, op: op, value: value}, nil
}

func (p *parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf(
			"%w: expected field name at %d", ErrFilterSyntax, start,
		)
	}
	return p.input[start:p.pos], nil
}

func (p *parser) parseOperator() (string, error) {
	p.skipSpace()
	switch {
	case p.consumeLiteral(opNotEq):
		return opNotEq, nil
	case p.consumeLiteral(opEq):
		return opEq, nil
	case p.consumeKeyword(opILike):
		return opILike, nil
	case p.consumeKeyword(opLike):
		return opLike, nil
	}
	return "", fmt.Errorf("%w: at %d", ErrFilterOp, p.pos)
}

func (p *parser) parseValue() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return "", fmt.Errorf(
			"%w: expected value at %d", ErrFilterSyntax, p.pos,
		)
	}

	if p.input[p.pos] == '\'' {
		return p.parseQuoted()
	}

	start := p.pos
	for p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos], nil
}

func (p *parser) parseQuoted() (string, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '\'' {
			if p.pos+1 < len(p.input) && p.input[p.pos+1] == '\'' {
				sb.WriteByte('\'')
				p.pos += 2
				continue
			}
			p.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("%w: unterminated string", ErrFilterSyntax)
}

func (p *parser) consumeLiteral(lit string) bool {
	if strings.HasPrefix(p.input[p.pos:], lit) {
		p.pos += len(lit)
		return true
	}
	return false
}

func (p *parser) consumeKeyword(kw string) bool {
	rest := p.input[p.pos:]
	if len(rest) < len(kw) {
		return false
	}
	if !strings.EqualFold(rest[:len(kw)], kw) {
		return false
	}
	if len(rest) > len(kw) && isIdentChar(rest[len(kw)]) {
		return false
	}
	p.pos += len(kw)
	return true
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
