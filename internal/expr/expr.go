package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/stanza/internal/path"
	"github.com/aretw0/stanza/pkg/domain"
)

// Env resolves paths against current state. Unresolved paths yield Null.
type Env interface {
	ResolveString(raw string) domain.Value
}

// Expr is a compiled boolean expression. Compilation validates the full
// grammar up front so evaluation can never fail at runtime: an unmet or
// unresolvable condition is simply false.
type Expr struct {
	src  string
	root node
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Compile parses a condition such as
//
//	$gold >= 100 && (TIME >= 12 || DAY == 'sunday')
//
// Malformed expressions are authoring errors and are rejected here, before
// execution ever starts.
func Compile(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("condition %q: unexpected %q", src, p.peek().text)
	}
	return &Expr{src: src, root: root}, nil
}

// Eval evaluates the expression against an environment. Logical combinators
// short-circuit left to right. A Null operand makes any comparison other
// than == null / != null false.
func (e *Expr) Eval(env Env) bool {
	return e.root.eval(env)
}

// --- AST ---

type node interface {
	eval(env Env) bool
}

type logical struct {
	op  string // "&&" or "||"
	lhs node
	rhs node
}

func (n *logical) eval(env Env) bool {
	if n.op == "&&" {
		return n.lhs.eval(env) && n.rhs.eval(env)
	}
	return n.lhs.eval(env) || n.rhs.eval(env)
}

type comparison struct {
	op  string
	lhs operand
	rhs operand
}

func (n *comparison) eval(env Env) bool {
	// Comparisons against the null literal test resolvability itself.
	if n.rhs.isNullLit || n.lhs.isNullLit {
		lv := n.lhs.resolve(env)
		rv := n.rhs.resolve(env)
		switch n.op {
		case "==":
			return isNull(lv) == isNull(rv)
		case "!=":
			return isNull(lv) != isNull(rv)
		}
		return false
	}

	lv := n.lhs.resolve(env)
	rv := n.rhs.resolve(env)
	if isNull(lv) || isNull(rv) {
		return false
	}

	// TIME is minutes-since-midnight; normalize the opposing operand so
	// both bare-hour (TIME >= 12) and 'HH:MM' literals stay monotonic.
	if n.lhs.isTime {
		rv = normalizeClock(rv)
	}
	if n.rhs.isTime {
		lv = normalizeClock(lv)
	}

	switch n.op {
	case "==":
		return domain.Equal(lv, rv)
	case "!=":
		return !domain.Equal(lv, rv)
	}

	// Ordering requires matching scalar kinds; anything else is false.
	switch l := lv.(type) {
	case domain.Number:
		r, ok := rv.(domain.Number)
		if !ok {
			return false
		}
		return orderNumbers(n.op, float64(l), float64(r))
	case domain.String:
		r, ok := rv.(domain.String)
		if !ok {
			return false
		}
		return orderStrings(n.op, string(l), string(r))
	}
	return false
}

// truthy is a bare operand used as a condition.
type truthy struct {
	opnd operand
}

func (n *truthy) eval(env Env) bool {
	switch v := n.opnd.resolve(env).(type) {
	case domain.Bool:
		return bool(v)
	case domain.Number:
		return v != 0
	case domain.String:
		return v != ""
	case domain.Array:
		return len(v) > 0
	case *domain.Object:
		return v.Len() > 0
	default:
		return false
	}
}

type operand struct {
	pathRef   string
	isPath    bool
	isTime    bool
	isNullLit bool
	lit       domain.Value
}

func (o operand) resolve(env Env) domain.Value {
	if o.isPath {
		return env.ResolveString(o.pathRef)
	}
	if o.isNullLit {
		return domain.Null{}
	}
	return o.lit
}

func isNull(v domain.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(domain.Null)
	return ok
}

var clockRe = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// normalizeClock converts an operand compared against TIME into
// minutes-since-midnight. Bare numbers are read as hours; 'HH:MM' strings
// are parsed; anything else passes through (and fails kind matching).
func normalizeClock(v domain.Value) domain.Value {
	switch val := v.(type) {
	case domain.Number:
		return domain.Number(float64(val) * 60)
	case domain.String:
		if m := clockRe.FindStringSubmatch(string(val)); m != nil {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			return domain.Number(h*60 + min)
		}
	}
	return v
}

func orderNumbers(op string, a, b float64) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func orderStrings(op string, a, b string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

// --- Parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) atEnd() bool   { return p.pos >= len(p.toks) }
func (p *parser) peek() token   { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) match(kind tokenKind, text string) bool {
	if p.atEnd() {
		return false
	}
	t := p.peek()
	if t.kind == kind && (text == "" || t.text == text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokOp, "||") {
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &logical{op: "||", lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (node, error) {
	lhs, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.match(tokOp, "&&") {
		rhs, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		lhs = &logical{op: "&&", lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) parseComparison() (node, error) {
	if p.match(tokLParen, "") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokRParen, "") {
			return nil, fmt.Errorf("missing ')'")
		}
		return inner, nil
	}

	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() && p.peek().kind == tokOp && comparisonOps[p.peek().text] {
		op := p.advance().text
		rhs, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &comparison{op: op, lhs: lhs, rhs: rhs}, nil
	}
	return &truthy{opnd: lhs}, nil
}

func (p *parser) parseOperand() (operand, error) {
	if p.atEnd() {
		return operand{}, fmt.Errorf("unexpected end of expression")
	}
	neg := false
	if p.peek().kind == tokOp && p.peek().text == "-" {
		p.advance()
		neg = true
	}
	t := p.advance()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, fmt.Errorf("bad number %q", t.text)
		}
		if neg {
			f = -f
		}
		return operand{lit: domain.Number(f)}, nil
	case tokString:
		if neg {
			return operand{}, fmt.Errorf("cannot negate a string")
		}
		return operand{lit: domain.String(t.text)}, nil
	case tokIdent:
		if neg {
			return operand{}, fmt.Errorf("cannot negate %q", t.text)
		}
		switch t.text {
		case "true":
			return operand{lit: domain.Bool(true)}, nil
		case "false":
			return operand{lit: domain.Bool(false)}, nil
		case "null":
			return operand{isNullLit: true}, nil
		}
		if _, err := path.Parse(t.text); err != nil {
			return operand{}, err
		}
		trimmed := strings.TrimPrefix(t.text, "$")
		return operand{pathRef: t.text, isPath: true, isTime: trimmed == "TIME"}, nil
	default:
		return operand{}, fmt.Errorf("unexpected %q", t.text)
	}
}

// --- Lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
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
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < len(src) && src[j] != quote {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			// A trailing ':' means an unquoted clock literal; authoring
			// requires quotes there, so reject it early.
			if j < len(src) && src[j] == ':' {
				return nil, fmt.Errorf("clock literals must be quoted ('%s...')", src[i:j])
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentInnerByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "-"} {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op})
					i += len(op)
					goto next
				}
			}
			return nil, fmt.Errorf("unexpected character %q", string(c))
		next:
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentInnerByte(c byte) bool {
	return isIdentByte(c) || (c >= '0' && c <= '9') || c == '.' || c == '[' || c == ']' || c == '*'
}
