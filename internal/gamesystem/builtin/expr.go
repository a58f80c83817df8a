package builtin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	maxDice  = 200
	maxSides = 10000
)

var (
	errSyntax  = errors.New("builtin: syntax error")
	errDivZero = errors.New("builtin: division by zero")
	errRange   = errors.New("builtin: dice out of range")
)

// node is a parsed arithmetic expression that may contain dice.
type node interface {
	// eval rolls every die in the node and returns the value together with
	// the rendered intermediate step, e.g. "7[3,4]+1".
	eval(r Roller) (value int, shown string, err error)

	// String returns the normalised expression, e.g. "2D6+1".
	String() string

	hasDice() bool
}

type numNode int

func (n numNode) eval(Roller) (int, string, error) { return int(n), n.String(), nil }
func (n numNode) String() string                    { return strconv.Itoa(int(n)) }
func (numNode) hasDice() bool                       { return false }

type diceNode struct {
	count, sides int
}

func (d *diceNode) eval(r Roller) (int, string, error) {
	rolls := make([]string, d.count)
	sum := 0
	for i := range d.count {
		v := roll(r, d.sides)
		sum += v
		rolls[i] = strconv.Itoa(v)
	}
	return sum, strconv.Itoa(sum) + "[" + strings.Join(rolls, ",") + "]", nil
}

func (d *diceNode) String() string { return fmt.Sprintf("%dD%d", d.count, d.sides) }
func (*diceNode) hasDice() bool    { return true }

type negNode struct{ x node }

func (n *negNode) eval(r Roller) (int, string, error) {
	v, s, err := n.x.eval(r)
	return -v, "-" + s, err
}

func (n *negNode) String() string { return "-" + n.x.String() }
func (n *negNode) hasDice() bool  { return n.x.hasDice() }

type parenNode struct{ x node }

func (p *parenNode) eval(r Roller) (int, string, error) {
	v, s, err := p.x.eval(r)
	return v, "(" + s + ")", err
}

func (p *parenNode) String() string { return "(" + p.x.String() + ")" }
func (p *parenNode) hasDice() bool  { return p.x.hasDice() }

type binNode struct {
	op   byte
	l, r node
}

func (b *binNode) eval(r Roller) (int, string, error) {
	lv, ls, err := b.l.eval(r)
	if err != nil {
		return 0, "", err
	}
	rv, rs, err := b.r.eval(r)
	if err != nil {
		return 0, "", err
	}
	shown := ls + string(b.op) + rs
	switch b.op {
	case '+':
		return lv + rv, shown, nil
	case '-':
		return lv - rv, shown, nil
	case '*':
		return lv * rv, shown, nil
	case '/':
		if rv == 0 {
			return 0, "", errDivZero
		}
		return floorDiv(lv, rv), shown, nil
	}
	return 0, "", fmt.Errorf("%w: operator %q", errSyntax, b.op)
}

func (b *binNode) String() string { return b.l.String() + string(b.op) + b.r.String() }
func (b *binNode) hasDice() bool  { return b.l.hasDice() || b.r.hasDice() }

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// parseExpr parses an arithmetic expression over integers and NdS dice.
// Input is case-insensitive and must not contain whitespace.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = number | [number] "D" number | "(" expr ")"
func parseExpr(s string) (node, error) {
	p := &parser{s: strings.ToUpper(s)}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: unexpected %q", errSyntax, p.s[p.pos:])
	}
	return n, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return l, nil
		}
		p.pos++
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = &binNode{op: op, l: l, r: r}
	}
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return l, nil
		}
		p.pos++
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = &binNode{op: op, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if p.peek() == '-' {
		p.pos++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &negNode{x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("%w: missing ')'", errSyntax)
		}
		p.pos++
		return &parenNode{x: x}, nil

	case c == 'D' || isDigit(c):
		count := 1
		if isDigit(c) {
			n, err := p.number()
			if err != nil {
				return nil, err
			}
			if p.peek() != 'D' {
				return numNode(n), nil
			}
			count = n
		}
		p.pos++ // 'D'
		if !isDigit(p.peek()) {
			return nil, fmt.Errorf("%w: missing number of sides", errSyntax)
		}
		sides, err := p.number()
		if err != nil {
			return nil, err
		}
		if count < 1 || count > maxDice || sides < 1 || sides > maxSides {
			return nil, fmt.Errorf("%w: %dD%d", errRange, count, sides)
		}
		return &diceNode{count: count, sides: sides}, nil
	}
	if c == 0 {
		return nil, fmt.Errorf("%w: unexpected end of expression", errSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q", errSyntax, c)
}

func (p *parser) number() (int, error) {
	start := p.pos
	for isDigit(p.peek()) {
		p.pos++
	}
	n, err := strconv.Atoi(p.s[start:p.pos])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSyntax, err)
	}
	return n, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// compare applies a comparison operator as written in a roll command.
func compare(op string, a, b int) bool {
	switch op {
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case ">":
		return a > b
	case "=":
		return a == b
	case "<>", "!=":
		return a != b
	}
	return false
}
