package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Calculator evaluates arithmetic, trigonometric, and logarithmic
// expressions against an explicit allow-list of operators and functions.
// Nothing outside the grammar ever executes; unknown symbols fail with a
// text error and the turn continues.
type Calculator struct{}

// NewCalculator creates the calculator tool.
func NewCalculator() *Calculator {
	return &Calculator{}
}

func (c *Calculator) Name() string { return "calculator" }

func (c *Calculator) Description() string {
	return "Evaluates mathematical expressions. " +
		"Supports +, -, *, /, %, **, sqrt, sin, cos, tan, log, ln, abs, round, min, max, pi, e. " +
		`Example: "sqrt(16) + 2**3" returns "Result: 12".`
}

func (c *Calculator) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"expression": StringProperty("The mathematical expression to evaluate"),
	}, "expression")
}

// Execute parses and evaluates the expression. All failures are returned as
// errors so the dispatcher converts them to text results.
func (c *Calculator) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		return "", fmt.Errorf("empty expression")
	}

	value, err := evaluate(expr)
	if err != nil {
		return "", err
	}
	return "Result: " + formatResult(value), nil
}

// formatResult collapses integral floats to integer display; everything else
// is rounded to 10 fractional digits.
func formatResult(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	rounded := math.Round(v*1e10) / 1e10
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Allow-listed functions. Arity -1 means variadic with at least one argument.
var calcFuncs = map[string]struct {
	arity int
	apply func(args []float64) (float64, error)
}{
	"sqrt": {1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, fmt.Errorf("sqrt of negative number")
		}
		return math.Sqrt(a[0]), nil
	}},
	"sin": {1, func(a []float64) (float64, error) { return math.Sin(a[0]), nil }},
	"cos": {1, func(a []float64) (float64, error) { return math.Cos(a[0]), nil }},
	"tan": {1, func(a []float64) (float64, error) { return math.Tan(a[0]), nil }},
	"log": {1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, fmt.Errorf("log of non-positive number")
		}
		return math.Log10(a[0]), nil
	}},
	"ln": {1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, fmt.Errorf("ln of non-positive number")
		}
		return math.Log(a[0]), nil
	}},
	"abs":   {1, func(a []float64) (float64, error) { return math.Abs(a[0]), nil }},
	"round": {1, func(a []float64) (float64, error) { return math.Round(a[0]), nil }},
	"min": {-1, func(a []float64) (float64, error) {
		v := a[0]
		for _, x := range a[1:] {
			v = math.Min(v, x)
		}
		return v, nil
	}},
	"max": {-1, func(a []float64) (float64, error) {
		v := a[0]
		for _, x := range a[1:] {
			v = math.Max(v, x)
		}
		return v, nil
	}},
}

var calcConsts = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// evaluate parses and evaluates the restricted grammar:
//
//	expr   := term (('+'|'-') term)*
//	term   := unary (('*'|'/'|'%') unary)*
//	unary  := '-' unary | power
//	power  := primary ('**' unary)?
//	primary:= number | ident ['(' expr (',' expr)* ')'] | '(' expr ')'
func evaluate(expr string) (float64, error) {
	p := &calcParser{input: []rune(expr)}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", string(p.input[p.pos]), p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression result is not a finite number")
	}
	return v, nil
}

type calcParser struct {
	input []rune
	pos   int
}

func (p *calcParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *calcParser) peek() rune {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *calcParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *calcParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.peek() == '*' && !(p.pos+1 < len(p.input) && p.input[p.pos+1] == '*'):
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.peek() == '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.peek() == '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *calcParser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parsePower()
}

func (p *calcParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos+1 < len(p.input) && p.input[p.pos] == '*' && p.input[p.pos+1] == '*' {
		p.pos += 2
		// Right-associative: 2**3**2 is 2**(3**2).
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *calcParser) parsePrimary() (float64, error) {
	p.skipSpace()
	ch := p.peek()
	switch {
	case ch == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(ch) || ch == '.':
		return p.parseNumber()
	case unicode.IsLetter(ch):
		return p.parseIdent()
	case ch == 0:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at position %d", string(ch), p.pos)
	}
}

func (p *calcParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return v, nil
}

func (p *calcParser) parseIdent() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(p.input[p.pos]) || unicode.IsDigit(p.input[p.pos])) {
		p.pos++
	}
	name := strings.ToLower(string(p.input[start:p.pos]))

	if v, ok := calcConsts[name]; ok {
		return v, nil
	}

	fn, ok := calcFuncs[name]
	if !ok {
		return 0, fmt.Errorf("unknown symbol %q", name)
	}

	p.skipSpace()
	if p.peek() != '(' {
		return 0, fmt.Errorf("function %q requires arguments", name)
	}
	p.pos++

	var args []float64
	for {
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if p.peek() != ')' {
		return 0, fmt.Errorf("missing closing parenthesis in %q call", name)
	}
	p.pos++

	if fn.arity >= 0 && len(args) != fn.arity {
		return 0, fmt.Errorf("%q expects %d argument(s), got %d", name, fn.arity, len(args))
	}
	return fn.apply(args)
}
