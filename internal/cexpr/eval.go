package cexpr

import (
	"strings"
)

// Ternary is the outcome of a conditional: True, False or Unknown.
type Ternary int8

const (
	False Ternary = iota
	True
	Unknown
)

func (t Ternary) String() string {
	switch t {
	case False:
		return "false"
	case True:
		return "true"
	}
	return "unknown"
}

// Of converts a known truth value.
func Of(b bool) Ternary {
	if b {
		return True
	}
	return False
}

// And, Or and Not are Kleene's three-valued connectives.
func And(a, b Ternary) Ternary {
	switch {
	case a == False || b == False:
		return False
	case a == True && b == True:
		return True
	}
	return Unknown
}

func Or(a, b Ternary) Ternary {
	switch {
	case a == True || b == True:
		return True
	case a == False && b == False:
		return False
	}
	return Unknown
}

func Not(a Ternary) Ternary {
	switch a {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// Eval decides x against macros. It only reads its arguments.
func Eval(x Expr, macros Macros) Ternary {
	return evaluate(x, macros).truth()
}

// Value returns the integer value of x and whether it is known.
func Value(x Expr, macros Macros) (int64, bool) {
	v := evaluate(x, macros)
	if !v.known || v.str != nil {
		return 0, false
	}
	return v.n, true
}

type value struct {
	n     int64
	known bool
	// str is set for string literals, which are known but not integers.
	str *string
}

var unknown = value{}

func known(n int64) value { return value{n: n, known: true} }

func boolean(b bool) value {
	if b {
		return known(1)
	}
	return known(0)
}

func (v value) truth() Ternary {
	switch {
	case !v.known:
		return Unknown
	case v.str != nil:
		return True
	}
	return Of(v.n != 0)
}

func fromTernary(t Ternary) value {
	if t == Unknown {
		return unknown
	}
	return boolean(t == True)
}

func evaluate(x Expr, macros Macros) value {
	switch x := x.(type) {
	case *Number:
		return known(x.Value)
	case *String:
		s := x.Value
		return value{n: 1, known: true, str: &s}
	case *Ident:
		return macroValue(macros.Lookup(x.Name))
	case *Defined:
		switch macros.Lookup(x.Name).Kind {
		case StateDefined:
			return known(1)
		case StateNotDefined:
			return known(0)
		}
		return unknown
	case *Binary:
		return evalBinary(x, macros)
	case *Unary:
		if x.Postfix {
			return unknown
		}
		v := evaluate(x.X, macros)
		if !v.known || v.str != nil {
			if x.Op == "!" {
				return fromTernary(Not(v.truth()))
			}
			return unknown
		}
		switch x.Op {
		case "!":
			return boolean(v.n == 0)
		case "-":
			return known(-v.n)
		case "+":
			return v
		case "~":
			return known(^v.n)
		}
		return unknown
	case *Conditional:
		switch evaluate(x.Cond, macros).truth() {
		case True:
			return evaluate(x.Then, macros)
		case False:
			return evaluate(x.Else, macros)
		}
		a, b := evaluate(x.Then, macros), evaluate(x.Else, macros)
		if a.known && b.known && a.str == nil && b.str == nil && a.n == b.n {
			return a
		}
		return unknown
	case *Cast:
		return evaluate(x.X, macros)
	case *Call, *Index, *Member:
		return unknown
	}
	panic("cexpr: cannot evaluate " + x.String())
}

// macroValue is the value an identifier takes in a conditional: 0 when not
// defined, its replacement when that is an integer constant.
func macroValue(s DefineState) value {
	switch s.Kind {
	case StateNotDefined:
		return known(0)
	case StateDefined:
		if n, ok := integerText(s.Value); ok {
			return known(n)
		}
	}
	return unknown
}

// integerText accepts an integer constant optionally negated and wrapped in
// parentheses, the usual spellings of a numeric macro.
func integerText(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	n, err := ParseInteger(s)
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func evalBinary(x *Binary, macros Macros) value {
	switch x.Op {
	case "&&":
		l := evaluate(x.Left, macros).truth()
		if l == False {
			return known(0)
		}
		return fromTernary(And(l, evaluate(x.Right, macros).truth()))
	case "||":
		l := evaluate(x.Left, macros).truth()
		if l == True {
			return known(1)
		}
		return fromTernary(Or(l, evaluate(x.Right, macros).truth()))
	}

	l, r := evaluate(x.Left, macros), evaluate(x.Right, macros)
	if !l.known || !r.known {
		return unknown
	}
	if l.str != nil || r.str != nil {
		if l.str == nil || r.str == nil {
			return unknown
		}
		switch x.Op {
		case "==":
			return boolean(*l.str == *r.str)
		case "!=":
			return boolean(*l.str != *r.str)
		}
		return unknown
	}

	a, b := l.n, r.n
	switch x.Op {
	case "+":
		return known(a + b)
	case "-":
		return known(a - b)
	case "*":
		return known(a * b)
	case "/":
		if b == 0 {
			return unknown
		}
		return known(a / b)
	case "%":
		if b == 0 {
			return unknown
		}
		return known(a % b)
	case "<<":
		if b < 0 || b > 63 {
			return unknown
		}
		return known(a << uint(b))
	case ">>":
		if b < 0 || b > 63 {
			return unknown
		}
		return known(a >> uint(b))
	case "<":
		return boolean(a < b)
	case ">":
		return boolean(a > b)
	case "<=":
		return boolean(a <= b)
	case ">=":
		return boolean(a >= b)
	case "==":
		return boolean(a == b)
	case "!=":
		return boolean(a != b)
	case "&":
		return known(a & b)
	case "|":
		return known(a | b)
	case "^":
		return known(a ^ b)
	}
	panic("cexpr: unknown binary operator " + x.Op)
}
