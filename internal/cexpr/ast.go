package cexpr

import (
	"strconv"
	"strings"
)

// Expr is a node of a conditional expression. The concrete types below are
// the only implementations.
type Expr interface {
	String() string
	expr()
}

type (
	// Binary is a binary operator application, including && and ||.
	Binary struct {
		Op          string
		Left, Right Expr
	}
	// Unary is a prefix operator, or ++/-- written after its operand.
	Unary struct {
		Op      string
		X       Expr
		Postfix bool
	}
	// Conditional is cond ? then : else.
	Conditional struct {
		Cond, Then, Else Expr
	}
	// Cast is (type) x.
	Cast struct {
		Type string
		X    Expr
	}
	Call struct {
		Fun  Expr
		Args []Expr
	}
	Index struct {
		X, Index Expr
	}
	// Member is x.name, or x->name when Arrow is set.
	Member struct {
		X     Expr
		Name  string
		Arrow bool
	}
	// Number is an integer constant as written, with its value.
	Number struct {
		Text  string
		Value int64
	}
	// String holds the decoded value of a string literal.
	String struct {
		Value string
	}
	Ident struct {
		Name string
	}
	// Defined is the defined NAME / defined(NAME) operator.
	Defined struct {
		Name string
	}
)

func (*Binary) expr()      {}
func (*Unary) expr()       {}
func (*Conditional) expr() {}
func (*Cast) expr()        {}
func (*Call) expr()        {}
func (*Index) expr()       {}
func (*Member) expr()      {}
func (*Number) expr()      {}
func (*String) expr()      {}
func (*Ident) expr()       {}
func (*Defined) expr()     {}

func (x *Binary) String() string {
	return "(" + x.Left.String() + " " + x.Op + " " + x.Right.String() + ")"
}

func (x *Unary) String() string {
	if x.Postfix {
		return "(" + x.X.String() + x.Op + ")"
	}
	return "(" + x.Op + x.X.String() + ")"
}

func (x *Conditional) String() string {
	return "(" + x.Cond.String() + " ? " + x.Then.String() + " : " + x.Else.String() + ")"
}

func (x *Cast) String() string {
	return "((" + x.Type + ")" + x.X.String() + ")"
}

func (x *Call) String() string {
	args := make([]string, len(x.Args))
	for i, a := range x.Args {
		args[i] = a.String()
	}
	return x.Fun.String() + "(" + strings.Join(args, ", ") + ")"
}

func (x *Index) String() string {
	return x.X.String() + "[" + x.Index.String() + "]"
}

func (x *Member) String() string {
	if x.Arrow {
		return x.X.String() + "->" + x.Name
	}
	return x.X.String() + "." + x.Name
}

func (x *Number) String() string  { return x.Text }
func (x *String) String() string  { return strconv.Quote(x.Value) }
func (x *Ident) String() string   { return x.Name }
func (x *Defined) String() string { return "defined(" + x.Name + ")" }
