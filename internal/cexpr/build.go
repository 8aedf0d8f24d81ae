package cexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fwessels/hdrscan/internal/ctext"
)

type visitFunc func(n *Tree) (Expr, error)

// visitors maps each production to the function building its expression.
// Filled in init because the visit functions recurse through the table.
var visitors map[string]visitFunc

// inlineRules are consumed by the visitor of the production using them.
var inlineRules = map[string]bool{
	"TypeName":         true,
	"TypeSpecifier":    true,
	"UnaryOperator":    true,
	"PostfixOperation": true,
	"ArgumentList":     true,
}

func init() {
	visitors = map[string]visitFunc{
		"Expression":               visitSingle,
		"ConditionalExpression":    visitConditional,
		"LogicalOrExpression":      visitBinary,
		"LogicalAndExpression":     visitBinary,
		"InclusiveOrExpression":    visitBinary,
		"ExclusiveOrExpression":    visitBinary,
		"AndExpression":            visitBinary,
		"EqualityExpression":       visitBinary,
		"RelationalExpression":     visitBinary,
		"ShiftExpression":          visitBinary,
		"AdditiveExpression":       visitBinary,
		"MultiplicativeExpression": visitBinary,
		"CastExpression":           visitCast,
		"UnaryExpression":          visitUnary,
		"PostfixExpression":        visitPostfix,
		"PrimaryExpression":        visitPrimary,
		"DefinedExpression":        visitDefined,
		"identifier":               visitIdent,
		"number":                   visitNumber,
		"string_literal":           visitString,
	}
}

// Build converts a parse tree of the conditional-expression grammar into an
// expression. A tree node without a visitor means the grammar and this file
// disagree; Build panics rather than drop structure.
func Build(t *Tree) (Expr, error) {
	return visit(t)
}

func visit(n *Tree) (Expr, error) {
	fn, ok := visitors[n.Rule]
	if !ok {
		panic(fmt.Sprintf("cexpr: no visitor for rule %q", n.Rule))
	}
	return fn(n)
}

func isTerminal(n *Tree, text string) bool {
	return n.Rule == "" && n.Text == text
}

func visitSingle(n *Tree) (Expr, error) {
	if len(n.Children) != 1 {
		panic(fmt.Sprintf("cexpr: %s: expected one child, got %d", n.Rule, len(n.Children)))
	}
	return visit(n.Children[0])
}

func visitConditional(n *Tree) (Expr, error) {
	kids := n.Children
	if len(kids) == 1 {
		return visit(kids[0])
	}
	if len(kids) != 5 || !isTerminal(kids[1], "?") || !isTerminal(kids[3], ":") {
		panic("cexpr: malformed " + n.Rule)
	}
	cond, err := visit(kids[0])
	if err != nil {
		return nil, err
	}
	then, err := visit(kids[2])
	if err != nil {
		return nil, err
	}
	els, err := visit(kids[4])
	if err != nil {
		return nil, err
	}
	return &Conditional{Cond: cond, Then: then, Else: els}, nil
}

// visitBinary folds X { OP X } into left-associative Binary nodes.
func visitBinary(n *Tree) (Expr, error) {
	kids := n.Children
	if len(kids)%2 != 1 {
		panic("cexpr: malformed " + n.Rule)
	}
	left, err := visit(kids[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(kids); i += 2 {
		right, err := visit(kids[i+1])
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: kids[i].Text, Left: left, Right: right}
	}
	return left, nil
}

func visitCast(n *Tree) (Expr, error) {
	kids := n.Children
	if len(kids) == 1 {
		return visit(kids[0])
	}
	if len(kids) != 4 || !isTerminal(kids[0], "(") || kids[1].Rule != "TypeName" {
		panic("cexpr: malformed " + n.Rule)
	}
	x, err := visit(kids[3])
	if err != nil {
		return nil, err
	}
	return &Cast{Type: strings.Join(strings.Fields(kids[1].Text), " "), X: x}, nil
}

func visitUnary(n *Tree) (Expr, error) {
	kids := n.Children
	if len(kids) == 1 {
		return visit(kids[0])
	}
	op := kids[0]
	if op.Rule != "" && op.Rule != "UnaryOperator" {
		panic("cexpr: malformed " + n.Rule)
	}
	x, err := visit(kids[1])
	if err != nil {
		return nil, err
	}
	return &Unary{Op: op.Text, X: x}, nil
}

func visitPostfix(n *Tree) (Expr, error) {
	x, err := visit(n.Children[0])
	if err != nil {
		return nil, err
	}
	for _, post := range n.Children[1:] {
		ops := post.Children
		switch ops[0].Text {
		case "[":
			idx, err := visit(ops[1])
			if err != nil {
				return nil, err
			}
			x = &Index{X: x, Index: idx}
		case "(":
			call := &Call{Fun: x}
			if len(ops) == 3 {
				for _, arg := range ops[1].Children {
					if arg.Rule == "" {
						continue
					}
					a, err := visit(arg)
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, a)
				}
			}
			x = call
		case ".", "->":
			x = &Member{X: x, Name: ops[1].Text, Arrow: ops[0].Text == "->"}
		case "++", "--":
			x = &Unary{Op: ops[0].Text, X: x, Postfix: true}
		default:
			panic(fmt.Sprintf("cexpr: unexpected postfix operation %q", ops[0].Text))
		}
	}
	return x, nil
}

func visitPrimary(n *Tree) (Expr, error) {
	kids := n.Children
	if len(kids) == 3 && isTerminal(kids[0], "(") {
		return visit(kids[1])
	}
	return visitSingle(n)
}

func visitDefined(n *Tree) (Expr, error) {
	for _, k := range n.Children {
		if k.Rule == "identifier" {
			return &Defined{Name: k.Text}, nil
		}
	}
	panic("cexpr: malformed " + n.Rule)
}

func visitIdent(n *Tree) (Expr, error) {
	return &Ident{Name: n.Text}, nil
}

func visitNumber(n *Tree) (Expr, error) {
	v, err := ParseInteger(n.Text)
	if err != nil {
		return nil, fmt.Errorf("col %d: %w", n.Pos+1, err)
	}
	return &Number{Text: n.Text, Value: v}, nil
}

func visitString(n *Tree) (Expr, error) {
	return &String{Value: ctext.Unquote(n.Text)}, nil
}

var errBadInteger = errors.New("invalid integer constant")

// ParseInteger parses a C integer constant: decimal, octal with a leading 0,
// or hexadecimal with 0x, followed by any u/U/l/L suffix. Values above the
// int64 range wrap as two's complement.
func ParseInteger(text string) (int64, error) {
	s := strings.TrimRight(text, "uUlL")
	if s == "" || strings.ContainsRune(s, '_') {
		return 0, fmt.Errorf("%w %q", errBadInteger, text)
	}
	var (
		u   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		u, err = strconv.ParseUint(s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		u, err = strconv.ParseUint(s[1:], 8, 64)
	default:
		u, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q", errBadInteger, text)
	}
	return int64(u), nil
}
