package cexpr

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/exp/ebnf"

	"github.com/fwessels/hdrscan/internal/ctext"
)

//go:embed cexpr.ebnf
var grammarText string

// StartRule is the production a conditional expression is parsed from.
const StartRule = "Expression"

// Grammar is a verified conditional-expression grammar. It is immutable once
// loaded and may be shared by any number of parsers.
type Grammar struct {
	name  string
	prods ebnf.Grammar
	// longer maps an operator terminal to the terminals it is a proper prefix of.
	longer map[string][]string
}

// DefaultGrammar loads the grammar embedded in the package.
func DefaultGrammar() (*Grammar, error) {
	return LoadGrammar("cexpr.ebnf", strings.NewReader(grammarText))
}

// GrammarText returns the embedded grammar source.
func GrammarText() string {
	return grammarText
}

// LoadGrammar parses and verifies an EBNF grammar whose start production is
// StartRule. Every syntactic production must have an AST visitor.
func LoadGrammar(name string, r io.Reader) (*Grammar, error) {
	prods, err := ebnf.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := ebnf.Verify(prods, StartRule); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var missing []string
	for rule := range prods {
		if isLexical(rule) {
			continue
		}
		if _, ok := visitors[rule]; ok {
			continue
		}
		if inlineRules[rule] {
			continue
		}
		missing = append(missing, rule)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%s: no visitor for rule(s) %s", name, strings.Join(missing, ", "))
	}

	g := &Grammar{name: name, prods: prods, longer: map[string][]string{}}
	ops := map[string]bool{}
	for rule, prod := range prods {
		if isLexical(rule) {
			continue
		}
		walkTokens(prod.Expr, func(tok *ebnf.Token) {
			if !ctext.IsIdent(tok.String) {
				ops[tok.String] = true
			}
		})
	}
	for op := range ops {
		for other := range ops {
			if len(other) > len(op) && strings.HasPrefix(other, op) {
				g.longer[op] = append(g.longer[op], other)
			}
		}
	}
	return g, nil
}

// Rules returns the production names of the grammar in sorted order.
func (g *Grammar) Rules() []string {
	rules := make([]string, 0, len(g.prods))
	for rule := range g.prods {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	return rules
}

// ParseExpr parses src and builds its expression tree.
func (g *Grammar) ParseExpr(src string) (Expr, error) {
	tree, err := g.ParseTree(src)
	if err != nil {
		return nil, err
	}
	return Build(tree)
}

// isLexical follows the ebnf package convention: productions whose name
// does not start with an upper-case letter are lexical.
func isLexical(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return !unicode.IsUpper(r)
}

func walkTokens(x ebnf.Expression, fn func(*ebnf.Token)) {
	switch x := x.(type) {
	case ebnf.Alternative:
		for _, e := range x {
			walkTokens(e, fn)
		}
	case ebnf.Sequence:
		for _, e := range x {
			walkTokens(e, fn)
		}
	case *ebnf.Group:
		walkTokens(x.Body, fn)
	case *ebnf.Option:
		walkTokens(x.Body, fn)
	case *ebnf.Repetition:
		walkTokens(x.Body, fn)
	case *ebnf.Token:
		fn(x)
	}
}
