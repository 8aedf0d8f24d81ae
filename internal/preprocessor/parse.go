package preprocessor

import (
	"fmt"
	"io"
	"strings"

	"github.com/fwessels/hdrscan/internal/cexpr"
)

// Node is one element of a header's node stream: a directive or a token
// outside of any directive.
type Node interface {
	// Token returns the token that introduced the node. For directives
	// this is the '#'.
	Token() Token
	// Describe renders the node for diagnostics.
	Describe(src string) string
}

// Intro holds the introducing token of a node.
type Intro struct {
	Tok Token
}

func (i Intro) Token() Token { return i.Tok }

type Include struct {
	Intro
	Filename string
	Quoted   bool
}

type Ifdef struct {
	Intro
	Name    string
	Negated bool
}

// If and Elif carry the condition tokens and the parsed expression. Expr is
// nil when the parser was built without an expression parser.
type If struct {
	Intro
	Cond []Token
	Expr cexpr.Expr
}

type Elif struct {
	Intro
	Cond []Token
	Expr cexpr.Expr
}

type Else struct{ Intro }

type Endif struct{ Intro }

// Define is an object-like macro.
type Define struct {
	Intro
	Name string
	Body []Token
}

// DefineFunc is a function-like macro. A variadic macro lists "..." as its
// last parameter.
type DefineFunc struct {
	Intro
	Name     string
	Params   []string
	Variadic bool
	Body     []Token
}

// Directive is a directive kept without interpretation: pragma, undef and
// error.
type Directive struct {
	Intro
	Name   string
	Tokens []Token
}

// Plain is a token outside of any directive.
type Plain struct{ Intro }

func (n *Include) Describe(string) string {
	if n.Quoted {
		return fmt.Sprintf("include %q", n.Filename)
	}
	return "include <" + n.Filename + ">"
}

func (n *Ifdef) Describe(string) string {
	if n.Negated {
		return "ifndef " + n.Name
	}
	return "ifdef " + n.Name
}

func (n *If) Describe(src string) string { return "if " + condText(src, n.Cond, n.Expr) }

func (n *Elif) Describe(src string) string { return "elif " + condText(src, n.Cond, n.Expr) }

func condText(src string, cond []Token, x cexpr.Expr) string {
	if x != nil {
		return x.String()
	}
	return JoinTokens(src, cond)
}

func (n *Else) Describe(string) string { return "else" }

func (n *Endif) Describe(string) string { return "endif" }

func (n *Define) Describe(src string) string {
	return strings.TrimSpace("define " + n.Name + " " + JoinTokens(src, n.Body))
}

func (n *DefineFunc) Describe(src string) string {
	head := "define " + n.Name + "(" + strings.Join(n.Params, ", ") + ")"
	return strings.TrimSpace(head + " " + JoinTokens(src, n.Body))
}

func (n *Directive) Describe(src string) string {
	return strings.TrimSpace(n.Name + " " + JoinTokens(src, n.Tokens))
}

func (n *Plain) Describe(src string) string { return n.Tok.Describe(src) }

// JoinTokens reconstructs the text of toks separated by single spaces.
// Adjacent '<' '<' and '>' '>' are kept together as the shift operators
// they spell.
func JoinTokens(src string, toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && !shiftHalves(toks[i-1], t) {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text(src))
	}
	return b.String()
}

func shiftHalves(a, b Token) bool {
	return a.End == b.Start && a.Kind == b.Kind && (a.Kind == Less || a.Kind == Greater)
}

// ExprParser turns the text of a conditional into an expression.
// *cexpr.Grammar implements it.
type ExprParser interface {
	ParseExpr(src string) (cexpr.Expr, error)
}

// lookahead is the parser's one-token buffer.
type lookahead struct {
	tok  Token
	full bool
}

// Parser turns a token stream into directive and plain nodes. A '#' is a
// directive only at the start of a logical line.
type Parser struct {
	lex       *Lexer
	exprs     ExprParser
	ahead     lookahead
	lineStart bool
}

// NewParser returns a parser reading lex. Conditions of #if and #elif are
// parsed with exprs; with a nil exprs they are kept as tokens only.
func NewParser(lex *Lexer, exprs ExprParser) *Parser {
	return &Parser{lex: lex, exprs: exprs, lineStart: true}
}

func (p *Parser) Source() string { return p.lex.cur.src }

func (p *Parser) peek() (Token, error) {
	if !p.ahead.full {
		tok, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		p.ahead = lookahead{tok: tok, full: true}
	}
	return p.ahead.tok, nil
}

func (p *Parser) next() (Token, error) {
	tok, err := p.peek()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != EOF {
		p.ahead.full = false
	}
	return tok, nil
}

// skip drops the token a successful peek buffered.
func (p *Parser) skip() { p.ahead.full = false }

func (p *Parser) errorf(tok Token, format string, args ...interface{}) error {
	return p.lex.cur.Errorf(tok.Start, format, args...)
}

func endsLine(t Token) bool { return t.Kind == NewlineOrComment || t.Kind == EOF }

// Next returns the next node, or io.EOF at end of input.
func (p *Parser) Next() (Node, error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == EOF {
			return nil, io.EOF
		}
		if tok.Kind == Hash && p.lineStart {
			n, err := p.directive(tok)
			if err != nil {
				return nil, err
			}
			p.lineStart = true
			if n == nil {
				continue
			}
			return n, nil
		}
		p.lineStart = tok.Kind == NewlineOrComment
		return &Plain{Intro{tok}}, nil
	}
}

// ParseAll returns every node of the input in document order.
func (p *Parser) ParseAll() ([]Node, error) {
	var nodes []Node
	for {
		n, err := p.Next()
		if err == io.EOF {
			return nodes, nil
		}
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, n)
	}
}

// restOfLine returns the tokens up to the end of the logical line and
// consumes its terminator. atEOF reports that input ended first.
func (p *Parser) restOfLine() (toks []Token, atEOF bool, err error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, false, err
		}
		switch tok.Kind {
		case EOF:
			return toks, true, nil
		case NewlineOrComment:
			return toks, false, nil
		}
		toks = append(toks, tok)
	}
}

func (p *Parser) skipLine() error {
	_, _, err := p.restOfLine()
	return err
}

// directive parses the line after hash. A nil node without error is a stray
// '#'.
func (p *Parser) directive(hash Token) (Node, error) {
	name, err := p.peek()
	if err != nil {
		return nil, err
	}
	if endsLine(name) {
		return nil, p.skipLine()
	}
	if name.Kind != Ident {
		return nil, p.errorf(name, "expected directive name after '#', found %s", name.Describe(p.Source()))
	}
	p.skip()
	intro := Intro{hash}

	switch word := name.Text(p.Source()); word {
	case "include":
		return p.include(intro)
	case "define":
		return p.define(intro)
	case "ifdef", "ifndef":
		id, err := p.next()
		if err != nil {
			return nil, err
		}
		if id.Kind != Ident {
			return nil, p.errorf(id, "expected identifier after #%s, found %s", word, id.Describe(p.Source()))
		}
		n := &Ifdef{Intro: intro, Name: id.Text(p.Source()), Negated: word == "ifndef"}
		return n, p.skipLine()
	case "if", "elif":
		cond, x, err := p.condition(name, word)
		if err != nil {
			return nil, err
		}
		if word == "if" {
			return &If{Intro: intro, Cond: cond, Expr: x}, nil
		}
		return &Elif{Intro: intro, Cond: cond, Expr: x}, nil
	case "else":
		return &Else{intro}, p.skipLine()
	case "endif":
		return &Endif{intro}, p.skipLine()
	case "pragma", "undef", "error":
		toks, atEOF, err := p.restOfLine()
		if err != nil {
			return nil, err
		}
		if atEOF {
			return nil, p.errorf(name, "unexpected end of input in #%s", word)
		}
		return &Directive{Intro: intro, Name: word, Tokens: toks}, nil
	default:
		return nil, p.errorf(name, "unknown directive #%s", word)
	}
}

func (p *Parser) include(intro Intro) (Node, error) {
	src := p.Source()
	arg, err := p.next()
	if err != nil {
		return nil, err
	}
	n := &Include{Intro: intro}
	switch arg.Kind {
	case String:
		n.Filename, n.Quoted = arg.Value, true
	case Less:
		for {
			tok, err := p.next()
			if err != nil {
				return nil, err
			}
			if endsLine(tok) {
				return nil, p.errorf(arg, "missing '>' in #include")
			}
			if tok.Kind == Greater {
				n.Filename = src[arg.End:tok.Start]
				break
			}
		}
	default:
		return nil, p.errorf(arg, "expected \"FILENAME\" or <FILENAME> after #include, found %s", arg.Describe(src))
	}
	return n, p.skipLine()
}

func (p *Parser) define(intro Intro) (Node, error) {
	src := p.Source()
	name, err := p.next()
	if err != nil {
		return nil, err
	}
	if name.Kind != Ident {
		return nil, p.errorf(name, "expected macro name after #define, found %s", name.Describe(src))
	}
	open, err := p.peek()
	if err != nil {
		return nil, err
	}
	if open.Kind != LeftParen || open.Start != name.End {
		body, _, err := p.restOfLine()
		if err != nil {
			return nil, err
		}
		return &Define{Intro: intro, Name: name.Text(src), Body: body}, nil
	}
	p.skip()

	n := &DefineFunc{Intro: intro, Name: name.Text(src), Params: []string{}}
	if err := p.params(n); err != nil {
		return nil, err
	}
	body, _, err := p.restOfLine()
	if err != nil {
		return nil, err
	}
	n.Body = body
	return n, nil
}

// params parses a macro parameter list after its '('.
func (p *Parser) params(n *DefineFunc) error {
	src := p.Source()
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind == RightParen {
		return nil
	}
	for {
		switch tok.Kind {
		case Ident:
			n.Params = append(n.Params, tok.Text(src))
		case Ellipsis:
			n.Params = append(n.Params, "...")
			n.Variadic = true
			tok, err = p.next()
			if err != nil {
				return err
			}
			if tok.Kind != RightParen {
				return p.errorf(tok, "expected ')' after '...' in parameters of %s, found %s", n.Name, tok.Describe(src))
			}
			return nil
		default:
			if endsLine(tok) {
				return p.errorf(tok, "missing ')' in parameters of %s", n.Name)
			}
			return p.errorf(tok, "expected parameter name in parameters of %s, found %s", n.Name, tok.Describe(src))
		}

		tok, err = p.next()
		if err != nil {
			return err
		}
		switch {
		case tok.Kind == RightParen:
			return nil
		case tok.Kind == Comma:
		case endsLine(tok):
			return p.errorf(tok, "missing ')' in parameters of %s", n.Name)
		default:
			return p.errorf(tok, "expected ',' or ')' in parameters of %s, found %s", n.Name, tok.Describe(src))
		}
		if tok, err = p.next(); err != nil {
			return err
		}
	}
}

// condition reads and parses the expression of #if or #elif.
func (p *Parser) condition(name Token, word string) ([]Token, cexpr.Expr, error) {
	cond, _, err := p.restOfLine()
	if err != nil {
		return nil, nil, err
	}
	if len(cond) == 0 {
		return nil, nil, p.errorf(name, "#%s with no expression", word)
	}
	if p.exprs == nil {
		return cond, nil, nil
	}
	x, err := p.exprs.ParseExpr(JoinTokens(p.Source(), cond))
	if err != nil {
		return nil, nil, p.errorf(cond[0], "invalid #%s expression: %v", word, err)
	}
	return cond, x, nil
}
