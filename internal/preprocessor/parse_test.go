package preprocessor

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/fwessels/hdrscan/internal/cexpr"
)

func newParser(t *testing.T, filename, input string) *Parser {
	t.Helper()
	g, err := cexpr.DefaultGrammar()
	if err != nil {
		t.Fatal(err)
	}
	log, _ := test.NewNullLogger()
	return NewParser(NewLexer(NewCursor(filename, input), log), g)
}

// parseDrain renders the node stream of input, one node per " | "
// separated field. Directives are prefixed with '#'; line terminators are
// shown as NL.
func parseDrain(t *testing.T, input string) (string, error) {
	nodes, err := newParser(t, "", input).ParseAll()
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Plain:
			if n.Tok.Kind == NewlineOrComment {
				parts = append(parts, "NL")
			} else {
				parts = append(parts, n.Tok.Text(input))
			}
		default:
			parts = append(parts, "#"+n.Describe(input))
		}
	}
	return strings.Join(parts, " | "), nil
}

type parseTest struct {
	name   string
	input  string
	output string
}

var parseTests = []parseTest{
	{
		"empty",
		"",
		"",
	},
	{
		"plain tokens",
		"int x;\n",
		"int | x | ; | NL",
	},
	{
		"include quoted",
		`#include "foo.h"` + "\n",
		`#include "foo.h"`,
	},
	{
		"include angle",
		"#include <sys/types.h>\n",
		"#include <sys/types.h>",
	},
	{
		"include discards trailing tokens",
		`#include "a.h" junk` + "\nx",
		`#include "a.h" | x`,
	},
	{
		"include guard",
		lines(
			"#ifndef GUARD",
			"#define GUARD",
			"int x;",
			"#endif",
		),
		"#ifndef GUARD | #define GUARD | int | x | ; | NL | #endif",
	},
	{
		"object-like define",
		"#define A 1 + 2\n",
		"#define A 1 + 2",
	},
	{
		"space before parenthesis",
		"#define A (x)\n",
		"#define A ( x )",
	},
	{
		"function-like define",
		"#define F(a,b) a+b\n",
		"#define F(a, b) a + b",
	},
	{
		"empty parameter list",
		"#define F() 1\n",
		"#define F() 1",
	},
	{
		"variadic define",
		"#define FOO(a, b, ...) body\n",
		"#define FOO(a, b, ...) body",
	},
	{
		"define at end of input",
		"#define X 1",
		"#define X 1",
	},
	{
		"if",
		"#if defined(A) && B > 1\n",
		"#if (defined(A) && (B > 1))",
	},
	{
		"shift",
		"#if (1 << 3) == 8\n",
		"#if ((1 << 3) == 8)",
	},
	{
		"right shift",
		"#if X >> 16 >= 6\n",
		"#if ((X >> 16) >= 6)",
	},
	{
		"shift without spaces",
		"#if A<<B\n",
		"#if (A << B)",
	},
	{
		"shift in define body",
		"#define S 1<<2\n",
		"#define S 1 << 2",
	},
	{
		"elif is parsed like if",
		lines(
			"#if A",
			"#elif B || C",
			"#else",
			"#endif",
		),
		"#if A | #elif (B || C) | #else | #endif",
	},
	{
		"hash after tokens is not a directive",
		"int x; # define Y\n",
		"int | x | ; | # | define | Y | NL",
	},
	{
		"directive after multi-line comment",
		"/* c\n */ #define X\n",
		"NL | #define X",
	},
	{
		"directive after one-line comment",
		lines(
			"/* c */ # if 1",
			"#endif",
		),
		"#if 1 | #endif",
	},
	{
		"directive after line comment",
		lines(
			"x // c",
			"#undef X",
		),
		"x | NL | #undef X",
	},
	{
		"stray hash",
		lines(
			"#",
			"x",
		),
		"x | NL",
	},
	{
		"stray hash at end of input",
		"#",
		"",
	},
	{
		"pragma",
		"#pragma once\n",
		"#pragma once",
	},
	{
		"error",
		"#error no way\n",
		"#error no way",
	},
	{
		"else and endif discard trailing tokens",
		lines(
			"#ifdef A",
			"#else junk",
			"#endif B",
		),
		"#ifdef A | #else | #endif",
	},
	{
		"continuations in a directive",
		"#def\\\nine X \\\n 1\n",
		"#define X 1",
	},
	{
		"indented directive",
		"  #  define X\n",
		"#define X",
	},
	{
		"endif at end of input",
		"#if 1\n#endif",
		"#if 1 | #endif",
	},
}

func TestParse(t *testing.T) {
	for _, tt := range parseTests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDrain(t, tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type badParseTest struct {
	input string
	error string
}

var badParseTests = []badParseTest{
	{
		"#include nofile\n",
		`line 1 col 10: expected "FILENAME" or <FILENAME> after #include, found ID 'nofile'`,
	},
	{
		"#include <a.h\n",
		"line 1 col 10: missing '>' in #include",
	},
	{
		`#include "abc`,
		"line 1 col 10: quoted-string is missing close quote",
	},
	{
		"#foo\n",
		"line 1 col 2: unknown directive #foo",
	},
	{
		"# 1\n",
		"line 1 col 3: expected directive name after '#', found NUMBER '1'",
	},
	{
		"#if\n",
		"line 1 col 2: #if with no expression",
	},
	{
		"#elif // nothing\n",
		"line 1 col 2: #elif with no expression",
	},
	{
		"#define\n",
		"line 1 col 8: expected macro name after #define, found end of line",
	},
	{
		"#define F(a\n",
		"line 1 col 12: missing ')' in parameters of F",
	},
	{
		"#define F(a, ..., b)\n",
		"line 1 col 17: expected ')' after '...' in parameters of F, found ','",
	},
	{
		"#define F(a b)\n",
		"line 1 col 13: expected ',' or ')' in parameters of F, found ID 'b'",
	},
	{
		"#define F(1)\n",
		"line 1 col 11: expected parameter name in parameters of F, found NUMBER '1'",
	},
	{
		"#ifdef\n",
		"line 1 col 7: expected identifier after #ifdef, found end of line",
	},
	{
		"#ifndef 1\n",
		"line 1 col 9: expected identifier after #ifndef, found NUMBER '1'",
	},
	{
		"#pragma once",
		"line 1 col 2: unexpected end of input in #pragma",
	},
	{
		"#undef X",
		"line 1 col 2: unexpected end of input in #undef",
	},
	{
		"#error stop // here",
		"line 1 col 2: unexpected end of input in #error",
	},
}

func TestBadParse(t *testing.T) {
	for _, tt := range badParseTests {
		t.Run(tt.error, func(t *testing.T) {
			_, err := parseDrain(t, tt.input)
			if err == nil {
				t.Fatalf("expected error %q", tt.error)
			}
			if diff := cmp.Diff(tt.error, err.Error()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBadCondition(t *testing.T) {
	_, err := parseDrain(t, "#if 1 +\n")
	if err == nil {
		t.Fatal("expected error")
	}
	const want = "line 1 col 5: invalid #if expression: col 4: expected "
	if !strings.HasPrefix(err.Error(), want) {
		t.Errorf("error %q does not start with %q", err, want)
	}
}

func TestIncludeErrorPointsAtArgument(t *testing.T) {
	_, err := newParser(t, "", "#include nofile\n").ParseAll()
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %T %v", err, err)
	}
	if se.Offset != len("#include ") || se.Line != 1 || se.Col != 10 {
		t.Errorf("got %+v", se)
	}
}

func TestErrorCarriesFilename(t *testing.T) {
	_, err := newParser(t, "foo.h", "\n#bogus\n").ParseAll()
	if err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff("foo.h(2:2) unknown directive #bogus", err.Error()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestVariadicDefine(t *testing.T) {
	nodes, err := newParser(t, "", "#define FOO(a, b, ...) body\n").ParseAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes", len(nodes))
	}
	d, ok := nodes[0].(*DefineFunc)
	if !ok {
		t.Fatalf("got %T", nodes[0])
	}
	if diff := cmp.Diff([]string{"a", "b", "..."}, d.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if !d.Variadic || d.Name != "FOO" || len(d.Body) != 1 {
		t.Errorf("got %+v", d)
	}
}

func TestIncludeGuardRoundTrip(t *testing.T) {
	input := lines(
		"#ifndef GUARD",
		"int a; char b;",
		"#endif",
	)
	nodes, err := newParser(t, "", input).ParseAll()
	if err != nil {
		t.Fatal(err)
	}
	first, ok := nodes[0].(*Ifdef)
	if !ok {
		t.Fatalf("got %T", nodes[0])
	}
	if diff := cmp.Diff(Ifdef{Intro: first.Intro, Name: "GUARD", Negated: true}, *first); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, ok := nodes[len(nodes)-1].(*Endif); !ok {
		t.Fatalf("last node is %T", nodes[len(nodes)-1])
	}
	var plain []string
	for _, n := range nodes[1 : len(nodes)-1] {
		p, ok := n.(*Plain)
		if !ok {
			t.Fatalf("got %T between the guards", n)
		}
		plain = append(plain, p.Tok.Raw(input))
	}
	want := []string{"int", "a", ";", "char", "b", ";", "\n"}
	if diff := cmp.Diff(want, plain); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNodesKeepIntroducingToken(t *testing.T) {
	input := lines(
		"x",
		"  #if A",
		"#endif",
	)
	nodes, err := newParser(t, "", input).ParseAll()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		tok := n.Token()
		if _, plain := n.(*Plain); !plain && tok.Raw(input) != "#" {
			t.Errorf("%s introduced by %q", n.Describe(input), tok.Raw(input))
		}
	}
	if got := nodes[2].Token().Start; got != strings.Index(input, "#if") {
		t.Errorf("#if token at %d", got)
	}
}

func TestParserWithoutExpressions(t *testing.T) {
	input := "#if A +\n"
	nodes, err := NewParser(NewLexer(NewCursor("", input), nil), nil).ParseAll()
	if err != nil {
		t.Fatal(err)
	}
	n := nodes[0].(*If)
	if n.Expr != nil || len(n.Cond) != 2 || n.Describe(input) != "if A +" {
		t.Errorf("got %+v", n)
	}
}

func TestJoinTokensKeepsShiftsTogether(t *testing.T) {
	for input, want := range map[string]string{
		"a<<b":    "a << b",
		"a >> b":  "a >> b",
		"a < < b": "a < < b",
		"a<>b":    "a < > b",
		"a<=<b":   "a <= < b",
	} {
		toks := lexAll(t, input)
		if diff := cmp.Diff(want, JoinTokens(input, toks)); diff != "" {
			t.Errorf("%q: mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	log, _ := test.NewNullLogger()
	lex := NewLexer(NewCursor("", input), log)
	var toks []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			t.Fatal(err)
		}
		if tok.Kind == EOF {
			return toks
		}
		toks = append(toks, tok)
	}
}
