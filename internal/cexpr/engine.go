package cexpr

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/exp/ebnf"

	"github.com/fwessels/hdrscan/internal/ctext"
)

// Tree is the generic parse tree produced by the grammar engine. Rule is the
// production name, or empty for a terminal. Lexical productions are leaves.
type Tree struct {
	Rule     string
	Text     string
	Pos, End int
	Children []*Tree
}

func (t *Tree) String() string {
	if t.Rule == "" {
		return fmt.Sprintf("%q", t.Text)
	}
	if len(t.Children) == 0 {
		return fmt.Sprintf("%s(%q)", t.Rule, t.Text)
	}
	parts := make([]string, len(t.Children))
	for i, c := range t.Children {
		parts[i] = c.String()
	}
	return t.Rule + "[" + strings.Join(parts, " ") + "]"
}

// ParseError reports the farthest position the grammar could not get past.
type ParseError struct {
	Src      string
	Pos      int
	Expected []string
}

func (e *ParseError) Error() string {
	found := "end of expression"
	if e.Pos < len(e.Src) {
		rest := e.Src[e.Pos:]
		if len(rest) > 10 {
			rest = rest[:10] + "..."
		}
		found = fmt.Sprintf("%q", rest)
	}
	if len(e.Expected) == 0 {
		return fmt.Sprintf("col %d: unexpected %s", e.Pos+1, found)
	}
	return fmt.Sprintf("col %d: expected %s, found %s", e.Pos+1, strings.Join(e.Expected, " or "), found)
}

type memoKey struct {
	rule string
	pos  int
}

type memoEntry struct {
	tree *Tree
	end  int
	ok   bool
}

// matcher holds the state of a single parse; Grammar itself is never written.
type matcher struct {
	g        *Grammar
	src      string
	memo     map[memoKey]memoEntry
	farthest int
	expected map[string]bool
}

// ParseTree parses src from StartRule and requires all of it to be consumed.
func (g *Grammar) ParseTree(src string) (*Tree, error) {
	m := &matcher{
		g:        g,
		src:      src,
		memo:     map[memoKey]memoEntry{},
		expected: map[string]bool{},
	}
	tree, end, ok := m.production(StartRule, m.skipSpace(0))
	if ok {
		end = m.skipSpace(end)
		if end == len(src) {
			return tree, nil
		}
		m.fail(end, "")
	}
	return nil, m.err()
}

func (m *matcher) err() *ParseError {
	e := &ParseError{Src: m.src, Pos: m.farthest}
	for exp := range m.expected {
		if exp != "" {
			e.Expected = append(e.Expected, exp)
		}
	}
	sort.Strings(e.Expected)
	return e
}

func (m *matcher) fail(pos int, expected string) {
	if pos > m.farthest {
		m.farthest = pos
		m.expected = map[string]bool{}
	}
	if pos == m.farthest {
		m.expected[expected] = true
	}
}

func (m *matcher) production(rule string, pos int) (*Tree, int, bool) {
	key := memoKey{rule, pos}
	if e, ok := m.memo[key]; ok {
		return e.tree, e.end, e.ok
	}
	prod, ok := m.g.prods[rule]
	if !ok {
		panic("cexpr: undefined production " + rule)
	}
	lexical := isLexical(rule)
	kids, end, ok := m.match(prod.Expr, pos, lexical)
	var tree *Tree
	if ok {
		tree = &Tree{Rule: rule, Pos: pos, End: end, Text: strings.TrimSpace(m.src[pos:end])}
		if !lexical {
			tree.Children = kids
		}
	}
	m.memo[key] = memoEntry{tree, end, ok}
	return tree, end, ok
}

// match tries x at pos. Groups, options and repetitions are flattened into the
// children of the enclosing production.
func (m *matcher) match(x ebnf.Expression, pos int, lexical bool) ([]*Tree, int, bool) {
	switch x := x.(type) {
	case nil:
		return nil, pos, true
	case ebnf.Alternative:
		for _, alt := range x {
			if kids, end, ok := m.match(alt, pos, lexical); ok {
				return kids, end, true
			}
		}
		return nil, pos, false
	case ebnf.Sequence:
		var kids []*Tree
		end := pos
		for _, item := range x {
			k, e, ok := m.match(item, end, lexical)
			if !ok {
				return nil, pos, false
			}
			kids = append(kids, k...)
			end = e
		}
		return kids, end, true
	case *ebnf.Group:
		return m.match(x.Body, pos, lexical)
	case *ebnf.Option:
		if kids, end, ok := m.match(x.Body, pos, lexical); ok {
			return kids, end, true
		}
		return nil, pos, true
	case *ebnf.Repetition:
		var kids []*Tree
		end := pos
		for {
			k, e, ok := m.match(x.Body, end, lexical)
			if !ok || e == end {
				return kids, end, true
			}
			kids = append(kids, k...)
			end = e
		}
	case *ebnf.Token:
		if lexical {
			if strings.HasPrefix(m.src[pos:], x.String) {
				return nil, pos + len(x.String), true
			}
			return nil, pos, false
		}
		start := m.skipSpace(pos)
		if !m.terminal(x.String, start) {
			m.fail(start, fmt.Sprintf("%q", x.String))
			return nil, pos, false
		}
		end := start + len(x.String)
		return []*Tree{{Text: x.String, Pos: start, End: end}}, end, true
	case *ebnf.Range:
		if pos >= len(m.src) {
			return nil, pos, false
		}
		r, size := utf8.DecodeRuneInString(m.src[pos:])
		lo, _ := utf8.DecodeRuneInString(x.Begin.String)
		hi, _ := utf8.DecodeRuneInString(x.End.String)
		if r < lo || r > hi {
			return nil, pos, false
		}
		return nil, pos + size, true
	case *ebnf.Name:
		start := pos
		if !lexical && isLexical(x.String) {
			start = m.skipSpace(pos)
		}
		tree, end, ok := m.production(x.String, start)
		if !ok {
			if !lexical && isLexical(x.String) {
				m.fail(start, x.String)
			}
			return nil, pos, false
		}
		if lexical {
			return nil, end, true
		}
		return []*Tree{tree}, end, true
	}
	panic(fmt.Sprintf("cexpr: unexpected grammar expression %T", x))
}

// terminal matches a syntactic terminal: keywords end at an identifier
// boundary and operators never match the prefix of a longer operator.
func (m *matcher) terminal(lit string, pos int) bool {
	rest := m.src[pos:]
	if !strings.HasPrefix(rest, lit) {
		return false
	}
	if ctext.IsIdent(lit) {
		return len(rest) == len(lit) || !ctext.IsIdentPart(rest[len(lit)])
	}
	for _, longer := range m.g.longer[lit] {
		if strings.HasPrefix(rest, longer) {
			return false
		}
	}
	return true
}

func (m *matcher) skipSpace(pos int) int {
	for pos < len(m.src) {
		switch m.src[pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			pos++
		default:
			return pos
		}
	}
	return pos
}
