package preprocessor

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fwessels/hdrscan/internal/ctext"
)

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Number
	String
	NewlineOrComment
	Dot
	Equal
	Comma
	LeftParen
	RightParen
	Semicolon
	Star
	Arrow
	DoubleEqual
	NotEqual
	Bang
	Increment
	Decrement
	Plus
	Minus
	Slash
	LogicalOr
	LogicalAnd
	Percent
	LeftBrace
	RightBrace
	LeftBracket
	RightBracket
	Less
	Greater
	LessEqual
	GreaterEqual
	Hash
	Ellipsis
	Colon
	Question
	Pipe
	Ampersand
	SingleQuote
	Tilde
	Caret
	Backslash
	At
	Dollar
)

var kindNames = [...]string{
	EOF:              "EOF",
	Ident:            "ID",
	Number:           "NUMBER",
	String:           "STRING",
	NewlineOrComment: "NEWLINE",
	Dot:              ".",
	Equal:            "=",
	Comma:            ",",
	LeftParen:        "(",
	RightParen:       ")",
	Semicolon:        ";",
	Star:             "*",
	Arrow:            "->",
	DoubleEqual:      "==",
	NotEqual:         "!=",
	Bang:             "!",
	Increment:        "++",
	Decrement:        "--",
	Plus:             "+",
	Minus:            "-",
	Slash:            "/",
	LogicalOr:        "||",
	LogicalAnd:       "&&",
	Percent:          "%",
	LeftBrace:        "{",
	RightBrace:       "}",
	LeftBracket:      "[",
	RightBracket:     "]",
	Less:             "<",
	Greater:          ">",
	LessEqual:        "<=",
	GreaterEqual:     ">=",
	Hash:             "#",
	Ellipsis:         "...",
	Colon:            ":",
	Question:         "?",
	Pipe:             "|",
	Ampersand:        "&",
	SingleQuote:      "'",
	Tilde:            "~",
	Caret:            "^",
	Backslash:        `\`,
	At:               "@",
	Dollar:           "$",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a classified span [Start, End) of the source. Value holds the
// decoded contents of a String token.
type Token struct {
	Kind       Kind
	Start, End int
	Value      string
}

// Raw returns the source span of the token.
func (t Token) Raw(src string) string { return src[t.Start:t.End] }

var unsplice = strings.NewReplacer("\\\r\n", "", "\\\n", "")

// Text returns the spelling of the token: its source span with line
// continuations removed. String tokens are returned as written.
func (t Token) Text(src string) string {
	s := src[t.Start:t.End]
	if t.Kind == String || strings.IndexByte(s, '\\') < 0 {
		return s
	}
	return unsplice.Replace(s)
}

// Describe renders the token for error messages.
func (t Token) Describe(src string) string {
	switch t.Kind {
	case EOF:
		return "end of input"
	case NewlineOrComment:
		return "end of line"
	case Ident, Number, String:
		return fmt.Sprintf("%s %s", t.Kind, quoteText(t.Text(src)))
	}
	return quoteText(t.Text(src))
}

func quoteText(s string) string {
	if strings.IndexByte(s, '\'') >= 0 {
		return "`" + s + "`"
	}
	return "'" + s + "'"
}

// single maps a byte to the token it forms on its own.
var single = map[byte]Kind{
	',':  Comma,
	'(':  LeftParen,
	')':  RightParen,
	';':  Semicolon,
	'*':  Star,
	'%':  Percent,
	'{':  LeftBrace,
	'}':  RightBrace,
	'[':  LeftBracket,
	']':  RightBracket,
	'#':  Hash,
	':':  Colon,
	'?':  Question,
	'\'': SingleQuote,
	'~':  Tilde,
	'^':  Caret,
	'@':  At,
	'$':  Dollar,
	'=':  Equal,
	'!':  Bang,
	'+':  Plus,
	'-':  Minus,
	'&':  Ampersand,
	'|':  Pipe,
	'<':  Less,
	'>':  Greater,
}

type pair struct {
	next byte
	kind Kind
}

// double lists, per first byte, the second bytes that extend the token.
var double = map[byte][]pair{
	'=': {{'=', DoubleEqual}},
	'!': {{'=', NotEqual}},
	'+': {{'+', Increment}},
	'-': {{'-', Decrement}, {'>', Arrow}},
	'&': {{'&', LogicalAnd}},
	'|': {{'|', LogicalOr}},
	'<': {{'=', LessEqual}},
	'>': {{'=', GreaterEqual}},
}

// Lexer turns header text into tokens. Whitespace, line continuations and
// comments that stay on one line produce no token.
type Lexer struct {
	cur *Cursor
	log logrus.FieldLogger
}

// NewLexer returns a lexer reading cur. Warnings go to log; a nil log uses
// the logrus standard logger.
func NewLexer(cur *Cursor, log logrus.FieldLogger) *Lexer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Lexer{cur: cur, log: log}
}

func (l *Lexer) Cursor() *Cursor { return l.cur }

func (l *Lexer) warnAt(pos int, format string, args ...interface{}) {
	line, col := LineCol(l.cur.src, pos)
	fields := logrus.Fields{"line": line, "col": col}
	if l.cur.filename != "" {
		fields["file"] = l.cur.filename
	}
	l.log.WithFields(fields).Warnf(format, args...)
}

func (l *Lexer) token(kind Kind, start int) Token {
	return Token{Kind: kind, Start: start, End: l.cur.pos}
}

// Next returns the next token. At end of input it keeps returning EOF.
func (l *Lexer) Next() (Token, error) {
	c := l.cur
	for {
		l.skipBlanks()
		if c.AtEnd() {
			return l.token(EOF, c.pos), nil
		}
		start := c.pos
		ch := c.Peek()
		switch {
		case ctext.IsIdentStart(ch):
			return l.ident(), nil
		case ctext.IsDigit(ch):
			return l.number(), nil
		}

		switch ch {
		case '\n':
			c.Advance()
			return l.token(NewlineOrComment, start), nil
		case '\\':
			if n := c.continuation(c.pos); n > 0 {
				c.pos += n
				continue
			}
			c.Advance()
			return l.token(Backslash, start), nil
		case '/':
			c.Advance()
			if c.peekIs('/') {
				for !c.AtEnd() && c.Peek() != '\n' {
					c.Advance()
				}
				if c.AtEnd() {
					return l.token(EOF, c.pos), nil
				}
				c.Advance()
				return l.token(NewlineOrComment, start), nil
			}
			if c.peekIs('*') {
				c.Advance()
				atEOF, newline := l.blockComment()
				if atEOF {
					return l.token(EOF, c.pos), nil
				}
				if newline {
					return l.token(NewlineOrComment, start), nil
				}
				continue
			}
			return l.token(Slash, start), nil
		case '"':
			return l.str()
		case '.':
			c.Advance()
			if !c.peekIs('.') {
				return l.token(Dot, start), nil
			}
			c.Advance()
			if !c.peekIs('.') {
				return Token{}, c.Errorf(start, "found '..' that is not followed by another '.'")
			}
			c.Advance()
			return l.token(Ellipsis, start), nil
		}

		kind, ok := single[ch]
		if !ok {
			return Token{}, c.Errorf(start, "unrecognized character %q", ch)
		}
		c.Advance()
		if !c.AtEnd() {
			next := c.Peek()
			for _, p := range double[ch] {
				if p.next == next {
					c.Advance()
					return l.token(p.kind, start), nil
				}
			}
		}
		return l.token(kind, start), nil
	}
}

// skipBlanks skips horizontal whitespace. A carriage return counts as
// blank so CRLF headers lex like LF headers.
func (l *Lexer) skipBlanks() {
	c := l.cur
	for !c.AtEnd() {
		switch c.Peek() {
		case ' ', '\t', '\f', '\r':
			c.Advance()
		default:
			return
		}
	}
}

// blockComment consumes the rest of a /* comment.
func (l *Lexer) blockComment() (atEOF, newline bool) {
	c := l.cur
	for {
		if c.AtEnd() {
			return true, newline
		}
		ch := c.Peek()
		c.Advance()
		switch {
		case ch == '*' && c.peekIs('/'):
			c.Advance()
			return false, newline
		case ch == '\n':
			newline = true
		}
	}
}

// ident scans an identifier. A line continuation between two identifier
// characters is part of the token.
func (l *Lexer) ident() Token {
	c := l.cur
	start := c.pos
	for !c.AtEnd() {
		if ctext.IsIdentPart(c.Peek()) {
			c.Advance()
			continue
		}
		n := c.continuation(c.pos)
		if n == 0 || c.pos+n == len(c.src) || !ctext.IsIdentPart(c.src[c.pos+n]) {
			break
		}
		c.pos += n
	}
	return l.token(Ident, start)
}

// number scans digits and 'x'; once the literal starts with 0x the hex
// digits belong to it too. Trailing integer suffix letters are consumed.
func (l *Lexer) number() Token {
	c := l.cur
	start := c.pos
	hex := false
	for !c.AtEnd() {
		ch := c.Peek()
		if (ch == 'x' || ch == 'X') && c.pos == start+1 && c.src[start] == '0' {
			hex = true
		} else if !ctext.IsDigit(ch) && ch != 'x' && !(hex && ctext.IsHexDigit(ch)) {
			break
		}
		c.Advance()
	}
	for !c.AtEnd() && strings.IndexByte("LlUu", c.Peek()) >= 0 {
		c.Advance()
	}
	return l.token(Number, start)
}

// str scans a string literal from its opening quote.
func (l *Lexer) str() (Token, error) {
	c := l.cur
	start := c.pos
	c.Advance()
	var value []byte
	for {
		if c.AtEnd() {
			return Token{}, c.Errorf(start, "quoted-string is missing close quote")
		}
		ch := c.Peek()
		switch ch {
		case '"':
			c.Advance()
			return Token{Kind: String, Start: start, End: c.pos, Value: string(value)}, nil
		case '\\':
			escapePos := c.pos
			c.Advance()
			if c.AtEnd() {
				return Token{}, c.Errorf(escapePos, "unfinished escape sequence")
			}
			e := c.Peek()
			c.Advance()
			if b, ok := ctext.Escape(e); ok {
				value = append(value, b)
			} else {
				value = append(value, '\\', e)
				l.warnAt(escapePos, "invalid escape sequence %q", c.src[escapePos:c.pos])
			}
		default:
			c.Advance()
			value = append(value, ch)
		}
	}
}
