package preprocessor

import (
	"fmt"
	"strings"
)

// Cursor walks the bytes of one header.
type Cursor struct {
	src      string
	pos      int
	filename string
}

// NewCursor returns a cursor at the start of src. filename is only used to
// prefix error messages and may be empty.
func NewCursor(filename, src string) *Cursor {
	return &Cursor{src: src, filename: filename}
}

func (c *Cursor) AtEnd() bool { return c.pos == len(c.src) }

func (c *Cursor) Pos() int { return c.pos }

func (c *Cursor) Source() string { return c.src }

func (c *Cursor) Filename() string { return c.filename }

// Peek returns the current byte. Callers check AtEnd first.
func (c *Cursor) Peek() byte {
	if c.AtEnd() {
		panic("preprocessor: Peek at end of input")
	}
	return c.src[c.pos]
}

// Advance moves past the current byte. Callers check AtEnd first.
func (c *Cursor) Advance() {
	if c.AtEnd() {
		panic("preprocessor: Advance at end of input")
	}
	c.pos++
}

// peekIs reports whether the current byte is b, false at end of input.
func (c *Cursor) peekIs(b byte) bool {
	return !c.AtEnd() && c.src[c.pos] == b
}

func (c *Cursor) Text(start, end int) string { return c.src[start:end] }

// continuation returns the length of the line continuation at offset, or 0.
func (c *Cursor) continuation(offset int) int {
	rest := c.src[offset:]
	switch {
	case strings.HasPrefix(rest, "\\\n"):
		return 2
	case strings.HasPrefix(rest, "\\\r\n"):
		return 3
	}
	return 0
}

// LineCol returns the 1-based line and column of offset in src.
func LineCol(src string, offset int) (line, col int) {
	before := src[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndexByte(before, '\n')
	return line, col
}

// ErrorPrefix formats the position of offset for a message.
func (c *Cursor) ErrorPrefix(offset int) string {
	line, col := LineCol(c.src, offset)
	if c.filename != "" {
		return fmt.Sprintf("%s(%d:%d) ", c.filename, line, col)
	}
	return fmt.Sprintf("line %d col %d: ", line, col)
}

// Errorf returns a fatal error located at offset.
func (c *Cursor) Errorf(offset int, format string, args ...interface{}) *SyntaxError {
	line, col := LineCol(c.src, offset)
	return &SyntaxError{
		Filename: c.filename,
		Offset:   offset,
		Line:     line,
		Col:      col,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// SyntaxError is a fatal error in header text.
type SyntaxError struct {
	Filename  string
	Offset    int
	Line, Col int
	Msg       string
}

func (e *SyntaxError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s(%d:%d) %s", e.Filename, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("line %d col %d: %s", e.Line, e.Col, e.Msg)
}
