// Package ctext holds the character classes and string escapes shared by the
// header tokenizer and the conditional-expression grammar.
package ctext

func IsIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func IsIdentPart(b byte) bool {
	return IsIdentStart(b) || IsDigit(b)
}

func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func IsHexDigit(b byte) bool {
	return IsDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// IsIdent reports whether s is a complete identifier.
func IsIdent(s string) bool {
	if s == "" || !IsIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsIdentPart(s[i]) {
			return false
		}
	}
	return true
}

var escapes = map[byte]byte{
	'n':  '\n',
	'\\': '\\',
	'0':  0,
	't':  '\t',
}

// Escape returns the byte denoted by a backslash followed by c.
func Escape(c byte) (byte, bool) {
	b, ok := escapes[c]
	return b, ok
}

// Unquote decodes the body of a double-quoted literal. Unknown escapes are
// kept verbatim, backslash included.
func Unquote(lit string) string {
	if len(lit) >= 2 && lit[0] == '"' && lit[len(lit)-1] == '"' {
		lit = lit[1 : len(lit)-1]
	}
	out := make([]byte, 0, len(lit))
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		if c != '\\' || i+1 == len(lit) {
			out = append(out, c)
			continue
		}
		i++
		if b, ok := Escape(lit[i]); ok {
			out = append(out, b)
		} else {
			out = append(out, '\\', lit[i])
		}
	}
	return string(out)
}
