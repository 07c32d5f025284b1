package rustsrc

import (
	"errors"
	"strconv"
	"strings"
)

var errBadLiteral = errors.New("invalid string literal")

// unquote decodes a Rust string literal, plain or raw.
func unquote(lit string) (string, error) {
	if strings.HasPrefix(lit, "r") {
		body := strings.TrimLeft(lit[1:], "#")
		hashes := len(lit) - 1 - len(body)
		closer := `"` + strings.Repeat("#", hashes)
		if !strings.HasPrefix(body, `"`) || !strings.HasSuffix(body, closer) || len(body) < 1+len(closer) {
			return "", errBadLiteral
		}
		return body[1 : len(body)-len(closer)], nil
	}

	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", errBadLiteral
	}
	s := lit[1 : len(lit)-1]

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' && i+1 < len(s) && s[i+1] == '\n' {
			continue
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errBadLiteral
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		case '\\', '"', '\'':
			b.WriteByte(s[i])
		case '\n':
			// line continuation skips the newline and leading whitespace
			for i+1 < len(s) && strings.IndexByte(" \t\r\n", s[i+1]) >= 0 {
				i++
			}
		case 'x':
			if i+2 >= len(s) {
				return "", errBadLiteral
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", errBadLiteral
			}
			b.WriteByte(byte(v))
			i += 2
		case 'u':
			end := strings.IndexByte(s[i:], '}')
			if i+1 >= len(s) || s[i+1] != '{' || end < 0 {
				return "", errBadLiteral
			}
			hex := strings.ReplaceAll(s[i+2:i+end], "_", "")
			v, err := strconv.ParseUint(hex, 16, 32)
			if err != nil {
				return "", errBadLiteral
			}
			b.WriteRune(rune(v))
			i += end
		default:
			return "", errBadLiteral
		}
	}
	return b.String(), nil
}
