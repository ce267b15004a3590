package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokStar
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokColon
	tokDot
	tokArrow
	tokAnd
	tokEq
	tokNeq
	tokEllipsis
	tokIdent
	tokParam
	tokString
	tokNumber
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of query",
	tokStar:     "'*'",
	tokLBracket: "'['",
	tokRBracket: "']'",
	tokLBrace:   "'{'",
	tokRBrace:   "'}'",
	tokComma:    "','",
	tokColon:    "':'",
	tokDot:      "'.'",
	tokArrow:    "'->'",
	tokAnd:      "'&&'",
	tokEq:       "'=='",
	tokNeq:      "'!='",
	tokEllipsis: "'...'",
	tokIdent:    "identifier",
	tokParam:    "parameter",
	tokString:   "string",
	tokNumber:   "number",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits src into tokens. String tokens carry their unquoted value.
func lex(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
			continue
		case c == '*':
			out = append(out, token{tokStar, "*", i})
			i++
		case c == '[':
			out = append(out, token{tokLBracket, "[", i})
			i++
		case c == ']':
			out = append(out, token{tokRBracket, "]", i})
			i++
		case c == '{':
			out = append(out, token{tokLBrace, "{", i})
			i++
		case c == '}':
			out = append(out, token{tokRBrace, "}", i})
			i++
		case c == ',':
			out = append(out, token{tokComma, ",", i})
			i++
		case c == ':':
			out = append(out, token{tokColon, ":", i})
			i++
		case strings.HasPrefix(src[i:], "..."):
			out = append(out, token{tokEllipsis, "...", i})
			i += 3
		case c == '.':
			out = append(out, token{tokDot, ".", i})
			i++
		case strings.HasPrefix(src[i:], "->"):
			out = append(out, token{tokArrow, "->", i})
			i += 2
		case strings.HasPrefix(src[i:], "&&"):
			out = append(out, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(src[i:], "=="):
			out = append(out, token{tokEq, "==", i})
			i += 2
		case strings.HasPrefix(src[i:], "!="):
			out = append(out, token{tokNeq, "!=", i})
			i += 2
		case c == '"' || c == '\'':
			value, end, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			out = append(out, token{tokString, value, i})
			i = end
		case c == '$':
			start := i
			i++
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("empty parameter name at %d", start)
			}
			out = append(out, token{tokParam, src[start+1 : i], start})
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			out = append(out, token{tokNumber, src[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			out = append(out, token{tokIdent, src[start:i], start})
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	out = append(out, token{tokEOF, "", len(src)})
	return out, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var sb strings.Builder
	for i := start + 1; i < len(src); i++ {
		c := src[i]
		if c == quote {
			return sb.String(), i + 1, nil
		}
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(src) {
			break
		}
		switch src[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'u':
			if i+4 >= len(src) {
				return "", 0, fmt.Errorf("truncated escape at %d", i)
			}
			r, err := strconv.ParseUint(src[i+1:i+5], 16, 32)
			if err != nil {
				return "", 0, fmt.Errorf("invalid escape at %d", i)
			}
			sb.WriteRune(rune(r))
			i += 4
		default:
			sb.WriteByte(src[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string at %d", start)
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
