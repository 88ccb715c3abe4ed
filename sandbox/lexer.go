package sandbox

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent
	tokNumber
	tokString
	tokKeyword
	tokOp
)

var keywords = map[string]bool{
	"let":      true,
	"print":    true,
	"for":      true,
	"in":       true,
	"if":       true,
	"else":     true,
	"and":      true,
	"or":       true,
	"not":      true,
	"true":     true,
	"false":    true,
	"null":     true,
	"nil":      true,
	"break":    true,
	"continue": true,
}

// operators, longest first
var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||", "=>",
	"+", "-", "*", "/", "%", "<", ">", "=", "!",
	"(", ")", "[", "]", "{", "}", ",", ":", ".", ";",
}

type token struct {
	kind tokenKind
	// text is the identifier, keyword, operator or the decoded string literal
	text string
	num  float64
	line int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of script"
	case tokNewline:
		return "end of line"
	case tokString:
		return "string literal"
	case tokNumber:
		return "number " + t.text
	}
	return "'" + t.text + "'"
}

type lexer struct {
	src  string
	pos  int
	line int
	// nesting of ( and [, newlines inside are not statement separators
	depth  int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.tokens, nil
}

func (lx *lexer) emit(kind tokenKind, text string) {
	lx.tokens = append(lx.tokens, token{kind: kind, text: text, line: lx.line})
}

func (lx *lexer) run() error {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			if lx.depth == 0 {
				lx.emit(tokNewline, "\n")
			}
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '"' || c == '\'':
			if err := lx.lexString(c); err != nil {
				return err
			}
		case c >= '0' && c <= '9':
			if err := lx.lexNumber(); err != nil {
				return err
			}
		default:
			r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
			if r == '_' || unicode.IsLetter(r) {
				lx.lexIdent()
				continue
			}
			if !lx.lexOperator() {
				return syntaxError(lx.line, "unexpected character %q", r)
			}
		}
	}
	lx.emit(tokNewline, "\n")
	lx.emit(tokEOF, "")
	return nil
}

func (lx *lexer) lexIdent() {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		lx.pos += size
	}
	word := lx.src[start:lx.pos]
	if keywords[word] {
		lx.emit(tokKeyword, word)
	} else {
		lx.emit(tokIdent, word)
	}
}

func (lx *lexer) lexNumber() error {
	start := lx.pos
	digits := func() {
		for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
			lx.pos++
		}
	}
	digits()
	if lx.pos+1 < len(lx.src) && lx.src[lx.pos] == '.' && lx.src[lx.pos+1] >= '0' && lx.src[lx.pos+1] <= '9' {
		lx.pos++
		digits()
	}
	if lx.pos < len(lx.src) && (lx.src[lx.pos] == 'e' || lx.src[lx.pos] == 'E') {
		save := lx.pos
		lx.pos++
		if lx.pos < len(lx.src) && (lx.src[lx.pos] == '+' || lx.src[lx.pos] == '-') {
			lx.pos++
		}
		if lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
			digits()
		} else {
			lx.pos = save
		}
	}
	text := lx.src[start:lx.pos]
	num, err := parseNumber(text)
	if err != nil {
		return syntaxError(lx.line, "invalid number %q", text)
	}
	lx.tokens = append(lx.tokens, token{kind: tokNumber, text: text, num: num, line: lx.line})
	return nil
}

func (lx *lexer) lexString(quote byte) error {
	line := lx.line
	lx.pos++
	var sb strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return syntaxError(line, "unterminated string literal")
		}
		c := lx.src[lx.pos]
		switch c {
		case quote:
			lx.pos++
			lx.tokens = append(lx.tokens, token{kind: tokString, text: sb.String(), line: line})
			return nil
		case '\n':
			return syntaxError(line, "unterminated string literal")
		case '\\':
			lx.pos++
			if lx.pos >= len(lx.src) {
				return syntaxError(line, "unterminated string literal")
			}
			esc := lx.src[lx.pos]
			lx.pos++
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			case 'u':
				if lx.pos+4 > len(lx.src) {
					return syntaxError(line, "invalid unicode escape")
				}
				code, err := parseHex(lx.src[lx.pos : lx.pos+4])
				if err != nil {
					return syntaxError(line, "invalid unicode escape")
				}
				sb.WriteRune(rune(code))
				lx.pos += 4
			default:
				return syntaxError(line, "invalid escape sequence \\%c", esc)
			}
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
}

func (lx *lexer) lexOperator() bool {
	for _, op := range operators {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			switch op {
			case "(", "[":
				lx.depth++
			case ")", "]":
				if lx.depth > 0 {
					lx.depth--
				}
			}
			lx.emit(tokOp, op)
			lx.pos += len(op)
			return true
		}
	}
	return false
}

func parseNumber(text string) (float64, error) {
	return strconv.ParseFloat(text, 64)
}

func parseHex(text string) (uint64, error) {
	return strconv.ParseUint(text, 16, 32)
}
