package aucm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenPunct
)

// Token is one lexeme. Number holds the value of number tokens and Unquoted
// the unescaped text of string tokens.
type Token struct {
	Kind     TokenKind
	Text     string
	Number   float64
	Unquoted string
	Offset   int
	Line     int
	Col      int
}

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of file"
	case TokenIdent:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenPunct:
		return "punctuation"
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.Text)
}

// Is tells if the token is the given punctuation or identifier.
func (t Token) Is(text string) bool {
	return (t.Kind == TokenPunct || t.Kind == TokenIdent) && t.Text == text
}

const punctuation = "{}()=,;"

// lexer splits source into tokens in a single pass.
type lexer struct {
	path      string
	src       string
	p         int
	line      int
	lineStart int
}

func newLexer(path string, src []byte) *lexer {
	return &lexer{path: path, src: string(src), line: 1}
}

// errorAt builds an Error spanning n bytes from offset.
func (l *lexer) errorAt(offset, line, col, n int, format string, args ...any) *Error {
	start := offset - (col - 1)
	end := strings.IndexByte(l.src[start:], '\n')
	if end < 0 {
		end = len(l.src)
	} else {
		end += start
	}
	return &Error{
		Path:    l.path,
		Line:    line,
		Col:     col,
		Len:     n,
		Message: fmt.Sprintf(format, args...),
		Source:  strings.TrimRight(l.src[start:end], "\r"),
	}
}

func (l *lexer) newline() {
	l.line++
	l.lineStart = l.p
}

func (l *lexer) skipSpace() *Error {
	for l.p < len(l.src) {
		c := l.src[l.p]
		switch {
		case c == '\n':
			l.p++
			l.newline()
		case c == ' ' || c == '\t' || c == '\r':
			l.p++
		case c == '#' || strings.HasPrefix(l.src[l.p:], "//"):
			for l.p < len(l.src) && l.src[l.p] != '\n' {
				l.p++
			}
		case strings.HasPrefix(l.src[l.p:], "/*"):
			if err := l.skipBlockComment(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// skipBlockComment skips a comment; block comments nest.
func (l *lexer) skipBlockComment() *Error {
	offset, line, col := l.p, l.line, l.p-l.lineStart+1
	depth := 0
	for l.p < len(l.src) {
		switch {
		case strings.HasPrefix(l.src[l.p:], "/*"):
			depth++
			l.p += 2
		case strings.HasPrefix(l.src[l.p:], "*/"):
			depth--
			l.p += 2
			if depth == 0 {
				return nil
			}
		case l.src[l.p] == '\n':
			l.p++
			l.newline()
		default:
			l.p++
		}
	}
	return l.errorAt(offset, line, col, 2, "unterminated comment")
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) next() (Token, *Error) {
	if err := l.skipSpace(); err != nil {
		return Token{}, err
	}
	tok := Token{Offset: l.p, Line: l.line, Col: l.p - l.lineStart + 1}
	if l.p >= len(l.src) {
		return tok, nil
	}
	c := l.src[l.p]
	switch {
	case isLetter(c):
		for l.p < len(l.src) && (isLetter(l.src[l.p]) || isDigit(l.src[l.p])) {
			l.p++
		}
		tok.Kind = TokenIdent
	case isDigit(c) || c == '.' || c == '-' || c == '+':
		return l.number(tok)
	case c == '"':
		return l.string(tok)
	case strings.IndexByte(punctuation, c) >= 0:
		l.p++
		tok.Kind = TokenPunct
	default:
		return tok, l.errorAt(tok.Offset, tok.Line, tok.Col, 1, "unexpected character %q", c)
	}
	tok.Text = l.src[tok.Offset:l.p]
	return tok, nil
}

func (l *lexer) number(tok Token) (Token, *Error) {
	for l.p < len(l.src) && (isLetter(l.src[l.p]) || isDigit(l.src[l.p]) || strings.IndexByte(".+-", l.src[l.p]) >= 0) {
		// a sign is only part of a number at its start or after an exponent
		if c := l.src[l.p]; (c == '+' || c == '-') && l.p > tok.Offset && !strings.ContainsRune("eE", rune(l.src[l.p-1])) {
			break
		}
		l.p++
	}
	tok.Kind = TokenNumber
	tok.Text = l.src[tok.Offset:l.p]
	text := tok.Text
	neg := false
	if text != "" && (text[0] == '-' || text[0] == '+') {
		neg = text[0] == '-'
		text = text[1:]
	}
	var v float64
	var err error
	if len(text) > 2 && text[0] == '0' && strings.IndexByte("xXbBoO", text[1]) >= 0 {
		var u uint64
		u, err = strconv.ParseUint(text, 0, 32)
		v = float64(u)
	} else {
		v, err = strconv.ParseFloat(text, 64)
		if err == nil && (math.IsInf(v, 0) || math.IsNaN(v) || strings.ContainsAny(text, "xXpP_") || !isDigit(text[0]) && text[0] != '.') {
			err = strconv.ErrSyntax
		}
	}
	if err != nil {
		return tok, l.errorAt(tok.Offset, tok.Line, tok.Col, len(tok.Text), "malformed number %q", tok.Text)
	}
	if neg {
		v = -v
	}
	tok.Number = v
	return tok, nil
}

func (l *lexer) string(tok Token) (Token, *Error) {
	var b strings.Builder
	l.p++
	for {
		if l.p >= len(l.src) || l.src[l.p] == '\n' {
			return tok, l.errorAt(tok.Offset, tok.Line, tok.Col, l.p-tok.Offset, "unterminated string")
		}
		c := l.src[l.p]
		l.p++
		if c == '"' {
			break
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if l.p >= len(l.src) {
			continue
		}
		esc := l.src[l.p]
		l.p++
		switch esc {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\', '"':
			b.WriteByte(esc)
		case 'x':
			if l.p+2 > len(l.src) {
				return tok, l.errorAt(l.p-2, tok.Line, l.p-2-l.lineStart+1, 2, "truncated escape")
			}
			v, err := strconv.ParseUint(l.src[l.p:l.p+2], 16, 8)
			if err != nil {
				return tok, l.errorAt(l.p-2, tok.Line, l.p-2-l.lineStart+1, 4, "bad escape %q", l.src[l.p-2:l.p+2])
			}
			b.WriteByte(byte(v))
			l.p += 2
		default:
			return tok, l.errorAt(l.p-2, tok.Line, l.p-2-l.lineStart+1, 2, "unknown escape \\%c", esc)
		}
	}
	tok.Kind = TokenString
	tok.Text = l.src[tok.Offset:l.p]
	tok.Unquoted = b.String()
	return tok, nil
}
