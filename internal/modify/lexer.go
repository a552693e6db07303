// Package modify implements in-place PDF content modification with three
// strategies: direct content-stream rewriting, overlay stamping, and an
// HTML round trip. Strategy selection and fallback order live in applier.go.
package modify

import (
	"fmt"
	"strconv"
)

// TokenType classifies PDF syntax tokens.
type TokenType int

const (
	TokenNumber TokenType = iota
	TokenName
	TokenString    // literal (...) string, Value holds decoded bytes
	TokenHexString // <...> string, Value holds decoded bytes
	TokenDictStart
	TokenDictEnd
	TokenArrayStart
	TokenArrayEnd
	TokenKeyword // operators and keywords: Tj, BT, obj, stream, R, true ...
	TokenEOF
)

// Token is one lexed PDF token with its byte span in the input, so callers
// can splice replacements back into the original bytes.
type Token struct {
	Type  TokenType
	Value string
	Num   float64
	Start int
	End   int
}

// Lexer tokenizes PDF object syntax and content streams from a byte slice.
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer creates a lexer over data starting at offset.
func NewLexer(data []byte, offset int) *Lexer {
	return &Lexer{data: data, pos: offset}
}

// Pos returns the current byte offset.
func (l *Lexer) Pos() int { return l.pos }

// Seek moves the lexer to an absolute offset.
func (l *Lexer) Seek(offset int) { l.pos = offset }

func isWhitespace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0a, 0x0c, 0x0d, 0x20:
		return true
	}
	return false
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		break
	}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.data) {
		return Token{Type: TokenEOF, Start: l.pos, End: l.pos}, nil
	}

	start := l.pos
	b := l.data[l.pos]

	switch {
	case b == '(':
		return l.readLiteralString()
	case b == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return Token{Type: TokenDictStart, Start: start, End: l.pos}, nil
		}
		return l.readHexString()
	case b == '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return Token{Type: TokenDictEnd, Start: start, End: l.pos}, nil
		}
		return Token{}, fmt.Errorf("lex: stray '>' at %d", start)
	case b == '[':
		l.pos++
		return Token{Type: TokenArrayStart, Start: start, End: l.pos}, nil
	case b == ']':
		l.pos++
		return Token{Type: TokenArrayEnd, Start: start, End: l.pos}, nil
	case b == '/':
		return l.readName()
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return l.readNumber()
	default:
		return l.readKeyword()
	}
}

func (l *Lexer) readLiteralString() (Token, error) {
	start := l.pos
	l.pos++ // consume (
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		switch b {
		case '\\':
			l.pos++
			if l.pos >= len(l.data) {
				return Token{}, fmt.Errorf("lex: unterminated escape at %d", l.pos)
			}
			e := l.data[l.pos]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				if l.pos+1 < len(l.data) && l.data[l.pos+1] == '\n' {
					l.pos++
				}
			case '\n':
				// line continuation, emit nothing
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && l.pos+1 < len(l.data); i++ {
						n := l.data[l.pos+1]
						if n < '0' || n > '7' {
							break
						}
						val = val*8 + int(n-'0')
						l.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
			l.pos++
		case '(':
			depth++
			out = append(out, b)
			l.pos++
		case ')':
			depth--
			l.pos++
			if depth == 0 {
				return Token{Type: TokenString, Value: string(out), Start: start, End: l.pos}, nil
			}
			out = append(out, b)
		default:
			out = append(out, b)
			l.pos++
		}
	}
	return Token{}, fmt.Errorf("lex: unterminated string at %d", start)
}

func (l *Lexer) readHexString() (Token, error) {
	start := l.pos
	l.pos++ // consume <
	var digits []byte
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if b == '>' {
			l.pos++
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := 0; i < len(out); i++ {
				hi := hexVal(digits[2*i])
				lo := hexVal(digits[2*i+1])
				if hi < 0 || lo < 0 {
					return Token{}, fmt.Errorf("lex: bad hex digit at %d", start)
				}
				out[i] = byte(hi<<4 | lo)
			}
			return Token{Type: TokenHexString, Value: string(out), Start: start, End: l.pos}, nil
		}
		if !isWhitespace(b) {
			digits = append(digits, b)
		}
		l.pos++
	}
	return Token{}, fmt.Errorf("lex: unterminated hex string at %d", start)
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return -1
}

func (l *Lexer) readName() (Token, error) {
	start := l.pos
	l.pos++ // consume /
	var out []byte
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		if b == '#' && l.pos+2 < len(l.data) {
			hi := hexVal(l.data[l.pos+1])
			lo := hexVal(l.data[l.pos+2])
			if hi >= 0 && lo >= 0 {
				out = append(out, byte(hi<<4|lo))
				l.pos += 3
				continue
			}
		}
		out = append(out, b)
		l.pos++
	}
	return Token{Type: TokenName, Value: string(out), Start: start, End: l.pos}, nil
}

func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9') {
			l.pos++
			continue
		}
		break
	}
	raw := string(l.data[start:l.pos])
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Token{}, fmt.Errorf("lex: bad number %q at %d", raw, start)
	}
	return Token{Type: TokenNumber, Value: raw, Num: num, Start: start, End: l.pos}, nil
}

func (l *Lexer) readKeyword() (Token, error) {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
	}
	if l.pos == start {
		return Token{}, fmt.Errorf("lex: unexpected byte %q at %d", l.data[start], start)
	}
	return Token{Type: TokenKeyword, Value: string(l.data[start:l.pos]), Start: start, End: l.pos}, nil
}
