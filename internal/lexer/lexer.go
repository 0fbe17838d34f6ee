// Package lexer turns Lox source text into a lazy stream of tokens.
package lexer

import (
	"github.com/loxvm/glox/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken scans and returns the next token. After the end of input it
// returns EOF tokens forever.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	var tok token.Token

	switch l.ch {
	case '(':
		tok = l.newToken(token.LEFT_PAREN, "(")
	case ')':
		tok = l.newToken(token.RIGHT_PAREN, ")")
	case '{':
		tok = l.newToken(token.LEFT_BRACE, "{")
	case '}':
		tok = l.newToken(token.RIGHT_BRACE, "}")
	case ',':
		tok = l.newToken(token.COMMA, ",")
	case '.':
		tok = l.newToken(token.DOT, ".")
	case '-':
		tok = l.newToken(token.MINUS, "-")
	case '+':
		tok = l.newToken(token.PLUS, "+")
	case ';':
		tok = l.newToken(token.SEMICOLON, ";")
	case '/':
		tok = l.newToken(token.SLASH, "/")
	case '*':
		tok = l.newToken(token.STAR, "*")
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(token.BANG_EQUAL, "!=")
		} else {
			tok = l.newToken(token.BANG, "!")
		}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(token.EQUAL_EQUAL, "==")
		} else {
			tok = l.newToken(token.EQUAL, "=")
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(token.LESS_EQUAL, "<=")
		} else {
			tok = l.newToken(token.LESS, "<")
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(token.GREATER_EQUAL, ">=")
		} else {
			tok = l.newToken(token.GREATER, ">")
		}
	case '"':
		return l.readString()
	case 0:
		return token.Token{Type: token.EOF, Lexeme: "", Line: l.line}
	default:
		if isDigit(l.ch) {
			return l.readNumber()
		}
		if isLetter(l.ch) {
			return l.readIdentifier()
		}
		tok = token.Token{Type: token.ERROR, Lexeme: "Unexpected character.", Line: l.line}
	}

	l.readChar()
	return tok
}

func (l *Lexer) newToken(t token.Type, lexeme string) token.Token {
	return token.Token{Type: t, Lexeme: lexeme, Line: l.line}
}

// skipWhitespace also discards // line comments, which run to end of line.
func (l *Lexer) skipWhitespace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '\n':
			l.line++
			l.readChar()
		case '/':
			if l.peekChar() != '/' {
				return
			}
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lexeme := l.input[start:l.position]
	return token.Token{Type: token.LookupIdent(lexeme), Lexeme: lexeme, Line: l.line}
}

// readNumber scans integer and decimal literals. A trailing '.' is not
// consumed, so "1.foo" lexes as NUMBER DOT IDENTIFIER.
func (l *Lexer) readNumber() token.Token {
	start := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return token.Token{Type: token.NUMBER, Lexeme: l.input[start:l.position], Line: l.line}
}

// readString scans a string literal. The lexeme excludes the quotes and no
// escape sequences are processed.
func (l *Lexer) readString() token.Token {
	l.readChar() // consume opening quote
	start := l.position
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\n' {
			l.line++
		}
		l.readChar()
	}
	if l.ch == 0 {
		return token.Token{Type: token.ERROR, Lexeme: "Unterminated string.", Line: l.line}
	}
	lexeme := l.input[start:l.position]
	l.readChar() // consume closing quote
	return token.Token{Type: token.STRING, Lexeme: lexeme, Line: l.line}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
