package lexer

import "qlower/internal/token"

// Lexer holds the state while tokenizing input
// It reads character by character, like a tape reader
type Lexer struct {
	input        string // The source code
	position     int    // Current position in input (points to current char)
	readPosition int    // Current reading position (after current char)
	ch           byte   // Current character under examination
	line         int
	column       int
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar() // Initialize with first character
	return l
}

// readChar advances to the next character and keeps line/column in sync
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition += 1
	l.column++
}

// peekChar looks at the next character without consuming it
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) peekCharAt(offset int) byte {
	idx := l.position + offset
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

// NextToken returns the next token from input
func (l *Lexer) NextToken() token.Token {
	var tok token.Token

	l.skipIgnored()
	line, col := l.line, l.column

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.EQ)
		} else {
			tok = newToken(token.ASSIGN, l.ch)
		}
	case '+':
		tok = l.maybeAssignOp(token.PLUS, token.PLUS_EQ)
	case '-':
		tok = l.maybeAssignOp(token.MINUS, token.MINUS_EQ)
	case '*':
		tok = l.maybeAssignOp(token.ASTERISK, token.MUL_EQ)
	case '/':
		tok = l.maybeAssignOp(token.SLASH, token.DIV_EQ)
	case '%':
		tok = l.maybeAssignOp(token.PERCENT, token.MOD_EQ)
	case '!':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.NOT_EQ)
		} else {
			tok = newToken(token.BANG, l.ch)
		}
	case '<':
		switch l.peekChar() {
		case '=':
			tok = l.twoCharToken(token.LT_EQ)
		case '-':
			tok = l.twoCharToken(token.LARROW)
		default:
			tok = newToken(token.LT, l.ch)
		}
	case '>':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.GT_EQ)
		} else {
			tok = newToken(token.GT, l.ch)
		}
	case '.':
		if l.peekChar() == '.' {
			tok = l.twoCharToken(token.RANGE)
		} else {
			tok = newToken(token.ILLEGAL, l.ch)
		}
	case '^':
		tok = newToken(token.CARET, l.ch)
	case '?':
		tok = newToken(token.QUESTION, l.ch)
	case '|':
		tok = newToken(token.PIPE, l.ch)
	case ';':
		tok = newToken(token.SEMICOLON, l.ch)
	case ':':
		tok = newToken(token.COLON, l.ch)
	case ',':
		tok = newToken(token.COMMA, l.ch)
	case '(':
		tok = newToken(token.LPAREN, l.ch)
	case ')':
		tok = newToken(token.RPAREN, l.ch)
	case '{':
		tok = newToken(token.LBRACE, l.ch)
	case '}':
		tok = newToken(token.RBRACE, l.ch)
	case '[':
		tok = newToken(token.LBRACKET, l.ch)
	case ']':
		tok = newToken(token.RBRACKET, l.ch)
	case '"':
		tok.Type = token.STRING
		tok.Literal = l.readString()
		tok.Line, tok.Column = line, col
		return tok
	case 0:
		tok.Literal = ""
		tok.Type = token.EOF
	default:
		if isLetter(l.ch) {
			// `w/=` is the array copy-and-update operator
			if l.ch == 'w' && l.peekChar() == '/' && l.peekCharAt(2) == '=' && !isLetter(l.peekCharAt(3)) {
				l.readChar()
				l.readChar()
				l.readChar()
				return token.Token{Type: token.W_EQ, Literal: "w/=", Line: line, Column: col}
			}
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(tok.Literal)
			tok.Line, tok.Column = line, col
			return tok
		} else if isDigit(l.ch) {
			tok.Type, tok.Literal = l.readNumber()
			tok.Line, tok.Column = line, col
			return tok
		}
		tok = newToken(token.ILLEGAL, l.ch)
	}

	l.readChar()
	tok.Line, tok.Column = line, col
	return tok
}

func (l *Lexer) twoCharToken(t token.TokenType) token.Token {
	ch := l.ch
	l.readChar()
	return token.Token{Type: t, Literal: string(ch) + string(l.ch)}
}

func (l *Lexer) maybeAssignOp(plain, assign token.TokenType) token.Token {
	if l.peekChar() == '=' {
		return l.twoCharToken(assign)
	}
	return newToken(plain, l.ch)
}
