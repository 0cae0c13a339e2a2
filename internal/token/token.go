package token

import "fmt"

// TokenType is a string alias for token types
// Using string makes debugging easier (we can print "PLUS" instead of a number)
type TokenType string

// Token struct holds the type, literal value and where it started in the source
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// Pos returns the start position of the token.
func (t Token) Pos() Pos { return Pos{Line: t.Line, Column: t.Column} }

// Pos is a 1-based line/column source position. The zero value means "unknown".
type Pos struct {
	Line   int
	Column int
}

func (p Pos) IsValid() bool { return p.Line > 0 && p.Column > 0 }

// Before orders positions; unknown positions sort last.
func (p Pos) Before(o Pos) bool {
	if !p.IsValid() {
		return false
	}
	if !o.IsValid() {
		return true
	}
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

const (
	// Special
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	// Identifiers and literals
	IDENT  TokenType = "IDENT"
	INT    TokenType = "INT"
	DOUBLE TokenType = "DOUBLE"
	STRING TokenType = "STRING"

	// Operators
	ASSIGN   TokenType = "="
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	BANG     TokenType = "!"
	ASTERISK TokenType = "*"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"
	CARET    TokenType = "^"
	LT       TokenType = "<"
	GT       TokenType = ">"
	LT_EQ    TokenType = "<="
	GT_EQ    TokenType = ">="
	EQ       TokenType = "=="
	NOT_EQ   TokenType = "!="
	QUESTION TokenType = "?"
	PIPE     TokenType = "|"
	RANGE    TokenType = ".."
	LARROW   TokenType = "<-"
	PLUS_EQ  TokenType = "+="
	MINUS_EQ TokenType = "-="
	MUL_EQ   TokenType = "*="
	DIV_EQ   TokenType = "/="
	MOD_EQ   TokenType = "%="
	W_EQ     TokenType = "w/="

	// Delimiters
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	// Keywords
	OPERATION  TokenType = "OPERATION"
	FUNCTION   TokenType = "FUNCTION"
	IS         TokenType = "IS"
	BODY       TokenType = "BODY"
	ADJOINT    TokenType = "ADJOINT"
	CONTROLLED TokenType = "CONTROLLED"
	FN_ADJ     TokenType = "Adjoint"
	FN_CTL     TokenType = "Controlled"
	LET        TokenType = "LET"
	MUTABLE    TokenType = "MUTABLE"
	SET        TokenType = "SET"
	USE        TokenType = "USE"
	TRUE       TokenType = "TRUE"
	FALSE      TokenType = "FALSE"
	ZERO       TokenType = "ZERO"
	ONE        TokenType = "ONE"
	IF         TokenType = "IF"
	ELIF       TokenType = "ELIF"
	ELSE       TokenType = "ELSE"
	FOR        TokenType = "FOR"
	IN         TokenType = "IN"
	WHILE      TokenType = "WHILE"
	REPEAT     TokenType = "REPEAT"
	UNTIL      TokenType = "UNTIL"
	FIXUP      TokenType = "FIXUP"
	WITHIN     TokenType = "WITHIN"
	APPLY      TokenType = "APPLY"
	RETURN     TokenType = "RETURN"
	FAIL       TokenType = "FAIL"
	AND        TokenType = "AND"
	OR         TokenType = "OR"
	NOT        TokenType = "NOT"
	PAULI      TokenType = "PAULI"
)

// keywords maps string identifiers to their token type
var keywords = map[string]TokenType{
	"operation":  OPERATION,
	"function":   FUNCTION,
	"is":         IS,
	"body":       BODY,
	"adjoint":    ADJOINT,
	"controlled": CONTROLLED,
	"Adjoint":    FN_ADJ,
	"Controlled": FN_CTL,
	"let":        LET,
	"mutable":    MUTABLE,
	"set":        SET,
	"use":        USE,
	"true":       TRUE,
	"false":      FALSE,
	"Zero":       ZERO,
	"One":        ONE,
	"if":         IF,
	"elif":       ELIF,
	"else":       ELSE,
	"for":        FOR,
	"in":         IN,
	"while":      WHILE,
	"repeat":     REPEAT,
	"until":      UNTIL,
	"fixup":      FIXUP,
	"within":     WITHIN,
	"apply":      APPLY,
	"return":     RETURN,
	"fail":       FAIL,
	"and":        AND,
	"or":         OR,
	"not":        NOT,
	"PauliI":     PAULI,
	"PauliX":     PAULI,
	"PauliY":     PAULI,
	"PauliZ":     PAULI,
}

// LookupIdent checks if an identifier is a keyword
// Otherwise returns IDENT (it's a callable, variable or type name)
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}
