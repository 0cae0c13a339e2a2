package lexer

import (
	"testing"

	"qlower/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `
operation Main() : Result {
    use q = Qubit();
    H(q);
    mutable n = 0;
    set n += 2;
    set arr w/= 1 <- 3.5;
    for i in 0..2..10 { }
    if M(q) == One and not false { X(q); }
    let d = 1.5e-3;
    return r >= Zero ? One | Zero;
}
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.OPERATION, "operation"},
		{token.IDENT, "Main"},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.COLON, ":"},
		{token.IDENT, "Result"},
		{token.LBRACE, "{"},
		{token.USE, "use"},
		{token.IDENT, "q"},
		{token.ASSIGN, "="},
		{token.IDENT, "Qubit"},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "H"},
		{token.LPAREN, "("},
		{token.IDENT, "q"},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},
		{token.MUTABLE, "mutable"},
		{token.IDENT, "n"},
		{token.ASSIGN, "="},
		{token.INT, "0"},
		{token.SEMICOLON, ";"},
		{token.SET, "set"},
		{token.IDENT, "n"},
		{token.PLUS_EQ, "+="},
		{token.INT, "2"},
		{token.SEMICOLON, ";"},
		{token.SET, "set"},
		{token.IDENT, "arr"},
		{token.W_EQ, "w/="},
		{token.INT, "1"},
		{token.LARROW, "<-"},
		{token.DOUBLE, "3.5"},
		{token.SEMICOLON, ";"},
		{token.FOR, "for"},
		{token.IDENT, "i"},
		{token.IN, "in"},
		{token.INT, "0"},
		{token.RANGE, ".."},
		{token.INT, "2"},
		{token.RANGE, ".."},
		{token.INT, "10"},
		{token.LBRACE, "{"},
		{token.RBRACE, "}"},
		{token.IF, "if"},
		{token.IDENT, "M"},
		{token.LPAREN, "("},
		{token.IDENT, "q"},
		{token.RPAREN, ")"},
		{token.EQ, "=="},
		{token.ONE, "One"},
		{token.AND, "and"},
		{token.NOT, "not"},
		{token.FALSE, "false"},
		{token.LBRACE, "{"},
		{token.IDENT, "X"},
		{token.LPAREN, "("},
		{token.IDENT, "q"},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.LET, "let"},
		{token.IDENT, "d"},
		{token.ASSIGN, "="},
		{token.DOUBLE, "1.5e-3"},
		{token.SEMICOLON, ";"},
		{token.RETURN, "return"},
		{token.IDENT, "r"},
		{token.GT_EQ, ">="},
		{token.ZERO, "Zero"},
		{token.QUESTION, "?"},
		{token.ONE, "One"},
		{token.PIPE, "|"},
		{token.ZERO, "Zero"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)", i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestTokenPositions(t *testing.T) {
	l := New("let x = 1;\n  H(q);")
	want := []struct {
		lit       string
		line, col int
	}{
		{"let", 1, 1},
		{"x", 1, 5},
		{"=", 1, 7},
		{"1", 1, 9},
		{";", 1, 10},
		{"H", 2, 3},
		{"(", 2, 4},
		{"q", 2, 5},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Literal != w.lit || tok.Line != w.line || tok.Column != w.col {
			t.Fatalf("token[%d]=%q at %d:%d, want %q at %d:%d", i, tok.Literal, tok.Line, tok.Column, w.lit, w.line, w.col)
		}
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	l := New("// leading\n/* block\n comment */ H")
	tok := l.NextToken()
	if tok.Type != token.IDENT || tok.Literal != "H" || tok.Line != 3 {
		t.Fatalf("unexpected token after comments: %+v", tok)
	}
	if tok := l.NextToken(); tok.Type != token.EOF {
		t.Fatalf("expected EOF, got %+v", tok)
	}
}

func TestStringLiteral(t *testing.T) {
	l := New(`fail "boom";`)
	if tok := l.NextToken(); tok.Type != token.FAIL {
		t.Fatalf("expected fail keyword, got %+v", tok)
	}
	tok := l.NextToken()
	if tok.Type != token.STRING || tok.Literal != "boom" {
		t.Fatalf("unexpected string token %+v", tok)
	}
}
