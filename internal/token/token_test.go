package token

import "testing"

func TestLookupIdent(t *testing.T) {
	tests := map[string]TokenType{
		"operation":  OPERATION,
		"function":   FUNCTION,
		"let":        LET,
		"mutable":    MUTABLE,
		"set":        SET,
		"use":        USE,
		"if":         IF,
		"elif":       ELIF,
		"else":       ELSE,
		"for":        FOR,
		"while":      WHILE,
		"repeat":     REPEAT,
		"until":      UNTIL,
		"fixup":      FIXUP,
		"within":     WITHIN,
		"apply":      APPLY,
		"return":     RETURN,
		"fail":       FAIL,
		"Adjoint":    FN_ADJ,
		"Controlled": FN_CTL,
		"adjoint":    ADJOINT,
		"Zero":       ZERO,
		"One":        ONE,
		"PauliX":     PAULI,
		"size":       IDENT,
		"q":          IDENT,
	}

	for in, want := range tests {
		if got := LookupIdent(in); got != want {
			t.Fatalf("LookupIdent(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestPosOrdering(t *testing.T) {
	a := Pos{Line: 2, Column: 5}
	b := Pos{Line: 2, Column: 9}
	c := Pos{Line: 3, Column: 1}
	if !a.Before(b) || !b.Before(c) || c.Before(a) {
		t.Fatalf("unexpected ordering for %v %v %v", a, b, c)
	}
	if !c.Before(Pos{}) || (Pos{}).Before(a) {
		t.Fatalf("unknown positions must sort last")
	}
	if got := (Pos{}).String(); got != "-" {
		t.Fatalf("unknown pos string=%q", got)
	}
	if got := a.String(); got != "2:5" {
		t.Fatalf("pos string=%q", got)
	}
}
