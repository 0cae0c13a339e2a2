package ast

import (
	"strings"
	"testing"

	"qlower/internal/token"
)

func tok(tt token.TokenType, lit string) token.Token { return token.Token{Type: tt, Literal: lit} }

func ident(name string) *Identifier { return &Identifier{Token: tok(token.IDENT, name), Value: name} }

func TestProgramAndNodeStrings(t *testing.T) {
	q := ident("q")
	r := ident("r")
	int1 := &IntegerLiteral{Token: tok(token.INT, "1"), Value: 1}
	dbl := &DoubleLiteral{Token: tok(token.DOUBLE, "3.14"), Value: 3.14}
	one := &ResultLiteral{Token: tok(token.ONE, "One"), Value: true}
	arr := &ArrayLiteral{Token: tok(token.LBRACKET, "["), Elements: []Expression{int1, dbl}}
	rep := &RepeatArrayLiteral{Token: tok(token.LBRACKET, "["), Value: one, Size: int1}
	tuple := &TupleLiteral{Token: tok(token.LPAREN, "("), Elements: []Expression{q, r}}
	rng := &RangeExpression{Token: tok(token.RANGE, ".."), Start: int1, Step: int1, End: int1}
	cmp := &InfixExpression{Token: tok(token.EQ, "=="), Left: r, Operator: "==", Right: one}
	neg := &PrefixExpression{Token: tok(token.NOT, "not"), Operator: "not", Right: cmp}
	call := &CallExpression{Token: tok(token.IDENT, "X"), Function: ident("X"), Arguments: []Expression{q}}
	adj := &CallExpression{Token: tok(token.FN_ADJ, "Adjoint"), Function: &FunctorExpression{Token: tok(token.FN_ADJ, "Adjoint"), Functor: FunctorAdjoint, Operand: ident("S")}, Arguments: []Expression{q}}
	cond := &ConditionalExpression{Token: tok(token.QUESTION, "?"), Condition: cmp, Consequence: int1, Alternative: int1}

	blk := &BlockStatement{Token: tok(token.LBRACE, "{"), Statements: []Statement{
		&ExpressionStatement{Token: call.Token, Expression: call},
	}}
	stmts := []Statement{
		&LetStatement{Token: tok(token.LET, "let"), Pattern: &Pattern{Name: "r"}, Value: &CallExpression{Token: tok(token.IDENT, "M"), Function: ident("M"), Arguments: []Expression{q}}},
		&LetStatement{Token: tok(token.MUTABLE, "mutable"), Mutable: true, Pattern: &Pattern{Elements: []*Pattern{{Name: "a"}, {Name: "_"}}}, Value: tuple},
		&SetStatement{Token: tok(token.SET, "set"), Name: ident("a"), Operator: "+=", Value: int1},
		&UpdateStatement{Token: tok(token.SET, "set"), Name: ident("xs"), Index: int1, Value: dbl},
		&UseStatement{Token: tok(token.USE, "use"), Name: ident("qs"), Count: int1},
		&IfStatement{Token: tok(token.IF, "if"), Condition: cmp, Consequence: blk, Alternative: &IfStatement{Token: tok(token.IF, "if"), Condition: neg, Consequence: blk, Alternative: blk}},
		&ForStatement{Token: tok(token.FOR, "for"), Pattern: &Pattern{Name: "i"}, Iterable: rng, Body: blk},
		&WhileStatement{Token: tok(token.WHILE, "while"), Condition: cmp, Body: blk},
		&RepeatStatement{Token: tok(token.REPEAT, "repeat"), Body: blk, Until: cmp, Fixup: blk},
		&WithinApplyStatement{Token: tok(token.WITHIN, "within"), Within: blk, Apply: blk},
		&ExpressionStatement{Token: adj.Token, Expression: adj},
		&ExpressionStatement{Token: tok(token.LBRACKET, "["), Expression: arr},
		&ExpressionStatement{Token: tok(token.LBRACKET, "["), Expression: rep},
		&ExpressionStatement{Token: tok(token.QUESTION, "?"), Expression: cond},
		&FailStatement{Token: tok(token.FAIL, "fail"), Message: &StringLiteral{Token: tok(token.STRING, "boom"), Value: "boom"}},
		&ReturnStatement{Token: tok(token.RETURN, "return"), ReturnValue: r},
	}
	main := &Callable{
		Token:      tok(token.OPERATION, "operation"),
		Name:       "Main",
		ReturnType: "Result",
		Specs: map[Variant]*Specialization{
			Body: {Variant: Body, Kind: SpecExplicit, Body: &BlockStatement{Token: tok(token.LBRACE, "{"), Statements: stmts}},
		},
	}
	prog := NewProgram(main)

	if prog.TokenLiteral() == "" || prog.String() == "" {
		t.Fatalf("program stringify/token literal empty")
	}
	for i, s := range stmts {
		if s.TokenLiteral() == "" || s.String() == "" {
			t.Fatalf("statement %d has empty token literal or string", i)
		}
	}
	if got := cmp.String(); got != "(r == One)" {
		t.Fatalf("infix string=%q", got)
	}
	if got := neg.String(); got != "(not (r == One))" {
		t.Fatalf("prefix string=%q", got)
	}
	if got := rng.String(); got != "1..1..1" {
		t.Fatalf("range string=%q", got)
	}
	if got := adj.String(); got != "Adjoint S(q)" {
		t.Fatalf("functor call string=%q", got)
	}
}

func TestProgramLookupAndDuplicates(t *testing.T) {
	a := &Callable{Name: "A"}
	prog := NewProgram(a)
	if !prog.Add(&Callable{Name: "B"}) {
		t.Fatalf("expected B to be added")
	}
	if prog.Add(&Callable{Name: "A"}) {
		t.Fatalf("duplicate A must be rejected")
	}
	got, ok := prog.Lookup("A")
	if !ok || got != a {
		t.Fatalf("Lookup(A) returned %v %v", got, ok)
	}
	if _, ok := prog.Lookup("C"); ok {
		t.Fatalf("Lookup(C) should fail")
	}
	if !a.IsIntrinsic() {
		t.Fatalf("callable without body should be intrinsic")
	}
}

func TestResolveCallee(t *testing.T) {
	e := &FunctorExpression{Functor: FunctorControlled, Operand: &FunctorExpression{Functor: FunctorAdjoint, Operand: ident("T")}}
	ref, ok := ResolveCallee(e)
	if !ok || ref.Name != "T" || !ref.Adjoint || ref.Controlled != 1 {
		t.Fatalf("unexpected callee ref %+v %v", ref, ok)
	}
	if ref.Variant() != CtlAdj {
		t.Fatalf("variant=%v", ref.Variant())
	}
	twice := &FunctorExpression{Functor: FunctorAdjoint, Operand: &FunctorExpression{Functor: FunctorAdjoint, Operand: ident("T")}}
	ref, _ = ResolveCallee(twice)
	if ref.Variant() != Body {
		t.Fatalf("Adjoint Adjoint should cancel, got %v", ref.Variant())
	}
	if _, ok := ResolveCallee(&IntegerLiteral{Value: 1}); ok {
		t.Fatalf("literal must not resolve as callee")
	}
}

func TestParamsForControlledVariant(t *testing.T) {
	c := &Callable{
		Name:   "Op",
		Params: []*Param{{Name: "q", TypeName: "Qubit"}},
		Specs: map[Variant]*Specialization{
			Body: {Variant: Body, Kind: SpecExplicit, Body: &BlockStatement{}},
			Ctl:  {Variant: Ctl, Kind: SpecExplicit, ControlsName: "cs", Body: &BlockStatement{}},
		},
	}
	params := c.ParamsFor(Ctl)
	if len(params) != 2 || params[0].Name != "cs" || params[0].TypeName != "Qubit[]" || params[1].Name != "q" {
		t.Fatalf("unexpected controlled params %v", params)
	}
	if got := c.ParamsFor(Body); len(got) != 1 {
		t.Fatalf("body params=%v", got)
	}
}

func TestPatternNames(t *testing.T) {
	p := &Pattern{Elements: []*Pattern{{Name: "a"}, {Name: "_"}, {Elements: []*Pattern{{Name: "b"}, {Name: "c"}}}}}
	names := p.Names()
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("names=%v", names)
	}
	if p.String() != "(a, _, (b, c))" {
		t.Fatalf("pattern string=%q", p.String())
	}
}

func TestInspectVisitsCallsInOrder(t *testing.T) {
	q := ident("q")
	inner := &CallExpression{Token: tok(token.IDENT, "F"), Function: ident("F"), Arguments: []Expression{q}}
	outer := &CallExpression{Token: tok(token.IDENT, "G"), Function: ident("G"), Arguments: []Expression{inner}}
	within := &BlockStatement{Statements: []Statement{&ExpressionStatement{Expression: outer}}}
	stmt := &WithinApplyStatement{
		Within: within,
		Apply:  &BlockStatement{Statements: []Statement{&ExpressionStatement{Expression: inner}}},
	}
	rep := &RepeatStatement{Body: &BlockStatement{}, Until: &BooleanLiteral{Value: true}}

	var names []string
	Inspect(&BlockStatement{Statements: []Statement{stmt, rep}}, func(n Node) bool {
		if c, ok := n.(*CallExpression); ok {
			names = append(names, c.Function.String())
		}
		return true
	})
	if got := strings.Join(names, ","); got != "G,F,F" {
		t.Fatalf("visited %s", got)
	}

	names = nil
	Inspect(outer, func(n Node) bool {
		if c, ok := n.(*CallExpression); ok {
			names = append(names, c.Function.String())
			return false
		}
		return true
	})
	if len(names) != 1 {
		t.Fatalf("returning false must skip children, visited %v", names)
	}
}
