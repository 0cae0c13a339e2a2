package functor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/diag"
	"qlower/internal/parser"
)

func derive(t *testing.T, src string) (*ast.Program, diag.List) {
	t.Helper()
	prog, errs := parser.ParseString(src)
	require.Empty(t, errs, parser.FormatErrors(errs))
	builtins.Declare(prog)
	return prog, Derive(prog)
}

func body(t *testing.T, prog *ast.Program, name string, v ast.Variant) string {
	t.Helper()
	c, ok := prog.Lookup(name)
	require.True(t, ok, name)
	s := c.Spec(v)
	require.NotNil(t, s, "%s has no %s", name, v)
	require.NotNil(t, s.Body, "%s %s was not derived", name, v)
	return s.Body.String()
}

func TestDeriveAllVariants(t *testing.T) {
	prog, errs := derive(t, `
operation Prep(q : Qubit) : Unit is Adj + Ctl {
    let angle = 0.5;
    H(q);
    S(q);
    Rx(angle, q);
}
`)
	require.Empty(t, errs)

	assert.Equal(t,
		"{ let angle = 0.5; Adjoint Rx(angle, q); Adjoint S(q); Adjoint H(q); }",
		body(t, prog, "Prep", ast.Adj))
	assert.Equal(t,
		"{ let angle = 0.5; Controlled H(__controls, q); Controlled S(__controls, q); Controlled Rx(__controls, (angle, q)); }",
		body(t, prog, "Prep", ast.Ctl))
	assert.Equal(t,
		"{ let angle = 0.5; Adjoint Controlled Rx(__controls, (angle, q)); Adjoint Controlled S(__controls, q); Adjoint Controlled H(__controls, q); }",
		body(t, prog, "Prep", ast.CtlAdj))

	c, _ := prog.Lookup("Prep")
	for _, v := range []ast.Variant{ast.Adj, ast.Ctl, ast.CtlAdj} {
		assert.True(t, c.Spec(v).Derived, v.String())
	}
	assert.False(t, c.Spec(ast.Body).Derived)
	assert.Equal(t, ast.DefaultControlsName, c.Spec(ast.CtlAdj).ControlsName)
}

func TestAdjointSelfSharesBody(t *testing.T) {
	prog, errs := derive(t, `
operation Flip(q : Qubit) : Unit is Adj + Ctl {
    body (...) { X(q); }
    adjoint self;
}
`)
	require.Empty(t, errs)
	c, _ := prog.Lookup("Flip")
	assert.Same(t, c.Spec(ast.Body).Body, c.Spec(ast.Adj).Body)
	assert.Same(t, c.Spec(ast.Ctl).Body, c.Spec(ast.CtlAdj).Body)
}

func TestExplicitAdjointIsDistributed(t *testing.T) {
	prog, errs := derive(t, `
operation Phase(q : Qubit) : Unit is Adj + Ctl {
    body (...) { S(q); }
    adjoint (...) { Z(q); S(q); }
}
`)
	require.Empty(t, errs)
	assert.Equal(t,
		"{ Controlled Z(__controls, q); Controlled S(__controls, q); }",
		body(t, prog, "Phase", ast.CtlAdj))
}

func TestInvertReversesLoopsAndBranches(t *testing.T) {
	prog, errs := derive(t, `
operation Ladder(qs : Qubit[], flag : Bool) : Unit is Adj {
    for i in 0..2 {
        H(qs[i]);
        Rz(IntAsDouble(i), qs[i]);
    }
    if flag { X(qs[0]); T(qs[0]); } else { Y(qs[1]); }
}
`)
	require.Empty(t, errs)
	assert.Equal(t,
		"{ if flag { Adjoint T((qs[0])); Adjoint X((qs[0])); } else { Adjoint Y((qs[1])); } "+
			"for reversed i in 0..2 { Adjoint Rz(IntAsDouble(i), (qs[i])); Adjoint H((qs[i])); } }",
		body(t, prog, "Ladder", ast.Adj))
}

func TestExistingControlsAreJoined(t *testing.T) {
	prog, errs := derive(t, `
operation Both(cs : Qubit[], q : Qubit) : Unit is Ctl {
    Controlled X(cs, q);
}
`)
	require.Empty(t, errs)
	assert.Equal(t, "{ Controlled X((__controls + cs), q); }", body(t, prog, "Both", ast.Ctl))
}

func TestWithinApplyDerivation(t *testing.T) {
	prog, errs := derive(t, `
operation Conj(q : Qubit) : Unit is Adj + Ctl {
    within { H(q); S(q); } apply { X(q); }
}
`)
	require.Empty(t, errs)
	c, _ := prog.Lookup("Conj")

	orig := c.Spec(ast.Body).Body.Statements[0].(*ast.WithinApplyStatement)
	require.NotNil(t, orig.Undo)
	assert.Equal(t, "{ Adjoint S(q); Adjoint H(q); }", orig.Undo.String())

	adj := c.Spec(ast.Adj).Body.Statements[0].(*ast.WithinApplyStatement)
	assert.Same(t, orig.Within, adj.Within)
	assert.Same(t, orig.Undo, adj.Undo)
	assert.Equal(t, "{ Adjoint X(q); }", adj.Apply.String())

	ctl := c.Spec(ast.Ctl).Body.Statements[0].(*ast.WithinApplyStatement)
	assert.Same(t, orig.Within, ctl.Within)
	assert.Equal(t, "{ Controlled X(__controls, q); }", ctl.Apply.String())
}

func TestDerivationFailures(t *testing.T) {
	prog, errs := derive(t, `
operation Loop(q : Qubit) : Unit is Adj {
    mutable n = 0;
    while n < 3 { H(q); set n += 1; }
}

operation Peek(q : Qubit) : Unit is Ctl {
    let r = M(q);
}

operation Measures(q : Qubit) : Unit is Adj {
    H(q);
    M(q);
}
`)
	require.Len(t, errs, 3, errs.String())
	for _, d := range errs {
		assert.Equal(t, diag.DerivationFailure, d.Kind)
		assert.True(t, d.Span.IsValid(), d.String())
	}
	assert.Equal(t, "Loop", errs[0].Callable)
	assert.Contains(t, errs[0].Message, "while loop")
	assert.Equal(t, "Peek", errs[1].Callable)
	assert.Contains(t, errs[1].Message, "M")
	assert.Equal(t, "Measures", errs[2].Callable)
	assert.Contains(t, errs[2].Message, "adjoint")

	loop, _ := prog.Lookup("Loop")
	assert.Nil(t, loop.Spec(ast.Adj).Body)
}

func TestIntrinsicVariantsStayIntrinsic(t *testing.T) {
	prog, errs := derive(t, `
operation MyGate(q : Qubit) : Unit is Adj + Ctl { body intrinsic; }
operation Sym(q : Qubit) : Unit is Adj {
    body intrinsic;
    adjoint self;
}
`)
	require.Empty(t, errs)
	g, _ := prog.Lookup("MyGate")
	for _, v := range ast.Variants {
		assert.Equal(t, ast.SpecIntrinsic, g.Spec(v).Kind, v.String())
		assert.Nil(t, g.Spec(v).Body)
	}
	s, _ := prog.Lookup("Sym")
	assert.Equal(t, ast.SpecSelf, s.Spec(ast.Adj).Kind)
}

func TestDeriveIsIdempotent(t *testing.T) {
	prog, errs := derive(t, `
operation Prep(q : Qubit) : Unit is Adj + Ctl { H(q); T(q); }
`)
	require.Empty(t, errs)
	first := body(t, prog, "Prep", ast.CtlAdj)
	require.Empty(t, Derive(prog))
	assert.Equal(t, first, body(t, prog, "Prep", ast.CtlAdj))
}
