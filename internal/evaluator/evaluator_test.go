package evaluator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/functor"
	"qlower/internal/object"
	"qlower/internal/parser"
	"qlower/internal/qir"
)

func program(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := parser.ParseString(src)
	require.Empty(t, errs, parser.FormatErrors(errs))
	builtins.Declare(prog)
	require.Empty(t, functor.Derive(prog))
	return prog
}

func configFor(p caps.Profile) Config {
	cfg := DefaultConfig()
	cfg.Profile = p
	cfg.Permitted = caps.DefaultLattice().Permitted(p)
	return cfg
}

func lower(t *testing.T, src string, cfg Config) (*qir.Module, error) {
	t.Helper()
	return New(zap.NewNop(), cfg).Run(context.Background(), program(t, src), "Main")
}

func mustLower(t *testing.T, src string, p caps.Profile) *qir.Module {
	t.Helper()
	m, err := lower(t, src, configFor(p))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	return m
}

const correction = `
operation Main() : Result {
    use q = Qubit();
    H(q);
    let r = M(q);
    if r == One { X(q); }
    return r;
}
`

func TestStaticLoopUnrolls(t *testing.T) {
	m := mustLower(t, `
operation Main() : Unit {
    use q = Qubit();
    for i in 1..5 { H(q); }
}
`, caps.Minimal)
	assert.Equal(t, 5, m.CountKind(qir.QIS))
	assert.Zero(t, m.BranchCount())
	assert.Equal(t, 1, m.NumQubits)
}

func TestLoopBudget(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"at budget", "for i in 1..1000 { H(q); }", true},
		{"over budget", "for i in 1..10000 { H(q); }", false},
		{"reverse", "for i in 999..-1..0 { H(q); }", true},
		{"while", "mutable i = 0; while i < 2000 { set i += 1; }", false},
		{"repeat", "mutable i = 0; repeat { set i += 1; } until i > 5000;", false},
	}
	cfg := configFor(caps.Minimal)
	cfg.MaxLoopIterations = 1000
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := lower(t, "operation Main() : Unit { use q = Qubit(); "+tt.src+" }", cfg)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, 1000, m.CountKind(qir.QIS))
				return
			}
			require.Error(t, err)
			assert.Equal(t, diag.BoundedLoopOverflow, diag.KindOf(err))
		})
	}
}

func TestStaticConditionsFold(t *testing.T) {
	m := mustLower(t, `
function Square(x : Int) : Int { x * x }

operation Main() : Unit {
    use q = Qubit();
    if Square(3) == 9 { X(q); } else { Z(q); }
}
`, caps.Minimal)
	assert.Zero(t, m.BranchCount())
	out := m.String()
	assert.Contains(t, out, "qis x q0")
	assert.NotContains(t, out, "qis z")
}

func TestBranchOnMeasurement(t *testing.T) {
	m := mustLower(t, correction, caps.Partial)
	assert.Equal(t, 1, m.BranchCount())
	assert.Equal(t, 1, m.CountKind(qir.ReadResult))
	out := m.String()
	assert.Contains(t, out, "mz q0, r0")
	assert.Contains(t, out, "read_result r0")
	assert.Contains(t, out, `output result r0 "ret"`)
	assert.True(t, m.Required.Has(caps.BranchOnMeasurement))

	_, err := lower(t, correction, configFor(caps.Minimal))
	require.Error(t, err)
	assert.Equal(t, diag.UnsupportedDynamicOperation, diag.KindOf(err))
}

func TestQubitIdsAreSequential(t *testing.T) {
	m := mustLower(t, `
operation Main() : Unit {
    use qs = Qubit[3];
    H(qs[0]);
    H(qs[1]);
    H(qs[2]);
}
`, caps.Minimal)
	assert.Equal(t, 3, m.NumQubits)
	out := m.String()
	for _, want := range []string{"qis h q0", "qis h q1", "qis h q2"} {
		assert.Contains(t, out, want)
	}
}

func TestLoopAllocationsAreSequentialUnderEveryProfile(t *testing.T) {
	const src = `
operation Main() : Unit {
    for i in 0..2 {
        use q = Qubit();
        H(q);
        let r = M(q);
    }
}
`
	for _, p := range caps.Profiles {
		t.Run(p.String(), func(t *testing.T) {
			m := mustLower(t, src, p)
			assert.Equal(t, 3, m.NumQubits)
			assert.Equal(t, 3, m.NumResults)
			out := m.String()
			last := -1
			for _, want := range []string{"mz q0, r0", "mz q1, r1", "mz q2, r2"} {
				at := strings.Index(out, want)
				require.Greater(t, at, last, "%q out of order in\n%s", want, out)
				last = at
			}
		})
	}
}

func TestQubitReuseFollowsProfile(t *testing.T) {
	const src = `
operation Main() : Unit {
    for i in 1..3 {
        use q = Qubit();
        H(q);
        let r = MResetZ(q);
    }
}
`
	assert.Equal(t, 3, mustLower(t, src, caps.Minimal).NumQubits)
	assert.Equal(t, 1, mustLower(t, src, caps.Partial).NumQubits)
}

func TestDynamicMutableMeetsInPhi(t *testing.T) {
	const src = `
operation Main() : Int {
    use q = Qubit();
    mutable n = 0;
    if M(q) == One { set n = 1; }
    return n;
}
`
	m := mustLower(t, src, caps.Extended)
	assert.Equal(t, 1, m.CountKind(qir.Phi))
	outs := m.Outputs()
	require.Len(t, outs, 1)
	assert.Equal(t, "int", outs[0].Name)
	assert.True(t, m.Required.Has(caps.DynamicInt))

	_, err := lower(t, src, configFor(caps.Partial))
	assert.Equal(t, diag.UnsupportedDynamicOperation, diag.KindOf(err))
}

func TestDynamicWhileCarriesMutables(t *testing.T) {
	const src = `
operation Main() : Int {
    use q = Qubit();
    mutable n = 0;
    mutable done = false;
    while not done {
        set n += 1;
        H(q);
        set done = M(q) == One;
    }
    return n;
}
`
	m := mustLower(t, src, caps.Unrestricted)
	assert.Equal(t, 2, m.BranchCount())
	assert.Equal(t, 4, m.CountKind(qir.Phi))
	assert.True(t, m.Required.Has(caps.BackwardBranching))
	outs := m.Outputs()
	require.Len(t, outs, 1)
	assert.Equal(t, "int", outs[0].Name)

	_, err := lower(t, src, configFor(caps.Extended))
	assert.Equal(t, diag.UnsupportedDynamicOperation, diag.KindOf(err))
}

func TestRepeatUntilSuccess(t *testing.T) {
	m := mustLower(t, `
operation Main() : Unit {
    use q = Qubit();
    repeat { H(q); } until M(q) == Zero fixup { X(q); }
}
`, caps.Unrestricted)
	assert.GreaterOrEqual(t, m.BranchCount(), 2)
	assert.True(t, m.Required.Has(caps.BackwardBranching))
	assert.Contains(t, m.String(), "qis x q0")
}

func TestReturnFromRuntimeBranch(t *testing.T) {
	const src = `
operation Flip(q : Qubit) : Int {
    if M(q) == One { return 1; }
    return 0;
}

operation Main() : Int {
    use q = Qubit();
    return Flip(q);
}
`
	m := mustLower(t, src, caps.Extended)
	assert.Equal(t, 1, m.CountKind(qir.Phi))
	assert.True(t, m.Required.Has(caps.ReturnInDynamicScope))

	_, err := lower(t, src, configFor(caps.Partial))
	assert.Equal(t, diag.UnsupportedDynamicOperation, diag.KindOf(err))
}

func TestFail(t *testing.T) {
	_, err := lower(t, `operation Main() : Unit { fail "boom"; }`, configFor(caps.Minimal))
	require.Error(t, err)
	assert.Equal(t, diag.EvaluationFailure, diag.KindOf(err))
	assert.Contains(t, err.Error(), "boom")

	m := mustLower(t, `
operation Main() : Unit {
    use q = Qubit();
    if M(q) == One { fail "bad"; }
}
`, caps.Extended)
	assert.Contains(t, m.String(), `fail "bad"`)
	assert.True(t, m.Required.Has(caps.ReturnInDynamicScope))
}

func TestFaultInUntakenConditionalArm(t *testing.T) {
	tests := []struct {
		name string
		expr string
		msg  string
	}{
		{"index", "M(q) == One ? arr[5] | 0", "index out of range"},
		{"division", "M(q) == One ? 1 / 0 | arr[1]", "division by zero"},
		{"else arm", "M(q) == Zero ? 1 | arr[3] % 0", "index out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "operation Main() : Int {\n    use q = Qubit();\n    let arr = [1, 2, 3];\n    return " + tt.expr + ";\n}\n"
			m := mustLower(t, src, caps.Extended)
			assert.Contains(t, m.String(), "fail")
			assert.Contains(t, m.String(), tt.msg)
			assert.True(t, m.Required.Has(caps.ReturnInDynamicScope))

			_, err := lower(t, src, configFor(caps.Partial))
			require.Error(t, err)
			assert.Equal(t, diag.EvaluationFailure, diag.KindOf(err))
		})
	}
}

func TestControlledAndAdjointGates(t *testing.T) {
	m := mustLower(t, `
operation Main() : Unit {
    use qs = Qubit[3];
    Controlled X([qs[0]], qs[1]);
    Controlled X([qs[0], qs[1]], qs[2]);
    CNOT(qs[1], qs[2]);
    Adjoint S(qs[0]);
    Adjoint Rx(0.5, qs[0]);
    Controlled H([qs[2]], qs[0]);
}
`, caps.Minimal)
	out := m.String()
	assert.Contains(t, out, "qis cx q0, q1")
	assert.Contains(t, out, "qis ccx q0, q1, q2")
	assert.Contains(t, out, "qis cx q1, q2")
	assert.Contains(t, out, "qis s__adj q0")
	assert.Contains(t, out, "qis rx -0.5, q0")
	assert.Contains(t, out, "qis h ctl[q2] q0")
}

func TestWithinApplyUndoes(t *testing.T) {
	m := mustLower(t, `
operation Main() : Unit {
    use q = Qubit();
    within { S(q); } apply { X(q); }
}
`, caps.Minimal)
	var gates []string
	for _, b := range m.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == qir.QIS {
				gates = append(gates, in.Name)
			}
		}
	}
	assert.Equal(t, []string{"s", "x", "s__adj"}, gates)
}

// pathsToRet lists, for every path from the entry block to a ret, the
// instructions of kind k along it.
func pathsToRet(m *qir.Module, k qir.InstrKind) [][]qir.Instr {
	var out [][]qir.Instr
	seen := map[int]bool{}
	var walk func(id int, along []qir.Instr)
	walk = func(id int, along []qir.Instr) {
		if seen[id] {
			return
		}
		seen[id] = true
		defer delete(seen, id)
		b := m.Blocks[id]
		for _, in := range b.Instrs {
			if in.Kind == k {
				along = append(along, in)
			}
		}
		if b.Term.Kind == qir.Ret {
			out = append(out, append([]qir.Instr(nil), along...))
		}
		for _, next := range b.Term.Successors() {
			walk(next, along)
		}
	}
	walk(0, nil)
	return out
}

func TestWithinUndoesOnRuntimeReturn(t *testing.T) {
	m := mustLower(t, `
operation Main() : Int {
    use q = Qubit();
    within { S(q); } apply {
        if M(q) == One { return 1; }
        X(q);
    }
    return 0;
}
`, caps.Extended)
	paths := pathsToRet(m, qir.QIS)
	require.Len(t, paths, 2)
	for _, path := range paths {
		var gates []string
		for _, in := range path {
			gates = append(gates, in.Name)
		}
		require.NotEmpty(t, gates)
		assert.Equal(t, "s", gates[0], "path %v", gates)
		assert.Equal(t, "s__adj", gates[len(gates)-1], "path %v", gates)
		n := 0
		for _, g := range gates {
			if g == "s__adj" {
				n++
			}
		}
		assert.Equal(t, 1, n, "path %v", gates)
	}
}

func TestRuntimeReturnReleasesRegisters(t *testing.T) {
	m := mustLower(t, `
operation Main() : Int {
    use q = Qubit();
    let n = M(q) == One ? 2 | 3;
    use qs = Qubit[n];
    if M(qs[0]) == One { return 1; }
    return 0;
}
`, caps.Unrestricted)
	paths := pathsToRet(m, qir.QReleaseArray)
	require.Len(t, paths, 2)
	for _, path := range paths {
		assert.Len(t, path, 1)
	}
}

func TestTupleOutputs(t *testing.T) {
	m := mustLower(t, `
operation Main() : (Int, Result[]) {
    use qs = Qubit[2];
    return (7, [M(qs[0]), M(qs[1])]);
}
`, caps.Minimal)
	var tags []string
	for _, in := range m.Outputs() {
		tags = append(tags, in.Name+" "+in.Text)
	}
	assert.Equal(t, []string{
		"tuple ret",
		"int ret.0",
		"array ret.1",
		"result ret.1.0",
		"result ret.1.1",
	}, tags)
}

func TestDeterministic(t *testing.T) {
	prog := program(t, correction)
	var first string
	for i := 0; i < 5; i++ {
		m, err := New(zap.NewNop(), configFor(caps.Partial)).Run(context.Background(), prog, "Main")
		require.NoError(t, err)
		if i == 0 {
			first = m.String()
			continue
		}
		assert.Equal(t, first, m.String())
	}
}

func TestRequiredWithinPermitted(t *testing.T) {
	sources := []string{
		correction,
		`operation Main() : Unit { use q = Qubit(); for i in 0..3 { H(q); } }`,
		`operation Main() : Int { use q = Qubit(); mutable n = 0; if M(q) == One { set n = 1; } return n; }`,
		`operation Main() : Unit { use q = Qubit(); repeat { H(q); } until M(q) == Zero; }`,
		`operation Main() : Unit { use q = Qubit(); let a = M(q) == One ? 1.5 | 2.5; Rx(a, q); }`,
	}
	for _, src := range sources {
		for _, p := range caps.Profiles {
			m, err := lower(t, src, configFor(p))
			if err != nil {
				assert.Equal(t, diag.UnsupportedDynamicOperation, diag.KindOf(err), "%s: %v", p, err)
				continue
			}
			assert.True(t, m.Required.SubsetOf(m.Permitted), "%s requires %s", p, m.Required)
			assert.Equal(t, p.String(), m.Profile)
		}
	}
}

func TestPureFunctionsAreMemoized(t *testing.T) {
	m := mustLower(t, `
function Fib(n : Int) : Int {
    if n < 2 { return n; }
    return Fib(n - 1) + Fib(n - 2);
}

operation Main() : Int { return Fib(40); }
`, caps.Minimal)
	outs := m.Outputs()
	require.Len(t, outs, 1)
	assert.Equal(t, "102334155", outs[0].Args[0].String())
}

func TestCacheKey(t *testing.T) {
	fn := &ast.Callable{Name: "F", Kind: ast.Function}
	op := &ast.Callable{Name: "G", Kind: ast.Operation}
	three := object.NewStatic(&object.Integer{Value: 3})
	dyn := object.NewDynamic(qir.NewVar(0, "Int"))

	key, ok := cacheKey(fn, ast.Body, nil, []object.Value{three})
	require.True(t, ok)
	assert.Equal(t, "F/body(3)", key)

	_, ok = cacheKey(fn, ast.Body, nil, []object.Value{dyn})
	assert.False(t, ok)
	_, ok = cacheKey(op, ast.Body, nil, []object.Value{three})
	assert.False(t, ok)
}

func TestRecursionDepth(t *testing.T) {
	_, err := lower(t, `
function Down(n : Int) : Int { return Down(n + 1); }
operation Main() : Int { return Down(0); }
`, configFor(caps.Minimal))
	require.Error(t, err)
	assert.Equal(t, diag.RecursionDepthExceeded, diag.KindOf(err))
}

func TestAllocationBudget(t *testing.T) {
	cfg := configFor(caps.Minimal)
	cfg.MaxQubits = 2
	_, err := lower(t, `operation Main() : Unit { use qs = Qubit[3]; }`, cfg)
	require.Error(t, err)
	assert.Equal(t, diag.AllocationSpaceExhausted, diag.KindOf(err))
}

func TestEntryPointErrors(t *testing.T) {
	prog := program(t, `operation Apply(q : Qubit) : Unit { H(q); }`)
	ev := New(nil, DefaultConfig())

	_, err := ev.Run(context.Background(), prog, "Main")
	assert.Equal(t, diag.EvaluationFailure, diag.KindOf(err))
	_, err = ev.Run(context.Background(), prog, "Apply")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "must not take parameters"))
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog := program(t, `operation Main() : Unit { use q = Qubit(); for i in 1..10 { H(q); } }`)
	_, err := New(zap.NewNop(), configFor(caps.Minimal)).Run(ctx, prog, "Main")
	assert.ErrorIs(t, err, diag.ErrCancelled)
}
