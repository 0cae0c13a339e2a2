package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/functor"
	"qlower/internal/parser"
)

func program(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := parser.ParseString(src)
	require.Empty(t, errs, parser.FormatErrors(errs))
	builtins.Declare(prog)
	require.Empty(t, functor.Derive(prog))
	return prog
}

func analyze(t *testing.T, src string) *Result {
	t.Helper()
	res, err := New(zap.NewNop(), 4, caps.DefaultLattice()).Run(context.Background(), program(t, src))
	require.NoError(t, err)
	return res
}

func capsOf(t *testing.T, res *Result, name string) caps.Set {
	t.Helper()
	s, ok := res.Capabilities(name, ast.Body)
	require.True(t, ok, "no summary for %s", name)
	return s
}

func TestBranchOnMeasurement(t *testing.T) {
	res := analyze(t, `
operation Main() : Unit {
    use q = Qubit();
    H(q);
    let r = M(q);
    if r == One { X(q); }
}
`)
	assert.Equal(t, caps.SetOf(caps.BranchOnMeasurement), capsOf(t, res, "Main"))

	s, _ := res.Summary("Main", ast.Body)
	o, ok := s.Inherent.Origin(caps.BranchOnMeasurement)
	require.True(t, ok)
	assert.Equal(t, "Main", o.Callable)
	assert.Equal(t, 6, o.Pos.Line)

	p, ok := res.MinimalProfile("Main", ast.Body)
	require.True(t, ok)
	assert.Equal(t, caps.Partial, p)
}

func TestStaticProgramNeedsNothing(t *testing.T) {
	res := analyze(t, `
operation Main() : Result[] {
    use qs = Qubit[3];
    for i in 0..2 { H(qs[i]); }
    let n = 2 * 3 + 1;
    if n > 5 { X(qs[0]); }
    [M(qs[0]), M(qs[1]), M(qs[2])]
}
`)
	assert.True(t, capsOf(t, res, "Main").IsEmpty())
	p, _ := res.MinimalProfile("Main", ast.Body)
	assert.Equal(t, caps.Minimal, p)

	s, _ := res.Summary("Main", ast.Body)
	assert.Equal(t, Dynamic, s.Return)
}

func TestStaticallyDeadArmsContributeNothing(t *testing.T) {
	tests := []struct {
		name string
		body string
		want caps.Set
	}{
		{"false literal", "if false { if M(q) == One { X(q); } } H(q);", caps.Empty},
		{"folded comparison", "if 1 + 1 > 3 { if M(q) == One { X(q); } } else { H(q); }", caps.Empty},
		{"negated true", "if not true or 2.0 < 1 { if M(q) == One { X(q); } }", caps.Empty},
		{"taken else", "if 2 == 3 { H(q); } else { if M(q) == One { X(q); } }", caps.SetOf(caps.BranchOnMeasurement)},
		{"static conditional", "let r = false ? M(q) | Zero; if r == One { X(q); }", caps.Empty},
		{"taken arm counts", "if true { if M(q) == One { X(q); } }", caps.SetOf(caps.BranchOnMeasurement)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, "operation Main() : Unit {\n    use q = Qubit();\n    "+tt.body+"\n}\n")
			assert.Equal(t, tt.want, capsOf(t, res, "Main"))
		})
	}
}

func TestDynamicMutableInt(t *testing.T) {
	res := analyze(t, `
operation Count() : Int {
    use q = Qubit();
    mutable n = 0;
    if M(q) == One { set n += 1; }
    return n;
}
`)
	assert.Equal(t, caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt), capsOf(t, res, "Count"))
	s, _ := res.Summary("Count", ast.Body)
	assert.Equal(t, Dynamic, s.Return)
	assert.False(t, s.Fails)
	p, _ := res.MinimalProfile("Count", ast.Body)
	assert.Equal(t, caps.Extended, p)
}

func TestDynamicIndex(t *testing.T) {
	res := analyze(t, `
operation Main() : Unit {
    use qs = Qubit[2];
    let i = M(qs[0]) == One ? 1 | 0;
    H(qs[i]);
}
`)
	assert.Equal(t,
		caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt, caps.DynamicIndex),
		capsOf(t, res, "Main"))
}

func TestRepeatUntilSuccess(t *testing.T) {
	res := analyze(t, `
operation Main() : Unit {
    use q = Qubit();
    mutable done = false;
    while not done {
        H(q);
        set done = M(q) == One;
    }
}
`)
	assert.Equal(t, caps.SetOf(caps.DynamicBool, caps.BackwardBranching), capsOf(t, res, "Main"))
	p, _ := res.MinimalProfile("Main", ast.Body)
	assert.Equal(t, caps.Unrestricted, p)
}

func TestStaticLoopCarriesNoCaps(t *testing.T) {
	res := analyze(t, `
operation Main() : Int {
    mutable total = 0;
    for i in 0..9 { set total += i; }
    mutable k = 0;
    repeat { set k += 1; } until k >= 3;
    total + k
}
`)
	assert.True(t, capsOf(t, res, "Main").IsEmpty())
	s, _ := res.Summary("Main", ast.Body)
	assert.Equal(t, Static, s.Return)
}

func TestParameterEffects(t *testing.T) {
	res := analyze(t, `
function Double(x : Int) : Int { return x * 2; }

operation Fixed() : Int { return Double(3); }

operation Measured() : Int {
    use q = Qubit();
    let b = M(q) == One;
    mutable x = 0;
    if b { set x = 1; }
    return Double(x);
}
`)
	d, ok := res.Summary("Double", ast.Body)
	require.True(t, ok)
	assert.True(t, d.Inherent.Set().IsEmpty())
	assert.Equal(t, Static, d.Return)
	require.Len(t, d.Params, 1)
	assert.Equal(t, caps.SetOf(caps.DynamicInt), d.Params[0].Dynamic.Caps)
	assert.Equal(t, Dynamic, d.Params[0].Dynamic.Return)

	assert.True(t, capsOf(t, res, "Fixed").IsEmpty())
	assert.Equal(t, caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt), capsOf(t, res, "Measured"))
	s, _ := res.Summary("Measured", ast.Body)
	assert.Equal(t, Dynamic, s.Return)
}

func TestControlledArgumentsReachParameters(t *testing.T) {
	res := analyze(t, `
operation Rot(theta : Double, q : Qubit) : Unit is Ctl {
    Rx(theta, q);
}
`)
	s, ok := res.Summary("Rot", ast.Ctl)
	require.True(t, ok)
	require.Len(t, s.Params, 3)
	assert.True(t, s.Params[0].Dynamic.Caps.IsEmpty(), "controls")
	assert.Equal(t, caps.SetOf(caps.DynamicDouble), s.Params[1].Dynamic.Caps)
	assert.True(t, s.Params[2].Dynamic.Caps.IsEmpty(), "target")
	assert.True(t, s.Inherent.Set().IsEmpty())
}

func TestFailInDynamicScope(t *testing.T) {
	res := analyze(t, `
operation Check(q : Qubit) : Unit {
    fail "bad";
}

operation Main() : Unit {
    use q = Qubit();
    if M(q) == One { Check(q); }
}
`)
	c, _ := res.Summary("Check", ast.Body)
	assert.True(t, c.Fails)
	assert.True(t, c.Inherent.Set().IsEmpty())
	assert.Equal(t,
		caps.SetOf(caps.BranchOnMeasurement, caps.ReturnInDynamicScope),
		capsOf(t, res, "Main"))
}

func TestQubitReuseComesFromIntrinsic(t *testing.T) {
	res := analyze(t, `
operation Prepare(q : Qubit) : Unit { Reset(q); H(q); }
operation Main() : Unit { use q = Qubit(); Prepare(q); }
`)
	assert.Equal(t, caps.SetOf(caps.QubitReuse), capsOf(t, res, "Main"))
	s, _ := res.Summary("Main", ast.Body)
	o, ok := s.Inherent.Origin(caps.QubitReuse)
	require.True(t, ok)
	assert.Equal(t, "call to Prepare", o.Reason)
}

func TestUnresolvedCalleeIsMaximal(t *testing.T) {
	res := analyze(t, `
operation Main() : Unit {
    Missing(1);
}
`)
	assert.Equal(t, caps.Maximal, capsOf(t, res, "Main"))
	id, _ := res.Graph.Lookup("Main", ast.Body)
	warns := res.Warnings(id)
	require.Len(t, warns, 1)
	assert.Equal(t, diag.UnresolvedCallee, warns[0].Kind)
	assert.Equal(t, diag.SeverityWarning, warns[0].Severity)
	assert.Equal(t, "Main", warns[0].Callable)
	assert.Equal(t, 3, warns[0].Span.Line)
}

func TestMutualRecursion(t *testing.T) {
	res := analyze(t, `
operation Ping(n : Int, q : Qubit) : Unit {
    if n > 0 { Pong(n - 1, q); }
}

operation Pong(n : Int, q : Qubit) : Unit {
    Reset(q);
    Ping(n, q);
}

operation Main() : Unit {
    use q = Qubit();
    Ping(3, q);
}
`)
	for _, name := range []string{"Ping", "Pong", "Main"} {
		assert.Equal(t, caps.SetOf(caps.QubitReuse), capsOf(t, res, name), name)
	}
	assert.Equal(t, 1, res.Stats.Cyclic)
	assert.GreaterOrEqual(t, res.Stats.MaxRounds, 1)
	assert.LessOrEqual(t, res.Stats.MaxRounds, caps.NumFlags+1)

	s, _ := res.Summary("Ping", ast.Body)
	o, ok := s.Inherent.Origin(caps.QubitReuse)
	require.True(t, ok)
	assert.Equal(t, 3, o.Pos.Line)
}

func TestCondenseOrdersCalleesFirst(t *testing.T) {
	prog := program(t, `
operation A() : Unit { B(); }
operation B() : Unit { C(); }
operation C() : Unit { B(); D(); }
operation D() : Unit { }
`)
	g := BuildGraph(prog)
	comps := Condense(g)

	pos := map[string]int{}
	level := map[string]int{}
	for i, c := range comps {
		for _, id := range c.Members {
			pos[g.Node(id).Name()] = i
			level[g.Node(id).Name()] = c.Level
		}
	}
	assert.Equal(t, pos["B"], pos["C"], "B and C form one component")
	assert.Less(t, pos["D"], pos["B"])
	assert.Less(t, pos["B"], pos["A"])
	assert.Equal(t, 0, level["D"])
	assert.Equal(t, 1, level["B"])
	assert.Equal(t, 2, level["A"])

	cyclic := 0
	for _, c := range comps {
		if c.Cyclic {
			cyclic++
			assert.Len(t, c.Members, 2)
		}
	}
	assert.Equal(t, 1, cyclic)
}

func TestSelfRecursionIsCyclic(t *testing.T) {
	prog := program(t, `operation Loop(n : Int) : Unit { if n > 0 { Loop(n - 1); } }`)
	g := BuildGraph(prog)
	id, ok := g.Lookup("Loop", ast.Body)
	require.True(t, ok)
	for _, c := range Condense(g) {
		if c.Members[0] == id {
			assert.True(t, c.Cyclic)
			assert.Len(t, c.Members, 1)
			return
		}
	}
	t.Fatal("Loop has no component")
}

// features are body fragments with known requirements.
var features = []struct {
	src  string
	need caps.Set
}{
	{"use a%[1]d = Qubit(); if M(a%[1]d) == One { X(a%[1]d); }", caps.SetOf(caps.BranchOnMeasurement)},
	{"use b%[1]d = Qubit(); Reset(b%[1]d);", caps.SetOf(caps.QubitReuse)},
	{"use c%[1]d = Qubit(); mutable n%[1]d = 0; if M(c%[1]d) == One { set n%[1]d = 1; }", caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt)},
	{"use d%[1]d = Qubit(); mutable f%[1]d = false; while not f%[1]d { set f%[1]d = M(d%[1]d) == One; }", caps.SetOf(caps.DynamicBool, caps.BackwardBranching)},
	{"use e%[1]d = Qubit[2]; let i%[1]d = M(e%[1]d[0]) == One ? 1 | 0; H(e%[1]d[i%[1]d]);", caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt, caps.DynamicIndex)},
}

// randomProgram builds n parameterless operations with random bodies and a
// call graph that usually contains cycles. It returns the source and the
// requirements each operation's own statements introduce.
func randomProgram(rng *rand.Rand, n int) (string, []caps.Set) {
	var b strings.Builder
	own := make([]caps.Set, n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "operation Op%d() : Unit {\n", i)
		k := 0
		for f := rng.Intn(3); f > 0; f-- {
			ft := features[rng.Intn(len(features))]
			fmt.Fprintf(&b, "    "+ft.src+"\n", k)
			own[i] = own[i].Union(ft.need)
			k++
		}
		for c := rng.Intn(4); c > 0; c-- {
			fmt.Fprintf(&b, "    Op%d();\n", rng.Intn(n))
		}
		b.WriteString("}\n")
	}
	return b.String(), own
}

func TestRandomGraphsAreMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 25; iter++ {
		src, own := randomProgram(rng, 2+rng.Intn(12))
		res := analyze(t, src)
		g := res.Graph
		for id := range g.Nodes {
			n := g.Node(NodeID(id))
			mine := res.Summaries[id].Caps()
			for _, succ := range g.Successors(NodeID(id)) {
				sub := res.Summaries[succ].Caps()
				assert.True(t, sub.SubsetOf(mine), "%s needs %s but calls %s needing %s\n%s",
					n.Name(), mine, g.Node(succ).Name(), sub, src)
			}
			var idx int
			if _, err := fmt.Sscanf(n.Callable.Name, "Op%d", &idx); err == nil {
				assert.True(t, own[idx].SubsetOf(mine), "%s lost its own requirements\n%s", n.Name(), src)
			}
		}
		assert.LessOrEqual(t, res.Stats.MaxRounds, caps.NumFlags+1, src)
	}
}

func TestResultIsIndependentOfWorkerCount(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 10; iter++ {
		src, _ := randomProgram(rng, 16)
		prog := program(t, src)
		var want []string
		for _, workers := range []int{1, 2, 8} {
			res, err := New(nil, workers, caps.DefaultLattice()).Run(context.Background(), prog)
			require.NoError(t, err)
			got := make([]string, len(res.Summaries))
			for i, s := range res.Summaries {
				got[i] = res.Graph.Node(NodeID(i)).Name() + " " + s.String()
			}
			if want == nil {
				want = got
				continue
			}
			assert.Equal(t, want, got, "workers=%d", workers)
		}
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	prog := program(t, `operation Main() : Unit { }`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(zap.NewNop(), 2, caps.DefaultLattice()).Run(ctx, prog)
	assert.ErrorIs(t, err, diag.ErrCancelled)
}

func TestRunLogsStats(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prog := program(t, `
operation A() : Unit { B(); }
operation B() : Unit { A(); }
`)
	res, err := New(zap.New(core), 1, caps.DefaultLattice()).Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, len(res.Graph.Nodes), res.Stats.Nodes)
	assert.Equal(t, 1, res.Stats.Cyclic)

	done := logs.FilterMessage("capability analysis complete").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(1), done[0].ContextMap()["cyclic"])
	assert.Equal(t, 1, logs.FilterMessage("cyclic component stabilized").Len())
}
