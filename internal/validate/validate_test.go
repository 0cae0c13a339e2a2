package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qlower/internal/analysis"
	"qlower/internal/builtins"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/functor"
	"qlower/internal/parser"
)

func analyze(t *testing.T, src string) *analysis.Result {
	t.Helper()
	prog, errs := parser.ParseString(src)
	require.Empty(t, errs, parser.FormatErrors(errs))
	builtins.Declare(prog)
	require.Empty(t, functor.Derive(prog))
	res, err := analysis.New(zap.NewNop(), 2, caps.DefaultLattice()).Run(context.Background(), prog)
	require.NoError(t, err)
	return res
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

func TestCorrectionUnderMinimal(t *testing.T) {
	res := analyze(t, correction)
	v := New(zap.NewNop(), caps.DefaultLattice())

	got := v.Validate(res, "Main", caps.Minimal)
	require.Len(t, got, 1, got.String())
	d := got[0]
	assert.Equal(t, diag.CapabilityViolation, d.Kind)
	assert.Equal(t, diag.SeverityError, d.Severity)
	assert.Equal(t, "Main", d.Callable)
	assert.Equal(t, "body", d.Variant)
	assert.Equal(t, "BranchOnMeasurement", d.Capability)
	assert.Equal(t, "minimal", d.Profile)
	assert.Equal(t, 6, d.Span.Line)
	assert.Contains(t, d.Message, "branch on a runtime condition")

	for _, p := range []caps.Profile{caps.Partial, caps.Extended, caps.Unrestricted} {
		assert.Empty(t, v.Validate(res, "Main", p), p.String())
	}
}

func TestViolationsAreBatchedAndSorted(t *testing.T) {
	res := analyze(t, `
operation Helper(q : Qubit) : Int {
    mutable n = 0;
    if M(q) == One { set n = 1; }
    return n;
}

operation Unused() : Unit {
    use q = Qubit();
    Reset(q);
}

operation Main() : Unit {
    use q = Qubit();
    Reset(q);
    let n = Helper(q);
}
`)
	got := New(nil, caps.DefaultLattice()).Validate(res, "Main", caps.Minimal)
	require.Len(t, got, 5, got.String())

	type key struct {
		callable, capability string
		line                 int
	}
	var keys []key
	for _, d := range got {
		assert.Equal(t, diag.CapabilityViolation, d.Kind)
		keys = append(keys, key{d.Callable, d.Capability, d.Span.Line})
	}
	assert.Equal(t, []key{
		{"Helper", "BranchOnMeasurement", 4},
		{"Helper", "DynamicInt", 4},
		{"Main", "QubitReuse", 15},
		{"Main", "BranchOnMeasurement", 16},
		{"Main", "DynamicInt", 16},
	}, keys)
}

func TestPartialRejectsOnlyWhatItLacks(t *testing.T) {
	res := analyze(t, `
operation Main() : Int {
    use q = Qubit();
    mutable n = 0;
    if M(q) == One { set n = 1; }
    return n;
}
`)
	v := New(nil, caps.DefaultLattice())
	got := v.Validate(res, "Main", caps.Partial)
	require.Len(t, got, 1)
	assert.Equal(t, "DynamicInt", got[0].Capability)
	assert.Equal(t, "partial", got[0].Profile)
	assert.Empty(t, v.Validate(res, "Main", caps.Extended))
}

func TestUnresolvedCalleeIsReported(t *testing.T) {
	res := analyze(t, `
operation Main() : Unit {
    Unknown();
}
`)
	got := New(nil, caps.DefaultLattice()).Validate(res, "Main", caps.Unrestricted)
	require.Len(t, got, 1)
	assert.Equal(t, diag.UnresolvedCallee, got[0].Kind)
	assert.Equal(t, diag.SeverityWarning, got[0].Severity)
	assert.False(t, got.HasErrors())

	minimal := New(nil, caps.DefaultLattice()).Validate(res, "Main", caps.Minimal)
	assert.Len(t, minimal.Filter(diag.CapabilityViolation), caps.NumFlags)
	assert.Len(t, minimal.Filter(diag.UnresolvedCallee), 1)
}

func TestValidationIsIdempotent(t *testing.T) {
	res := analyze(t, `
operation Loop() : Unit {
    use q = Qubit();
    mutable done = false;
    while not done { set done = M(q) == One; }
}

operation Main() : Unit {
    Loop();
    use q = Qubit();
    if M(q) == Zero { Loop(); }
}
`)
	v := New(nil, caps.DefaultLattice())
	for _, p := range caps.Profiles {
		first := v.Validate(res, "Main", p)
		second := v.Validate(res, "Main", p)
		assert.Equal(t, first, second, p.String())
	}
}

func TestUnknownEntry(t *testing.T) {
	res := analyze(t, `operation Main() : Unit { }`)
	got := New(nil, caps.DefaultLattice()).Validate(res, "Start", caps.Minimal)
	require.Len(t, got, 1)
	assert.Equal(t, diag.EvaluationFailure, got[0].Kind)
	assert.True(t, got.HasErrors())
}
