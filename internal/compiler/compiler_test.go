package compiler

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/config"
	"qlower/internal/diag"
	"qlower/internal/qir"
	"qlower/internal/token"
)

const correction = `
operation Main() : Result {
    use q = Qubit();
    H(q);
    let r = M(q);
    if r == One { X(q); }
    return r;
}
`

func options(p caps.Profile) Options {
	opts := DefaultOptions()
	opts.Profile = p
	return opts
}

func TestCompileForEachProfile(t *testing.T) {
	for _, p := range caps.Profiles {
		t.Run(p.String(), func(t *testing.T) {
			m, diags, err := New(nil, options(p)).Compile(context.Background(), correction)
			if p == caps.Minimal {
				require.ErrorIs(t, err, ErrRejected)
				assert.Nil(t, m)
				require.Len(t, diags, 1)
				assert.Equal(t, diag.CapabilityViolation, diags[0].Kind)
				assert.Equal(t, "BranchOnMeasurement", diags[0].Capability)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, diags)
			assert.Equal(t, 1, m.BranchCount())
			assert.Equal(t, p.String(), m.Profile)
			assert.True(t, m.Required.SubsetOf(m.Permitted))
			require.NoError(t, m.Validate())
		})
	}
}

func TestParseErrorsBecomeDiagnostics(t *testing.T) {
	m, diags, err := New(nil, DefaultOptions()).Compile(context.Background(), "operation Main() : Unit {\n  let = 3;\n}")
	require.ErrorIs(t, err, ErrRejected)
	assert.Nil(t, m)
	require.NotEmpty(t, diags)
	assert.Equal(t, diag.ParseError, diags[0].Kind)
	assert.Equal(t, 2, diags[0].Span.Line)
}

func TestEvaluationFailureIsReported(t *testing.T) {
	m, diags, err := New(nil, DefaultOptions()).Compile(context.Background(), `
operation Main() : Unit {
    fail "not today";
}
`)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, diag.EvaluationFailure, diag.KindOf(err))
	require.Len(t, diags.Filter(diag.EvaluationFailure), 1)
	assert.Contains(t, diags[0].Message, "not today")
}

func TestUnresolvedCalleeWarns(t *testing.T) {
	_, diags, err := New(nil, options(caps.Unrestricted)).Compile(context.Background(), `
operation Main() : Unit {
    Unknown();
}
`)
	require.Error(t, err)
	assert.Len(t, diags.Filter(diag.UnresolvedCallee), 1)
	assert.Equal(t, diag.SeverityWarning, diags.Filter(diag.UnresolvedCallee)[0].Severity)
}

func TestBudgetsFromConfig(t *testing.T) {
	c, err := config.Parse([]byte(`
profile: minimal
evaluator:
  maxLoopIterations: 4
`))
	require.NoError(t, err)
	opts, err := LoadOptions(c)
	require.NoError(t, err)
	assert.Equal(t, caps.Minimal, opts.Profile)

	src := "operation Main() : Unit { use q = Qubit(); for i in 1..5 { H(q); } }"
	_, diags, err := New(nil, opts).Compile(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, diag.BoundedLoopOverflow, diag.KindOf(err))
	assert.Len(t, diags, 1)

	opts.Evaluator.MaxLoopIterations = 5
	m, _, err := New(nil, opts).Compile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 5, m.CountKind(qir.QIS))
}

func TestLatticeOverrideAdmitsMore(t *testing.T) {
	c, err := config.Parse([]byte(`
profile: minimal
profiles:
  minimal: [BranchOnMeasurement]
  partial: [BranchOnMeasurement, DynamicBool, QubitReuse]
`))
	require.NoError(t, err)
	opts, err := LoadOptions(c)
	require.NoError(t, err)
	m, _, err := New(nil, opts).Compile(context.Background(), correction)
	require.NoError(t, err)
	assert.True(t, m.Required.Has(caps.BranchOnMeasurement))
}

func TestCapabilitiesQuery(t *testing.T) {
	reports, diags, err := New(nil, DefaultOptions()).Capabilities(context.Background(), `
operation Helper(q : Qubit) : Int {
    mutable n = 0;
    if M(q) == One { set n = 1; }
    return n;
}

operation Main() : Unit {
    use q = Qubit();
    H(q);
}
`)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, reports, 2)

	assert.Equal(t, "Helper", reports[0].Callable)
	assert.Equal(t, ast.Body, reports[0].Variant)
	assert.Equal(t, caps.SetOf(caps.BranchOnMeasurement, caps.DynamicInt), reports[0].Required)
	assert.Equal(t, caps.Extended, reports[0].Minimal)
	assert.True(t, reports[0].Admitted)

	assert.Equal(t, "Main", reports[1].Callable)
	assert.True(t, reports[1].Required.IsEmpty())
	assert.Equal(t, caps.Minimal, reports[1].Minimal)
}

func TestCancelledCompilation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, diags, err := New(nil, DefaultOptions()).Compile(ctx, correction)
	assert.ErrorIs(t, err, diag.ErrCancelled)
	assert.Empty(t, diags.Filter(diag.Cancelled))
	assert.Empty(t, diags)

	_, diags, err = New(nil, DefaultOptions()).Capabilities(ctx, correction)
	assert.ErrorIs(t, err, diag.ErrCancelled)
	assert.Empty(t, diags)
}

func TestCancellationKeepsWarnings(t *testing.T) {
	diags, err := stageFailure(diag.List{{Kind: diag.UnresolvedCallee, Severity: diag.SeverityWarning}},
		errors.Wrap(context.Canceled, "evaluate"))
	assert.ErrorIs(t, err, diag.ErrCancelled)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.UnresolvedCallee, diags[0].Kind)

	diags, err = stageFailure(nil, diag.Errorf(diag.EvaluationFailure, token.Pos{}, "boom"))
	require.Error(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.EvaluationFailure, diags[0].Kind)
}

func TestStaticallyDeadBranchPassesMinimal(t *testing.T) {
	m, diags, err := New(nil, options(caps.Minimal)).Compile(context.Background(), `
operation Main() : Unit {
    use q = Qubit();
    if false { if M(q) == One { X(q); } }
    H(q);
}
`)
	require.NoError(t, err, "%v", diags)
	assert.Zero(t, m.BranchCount())
	assert.True(t, m.Required.IsEmpty())
}

func TestLogsOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := New(zap.New(core), options(caps.Partial))

	_, _, err := c.Compile(context.Background(), correction)
	require.NoError(t, err)
	compiled := logs.FilterMessage("compiled").All()
	require.Len(t, compiled, 1)
	fields := compiled[0].ContextMap()
	assert.Equal(t, "partial", fields["profile"])
	assert.Equal(t, "Main", fields["entry"])
	assert.Equal(t, "compiler", compiled[0].LoggerName)

	_, _, err = c.Compile(context.Background(), "operation Main() : Unit { fail \"x\"; }")
	require.Error(t, err)
	rejected := logs.FilterMessage("compilation rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "evaluate", rejected[0].ContextMap()["stage"])
}

func TestMissingEntry(t *testing.T) {
	opts := DefaultOptions()
	opts.Entry = "Start"
	_, diags, err := New(nil, opts).Compile(context.Background(), "operation Main() : Unit { }")
	require.Error(t, err)
	assert.NotEmpty(t, diags)
}
