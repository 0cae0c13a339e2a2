// Package compiler runs the lowering pipeline: parse, declare intrinsics,
// derive functor variants, analyze capabilities, validate against the target
// profile and finally partially evaluate the entry point.
package compiler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qlower/internal/analysis"
	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/caps"
	"qlower/internal/config"
	"qlower/internal/diag"
	"qlower/internal/evaluator"
	"qlower/internal/functor"
	"qlower/internal/parser"
	"qlower/internal/qir"
	"qlower/internal/validate"
)

// ErrRejected is returned when a stage reported error diagnostics.
var ErrRejected = errors.New("compilation rejected")

type Options struct {
	Profile   caps.Profile
	Entry     string
	Lattice   caps.Lattice
	Workers   int
	Evaluator evaluator.Config
}

// DefaultOptions compiles Main for the minimal profile.
func DefaultOptions() Options {
	return FromConfig(config.Config{}.WithDefaults(), caps.Minimal, caps.DefaultLattice())
}

// FromConfig builds options from a loaded configuration. The profile and
// lattice are resolved by the caller.
func FromConfig(c config.Config, profile caps.Profile, lattice caps.Lattice) Options {
	return Options{
		Profile: profile,
		Entry:   c.Entry,
		Lattice: lattice,
		Workers: c.Analysis.Workers,
		Evaluator: evaluator.Config{
			MaxLoopIterations: c.Evaluator.MaxLoopIterations,
			MaxCallDepth:      c.Evaluator.MaxCallDepth,
			MaxQubits:         c.Evaluator.MaxQubits,
			MaxResults:        c.Evaluator.MaxResults,
			FunctionCacheSize: c.Evaluator.FunctionCacheSize,
		},
	}
}

// LoadOptions resolves a configuration into options.
func LoadOptions(c *config.Config) (Options, error) {
	profile, err := c.TargetProfile()
	if err != nil {
		return Options{}, err
	}
	lattice, err := c.Lattice()
	if err != nil {
		return Options{}, err
	}
	return FromConfig(*c, profile, lattice), nil
}

// Compiler is safe for sequential reuse. Every compilation builds its own
// analysis result, function cache and module.
type Compiler struct {
	logger *zap.Logger
	opts   Options
}

func New(logger *zap.Logger, opts Options) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Entry == "" {
		opts.Entry = "Main"
	}
	opts.Evaluator.Profile = opts.Profile
	opts.Evaluator.Permitted = opts.Lattice.Permitted(opts.Profile)
	return &Compiler{logger: logger.Named("compiler"), opts: opts}
}

func (c *Compiler) Options() Options { return c.opts }

// Compile lowers source for the configured profile. A module is returned only
// on full success; diagnostics may carry warnings either way.
func (c *Compiler) Compile(ctx context.Context, source string) (*qir.Module, diag.List, error) {
	start := time.Now()
	prog, diags, err := c.front(source)
	if err != nil {
		return c.reject("parse", diags, err)
	}
	m, more, err := c.CompileProgram(ctx, prog)
	diags = append(diags, more...)
	if err == nil {
		compileDuration.Observe(time.Since(start).Seconds())
	}
	return m, diags, err
}

// CompileProgram runs the pipeline on a program that is already parsed and
// has its intrinsics declared and functors derived.
func (c *Compiler) CompileProgram(ctx context.Context, prog *ast.Program) (*qir.Module, diag.List, error) {
	res, err := c.analyze(ctx, prog)
	if err != nil {
		diags, err := stageFailure(nil, err)
		return c.reject("analysis", diags, err)
	}

	stageStart := time.Now()
	diags := validate.New(c.logger, c.opts.Lattice).Validate(res, c.opts.Entry, c.opts.Profile)
	stageDuration.WithLabelValues("validate").Observe(time.Since(stageStart).Seconds())
	if diags.HasErrors() {
		n := len(diags.Filter(diag.CapabilityViolation))
		return c.reject("validate", diags, errors.Wrapf(ErrRejected,
			"%d capability violations for profile %s", n, c.opts.Profile))
	}

	stageStart = time.Now()
	m, err := evaluator.New(c.logger, c.opts.Evaluator).Run(ctx, prog, c.opts.Entry)
	stageDuration.WithLabelValues("evaluate").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		diags, err := stageFailure(diags, err)
		return c.reject("evaluate", diags, err)
	}
	compilationsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("compiled",
		zap.String("entry", c.opts.Entry),
		zap.Stringer("profile", c.opts.Profile),
		zap.Stringer("required", m.Required),
		zap.Int("blocks", len(m.Blocks)),
		zap.Int("qubits", m.NumQubits),
		zap.Int("results", m.NumResults),
	)
	return m, diags, nil
}

// front parses source, declares the intrinsics it may call and derives
// functor variants.
func (c *Compiler) front(source string) (*ast.Program, diag.List, error) {
	start := time.Now()
	defer func() { stageDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds()) }()

	prog, errs := parser.ParseString(source)
	if len(errs) > 0 {
		diags := make(diag.List, 0, len(errs))
		for _, e := range errs {
			diags = append(diags, diag.Diagnostic{
				Kind:     diag.ParseError,
				Severity: diag.SeverityError,
				Message:  e.Message,
				Span:     e.Pos,
				Context:  e.Context,
			})
		}
		return nil, diags, errors.Wrapf(ErrRejected, "%d parse errors", len(errs))
	}
	builtins.Declare(prog)
	if diags := functor.Derive(prog); diags.HasErrors() {
		return nil, diags, errors.Wrapf(ErrRejected, "%d functor derivation errors", len(diags))
	}
	return prog, nil, nil
}

func (c *Compiler) analyze(ctx context.Context, prog *ast.Program) (*analysis.Result, error) {
	start := time.Now()
	defer func() { stageDuration.WithLabelValues("analysis").Observe(time.Since(start).Seconds()) }()
	return analysis.New(c.logger, c.opts.Workers, c.opts.Lattice).Run(ctx, prog)
}

// stageFailure adds the diagnostic for a failed stage to diags. A cancelled
// run adds nothing and reports diag.ErrCancelled.
func stageFailure(diags diag.List, err error) (diag.List, error) {
	if cancelled(err) {
		return diags, diag.ErrCancelled
	}
	return append(diags, diag.FromError(err)), err
}

func cancelled(err error) bool {
	return diag.KindOf(err) == diag.Cancelled ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Compiler) reject(stage string, diags diag.List, err error) (*qir.Module, diag.List, error) {
	outcome := "rejected"
	if cancelled(err) {
		outcome = "cancelled"
	}
	compilationsTotal.WithLabelValues(outcome).Inc()
	c.logger.Info("compilation rejected",
		zap.String("stage", stage),
		zap.Stringer("profile", c.opts.Profile),
		zap.Int("diagnostics", len(diags)),
		zap.Error(err),
	)
	diags.Sort()
	return nil, diags, err
}
