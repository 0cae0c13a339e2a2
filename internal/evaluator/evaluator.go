// Package evaluator lowers an entry callable by partial evaluation. Classical
// control flow over values known at compile time runs during compilation;
// whatever depends on a measurement is emitted for the target to run.
package evaluator

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/codegen"
	"qlower/internal/diag"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/token"
)

// Config bounds one evaluation. Zero budgets are unlimited.
type Config struct {
	Profile   caps.Profile
	Permitted caps.Set

	MaxLoopIterations int
	MaxCallDepth      int
	MaxQubits         int
	MaxResults        int
	FunctionCacheSize int
}

func DefaultConfig() Config {
	return Config{
		Profile:           caps.Unrestricted,
		Permitted:         caps.Maximal,
		MaxLoopIterations: 1000,
		MaxCallDepth:      256,
		MaxQubits:         1 << 16,
		MaxResults:        1 << 16,
		FunctionCacheSize: 512,
	}
}

// Evaluator runs partial evaluations. Every Run starts from an empty module,
// an empty function cache and fresh id spaces.
type Evaluator struct {
	logger *zap.Logger
	cfg    Config
}

func New(logger *zap.Logger, cfg Config) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger.Named("evaluator"), cfg: cfg}
}

// Run lowers the body of entry. Failures are fail-fast: the first one aborts
// the run and no partial module is returned.
func (e *Evaluator) Run(ctx context.Context, prog *ast.Program, entry string) (*qir.Module, error) {
	start := time.Now()
	c, ok := prog.Lookup(entry)
	if !ok {
		return nil, diag.Errorf(diag.EvaluationFailure, token.Pos{}, "entry point %q is not defined", entry)
	}
	if len(c.Params) > 0 {
		return nil, diag.Errorf(diag.EvaluationFailure, c.Token.Pos(), "entry point %s must not take parameters", entry)
	}
	spec := c.Spec(ast.Body)
	if spec == nil || spec.Body == nil {
		return nil, diag.Errorf(diag.EvaluationFailure, c.Token.Pos(), "entry point %s has no body", entry)
	}
	cache, err := lru.New[string, object.Value](max(e.cfg.FunctionCacheSize, 1))
	if err != nil {
		return nil, errors.Wrap(err, "creating function cache")
	}

	s := &state{
		ctx:    ctx,
		cfg:    e.cfg,
		logger: e.logger,
		prog:   prog,
		cache:  cache,
		em: codegen.New(codegen.Config{
			Name:       entry,
			Profile:    e.cfg.Profile,
			Permitted:  e.cfg.Permitted,
			MaxQubits:  e.cfg.MaxQubits,
			MaxResults: e.cfg.MaxResults,
		}),
	}
	m, err := s.run(c, spec)
	if err != nil {
		s.em.Discard()
		evaluationFailuresTotal.WithLabelValues(diag.KindOf(err).String()).Inc()
		e.logger.Debug("evaluation failed", zap.String("entry", entry), zap.Error(err))
		return nil, err
	}
	instructionsEmitted.Observe(float64(s.em.Emitted()))
	e.logger.Debug("evaluation complete",
		zap.String("entry", entry),
		zap.Stringer("profile", e.cfg.Profile),
		zap.Int("blocks", len(m.Blocks)),
		zap.Int("qubits", m.NumQubits),
		zap.Int("results", m.NumResults),
		zap.Int("unrolled", s.unrolled),
		zap.Duration("took", time.Since(start)),
	)
	return m, nil
}

// state is one evaluation in progress.
type state struct {
	ctx    context.Context
	cfg    Config
	logger *zap.Logger
	prog   *ast.Program
	em     *codegen.Emitter
	cache  *lru.Cache[string, object.Value]

	depth int
	// dyn counts the runtime branches and loops enclosing the current point
	// across all inlined frames.
	dyn int
	// owned holds the qubits allocated by each open block, innermost last.
	owned    [][]object.Value
	unrolled int
}

// completion tells a statement's caller whether control reaches the next
// statement. An exited path either stored a static return value in its frame
// or terminated the current block.
type completion int

const (
	normal completion = iota
	exited
)

// frame is one inlined call.
type frame struct {
	callable *ast.Callable
	variant  ast.Variant
	// dyn counts the runtime branches and loops open in this frame. A return
	// under one of them branches to the exit block.
	dyn     int
	exit    *qir.Block
	returns []edge
	result  object.Value
	// ownedBase is the first level of state.owned opened by this frame.
	ownedBase int
	// undos are the adjoints of the within blocks open in this frame,
	// innermost last.
	undos []undo
}

// undo is the adjoint of an open within block. level is the number of open
// scopes when the within block started.
type undo struct {
	block *ast.BlockStatement
	env   *object.Environment
	level int
}

// edge is a value arriving at a join from a predecessor block.
type edge struct {
	from  *qir.Block
	value object.Value
}

func (s *state) run(c *ast.Callable, spec *ast.Specialization) (*qir.Module, error) {
	f := &frame{callable: c, variant: ast.Body, ownedBase: len(s.owned)}
	s.depth = 1
	comp, err := s.block(f, spec.Body, object.NewEnvironment())
	if err != nil {
		return nil, err
	}
	result, err := s.leave(f, comp)
	if err != nil {
		return nil, err
	}
	if !s.em.Current().Terminated() {
		if err := s.output(result, "ret"); err != nil {
			return nil, annotateError(err, c, f)
		}
		if err := s.em.Ret(); err != nil {
			return nil, err
		}
	}
	return s.em.Finish()
}

// leave closes a frame and produces its result. Frames that returned from a
// runtime branch merge their return values in the exit block.
func (s *state) leave(f *frame, comp completion) (object.Value, error) {
	if f.exit == nil {
		if f.result != nil {
			return f.result, nil
		}
		return object.UnitValue, nil
	}
	if cur := s.em.Current(); !cur.Terminated() {
		v := f.result
		if v == nil {
			v = object.UnitValue
		}
		f.returns = append(f.returns, edge{from: cur, value: v})
		if err := s.em.Br(f.exit); err != nil {
			return nil, err
		}
	}
	s.em.SetInsertPoint(f.exit)
	if len(f.returns) == 0 {
		return object.UnitValue, nil
	}
	return s.join(f.returns, f.callable)
}

// newBlock creates a block. Cancellation is checked here so that long
// lowerings stop promptly.
func (s *state) newBlock(label string) (*qir.Block, error) {
	if err := s.checkCancel(); err != nil {
		return nil, err
	}
	return s.em.NewBlock(label), nil
}

func (s *state) checkCancel() error {
	if s.ctx != nil && s.ctx.Err() != nil {
		return diag.ErrCancelled
	}
	return nil
}

// require records that emitted code exercises f. A flag the profile does not
// permit means analysis and evaluation disagree.
func (s *state) require(f caps.Flag, node ast.Node) error {
	if !s.cfg.Permitted.Has(f) {
		return diag.Errorf(diag.UnsupportedDynamicOperation, ast.PosOf(node),
			"lowering needs %s, which profile %s does not permit", f, s.cfg.Profile)
	}
	s.em.Use(f)
	return nil
}

func (s *state) requireSet(set caps.Set, node ast.Node) error {
	for _, f := range set.Flags() {
		if err := s.require(f, node); err != nil {
			return err
		}
	}
	return nil
}

func unsupported(node ast.Node, format string, args ...interface{}) error {
	return diag.Errorf(diag.UnsupportedDynamicOperation, ast.PosOf(node), format, args...)
}

func failure(node ast.Node, format string, args ...interface{}) error {
	return diag.Errorf(diag.EvaluationFailure, ast.PosOf(node), format, args...)
}
