// Package analysis computes the capability requirements of every callable
// variant in a program. The call graph is condensed into strongly connected
// components; components are summarized callees first, independent
// components in parallel, and cyclic components by fixed-point iteration.
package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/typesys"
)

// Stats describes one analysis run.
type Stats struct {
	Nodes      int
	Edges      int
	Components int
	Cyclic     int
	Levels     int
	// MaxRounds is the largest number of rounds a cyclic component needed.
	MaxRounds int
}

// Result holds the summaries of one compilation. It is never shared between
// compilations.
type Result struct {
	Graph      *Graph
	Components []*Component
	// Summaries is indexed by NodeID. Each slot is written once, by the
	// worker that owns the node's component.
	Summaries []*Summary
	Stats     Stats

	warnings []diag.List
	rounds   []int
	lattice  caps.Lattice
}

// Summary returns the summary of a callable variant.
func (r *Result) Summary(name string, v ast.Variant) (*Summary, bool) {
	id, ok := r.Graph.Lookup(name, v)
	if !ok {
		return nil, false
	}
	return r.Summaries[id], true
}

// Capabilities is the required set of a callable variant with parameters
// taken as static.
func (r *Result) Capabilities(name string, v ast.Variant) (caps.Set, bool) {
	s, ok := r.Summary(name, v)
	if !ok {
		return caps.Empty, false
	}
	return s.Caps(), true
}

// MinimalProfile is the least profile admitting a callable variant.
func (r *Result) MinimalProfile(name string, v ast.Variant) (caps.Profile, bool) {
	s, ok := r.Capabilities(name, v)
	if !ok {
		return caps.Unrestricted, false
	}
	return r.lattice.MinimalProfile(s)
}

// Warnings returns the diagnostics recorded while analyzing id.
func (r *Result) Warnings(id NodeID) diag.List {
	if id < 0 || int(id) >= len(r.warnings) {
		return nil
	}
	return r.warnings[id]
}

// Analyzer runs capability analysis. It is safe for sequential reuse; every
// Run builds a fresh Result.
type Analyzer struct {
	logger  *zap.Logger
	workers int
	lattice caps.Lattice
}

// New creates an analyzer using at most workers goroutines per level.
func New(logger *zap.Logger, workers int, lattice caps.Lattice) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{logger: logger.Named("analysis"), workers: workers, lattice: lattice}
}

// Run analyzes every node of prog. The context is checked between
// components; a cancelled run returns diag.ErrCancelled.
func (a *Analyzer) Run(ctx context.Context, prog *ast.Program) (*Result, error) {
	start := time.Now()
	g := BuildGraph(prog)
	comps := Condense(g)
	res := &Result{
		Graph:      g,
		Components: comps,
		Summaries:  make([]*Summary, len(g.Nodes)),
		warnings:   make([]diag.List, len(g.Nodes)),
		rounds:     make([]int, len(comps)),
		lattice:    a.lattice,
	}
	levels := byLevel(comps)
	a.logger.Debug("call graph condensed",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("components", len(comps)),
		zap.Int("levels", len(levels)),
	)

	for depth, level := range levels {
		if ctx.Err() != nil {
			return nil, diag.ErrCancelled
		}
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(a.workers)
		for _, c := range level {
			c := c
			eg.Go(func() error {
				if gctx.Err() != nil {
					return diag.ErrCancelled
				}
				res.rounds[c.ID] = a.component(res, c)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			a.logger.Info("capability analysis cancelled", zap.Int("level", depth))
			return nil, err
		}
	}

	res.Stats = Stats{
		Nodes:      len(g.Nodes),
		Edges:      g.NumEdges(),
		Components: len(comps),
		Levels:     len(levels),
	}
	for _, c := range comps {
		if !c.Cyclic {
			componentsAnalyzedTotal.WithLabelValues("acyclic").Inc()
			continue
		}
		res.Stats.Cyclic++
		res.Stats.MaxRounds = max(res.Stats.MaxRounds, res.rounds[c.ID])
		componentsAnalyzedTotal.WithLabelValues("cyclic").Inc()
		fixpointRounds.Observe(float64(res.rounds[c.ID]))
	}
	analysisDuration.Observe(time.Since(start).Seconds())
	a.logger.Debug("capability analysis complete",
		zap.Int("nodes", res.Stats.Nodes),
		zap.Int("edges", res.Stats.Edges),
		zap.Int("cyclic", res.Stats.Cyclic),
		zap.Int("max_rounds", res.Stats.MaxRounds),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// component summarizes the members of c and returns the rounds it took.
func (a *Analyzer) component(res *Result, c *Component) int {
	if !c.Cyclic {
		id := c.Members[0]
		res.Summaries[id], res.warnings[id] = summarize(res, res.Graph.Node(id))
		return 1
	}
	rounds := 0
	for {
		rounds++
		changed := false
		for _, id := range c.Members {
			s, warns := summarize(res, res.Graph.Node(id))
			if !s.sameAs(res.Summaries[id]) {
				changed = true
			}
			res.Summaries[id], res.warnings[id] = s, warns
		}
		if unionInherent(res, c) {
			changed = true
		}
		if !changed {
			break
		}
	}
	a.logger.Debug("cyclic component stabilized",
		zap.Int("component", c.ID),
		zap.Int("members", len(c.Members)),
		zap.Int("rounds", rounds),
	)
	return rounds
}

// unionInherent gives every member of a cyclic component the flags of every
// other member: each reaches all the others. A flag a member lacks is
// attributed to its first call into the component.
func unionInherent(res *Result, c *Component) bool {
	inComp := map[NodeID]bool{}
	var all caps.Set
	for _, id := range c.Members {
		inComp[id] = true
		all = all.Union(res.Summaries[id].Caps())
	}
	grew := false
	for _, id := range c.Members {
		s := res.Summaries[id]
		missing := all.Minus(s.Caps())
		if missing.IsEmpty() {
			continue
		}
		n := res.Graph.Node(id)
		for _, site := range n.Calls {
			if !inComp[site.Callee] {
				continue
			}
			s.Inherent.AddSet(missing, caps.Origin{
				Callable: n.Callable.Name,
				Pos:      site.Pos,
				Reason:   "recursive call to " + res.Graph.Node(site.Callee).Name(),
			})
			grew = true
			break
		}
	}
	return grew
}

// summarize analyzes n once with static parameters and once more per
// parameter to find what a runtime argument adds.
func summarize(res *Result, n *Node) (*Summary, diag.List) {
	if n.Intrinsic != nil {
		return intrinsicSummary(n), nil
	}
	params := n.Params()
	base := walk(res, n, nil)
	s := &Summary{
		Inherent: base.reqs,
		Return:   base.ret,
		Fails:    base.fails,
		Params:   make([]ParamEffect, len(params)),
	}
	probe := func(i int, lvl Level) Effect {
		lv := make([]Level, len(params))
		lv[i] = lvl
		r := walk(res, n, lv)
		return Effect{Caps: r.reqs.Set().Minus(base.reqs.Set()), Return: r.ret}
	}
	for i, p := range params {
		s.Params[i].Dynamic = probe(i, Dynamic)
		s.Params[i].Shape = s.Params[i].Dynamic
		if typesys.IsArray(p.TypeName) {
			s.Params[i].Shape = probe(i, DynamicShape)
		}
	}
	return s, base.warnings
}
