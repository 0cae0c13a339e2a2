package compiler

import (
	"context"
	"sort"

	"qlower/internal/analysis"
	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/diag"
)

// Report is the capability summary of one callable variant.
type Report struct {
	Callable string
	Variant  ast.Variant
	Required caps.Set
	// Minimal is the least profile admitting Required. Admitted is false when
	// no profile does.
	Minimal  caps.Profile
	Admitted bool
}

// Capabilities analyzes source without evaluating it and reports every
// authored callable variant, sorted by name then variant.
func (c *Compiler) Capabilities(ctx context.Context, source string) ([]Report, diag.List, error) {
	prog, diags, err := c.front(source)
	if err != nil {
		diags.Sort()
		return nil, diags, err
	}
	res, err := c.analyze(ctx, prog)
	if err != nil {
		diags, err := stageFailure(nil, err)
		return nil, diags, err
	}
	return c.reports(res), warnings(res), nil
}

func (c *Compiler) reports(res *analysis.Result) []Report {
	var out []Report
	for _, n := range res.Graph.Nodes {
		if n.Intrinsic != nil {
			continue
		}
		s := res.Summaries[n.ID]
		p, ok := c.opts.Lattice.MinimalProfile(s.Caps())
		out = append(out, Report{
			Callable: n.Callable.Name,
			Variant:  n.Variant,
			Required: s.Caps(),
			Minimal:  p,
			Admitted: ok,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Callable != out[j].Callable {
			return out[i].Callable < out[j].Callable
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}

func warnings(res *analysis.Result) diag.List {
	var out diag.List
	for _, n := range res.Graph.Nodes {
		out = append(out, res.Warnings(n.ID)...)
	}
	out.Sort()
	return out
}
