// Package validate checks analyzed capability requirements against a target
// profile before anything is emitted.
package validate

import (
	"fmt"

	"go.uber.org/zap"

	"qlower/internal/analysis"
	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/diag"
)

// Validator compares every callable variant reachable from an entry point
// with the permitted set of a profile.
type Validator struct {
	logger  *zap.Logger
	lattice caps.Lattice
}

func New(logger *zap.Logger, lattice caps.Lattice) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.Named("validate"), lattice: lattice}
}

// Validate reports one CapabilityViolation per reachable variant and flag the
// profile does not permit, located where the flag was first introduced, plus
// the analyzer's warnings for reachable variants. All violations are
// collected; the list is sorted and the same for repeated calls.
func (v *Validator) Validate(res *analysis.Result, entry string, profile caps.Profile) diag.List {
	root, ok := res.Graph.Lookup(entry, ast.Body)
	if !ok {
		return diag.List{{
			Kind:     diag.EvaluationFailure,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("entry point %q is not defined", entry),
			Callable: entry,
		}}
	}
	permitted := v.lattice.Permitted(profile)

	var out diag.List
	for _, id := range res.Graph.Reachable(root) {
		n := res.Graph.Node(id)
		out = append(out, res.Warnings(id)...)
		if n.Intrinsic != nil {
			// the caller's call site carries the same flags
			continue
		}
		s := res.Summaries[id]
		for _, f := range s.Caps().Minus(permitted).Flags() {
			out = append(out, violation(n, s, f, profile))
		}
	}
	out.Sort()

	v.logger.Debug("validated capability requirements",
		zap.String("entry", entry),
		zap.Stringer("profile", profile),
		zap.Int("violations", len(out.Filter(diag.CapabilityViolation))),
	)
	return out
}

func violation(n *analysis.Node, s *analysis.Summary, f caps.Flag, profile caps.Profile) diag.Diagnostic {
	d := diag.Diagnostic{
		Kind:       diag.CapabilityViolation,
		Severity:   diag.SeverityError,
		Callable:   n.Callable.Name,
		Variant:    n.Variant.String(),
		Capability: f.String(),
		Profile:    profile.String(),
	}
	d.Message = fmt.Sprintf("%s requires %s, which profile %s does not permit", n.Name(), f, profile)
	if o, ok := s.Inherent.Origin(f); ok {
		d.Span = o.Pos
		if o.Reason != "" {
			d.Message += " (" + o.Reason + ")"
		}
	}
	return d
}
