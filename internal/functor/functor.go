// Package functor generates the adjoint, controlled and controlled-adjoint
// bodies of callables that do not author them. Derived bodies are stored on
// the callable's specializations so later passes see every variant as data.
package functor

import (
	"qlower/internal/ast"
	"qlower/internal/diag"
	"qlower/internal/token"
)

// Derive fills in the body of every generated specialization in prog and the
// Undo block of every within/apply statement. A specialization that cannot be
// generated is reported and left without a body; calls into it resolve to
// nothing later on.
func Derive(prog *ast.Program) diag.List {
	d := &deriver{prog: prog}
	for _, c := range prog.Callables {
		d.callable = c
		if c.IsIntrinsic() {
			markIntrinsic(c)
			continue
		}
		d.fillUndo(c.Spec(ast.Body).Body)
		d.derive(c)
	}
	for _, c := range prog.Callables {
		d.callable = c
		for _, v := range ast.Variants {
			if s := c.Spec(v); s != nil && s.Body != nil {
				d.fillUndo(s.Body)
			}
		}
	}
	d.errs.Sort()
	return d.errs
}

type deriver struct {
	prog     *ast.Program
	callable *ast.Callable
	errs     diag.List
}

func (d *deriver) fail(pos token.Pos, format string, args ...interface{}) {
	err := diag.Errorf(diag.DerivationFailure, pos, format, args...)
	e, _ := diag.AsError(err)
	e.Callable = d.callable.Name
	d.errs = append(d.errs, e.Diagnostic())
}

// markIntrinsic turns generated variants of a body-less callable into target
// intrinsics. "adjoint self" is kept so the emitter can reuse the gate.
func markIntrinsic(c *ast.Callable) {
	for _, v := range ast.Variants {
		s := c.Spec(v)
		if s == nil || s.Kind == ast.SpecExplicit || s.Kind == ast.SpecSelf {
			continue
		}
		s.Kind = ast.SpecIntrinsic
	}
}

func (d *deriver) derive(c *ast.Callable) {
	body := c.Spec(ast.Body)
	adj := c.Spec(ast.Adj)
	ctl := c.Spec(ast.Ctl)
	ctlAdj := c.Spec(ast.CtlAdj)
	before := len(d.errs)

	if adj != nil && adj.Body == nil {
		switch adj.Kind {
		case ast.SpecSelf:
			d.assign(adj, body.Body)
		case ast.SpecInvert, ast.SpecAuto:
			d.assign(adj, d.invert(body.Body))
		}
	}
	if ctl != nil && ctl.Body == nil {
		switch ctl.Kind {
		case ast.SpecDistribute, ast.SpecAuto:
			d.assign(ctl, d.distribute(body.Body, controlsName(ctl)))
		}
	}
	if ctlAdj == nil || ctlAdj.Body != nil {
		return
	}
	kind := ctlAdj.Kind
	if kind == ast.SpecAuto {
		switch {
		case adj != nil && adj.Kind == ast.SpecExplicit:
			kind = ast.SpecDistribute
		case adj != nil && adj.Kind == ast.SpecSelf:
			kind = ast.SpecSelf
		default:
			kind = ast.SpecInvert
		}
	}
	switch kind {
	case ast.SpecSelf:
		if ctl != nil && ctl.Body != nil {
			ctlAdj.ControlsName = controlsName(ctl)
			d.assign(ctlAdj, ctl.Body)
		}
	case ast.SpecInvert:
		if ctl != nil && ctl.Body != nil {
			ctlAdj.ControlsName = controlsName(ctl)
			d.assign(ctlAdj, d.invert(ctl.Body))
		}
	case ast.SpecDistribute:
		if adj != nil && adj.Body != nil {
			d.assign(ctlAdj, d.distribute(adj.Body, controlsName(ctlAdj)))
		}
	}
	if ctlAdj.Body == nil && len(d.errs) == before {
		d.fail(ctlAdj.Token.Pos(), "cannot generate the controlled adjoint of %s", c.Name)
	}
}

func (d *deriver) assign(s *ast.Specialization, body *ast.BlockStatement) {
	if body == nil {
		return
	}
	s.Body = body
	s.Derived = true
}

func controlsName(s *ast.Specialization) string {
	if s.ControlsName != "" {
		return s.ControlsName
	}
	return ast.DefaultControlsName
}

// fillUndo records the adjoint of every within block nested in b.
func (d *deriver) fillUndo(b *ast.BlockStatement) {
	if b == nil {
		return
	}
	for _, stmt := range b.Statements {
		switch s := stmt.(type) {
		case *ast.IfStatement:
			d.fillUndo(s.Consequence)
			d.fillUndoStmt(s.Alternative)
		case *ast.ForStatement:
			d.fillUndo(s.Body)
		case *ast.WhileStatement:
			d.fillUndo(s.Body)
		case *ast.RepeatStatement:
			d.fillUndo(s.Body)
			d.fillUndo(s.Fixup)
		case *ast.WithinApplyStatement:
			d.fillUndo(s.Within)
			d.fillUndo(s.Apply)
			if s.Undo == nil {
				s.Undo = d.invert(s.Within)
			}
			d.fillUndo(s.Undo)
		}
	}
}

func (d *deriver) fillUndoStmt(s ast.Statement) {
	switch alt := s.(type) {
	case *ast.BlockStatement:
		d.fillUndo(alt)
	case *ast.IfStatement:
		d.fillUndo(&ast.BlockStatement{Statements: []ast.Statement{alt}})
	}
}

// isOperationCall reports whether call enters an operation. Calls that do not
// resolve to a declared callable are treated as operations.
func (d *deriver) isOperationCall(call *ast.CallExpression) (ast.CalleeRef, *ast.Callable, bool) {
	ref, ok := ast.ResolveCallee(call.Function)
	if !ok {
		return ref, nil, true
	}
	c, found := d.prog.Lookup(ref.Name)
	if !found {
		return ref, nil, true
	}
	return ref, c, c.IsOperation()
}

// operationCallIn finds the first operation call inside e.
func (d *deriver) operationCallIn(e ast.Expression) *ast.CallExpression {
	var found *ast.CallExpression
	ast.Inspect(e, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if call, ok := n.(*ast.CallExpression); ok {
			if _, _, op := d.isOperationCall(call); op {
				found = call
				return false
			}
		}
		return true
	})
	return found
}
