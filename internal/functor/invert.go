package functor

import (
	"qlower/internal/ast"
)

// invert builds the adjoint of b. Classical statements keep their order and
// run first so every binding the quantum part reads is in scope; the quantum
// statements follow in reverse, each replaced by its own adjoint.
func (d *deriver) invert(b *ast.BlockStatement) *ast.BlockStatement {
	if b == nil {
		return nil
	}
	var classical, quantum []ast.Statement
	ok := true
	for i, stmt := range b.Statements {
		last := i == len(b.Statements)-1
		fwd, inv, good := d.invertStatement(stmt, last)
		if !good {
			ok = false
			continue
		}
		if fwd != nil {
			classical = append(classical, fwd)
		}
		if inv != nil {
			quantum = append(quantum, inv)
		}
	}
	if !ok {
		return nil
	}
	out := &ast.BlockStatement{Token: b.Token, Statements: classical}
	for i := len(quantum) - 1; i >= 0; i-- {
		out.Statements = append(out.Statements, quantum[i])
	}
	return out
}

// invertStatement sorts stmt into the forward classical prefix or the reversed
// quantum suffix.
func (d *deriver) invertStatement(stmt ast.Statement, last bool) (fwd ast.Statement, inv ast.Statement, ok bool) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		return d.classical(stmt, s.Value)
	case *ast.SetStatement:
		return d.classical(stmt, s.Value)
	case *ast.UpdateStatement:
		if call := d.operationCallIn(s.Index); call != nil {
			d.fail(ast.PosOf(call), "cannot invert operation call %s in an update", call.Function)
			return nil, nil, false
		}
		return d.classical(stmt, s.Value)
	case *ast.UseStatement:
		return d.classical(stmt, s.Count)
	case *ast.FailStatement:
		return d.classical(stmt, s.Message)

	case *ast.ReturnStatement:
		if last && (s.ReturnValue == nil || isUnit(s.ReturnValue)) {
			return nil, nil, true
		}
		d.fail(ast.PosOf(s), "cannot invert a body that returns early")
		return nil, nil, false

	case *ast.ExpressionStatement:
		call, isCall := s.Expression.(*ast.CallExpression)
		if !isCall {
			return d.classical(stmt, s.Expression)
		}
		ref, callee, op := d.isOperationCall(call)
		if !op {
			return d.classical(stmt, call)
		}
		for _, a := range call.Arguments {
			if inner := d.operationCallIn(a); inner != nil {
				d.fail(ast.PosOf(inner), "cannot invert operation call %s used as an argument", inner.Function)
				return nil, nil, false
			}
		}
		target := ast.ComposeVariant(!ref.Adjoint, ref.Controlled > 0)
		if callee != nil && !callee.HasVariant(target) {
			d.fail(ast.PosOf(call), "operation %s does not support the adjoint functor", callee.Name)
			return nil, nil, false
		}
		return nil, &ast.ExpressionStatement{
			Token: s.Token,
			Expression: &ast.CallExpression{
				Token:     call.Token,
				Function:  adjointOf(call.Function),
				Arguments: call.Arguments,
			},
		}, true

	case *ast.IfStatement:
		if call := d.operationCallIn(s.Condition); call != nil {
			d.fail(ast.PosOf(call), "cannot invert a condition that calls operation %s", call.Function)
			return nil, nil, false
		}
		inv := d.invertIf(s)
		if inv == nil {
			return nil, nil, false
		}
		return nil, inv, true

	case *ast.ForStatement:
		if call := d.operationCallIn(s.Iterable); call != nil {
			d.fail(ast.PosOf(call), "cannot invert a loop over the result of operation %s", call.Function)
			return nil, nil, false
		}
		body := d.invert(s.Body)
		if body == nil {
			return nil, nil, false
		}
		return nil, &ast.ForStatement{
			Token:    s.Token,
			Pattern:  s.Pattern,
			Iterable: s.Iterable,
			Body:     body,
			Reverse:  !s.Reverse,
		}, true

	case *ast.WithinApplyStatement:
		apply := d.invert(s.Apply)
		if apply == nil {
			return nil, nil, false
		}
		return nil, &ast.WithinApplyStatement{
			Token:  s.Token,
			Within: s.Within,
			Apply:  apply,
			Undo:   s.Undo,
		}, true

	case *ast.WhileStatement:
		d.fail(ast.PosOf(s), "cannot invert a while loop")
		return nil, nil, false
	case *ast.RepeatStatement:
		d.fail(ast.PosOf(s), "cannot invert a repeat-until loop")
		return nil, nil, false
	}
	d.fail(ast.PosOf(stmt), "cannot invert statement %s", stmt)
	return nil, nil, false
}

// classical keeps stmt in the forward prefix provided value does not call an
// operation.
func (d *deriver) classical(stmt ast.Statement, value ast.Expression) (ast.Statement, ast.Statement, bool) {
	if call := d.operationCallIn(value); call != nil {
		d.fail(ast.PosOf(call), "cannot invert operation call %s inside an expression", call.Function)
		return nil, nil, false
	}
	return stmt, nil, true
}

func (d *deriver) invertIf(s *ast.IfStatement) *ast.IfStatement {
	cons := d.invert(s.Consequence)
	if cons == nil {
		return nil
	}
	out := &ast.IfStatement{Token: s.Token, Condition: s.Condition, Consequence: cons}
	switch alt := s.Alternative.(type) {
	case *ast.BlockStatement:
		inv := d.invert(alt)
		if inv == nil {
			return nil
		}
		out.Alternative = inv
	case *ast.IfStatement:
		if call := d.operationCallIn(alt.Condition); call != nil {
			d.fail(ast.PosOf(call), "cannot invert a condition that calls operation %s", call.Function)
			return nil
		}
		inv := d.invertIf(alt)
		if inv == nil {
			return nil
		}
		out.Alternative = inv
	}
	return out
}

// adjointOf toggles the Adjoint functor on a callee expression.
func adjointOf(fn ast.Expression) ast.Expression {
	if fe, ok := fn.(*ast.FunctorExpression); ok && fe.Functor == ast.FunctorAdjoint {
		return fe.Operand
	}
	return &ast.FunctorExpression{
		Token:   tokenOf(fn),
		Functor: ast.FunctorAdjoint,
		Operand: fn,
	}
}

func isUnit(e ast.Expression) bool {
	_, ok := e.(*ast.UnitLiteral)
	return ok
}
