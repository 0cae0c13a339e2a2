package functor

import (
	"qlower/internal/ast"
	"qlower/internal/token"
)

// distribute builds the controlled version of b: every operation call
// statement is controlled on the register named controls. Classical code and
// within blocks run unchanged.
func (d *deriver) distribute(b *ast.BlockStatement, controls string) *ast.BlockStatement {
	if b == nil {
		return nil
	}
	out := &ast.BlockStatement{Token: b.Token}
	ok := true
	for _, stmt := range b.Statements {
		s, good := d.distributeStatement(stmt, controls)
		if !good {
			ok = false
			continue
		}
		out.Statements = append(out.Statements, s)
	}
	if !ok {
		return nil
	}
	return out
}

func (d *deriver) distributeStatement(stmt ast.Statement, controls string) (ast.Statement, bool) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		return d.uncontrolled(stmt, s.Value)
	case *ast.SetStatement:
		return d.uncontrolled(stmt, s.Value)
	case *ast.UpdateStatement:
		if _, ok := d.uncontrolled(stmt, s.Index); !ok {
			return nil, false
		}
		return d.uncontrolled(stmt, s.Value)
	case *ast.UseStatement:
		return d.uncontrolled(stmt, s.Count)
	case *ast.FailStatement:
		return d.uncontrolled(stmt, s.Message)
	case *ast.ReturnStatement:
		return d.uncontrolled(stmt, s.ReturnValue)

	case *ast.ExpressionStatement:
		call, isCall := s.Expression.(*ast.CallExpression)
		if !isCall {
			return d.uncontrolled(stmt, s.Expression)
		}
		ref, callee, op := d.isOperationCall(call)
		if !op {
			return d.uncontrolled(stmt, call)
		}
		for _, a := range call.Arguments {
			if inner := d.operationCallIn(a); inner != nil {
				d.fail(ast.PosOf(inner), "cannot control operation call %s used as an argument", inner.Function)
				return nil, false
			}
		}
		target := ast.ComposeVariant(ref.Adjoint, true)
		if callee != nil && !callee.HasVariant(target) {
			d.fail(ast.PosOf(call), "operation %s does not support the controlled functor", callee.Name)
			return nil, false
		}
		return &ast.ExpressionStatement{Token: s.Token, Expression: controlledCall(call, ref, controls)}, true

	case *ast.IfStatement:
		if _, ok := d.uncontrolled(stmt, s.Condition); !ok {
			return nil, false
		}
		out := d.distributeIf(s, controls)
		if out == nil {
			return nil, false
		}
		return out, true

	case *ast.ForStatement:
		if _, ok := d.uncontrolled(stmt, s.Iterable); !ok {
			return nil, false
		}
		body := d.distribute(s.Body, controls)
		if body == nil {
			return nil, false
		}
		return &ast.ForStatement{Token: s.Token, Pattern: s.Pattern, Iterable: s.Iterable, Body: body, Reverse: s.Reverse}, true

	case *ast.WhileStatement:
		if _, ok := d.uncontrolled(stmt, s.Condition); !ok {
			return nil, false
		}
		body := d.distribute(s.Body, controls)
		if body == nil {
			return nil, false
		}
		return &ast.WhileStatement{Token: s.Token, Condition: s.Condition, Body: body}, true

	case *ast.RepeatStatement:
		if _, ok := d.uncontrolled(stmt, s.Until); !ok {
			return nil, false
		}
		body := d.distribute(s.Body, controls)
		if body == nil {
			return nil, false
		}
		out := &ast.RepeatStatement{Token: s.Token, Body: body, Until: s.Until}
		if s.Fixup != nil {
			if out.Fixup = d.distribute(s.Fixup, controls); out.Fixup == nil {
				return nil, false
			}
		}
		return out, true

	case *ast.WithinApplyStatement:
		apply := d.distribute(s.Apply, controls)
		if apply == nil {
			return nil, false
		}
		return &ast.WithinApplyStatement{Token: s.Token, Within: s.Within, Apply: apply, Undo: s.Undo}, true
	}
	d.fail(ast.PosOf(stmt), "cannot add controls to statement %s", stmt)
	return nil, false
}

// uncontrolled keeps stmt as is provided value does not call an operation,
// which would otherwise run without the controls.
func (d *deriver) uncontrolled(stmt ast.Statement, value ast.Expression) (ast.Statement, bool) {
	if call := d.operationCallIn(value); call != nil {
		d.fail(ast.PosOf(call), "cannot add controls to operation call %s inside an expression", call.Function)
		return nil, false
	}
	return stmt, true
}

func (d *deriver) distributeIf(s *ast.IfStatement, controls string) *ast.IfStatement {
	cons := d.distribute(s.Consequence, controls)
	if cons == nil {
		return nil
	}
	out := &ast.IfStatement{Token: s.Token, Condition: s.Condition, Consequence: cons}
	switch alt := s.Alternative.(type) {
	case *ast.BlockStatement:
		inner := d.distribute(alt, controls)
		if inner == nil {
			return nil
		}
		out.Alternative = inner
	case *ast.IfStatement:
		if _, ok := d.uncontrolled(alt, alt.Condition); !ok {
			return nil
		}
		inner := d.distributeIf(alt, controls)
		if inner == nil {
			return nil
		}
		out.Alternative = inner
	}
	return out
}

// controlledCall rewrites Op(args) as Controlled Op(controls, args). A call
// that is already controlled gets the register prepended to its own.
func controlledCall(call *ast.CallExpression, ref ast.CalleeRef, controls string) *ast.CallExpression {
	tok := call.Token
	reg := &ast.Identifier{Token: token.Token{Type: token.IDENT, Literal: controls, Line: tok.Line, Column: tok.Column}, Value: controls}
	if ref.Controlled > 0 && len(call.Arguments) == 2 {
		joined := &ast.InfixExpression{
			Token:    token.Token{Type: token.PLUS, Literal: "+", Line: tok.Line, Column: tok.Column},
			Left:     reg,
			Operator: "+",
			Right:    call.Arguments[0],
		}
		return &ast.CallExpression{Token: tok, Function: call.Function, Arguments: []ast.Expression{joined, call.Arguments[1]}}
	}
	return &ast.CallExpression{
		Token: tok,
		Function: &ast.FunctorExpression{
			Token:   tokenOf(call.Function),
			Functor: ast.FunctorControlled,
			Operand: call.Function,
		},
		Arguments: []ast.Expression{reg, packArguments(tok, call.Arguments)},
	}
}

// packArguments is the single argument a controlled call passes for the
// original argument list: nothing becomes (), one argument is passed as is.
func packArguments(tok token.Token, args []ast.Expression) ast.Expression {
	switch len(args) {
	case 0:
		return &ast.UnitLiteral{Token: tok}
	case 1:
		return args[0]
	}
	return &ast.TupleLiteral{Token: tok, Elements: args}
}

func tokenOf(e ast.Expression) token.Token {
	switch x := e.(type) {
	case *ast.Identifier:
		return x.Token
	case *ast.FunctorExpression:
		return x.Token
	}
	pos := ast.PosOf(e)
	return token.Token{Type: token.IDENT, Literal: e.TokenLiteral(), Line: pos.Line, Column: pos.Column}
}
