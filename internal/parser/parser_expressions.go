package parser

import (
	"fmt"
	"strconv"

	"qlower/internal/ast"
	"qlower/internal/token"
)

func (p *Parser) parseExpression(precedence int) ast.Expression {
	// First, find a prefix parser for current token
	// This handles: literals, identifiers, prefix operators (not, -), grouped expressions
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken.Type)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	// While next token is an infix operator with higher precedence than ours,
	// consume it and build the expression tree
	for !p.peekTokenIs(token.SEMICOLON) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}

		p.nextToken()            // Advance to the operator
		leftExp = infix(leftExp) // Parse with left side already known
		if leftExp == nil {
			return nil
		}
	}

	return leftExp
}

func (p *Parser) noPrefixParseFnError(t token.TokenType) {
	msg := fmt.Sprintf("no prefix parse function for %s found", t)
	p.addErrorCurrent(msg, p.curToken.Literal)
}

// parseIdentifier parses a variable or callable name
func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	lit := &ast.IntegerLiteral{Token: p.curToken}
	value, err := strconv.ParseInt(p.curToken.Literal, 0, 64)
	if err != nil {
		msg := fmt.Sprintf("could not parse %q as integer", p.curToken.Literal)
		p.addErrorCurrent(msg, p.curToken.Literal)
		return nil
	}
	lit.Value = value
	return lit
}

func (p *Parser) parseDoubleLiteral() ast.Expression {
	lit := &ast.DoubleLiteral{Token: p.curToken}
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		msg := fmt.Sprintf("could not parse %q as double", p.curToken.Literal)
		p.addErrorCurrent(msg, p.curToken.Literal)
		return nil
	}
	lit.Value = value
	return lit
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(token.TRUE)}
}

func (p *Parser) parseResultLiteral() ast.Expression {
	return &ast.ResultLiteral{Token: p.curToken, Value: p.curTokenIs(token.ONE)}
}

func (p *Parser) parsePauliLiteral() ast.Expression {
	return &ast.PauliLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

// parsePrefixExpression handles -x, not b and !b
func (p *Parser) parsePrefixExpression() ast.Expression {
	expression := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
	}
	if p.curTokenIs(token.BANG) {
		expression.Operator = "not"
	}
	p.nextToken()
	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}
	return expression
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expression := &ast.InfixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Left:     left,
	}

	precedence := p.curPrecedence()
	if p.curTokenIs(token.CARET) {
		// exponentiation is right associative
		precedence--
	}
	p.nextToken()
	expression.Right = p.parseExpression(precedence)
	if expression.Right == nil {
		return nil
	}
	return expression
}

// parseRangeExpression handles start..end and start..step..end.
func (p *Parser) parseRangeExpression(left ast.Expression) ast.Expression {
	expr := &ast.RangeExpression{Token: p.curToken, Start: left}
	p.nextToken()
	second := p.parseExpression(RANGE)
	if second == nil {
		return nil
	}
	if p.peekTokenIs(token.RANGE) {
		p.nextToken()
		p.nextToken()
		end := p.parseExpression(RANGE)
		if end == nil {
			return nil
		}
		expr.Step = second
		expr.End = end
		return expr
	}
	expr.End = second
	return expr
}

// parseConditionalExpression handles cond ? a | b
func (p *Parser) parseConditionalExpression(cond ast.Expression) ast.Expression {
	expr := &ast.ConditionalExpression{Token: p.curToken, Condition: cond}
	p.nextToken()
	expr.Consequence = p.parseExpression(TERNARY)
	if expr.Consequence == nil || !p.expectPeek(token.PIPE) {
		return nil
	}
	p.nextToken()
	expr.Alternative = p.parseExpression(LOWEST)
	if expr.Alternative == nil {
		return nil
	}
	return expr
}

// parseFunctorExpression handles Adjoint Op and Controlled Op. The operand
// binds tighter than the call that follows, so "Adjoint S(q)" applies S†.
func (p *Parser) parseFunctorExpression() ast.Expression {
	expr := &ast.FunctorExpression{Token: p.curToken, Functor: ast.FunctorAdjoint}
	if p.curTokenIs(token.FN_CTL) {
		expr.Functor = ast.FunctorControlled
	}
	p.nextToken()
	expr.Operand = p.parseExpression(CALL)
	if expr.Operand == nil {
		return nil
	}
	return expr
}

// parseGroupedExpression handles (), (e) and (a, b, ...)
func (p *Parser) parseGroupedExpression() ast.Expression {
	start := p.curToken
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken() // )
		return &ast.UnitLiteral{Token: start}
	}

	p.nextToken() // Advance past (

	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	if p.peekTokenIs(token.COMMA) {
		tuple := &ast.TupleLiteral{Token: start, Elements: []ast.Expression{first}}
		for p.peekTokenIs(token.COMMA) {
			p.nextToken() // ,
			p.nextToken() // next element
			el := p.parseExpression(LOWEST)
			if el == nil {
				return nil
			}
			tuple.Elements = append(tuple.Elements, el)
		}
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
		return tuple
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return first
}

// parseArrayLiteral handles [], [a, b] and [value, size = n]
func (p *Parser) parseArrayLiteral() ast.Expression {
	start := p.curToken
	arr := &ast.ArrayLiteral{Token: start, Elements: []ast.Expression{}}
	if p.peekTokenIs(token.RBRACKET) {
		p.nextToken()
		return arr
	}
	for {
		p.nextToken()
		if len(arr.Elements) == 1 && p.curTokenIs(token.IDENT) && p.curToken.Literal == "size" && p.peekTokenIs(token.ASSIGN) {
			p.nextToken()
			p.nextToken()
			size := p.parseExpression(LOWEST)
			if size == nil || !p.expectPeek(token.RBRACKET) {
				return nil
			}
			return &ast.RepeatArrayLiteral{Token: start, Value: arr.Elements[0], Size: size}
		}
		el := p.parseExpression(LOWEST)
		if el == nil {
			return nil
		}
		arr.Elements = append(arr.Elements, el)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return arr
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.curToken, Function: function}
	if tok, ok := calleeToken(function); ok {
		exp.Token = tok
	}
	args := p.parseCallArguments()
	if args == nil {
		return nil
	}
	exp.Arguments = args
	return exp
}

// calleeToken positions a call at its callee so diagnostics point at the name.
func calleeToken(e ast.Expression) (token.Token, bool) {
	switch v := e.(type) {
	case *ast.Identifier:
		return v.Token, true
	case *ast.FunctorExpression:
		return v.Token, true
	}
	return token.Token{}, false
}

func (p *Parser) parseIndexExpression(left ast.Expression) ast.Expression {
	exp := &ast.IndexExpression{Token: p.curToken, Left: left}
	p.nextToken()
	exp.Index = p.parseExpression(LOWEST)
	if exp.Index == nil || !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return exp
}

func (p *Parser) parseCallArguments() []ast.Expression {
	args := []ast.Expression{}
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return args
	}
	p.nextToken()
	arg := p.parseExpression(LOWEST)
	if arg == nil {
		return nil
	}
	args = append(args, arg)
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		args = append(args, arg)
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return args
}
