package parser

import (
	"qlower/internal/ast"
	"qlower/internal/token"
)

func compoundAssignOperator(t token.TokenType) (string, bool) {
	switch t {
	case token.ASSIGN:
		return "=", true
	case token.PLUS_EQ:
		return "+=", true
	case token.MINUS_EQ:
		return "-=", true
	case token.MUL_EQ:
		return "*=", true
	case token.DIV_EQ:
		return "/=", true
	case token.MOD_EQ:
		return "%=", true
	default:
		return "", false
	}
}

// parseStatement dispatches to specific statement parsers based on token type
func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.LET:
		return p.parseLetStatement(false)
	case token.MUTABLE:
		return p.parseLetStatement(true)
	case token.SET:
		return p.parseSetStatement()
	case token.USE:
		return p.parseUseStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.FAIL:
		return p.parseFailStatement()
	case token.IF:
		return p.parseIfStatement()
	case token.FOR:
		return p.parseForStatement()
	case token.WHILE:
		return p.parseWhileStatement()
	case token.REPEAT:
		return p.parseRepeatStatement()
	case token.WITHIN:
		return p.parseWithinApplyStatement()
	case token.LBRACE:
		return p.parseBlockStatement()
	case token.SEMICOLON:
		return nil
	default:
		return p.parseExpressionStatement()
	}
}

// parseBlockStatement parses a sequence of statements inside { }
func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{Token: p.curToken}
	block.Statements = []ast.Statement{}
	p.depth++
	defer func() { p.depth-- }()

	p.nextToken()

	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		if p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		} else {
			p.synchronize()
			if p.curTokenIs(token.RBRACE) {
				break
			}
		}
		p.nextToken()
	}
	if p.curTokenIs(token.EOF) {
		p.addErrorCurrent("expected } before end of input", "")
	}

	return block
}

// parsePattern handles "x" and "(a, (b, _))"; cur is the first token.
func (p *Parser) parsePattern() *ast.Pattern {
	switch p.curToken.Type {
	case token.IDENT:
		return &ast.Pattern{Token: p.curToken, Name: p.curToken.Literal}
	case token.LPAREN:
		pat := &ast.Pattern{Token: p.curToken, Elements: []*ast.Pattern{}}
		for {
			p.nextToken()
			el := p.parsePattern()
			if el == nil {
				return nil
			}
			pat.Elements = append(pat.Elements, el)
			if !p.peekTokenIs(token.COMMA) {
				break
			}
			p.nextToken()
		}
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
		return pat
	default:
		p.addErrorCurrent("expected binding name or tuple pattern", p.curToken.Literal)
		return nil
	}
}

func (p *Parser) parseLetStatement(mutable bool) ast.Statement {
	stmt := &ast.LetStatement{Token: p.curToken, Mutable: mutable}
	p.nextToken()
	stmt.Pattern = p.parsePattern()
	if stmt.Pattern == nil {
		return nil
	}
	if p.peekTokenIs(token.COLON) {
		// a type annotation carries no information the backend needs
		p.nextToken()
		if _, ok := p.parseTypeAnnotation(); !ok {
			return nil
		}
	}
	if !p.expectPeek(token.ASSIGN) {
		return nil
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return stmt
}

// parseSetStatement handles "set x = e;", "set x += e;" and "set a w/= i <- v;".
func (p *Parser) parseSetStatement() ast.Statement {
	setTok := p.curToken
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	name := &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}

	if p.peekTokenIs(token.W_EQ) {
		p.nextToken()
		stmt := &ast.UpdateStatement{Token: setTok, Name: name}
		p.nextToken()
		stmt.Index = p.parseExpression(LOWEST)
		if stmt.Index == nil || !p.expectPeek(token.LARROW) {
			return nil
		}
		p.nextToken()
		stmt.Value = p.parseExpression(LOWEST)
		if stmt.Value == nil || !p.expectPeek(token.SEMICOLON) {
			return nil
		}
		return stmt
	}

	op, ok := compoundAssignOperator(p.peekToken.Type)
	if !ok {
		p.addErrorPeek("expected assignment operator after set target", p.peekToken.Literal)
		return nil
	}
	p.nextToken()
	stmt := &ast.SetStatement{Token: setTok, Name: name, Operator: op}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil || !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return stmt
}

// parseUseStatement handles "use q = Qubit();" and "use qs = Qubit[n];".
func (p *Parser) parseUseStatement() ast.Statement {
	stmt := &ast.UseStatement{Token: p.curToken}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	stmt.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if !p.expectPeek(token.ASSIGN) || !p.expectPeek(token.IDENT) {
		return nil
	}
	if p.curToken.Literal != "Qubit" {
		p.addErrorCurrent("use statements allocate Qubit() or Qubit[n]", p.curToken.Literal)
		return nil
	}
	switch {
	case p.peekTokenIs(token.LPAREN):
		p.nextToken()
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
	case p.peekTokenIs(token.LBRACKET):
		p.nextToken()
		p.nextToken()
		stmt.Count = p.parseExpression(LOWEST)
		if stmt.Count == nil || !p.expectPeek(token.RBRACKET) {
			return nil
		}
	default:
		p.addErrorPeek("expected () or [n] after Qubit", p.peekToken.Literal)
		return nil
	}
	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseReturnStatement() ast.Statement {
	stmt := &ast.ReturnStatement{Token: p.curToken}
	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
		return stmt
	}
	p.nextToken()
	stmt.ReturnValue = p.parseExpression(LOWEST)
	if stmt.ReturnValue == nil || !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseFailStatement() ast.Statement {
	stmt := &ast.FailStatement{Token: p.curToken}
	p.nextToken()
	stmt.Message = p.parseExpression(LOWEST)
	if stmt.Message == nil || !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return stmt
}

// parseIfStatement handles: if <condition> { } elif <condition> { } else { }
func (p *Parser) parseIfStatement() ast.Statement {
	stmt := &ast.IfStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Consequence = p.parseBlockStatement()

	switch {
	case p.peekTokenIs(token.ELIF):
		p.nextToken()
		alt := p.parseIfStatement()
		if alt == nil {
			return nil
		}
		stmt.Alternative = alt
	case p.peekTokenIs(token.ELSE):
		p.nextToken()
		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		stmt.Alternative = p.parseBlockStatement()
	}
	return stmt
}

// parseForStatement handles: for x in <iterable> { }
func (p *Parser) parseForStatement() ast.Statement {
	stmt := &ast.ForStatement{Token: p.curToken}
	p.nextToken()
	stmt.Pattern = p.parsePattern()
	if stmt.Pattern == nil || !p.expectPeek(token.IN) {
		return nil
	}
	p.nextToken()
	stmt.Iterable = p.parseExpression(LOWEST)
	if stmt.Iterable == nil || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	stmt := &ast.WhileStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

// parseRepeatStatement handles: repeat { } until <cond> [fixup { }];
func (p *Parser) parseRepeatStatement() ast.Statement {
	stmt := &ast.RepeatStatement{Token: p.curToken}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	if !p.expectPeek(token.UNTIL) {
		return nil
	}
	p.nextToken()
	stmt.Until = p.parseExpression(LOWEST)
	if stmt.Until == nil {
		return nil
	}
	if p.peekTokenIs(token.FIXUP) {
		p.nextToken()
		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		stmt.Fixup = p.parseBlockStatement()
	}
	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseWithinApplyStatement() ast.Statement {
	stmt := &ast.WithinApplyStatement{Token: p.curToken}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Within = p.parseBlockStatement()
	if !p.expectPeek(token.APPLY) || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Apply = p.parseBlockStatement()
	return stmt
}

// parseExpressionStatement parses an expression used as a statement. The last
// expression of a callable body may omit its semicolon and is then returned.
func (p *Parser) parseExpressionStatement() ast.Statement {
	tok := p.curToken
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
		return &ast.ExpressionStatement{Token: tok, Expression: expr}
	}
	if p.peekTokenIs(token.RBRACE) {
		if p.depth == 1 {
			return &ast.ReturnStatement{Token: tok, ReturnValue: expr}
		}
		return &ast.ExpressionStatement{Token: tok, Expression: expr}
	}
	p.peekError(token.SEMICOLON)
	return nil
}
