package parser

import (
	"fmt"
	"strings"

	"qlower/internal/token"
	"qlower/internal/typesys"
)

func (p *Parser) parseTypeAnnotation() (string, bool) {
	p.nextToken()
	return p.parseTypeExpressionFromCurrent()
}

// parseTypeExpressionFromCurrent reads Int, Qubit[], (Int, Result)[] and so on.
func (p *Parser) parseTypeExpressionFromCurrent() (string, bool) {
	base := ""
	switch p.curToken.Type {
	case token.IDENT:
		base = p.curToken.Literal
	case token.LPAREN:
		if p.peekTokenIs(token.RPAREN) {
			p.nextToken()
			base = typesys.Unit
			break
		}
		p.nextToken()
		first, ok := p.parseTypeExpressionFromCurrent()
		if !ok {
			return "", false
		}
		parts := []string{first}
		for p.peekTokenIs(token.COMMA) {
			p.nextToken()
			p.nextToken()
			next, ok := p.parseTypeExpressionFromCurrent()
			if !ok {
				return "", false
			}
			parts = append(parts, next)
		}
		if !p.expectPeek(token.RPAREN) {
			return "", false
		}
		if len(parts) == 1 {
			base = parts[0]
		} else {
			base = "(" + strings.Join(parts, ", ") + ")"
		}
	default:
		p.addErrorCurrent(fmt.Sprintf("expected type, got %s", p.curToken.Type), p.curToken.Literal)
		return "", false
	}
	return p.parseArrayTypeSuffixes(base)
}

func (p *Parser) parseArrayTypeSuffixes(base string) (string, bool) {
	out := base
	for p.peekTokenIs(token.LBRACKET) {
		p.nextToken() // '['
		if !p.expectPeek(token.RBRACKET) {
			p.addErrorCurrent("array types carry no size, use T[]", p.curToken.Literal)
			return "", false
		}
		out = typesys.WithArrayDimension(out)
	}
	return out, true
}
