package parser

import (
	"fmt"
	"strings"

	"qlower/internal/ast"
	"qlower/internal/lexer"
	"qlower/internal/token"
)

// precedence levels (lowest to highest)
// These determine operator binding: 5 + 3 * 2 parses as 5 + (3 * 2) because * has higher precedence
const (
	_ int = iota // Start at 0, ignore this
	LOWEST
	TERNARY     // c ? a | b
	RANGE       // a..b
	LOGICOR     // or
	LOGICAND    // and
	EQUALS      // ==
	LESSGREATER // > or <
	SUM         // +
	PRODUCT     // *
	POWER       // ^
	PREFIX      // -X or not X
	CALL        // myOperation(X)
	INDEX       // myArray[X]
)

// precedence table maps token types to their precedence level
var precedences = map[token.TokenType]int{
	token.QUESTION: TERNARY,
	token.RANGE:    RANGE,
	token.OR:       LOGICOR,
	token.AND:      LOGICAND,
	token.EQ:       EQUALS,
	token.NOT_EQ:   EQUALS,
	token.LT:       LESSGREATER,
	token.GT:       LESSGREATER,
	token.LT_EQ:    LESSGREATER,
	token.GT_EQ:    LESSGREATER,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.SLASH:    PRODUCT,
	token.ASTERISK: PRODUCT,
	token.PERCENT:  PRODUCT,
	token.CARET:    POWER,
	token.LPAREN:   CALL,
	token.LBRACKET: INDEX,
}

// Error is one accumulated parse error with the position it was found at.
type Error struct {
	Message string
	Context string
	Pos     token.Pos
}

func (e Error) String() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (near %q)", e.Pos, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

type Parser struct {
	l *lexer.Lexer // The lexer feeding us tokens

	curToken  token.Token // Current token under examination
	peekToken token.Token // Next Token (for look-ahead)

	errors []Error // Accumulated parse errors
	depth  int     // block nesting, 1 inside a callable body

	// Pratt parser tables
	prefixParseFns map[token.TokenType]prefixParseFn // Functions for tokens that start expressions
	infixParseFns  map[token.TokenType]infixParseFn  // Functions for tokens that appear in the middle
}

// prefixParseFn parses expressions that start with a specific token
// Example: -5, not b, 42, x
type prefixParseFn func() ast.Expression

// infixParseFn parses expressions where the operator is between operands
// Example: 5 + 3, H(q)
// The ast.Expression is the left side already parsed
type infixParseFn func(ast.Expression) ast.Expression

// New creates a new parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []Error{},
	}

	// Initialize function tables
	p.prefixParseFns = make(map[token.TokenType]prefixParseFn)
	p.infixParseFns = make(map[token.TokenType]infixParseFn)

	// Register prefix parsers (tokens that can START an expression)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.INT, p.parseIntegerLiteral)
	p.registerPrefix(token.DOUBLE, p.parseDoubleLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.ZERO, p.parseResultLiteral)
	p.registerPrefix(token.ONE, p.parseResultLiteral)
	p.registerPrefix(token.PAULI, p.parsePauliLiteral)
	p.registerPrefix(token.BANG, p.parsePrefixExpression)
	p.registerPrefix(token.NOT, p.parsePrefixExpression)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(token.FN_ADJ, p.parseFunctorExpression)
	p.registerPrefix(token.FN_CTL, p.parseFunctorExpression)

	// Register infix parsers (tokens that appear BETWEEN expressions)
	for _, t := range []token.TokenType{
		token.PLUS, token.MINUS, token.SLASH, token.ASTERISK, token.PERCENT, token.CARET,
		token.EQ, token.NOT_EQ, token.LT, token.GT, token.LT_EQ, token.GT_EQ,
		token.AND, token.OR,
	} {
		p.registerInfix(t, p.parseInfixExpression)
	}
	p.registerInfix(token.RANGE, p.parseRangeExpression)
	p.registerInfix(token.QUESTION, p.parseConditionalExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)
	p.registerInfix(token.LBRACKET, p.parseIndexExpression)

	// Read two tokens to set curToken and peekToken
	p.nextToken()
	p.nextToken()

	return p
}

// registerPrefix adds a prefix parser for a token type
func (p *Parser) registerPrefix(tokenType token.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

// registerInfix adds an infix parser for a token type
func (p *Parser) registerInfix(tokenType token.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Errors returns accumulated parse errors as text
func (p *Parser) Errors() []string {
	out := make([]string, 0, len(p.errors))
	for _, e := range p.errors {
		out = append(out, e.String())
	}
	return out
}

// ParseErrors returns accumulated parse errors with their positions.
func (p *Parser) ParseErrors() []Error {
	return p.errors
}

func (p *Parser) addErrorCurrent(msg string, context string) {
	p.errors = append(p.errors, Error{Message: msg, Context: context, Pos: p.curToken.Pos()})
}

func (p *Parser) addErrorPeek(msg string, context string) {
	p.errors = append(p.errors, Error{Message: msg, Context: context, Pos: p.peekToken.Pos()})
}

// peekError adds an error when we expected a different token
func (p *Parser) peekError(t token.TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead", t, p.peekToken.Type)
	p.addErrorPeek(msg, p.peekToken.Literal)
}

// curTokenIs checks if current token matches
func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if next token matches
func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek checks next token and advances if correct, else errors
// Used for mandatory syntax like "let <ident> ="
func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// peekPrecedence returns precedence of next token
func (p *Parser) peekPrecedence() int {
	if p, ok := precedences[p.peekToken.Type]; ok {
		return p
	}
	return LOWEST
}

// curPrecedence returns precedence of current token
func (p *Parser) curPrecedence() int {
	if p, ok := precedences[p.curToken.Type]; ok {
		return p
	}
	return LOWEST
}

// ParseProgram parses a sequence of callable declarations.
func (p *Parser) ParseProgram() *ast.Program {
	program := ast.NewProgram()

	for !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.OPERATION, token.FUNCTION:
			c := p.parseCallable()
			if c == nil {
				p.synchronizeCallable()
				continue
			}
			if !program.Add(c) {
				p.errors = append(p.errors, Error{
					Message: fmt.Sprintf("callable %s is declared more than once", c.Name),
					Context: c.Name,
					Pos:     c.Token.Pos(),
				})
			}
		case token.SEMICOLON:
		default:
			p.addErrorCurrent(fmt.Sprintf("expected operation or function declaration, got %s", p.curToken.Type), p.curToken.Literal)
			p.synchronizeCallable()
			continue
		}
		p.nextToken()
	}

	return program
}

func (p *Parser) synchronize() {
	for !p.curTokenIs(token.EOF) && !p.curTokenIs(token.SEMICOLON) && !p.curTokenIs(token.RBRACE) {
		p.nextToken()
	}
}

// synchronizeCallable skips to the next top-level declaration.
func (p *Parser) synchronizeCallable() {
	p.nextToken()
	for !p.curTokenIs(token.EOF) && !p.curTokenIs(token.OPERATION) && !p.curTokenIs(token.FUNCTION) {
		p.nextToken()
	}
}

// parseCallable handles
//
//	operation Name(q : Qubit, n : Int) : Unit is Adj + Ctl { ... }
//
// The braces hold either plain statements (the body) or a list of
// specialization declarations.
func (p *Parser) parseCallable() *ast.Callable {
	c := &ast.Callable{Token: p.curToken, Kind: ast.Operation, Specs: map[ast.Variant]*ast.Specialization{}}
	if p.curTokenIs(token.FUNCTION) {
		c.Kind = ast.Function
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	c.Name = p.curToken.Literal
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	params, ok := p.parseParameters()
	if !ok {
		return nil
	}
	c.Params = params
	c.ReturnType = "Unit"
	if p.peekTokenIs(token.COLON) {
		p.nextToken()
		rt, ok := p.parseTypeAnnotation()
		if !ok {
			return nil
		}
		c.ReturnType = rt
	}
	if p.peekTokenIs(token.IS) {
		p.nextToken()
		if !p.parseFunctorSupport(c) {
			return nil
		}
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	if isSpecializationStart(p.peekToken.Type) {
		if !p.parseSpecializations(c) {
			return nil
		}
	} else {
		body := p.parseBlockStatement()
		c.Specs[ast.Body] = &ast.Specialization{Token: body.Token, Variant: ast.Body, Kind: ast.SpecExplicit, Body: body}
	}
	completeSpecializations(c)
	return c
}

func isSpecializationStart(t token.TokenType) bool {
	return t == token.BODY || t == token.ADJOINT || t == token.CONTROLLED
}

// parseFunctorSupport handles "is Adj", "is Ctl", "is Adj + Ctl".
func (p *Parser) parseFunctorSupport(c *ast.Callable) bool {
	for {
		if !p.expectPeek(token.IDENT) {
			return false
		}
		switch p.curToken.Literal {
		case "Adj":
			c.Adjoint = true
		case "Ctl":
			c.Controlled = true
		default:
			p.addErrorCurrent("unknown functor support, expected Adj or Ctl", p.curToken.Literal)
			return false
		}
		if !p.peekTokenIs(token.PLUS) {
			return true
		}
		p.nextToken()
	}
}

// parseParameters handles "(a : Int, q : Qubit)"; cur is "(".
func (p *Parser) parseParameters() ([]*ast.Param, bool) {
	params := []*ast.Param{}
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params, true
	}
	for {
		if !p.expectPeek(token.IDENT) {
			return nil, false
		}
		param := &ast.Param{Token: p.curToken, Name: p.curToken.Literal}
		if !p.expectPeek(token.COLON) {
			return nil, false
		}
		typeName, ok := p.parseTypeAnnotation()
		if !ok {
			return nil, false
		}
		param.TypeName = typeName
		params = append(params, param)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RPAREN) {
		return nil, false
	}
	return params, true
}

// parseSpecializations reads declarations such as
//
//	body intrinsic;
//	adjoint self;
//	controlled (cs, ...) { ... }
//	controlled adjoint distribute;
//
// until the closing brace of the callable.
func (p *Parser) parseSpecializations(c *ast.Callable) bool {
	p.nextToken()
	for !p.curTokenIs(token.RBRACE) {
		if p.curTokenIs(token.EOF) {
			p.addErrorCurrent("unterminated callable body", c.Name)
			return false
		}
		spec := &ast.Specialization{Token: p.curToken}
		switch p.curToken.Type {
		case token.BODY:
			spec.Variant = ast.Body
		case token.ADJOINT:
			spec.Variant = ast.Adj
		case token.CONTROLLED:
			spec.Variant = ast.Ctl
			if p.peekTokenIs(token.ADJOINT) {
				p.nextToken()
				spec.Variant = ast.CtlAdj
			}
		default:
			p.addErrorCurrent("expected body, adjoint or controlled specialization", p.curToken.Literal)
			return false
		}
		if !p.parseSpecializationBody(spec) {
			return false
		}
		if _, dup := c.Specs[spec.Variant]; dup {
			p.addErrorCurrent(fmt.Sprintf("duplicate %s specialization", spec.Variant), c.Name)
			return false
		}
		c.Specs[spec.Variant] = spec
		switch spec.Variant {
		case ast.Adj:
			c.Adjoint = true
		case ast.Ctl:
			c.Controlled = true
		case ast.CtlAdj:
			c.Adjoint, c.Controlled = true, true
		}
		p.nextToken()
	}
	if _, ok := c.Specs[ast.Body]; !ok {
		p.addErrorCurrent("callable has specializations but no body", c.Name)
		return false
	}
	return true
}

func (p *Parser) parseSpecializationBody(spec *ast.Specialization) bool {
	if p.peekTokenIs(token.IDENT) {
		p.nextToken()
		switch p.curToken.Literal {
		case "intrinsic":
			spec.Kind = ast.SpecIntrinsic
		case "self":
			spec.Kind = ast.SpecSelf
		case "invert":
			spec.Kind = ast.SpecInvert
		case "distribute":
			spec.Kind = ast.SpecDistribute
		case "auto":
			spec.Kind = ast.SpecAuto
		default:
			p.addErrorCurrent("unknown specialization generator", p.curToken.Literal)
			return false
		}
		return p.expectPeek(token.SEMICOLON)
	}

	spec.Kind = ast.SpecExplicit
	switch {
	case p.peekTokenIs(token.LPAREN):
		p.nextToken()
		if spec.Variant.IsControlled() && p.peekTokenIs(token.IDENT) {
			p.nextToken()
			spec.ControlsName = p.curToken.Literal
		}
		for !p.curTokenIs(token.RPAREN) {
			if p.curTokenIs(token.EOF) {
				p.addErrorCurrent("unterminated specialization argument list", spec.Variant.String())
				return false
			}
			p.nextToken()
		}
	case p.peekTokenIs(token.RANGE):
		p.skipEllipsis()
	}
	if spec.Variant.IsControlled() && spec.ControlsName == "" {
		spec.ControlsName = ast.DefaultControlsName
	}
	if !p.expectPeek(token.LBRACE) {
		return false
	}
	spec.Body = p.parseBlockStatement()
	return true
}

// skipEllipsis consumes "..." which lexes as ".." followed by ".".
func (p *Parser) skipEllipsis() {
	p.nextToken()
	if p.peekTokenIs(token.ILLEGAL) && p.peekToken.Literal == "." {
		p.nextToken()
	}
}

// completeSpecializations adds the variants implied by "is Adj/Ctl" that were
// not declared explicitly.
func completeSpecializations(c *ast.Callable) {
	add := func(v ast.Variant) {
		if _, ok := c.Specs[v]; ok {
			return
		}
		spec := &ast.Specialization{Token: c.Token, Variant: v, Kind: ast.SpecAuto}
		if v.IsControlled() {
			spec.ControlsName = ast.DefaultControlsName
		}
		c.Specs[v] = spec
	}
	if c.Adjoint {
		add(ast.Adj)
	}
	if c.Controlled {
		add(ast.Ctl)
	}
	if c.Adjoint && c.Controlled {
		add(ast.CtlAdj)
	}
}

// ParseString parses source text and returns the program together with any
// errors.
func ParseString(src string) (*ast.Program, []Error) {
	p := New(lexer.New(src))
	prog := p.ParseProgram()
	return prog, p.ParseErrors()
}

// FormatErrors joins parse errors for display.
func FormatErrors(errs []Error) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "\n")
}
