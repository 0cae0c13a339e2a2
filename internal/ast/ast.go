package ast

import (
	"bytes"
	"strconv"
	"strings"

	"qlower/internal/token"
)

// Node is the base interface for all AST nodes
// Every node must provide a TokenLiteral (for debugging) and String (for printing)
type Node interface {
	TokenLiteral() string
	String() string
}

// Statement nodes don't produce values
// Examples: let x = 5; return 10;
type Statement interface {
	Node
	statementNode() // Dummy method to distinguish statements from expressions
}

// Expression nodes produce values
// Examples: 5, x, M(q), 5 + 3
type Expression interface {
	Node
	expressionNode() // Dummy method to distinguish expressions from statements
}

// PosOf returns the source position a node was parsed at.
func PosOf(n Node) token.Pos {
	if n == nil {
		return token.Pos{}
	}
	if t, ok := tokenOf(n); ok {
		return t.Pos()
	}
	return token.Pos{}
}

// Identifier represents a variable or callable name
type Identifier struct {
	Token token.Token // The IDENT token
	Value string      // The actual name: "q", "Teleport"
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }

// IntegerLiteral represents a number like 5 or 42
type IntegerLiteral struct {
	Token token.Token
	Value int64
}

func (il *IntegerLiteral) expressionNode()      {}
func (il *IntegerLiteral) TokenLiteral() string { return il.Token.Literal }
func (il *IntegerLiteral) String() string       { return il.Token.Literal }

// DoubleLiteral represents a floating-point number like 3.14
type DoubleLiteral struct {
	Token token.Token
	Value float64
}

func (dl *DoubleLiteral) expressionNode()      {}
func (dl *DoubleLiteral) TokenLiteral() string { return dl.Token.Literal }
func (dl *DoubleLiteral) String() string       { return dl.Token.Literal }

type BooleanLiteral struct {
	Token token.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string       { return strconv.FormatBool(bl.Value) }

// StringLiteral represents a string like "hello"
type StringLiteral struct {
	Token token.Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string       { return strconv.Quote(sl.Value) }

// ResultLiteral is Zero or One. Value is true for One.
type ResultLiteral struct {
	Token token.Token
	Value bool
}

func (rl *ResultLiteral) expressionNode()      {}
func (rl *ResultLiteral) TokenLiteral() string { return rl.Token.Literal }
func (rl *ResultLiteral) String() string {
	if rl.Value {
		return "One"
	}
	return "Zero"
}

// PauliLiteral is one of PauliI, PauliX, PauliY, PauliZ.
type PauliLiteral struct {
	Token token.Token
	Value string
}

func (pl *PauliLiteral) expressionNode()      {}
func (pl *PauliLiteral) TokenLiteral() string { return pl.Token.Literal }
func (pl *PauliLiteral) String() string       { return pl.Value }

// UnitLiteral is the empty tuple ().
type UnitLiteral struct {
	Token token.Token
}

func (ul *UnitLiteral) expressionNode()      {}
func (ul *UnitLiteral) TokenLiteral() string { return ul.Token.Literal }
func (ul *UnitLiteral) String() string       { return "()" }

// ArrayLiteral represents [expr1, expr2, ...]
type ArrayLiteral struct {
	Token    token.Token
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) String() string {
	return "[" + joinExpressions(al.Elements) + "]"
}

// RepeatArrayLiteral represents [value, size = n]
type RepeatArrayLiteral struct {
	Token token.Token
	Value Expression
	Size  Expression
}

func (rl *RepeatArrayLiteral) expressionNode()      {}
func (rl *RepeatArrayLiteral) TokenLiteral() string { return rl.Token.Literal }
func (rl *RepeatArrayLiteral) String() string {
	return "[" + rl.Value.String() + ", size = " + rl.Size.String() + "]"
}

// TupleLiteral represents (a, b, ...)
type TupleLiteral struct {
	Token    token.Token
	Elements []Expression
}

func (tl *TupleLiteral) expressionNode()      {}
func (tl *TupleLiteral) TokenLiteral() string { return tl.Token.Literal }
func (tl *TupleLiteral) String() string {
	return "(" + joinExpressions(tl.Elements) + ")"
}

// RangeExpression represents start..end or start..step..end. Step is nil when omitted.
type RangeExpression struct {
	Token token.Token
	Start Expression
	Step  Expression
	End   Expression
}

func (re *RangeExpression) expressionNode()      {}
func (re *RangeExpression) TokenLiteral() string { return re.Token.Literal }
func (re *RangeExpression) String() string {
	if re.Step != nil {
		return re.Start.String() + ".." + re.Step.String() + ".." + re.End.String()
	}
	return re.Start.String() + ".." + re.End.String()
}

// PrefixExpression represents -x, not b, !b
type PrefixExpression struct {
	Token    token.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	op := pe.Operator
	if op == "not" {
		op = "not "
	}
	return "(" + op + pe.Right.String() + ")"
}

// InfixExpression represents a binary operator: 5 + 5, r == One, a and b
type InfixExpression struct {
	Token    token.Token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// IndexExpression represents arr[i]
type IndexExpression struct {
	Token token.Token
	Left  Expression
	Index Expression
}

func (ie *IndexExpression) expressionNode()      {}
func (ie *IndexExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IndexExpression) String() string {
	return "(" + ie.Left.String() + "[" + ie.Index.String() + "])"
}

// CallExpression represents f(a, b). Function is an Identifier, possibly
// wrapped in one or more FunctorExpressions.
type CallExpression struct {
	Token     token.Token
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) String() string {
	return ce.Function.String() + "(" + joinExpressions(ce.Arguments) + ")"
}

const (
	FunctorAdjoint    = "Adjoint"
	FunctorControlled = "Controlled"
)

// FunctorExpression applies Adjoint or Controlled to a callable.
type FunctorExpression struct {
	Token   token.Token
	Functor string
	Operand Expression
}

func (fe *FunctorExpression) expressionNode()      {}
func (fe *FunctorExpression) TokenLiteral() string { return fe.Token.Literal }
func (fe *FunctorExpression) String() string       { return fe.Functor + " " + fe.Operand.String() }

// ConditionalExpression represents cond ? a | b
type ConditionalExpression struct {
	Token       token.Token
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (ce *ConditionalExpression) expressionNode()      {}
func (ce *ConditionalExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ConditionalExpression) String() string {
	return "(" + ce.Condition.String() + " ? " + ce.Consequence.String() + " | " + ce.Alternative.String() + ")"
}

// Pattern is a binding target: a single name or a (possibly nested) tuple of
// names. "_" discards.
type Pattern struct {
	Token    token.Token
	Name     string
	Elements []*Pattern
}

func (p *Pattern) IsTuple() bool { return p.Elements != nil }

// Names lists every bound name in order, skipping discards.
func (p *Pattern) Names() []string {
	if p == nil {
		return nil
	}
	if !p.IsTuple() {
		if p.Name == "_" || p.Name == "" {
			return nil
		}
		return []string{p.Name}
	}
	var out []string
	for _, e := range p.Elements {
		out = append(out, e.Names()...)
	}
	return out
}

func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	if !p.IsTuple() {
		return p.Name
	}
	parts := make([]string, 0, len(p.Elements))
	for _, e := range p.Elements {
		parts = append(parts, e.String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// LetStatement represents let x = e; and mutable x = e;
type LetStatement struct {
	Token   token.Token
	Mutable bool
	Pattern *Pattern
	Value   Expression
}

func (ls *LetStatement) statementNode()       {}
func (ls *LetStatement) TokenLiteral() string { return ls.Token.Literal }
func (ls *LetStatement) String() string {
	kw := "let"
	if ls.Mutable {
		kw = "mutable"
	}
	return kw + " " + ls.Pattern.String() + " = " + ls.Value.String() + ";"
}

// SetStatement represents set x = e; and compound forms such as set x += e;
type SetStatement struct {
	Token    token.Token
	Name     *Identifier
	Operator string
	Value    Expression
}

func (ss *SetStatement) statementNode()       {}
func (ss *SetStatement) TokenLiteral() string { return ss.Token.Literal }
func (ss *SetStatement) String() string {
	return "set " + ss.Name.String() + " " + ss.Operator + " " + ss.Value.String() + ";"
}

// UpdateStatement represents set arr w/= i <- v;
type UpdateStatement struct {
	Token token.Token
	Name  *Identifier
	Index Expression
	Value Expression
}

func (us *UpdateStatement) statementNode()       {}
func (us *UpdateStatement) TokenLiteral() string { return us.Token.Literal }
func (us *UpdateStatement) String() string {
	return "set " + us.Name.String() + " w/= " + us.Index.String() + " <- " + us.Value.String() + ";"
}

// ReturnStatement represents return e; Value is nil for a bare return.
type ReturnStatement struct {
	Token       token.Token
	ReturnValue Expression
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) String() string {
	if rs.ReturnValue == nil {
		return "return;"
	}
	return "return " + rs.ReturnValue.String() + ";"
}

type FailStatement struct {
	Token   token.Token
	Message Expression
}

func (fs *FailStatement) statementNode()       {}
func (fs *FailStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *FailStatement) String() string       { return "fail " + fs.Message.String() + ";" }

// UseStatement allocates qubits for the rest of the enclosing block:
// use q = Qubit(); or use qs = Qubit[n];. Count is nil for a single qubit.
type UseStatement struct {
	Token token.Token
	Name  *Identifier
	Count Expression
}

func (us *UseStatement) statementNode()       {}
func (us *UseStatement) TokenLiteral() string { return us.Token.Literal }
func (us *UseStatement) String() string {
	if us.Count == nil {
		return "use " + us.Name.String() + " = Qubit();"
	}
	return "use " + us.Name.String() + " = Qubit[" + us.Count.String() + "];"
}

// ExpressionStatement wraps an expression used as a statement: H(q);
type ExpressionStatement struct {
	Token      token.Token
	Expression Expression
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Literal }
func (es *ExpressionStatement) String() string {
	if es.Expression == nil {
		return ";"
	}
	return es.Expression.String() + ";"
}

// BlockStatement represents { stmt1; stmt2; }
type BlockStatement struct {
	Token      token.Token
	Statements []Statement
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("}")
	return out.String()
}

// IfStatement represents if c { } elif c { } else { }. An elif chain is a
// nested IfStatement in Alternative.
type IfStatement struct {
	Token       token.Token
	Condition   Expression
	Consequence *BlockStatement
	Alternative Statement // nil, *BlockStatement or *IfStatement
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) String() string {
	out := "if " + is.Condition.String() + " " + is.Consequence.String()
	switch alt := is.Alternative.(type) {
	case *IfStatement:
		out += " el" + alt.String()
	case *BlockStatement:
		out += " else " + alt.String()
	}
	return out
}

// ForStatement represents for x in iterable { }. Reverse iterates from the
// last element; it is only produced by adjoint derivation.
type ForStatement struct {
	Token    token.Token
	Pattern  *Pattern
	Iterable Expression
	Body     *BlockStatement
	Reverse  bool
}

func (fs *ForStatement) statementNode()       {}
func (fs *ForStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForStatement) String() string {
	kw := "for "
	if fs.Reverse {
		kw = "for reversed "
	}
	return kw + fs.Pattern.String() + " in " + fs.Iterable.String() + " " + fs.Body.String()
}

type WhileStatement struct {
	Token     token.Token
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) String() string {
	return "while " + ws.Condition.String() + " " + ws.Body.String()
}

// RepeatStatement represents repeat { } until c fixup { }; Fixup may be nil.
type RepeatStatement struct {
	Token token.Token
	Body  *BlockStatement
	Until Expression
	Fixup *BlockStatement
}

func (rs *RepeatStatement) statementNode()       {}
func (rs *RepeatStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *RepeatStatement) String() string {
	out := "repeat " + rs.Body.String() + " until " + rs.Until.String()
	if rs.Fixup != nil {
		out += " fixup " + rs.Fixup.String()
	}
	return out + ";"
}

// WithinApplyStatement represents within { A } apply { B }. Undo is the
// adjoint of A, filled in by functor derivation.
type WithinApplyStatement struct {
	Token  token.Token
	Within *BlockStatement
	Apply  *BlockStatement
	Undo   *BlockStatement
}

func (ws *WithinApplyStatement) statementNode()       {}
func (ws *WithinApplyStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WithinApplyStatement) String() string {
	return "within " + ws.Within.String() + " apply " + ws.Apply.String()
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			parts = append(parts, "<nil>")
			continue
		}
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}

func tokenOf(n Node) (token.Token, bool) {
	switch v := n.(type) {
	case *Identifier:
		return v.Token, true
	case *IntegerLiteral:
		return v.Token, true
	case *DoubleLiteral:
		return v.Token, true
	case *BooleanLiteral:
		return v.Token, true
	case *StringLiteral:
		return v.Token, true
	case *ResultLiteral:
		return v.Token, true
	case *PauliLiteral:
		return v.Token, true
	case *UnitLiteral:
		return v.Token, true
	case *ArrayLiteral:
		return v.Token, true
	case *RepeatArrayLiteral:
		return v.Token, true
	case *TupleLiteral:
		return v.Token, true
	case *RangeExpression:
		return v.Token, true
	case *PrefixExpression:
		return v.Token, true
	case *InfixExpression:
		return v.Token, true
	case *IndexExpression:
		return v.Token, true
	case *CallExpression:
		return v.Token, true
	case *FunctorExpression:
		return v.Token, true
	case *ConditionalExpression:
		return v.Token, true
	case *LetStatement:
		return v.Token, true
	case *SetStatement:
		return v.Token, true
	case *UpdateStatement:
		return v.Token, true
	case *ReturnStatement:
		return v.Token, true
	case *FailStatement:
		return v.Token, true
	case *UseStatement:
		return v.Token, true
	case *ExpressionStatement:
		return v.Token, true
	case *BlockStatement:
		return v.Token, true
	case *IfStatement:
		return v.Token, true
	case *ForStatement:
		return v.Token, true
	case *WhileStatement:
		return v.Token, true
	case *RepeatStatement:
		return v.Token, true
	case *WithinApplyStatement:
		return v.Token, true
	case *Callable:
		return v.Token, true
	}
	return token.Token{}, false
}
