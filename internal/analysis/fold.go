package analysis

import (
	"qlower/internal/ast"
)

// literal is a condition operand known without evaluation.
type literal struct {
	kind byte // 'b', 'i' or 'd'
	b    bool
	i    int64
	d    float64
}

// staticCondition folds a condition built from literals and operators over
// them. The evaluator folds the same conditions, so only the taken arm of
// such a branch contributes to a footprint.
func staticCondition(e ast.Expression) (bool, bool) {
	l, ok := foldLiteral(e)
	if !ok || l.kind != 'b' {
		return false, false
	}
	return l.b, true
}

func foldLiteral(e ast.Expression) (literal, bool) {
	switch x := e.(type) {
	case *ast.BooleanLiteral:
		return literal{kind: 'b', b: x.Value}, true
	case *ast.IntegerLiteral:
		return literal{kind: 'i', i: x.Value}, true
	case *ast.DoubleLiteral:
		return literal{kind: 'd', d: x.Value}, true
	case *ast.PrefixExpression:
		v, ok := foldLiteral(x.Right)
		if !ok {
			return literal{}, false
		}
		switch {
		case (x.Operator == "not" || x.Operator == "!") && v.kind == 'b':
			return literal{kind: 'b', b: !v.b}, true
		case x.Operator == "-" && v.kind == 'i':
			return literal{kind: 'i', i: -v.i}, true
		case x.Operator == "-" && v.kind == 'd':
			return literal{kind: 'd', d: -v.d}, true
		}
	case *ast.InfixExpression:
		l, ok := foldLiteral(x.Left)
		if !ok {
			return literal{}, false
		}
		r, ok := foldLiteral(x.Right)
		if !ok {
			return literal{}, false
		}
		return foldInfix(x.Operator, l, r)
	}
	return literal{}, false
}

func foldInfix(op string, l, r literal) (literal, bool) {
	if l.kind == 'b' && r.kind == 'b' {
		switch op {
		case "and":
			return literal{kind: 'b', b: l.b && r.b}, true
		case "or":
			return literal{kind: 'b', b: l.b || r.b}, true
		case "==":
			return literal{kind: 'b', b: l.b == r.b}, true
		case "!=":
			return literal{kind: 'b', b: l.b != r.b}, true
		}
		return literal{}, false
	}
	if l.kind == 'b' || r.kind == 'b' {
		return literal{}, false
	}
	if l.kind == 'i' && r.kind == 'i' {
		switch op {
		case "+":
			return literal{kind: 'i', i: l.i + r.i}, true
		case "-":
			return literal{kind: 'i', i: l.i - r.i}, true
		case "*":
			return literal{kind: 'i', i: l.i * r.i}, true
		case "==":
			return literal{kind: 'b', b: l.i == r.i}, true
		case "!=":
			return literal{kind: 'b', b: l.i != r.i}, true
		case "<":
			return literal{kind: 'b', b: l.i < r.i}, true
		case "<=":
			return literal{kind: 'b', b: l.i <= r.i}, true
		case ">":
			return literal{kind: 'b', b: l.i > r.i}, true
		case ">=":
			return literal{kind: 'b', b: l.i >= r.i}, true
		}
		return literal{}, false
	}
	a, b := l.d, r.d
	if l.kind == 'i' {
		a = float64(l.i)
	}
	if r.kind == 'i' {
		b = float64(r.i)
	}
	switch op {
	case "==":
		return literal{kind: 'b', b: a == b}, true
	case "!=":
		return literal{kind: 'b', b: a != b}, true
	case "<":
		return literal{kind: 'b', b: a < b}, true
	case "<=":
		return literal{kind: 'b', b: a <= b}, true
	case ">":
		return literal{kind: 'b', b: a > b}, true
	case ">=":
		return literal{kind: 'b', b: a >= b}, true
	}
	return literal{}, false
}
