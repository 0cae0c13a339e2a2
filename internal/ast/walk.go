package ast

// Inspect traverses n depth-first in source order and calls f for every node
// it meets. When f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if isNilNode(n) || !f(n) {
		return
	}
	switch v := n.(type) {
	case *Program:
		for _, c := range v.Callables {
			Inspect(c, f)
		}
	case *Callable:
		for _, variant := range Variants {
			if s := v.Spec(variant); s != nil && s.Body != nil {
				Inspect(s.Body, f)
			}
		}

	case *BlockStatement:
		for _, s := range v.Statements {
			Inspect(s, f)
		}
	case *LetStatement:
		Inspect(v.Value, f)
	case *SetStatement:
		Inspect(v.Name, f)
		Inspect(v.Value, f)
	case *UpdateStatement:
		Inspect(v.Name, f)
		Inspect(v.Index, f)
		Inspect(v.Value, f)
	case *ReturnStatement:
		Inspect(v.ReturnValue, f)
	case *FailStatement:
		Inspect(v.Message, f)
	case *UseStatement:
		Inspect(v.Count, f)
	case *ExpressionStatement:
		Inspect(v.Expression, f)
	case *IfStatement:
		Inspect(v.Condition, f)
		Inspect(v.Consequence, f)
		Inspect(v.Alternative, f)
	case *ForStatement:
		Inspect(v.Iterable, f)
		Inspect(v.Body, f)
	case *WhileStatement:
		Inspect(v.Condition, f)
		Inspect(v.Body, f)
	case *RepeatStatement:
		Inspect(v.Body, f)
		Inspect(v.Until, f)
		Inspect(v.Fixup, f)
	case *WithinApplyStatement:
		Inspect(v.Within, f)
		Inspect(v.Apply, f)
		Inspect(v.Undo, f)

	case *ArrayLiteral:
		for _, e := range v.Elements {
			Inspect(e, f)
		}
	case *RepeatArrayLiteral:
		Inspect(v.Value, f)
		Inspect(v.Size, f)
	case *TupleLiteral:
		for _, e := range v.Elements {
			Inspect(e, f)
		}
	case *RangeExpression:
		Inspect(v.Start, f)
		Inspect(v.Step, f)
		Inspect(v.End, f)
	case *PrefixExpression:
		Inspect(v.Right, f)
	case *InfixExpression:
		Inspect(v.Left, f)
		Inspect(v.Right, f)
	case *IndexExpression:
		Inspect(v.Left, f)
		Inspect(v.Index, f)
	case *CallExpression:
		Inspect(v.Function, f)
		for _, a := range v.Arguments {
			Inspect(a, f)
		}
	case *FunctorExpression:
		Inspect(v.Operand, f)
	case *ConditionalExpression:
		Inspect(v.Condition, f)
		Inspect(v.Consequence, f)
		Inspect(v.Alternative, f)
	}
}

// isNilNode catches typed nil pointers stored in a Node.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case nil:
		return true
	case *BlockStatement:
		return v == nil
	case *IfStatement:
		return v == nil
	case *Identifier:
		return v == nil
	case *Callable:
		return v == nil
	case *Program:
		return v == nil
	}
	return false
}
