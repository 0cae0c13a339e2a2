package evaluator

import (
	"github.com/pkg/errors"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/typesys"
)

// maxArraySize bounds arrays built by repetition at compile time.
const maxArraySize = 1 << 20

func (s *state) expr(f *frame, e ast.Expression, env *object.Environment) (object.Value, error) {
	switch x := e.(type) {
	case nil:
		return object.UnitValue, nil
	case *ast.IntegerLiteral:
		return object.Int(x.Value), nil
	case *ast.DoubleLiteral:
		return object.Float(x.Value), nil
	case *ast.BooleanLiteral:
		return object.Bool(x.Value), nil
	case *ast.StringLiteral:
		return object.Str(x.Value), nil
	case *ast.ResultLiteral:
		return object.ResultLit(x.Value), nil
	case *ast.PauliLiteral:
		return object.NewStatic(&object.Pauli{Value: x.Value}), nil
	case *ast.UnitLiteral:
		return object.UnitValue, nil

	case *ast.Identifier:
		if v, ok := env.Get(x.Value); ok {
			return v, nil
		}
		if _, ok := s.prog.Lookup(x.Value); ok {
			return nil, unsupported(x, "callable %s used as a value", x.Value)
		}
		return nil, failure(x, "identifier not found: %s", x.Value)

	case *ast.ArrayLiteral:
		elems, err := s.exprs(f, x.Elements, env)
		if err != nil {
			return nil, err
		}
		elemType := ""
		if len(elems) > 0 {
			elemType = elems[0].TypeName()
		}
		return object.NewStatic(&object.Array{ElementType: elemType, Elements: elems}), nil

	case *ast.RepeatArrayLiteral:
		v, err := s.expr(f, x.Value, env)
		if err != nil {
			return nil, err
		}
		size, err := s.expr(f, x.Size, env)
		if err != nil {
			return nil, err
		}
		n, ok := staticInt(size)
		if !ok {
			return nil, unsupported(x.Size, "array of runtime size")
		}
		if n < 0 || n > maxArraySize {
			return nil, failure(x.Size, "invalid array size %d", n)
		}
		elems := make([]object.Value, n)
		for i := range elems {
			elems[i] = v
		}
		return object.NewStatic(&object.Array{ElementType: v.TypeName(), Elements: elems}), nil

	case *ast.TupleLiteral:
		elems, err := s.exprs(f, x.Elements, env)
		if err != nil {
			return nil, err
		}
		return object.NewStatic(&object.Tuple{Elements: elems}), nil

	case *ast.RangeExpression:
		start, step, end, err := s.rangeParts(f, x, env)
		if err != nil {
			return nil, err
		}
		if !object.IsFullyStatic(start) || !object.IsFullyStatic(end) {
			return nil, unsupported(x, "range with runtime bounds outside a for loop")
		}
		return object.NewStatic(&object.Range{Start: mustInt(start), Step: step, End: mustInt(end)}), nil

	case *ast.PrefixExpression:
		return s.prefix(f, x, env)

	case *ast.InfixExpression:
		return s.infix(f, x, env)

	case *ast.IndexExpression:
		return s.index(f, x, env)

	case *ast.CallExpression:
		return s.call(f, x, env)

	case *ast.FunctorExpression:
		return nil, unsupported(x, "callable %s used as a value", x)

	case *ast.ConditionalExpression:
		return s.conditional(f, x, env)
	}
	return nil, failure(e, "unsupported expression %T", e)
}

func (s *state) exprs(f *frame, es []ast.Expression, env *object.Environment) ([]object.Value, error) {
	out := make([]object.Value, 0, len(es))
	for _, e := range es {
		v, err := s.expr(f, e, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *state) prefix(f *frame, x *ast.PrefixExpression, env *object.Environment) (object.Value, error) {
	v, err := s.expr(f, x.Right, env)
	if err != nil {
		return nil, err
	}
	op := x.Operator
	if op == "!" {
		op = "not"
	}
	if o, ok := object.StaticObject(v); ok {
		r, err := foldPrefix(op, o)
		if err != nil {
			return nil, failure(x, "%v", err)
		}
		return object.NewStatic(r), nil
	}
	operand, _ := object.Operand(v)
	switch {
	case op == "+" && (operand.Type == typesys.Int || operand.Type == typesys.Double):
		return v, nil
	case op == "-" && (operand.Type == typesys.Int || operand.Type == typesys.Double):
		op = "neg"
	case op == "not" && operand.Type == typesys.Bool:
	default:
		return nil, unsupported(x, "operator %s on a runtime %s", x.Operator, operand.Type)
	}
	if err := s.requireSet(caps.ForOperator(x.Operator, operand.Type), x); err != nil {
		return nil, err
	}
	r, err := s.em.Op(op, operand.Type, operand)
	if err != nil {
		return nil, err
	}
	return object.NewDynamic(r), nil
}

// infix evaluates a binary expression. "and" and "or" short-circuit on a
// compile-time left operand; with a runtime left operand both sides are
// evaluated.
func (s *state) infix(f *frame, x *ast.InfixExpression, env *object.Environment) (object.Value, error) {
	l, err := s.expr(f, x.Left, env)
	if err != nil {
		return nil, err
	}
	if x.Operator == "and" || x.Operator == "or" {
		if b, ok := staticBool(l); ok {
			if b == (x.Operator == "or") {
				return l, nil
			}
			r, err := s.expr(f, x.Right, env)
			if err != nil {
				return nil, err
			}
			if r.TypeName() != typesys.Bool {
				return nil, failure(x, "operator %s expects Bool operands, got %s", x.Operator, r.TypeName())
			}
			return r, nil
		}
	}
	r, err := s.expr(f, x.Right, env)
	if err != nil {
		return nil, err
	}
	return s.binary(x, x.Operator, l, r)
}

var opNames = map[string]string{
	"+": "add", "-": "sub", "*": "mul", "/": "div", "%": "mod", "^": "pow",
	"==": "eq", "!=": "ne", "<": "lt", "<=": "le", ">": "gt", ">=": "ge",
	"and": "and", "or": "or",
}

func comparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// binary applies op to two evaluated operands, folding when both are known
// at compile time.
func (s *state) binary(node ast.Node, op string, l, r object.Value) (object.Value, error) {
	lo, lok := object.StaticObject(l)
	ro, rok := object.StaticObject(r)
	if lok && rok {
		v, err := foldBinary(op, lo, ro)
		switch {
		case errors.Is(err, errRuntimeEquality):
			return nil, unsupported(node, "%s on values only known at runtime", op)
		case err != nil:
			return nil, failure(node, "%v", err)
		}
		return object.NewStatic(v), nil
	}
	if l.TypeName() == typesys.Result || r.TypeName() == typesys.Result {
		return s.compareResults(node, op, l, r)
	}

	a, aok := object.Operand(l)
	b, bok := object.Operand(r)
	name, known := opNames[op]
	if !aok || !bok || !known || a.Type != b.Type {
		return nil, unsupported(node, "operator %s on %s and %s at runtime", op, l.TypeName(), r.TypeName())
	}
	if err := s.requireSet(caps.ForOperator(op, a.Type), node); err != nil {
		return nil, err
	}
	typ := a.Type
	if comparison(op) {
		typ = typesys.Bool
	}
	v, err := s.em.Op(name, typ, a, b)
	if err != nil {
		return nil, err
	}
	return object.NewDynamic(v), nil
}

// compareResults lowers == and != on measurement results by reading them
// into Bools.
func (s *state) compareResults(node ast.Node, op string, l, r object.Value) (object.Value, error) {
	if (op != "==" && op != "!=") || l.TypeName() != r.TypeName() {
		return nil, failure(node, "operator %s on %s and %s", op, l.TypeName(), r.TypeName())
	}
	if !object.IsDynamic(l) {
		l, r = r, l
	}
	a, err := s.em.ReadResult(l.(*object.Dynamic).Operand)
	if err != nil {
		return nil, err
	}
	negate := op == "!="
	if o, ok := object.StaticObject(r); ok {
		if !o.(*object.Result).One {
			negate = !negate
		}
		if !negate {
			return object.NewDynamic(a), nil
		}
		v, err := s.em.Op("not", typesys.Bool, a)
		return object.NewDynamic(v), err
	}
	b, err := s.em.ReadResult(r.(*object.Dynamic).Operand)
	if err != nil {
		return nil, err
	}
	v, err := s.em.Op(opNames[op], typesys.Bool, a, b)
	return object.NewDynamic(v), err
}

// index reads an element or a slice. A runtime index into a static array
// selects among all elements; positions past the end yield the last element.
func (s *state) index(f *frame, x *ast.IndexExpression, env *object.Environment) (object.Value, error) {
	left, err := s.expr(f, x.Left, env)
	if err != nil {
		return nil, err
	}
	idx, err := s.expr(f, x.Index, env)
	if err != nil {
		return nil, err
	}
	if d, ok := left.(*object.Dynamic); ok {
		at, ok := object.Operand(idx)
		if d.Operand.Type != "Qubit[]" || !ok || at.Type != typesys.Int {
			return nil, unsupported(x, "indexing a runtime %s with %s", d.Operand.Type, idx.TypeName())
		}
		q, err := s.em.ArrayGet(d.Operand, at)
		if err != nil {
			return nil, err
		}
		return object.NewDynamic(q), nil
	}

	arr, ok := staticArray(left)
	if !ok {
		return nil, failure(x, "index operator not supported: %s", left.TypeName())
	}
	n := int64(len(arr.Elements))
	if o, ok := object.StaticObject(idx); ok {
		switch i := o.(type) {
		case *object.Integer:
			if i.Value < 0 || i.Value >= n {
				return nil, failure(x, "index out of range: %d (length %d)", i.Value, n)
			}
			return arr.Elements[i.Value], nil
		case *object.Range:
			elems := make([]object.Value, 0, max(i.Len(), 0))
			for k := int64(0); k < i.Len(); k++ {
				at := i.At(k)
				if at < 0 || at >= n {
					return nil, failure(x, "slice index out of range: %d (length %d)", at, n)
				}
				elems = append(elems, arr.Elements[at])
			}
			return object.NewStatic(&object.Array{ElementType: arr.ElementType, Elements: elems}), nil
		}
		return nil, failure(x, "array index must be an Int or a Range, got %s", idx.TypeName())
	}

	at, ok := object.Operand(idx)
	if !ok || at.Type != typesys.Int {
		return nil, unsupported(x, "array index of type %s", idx.TypeName())
	}
	if n == 0 {
		return nil, failure(x, "index into an empty array")
	}
	if err := s.require(caps.DynamicIndex, x); err != nil {
		return nil, err
	}
	v := arr.Elements[n-1]
	for j := n - 2; j >= 0; j-- {
		c, err := s.em.Op("eq", typesys.Bool, at, qir.ConstInt(j))
		if err != nil {
			return nil, err
		}
		if v, err = s.selectValue(x, c, arr.Elements[j], v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// conditional lowers c ? a : b. On a runtime condition, arms without calls
// are both evaluated and selected; arms with calls become branches.
func (s *state) conditional(f *frame, x *ast.ConditionalExpression, env *object.Environment) (object.Value, error) {
	cond, err := s.expr(f, x.Condition, env)
	if err != nil {
		return nil, err
	}
	if b, ok := staticBool(cond); ok {
		if b {
			return s.expr(f, x.Consequence, env)
		}
		return s.expr(f, x.Alternative, env)
	}
	c, err := condition(cond, x.Condition)
	if err != nil {
		return nil, err
	}
	if err := s.require(caps.BranchOnMeasurement, x.Condition); err != nil {
		return nil, err
	}

	if selectable(x.Consequence) && selectable(x.Alternative) {
		s.enterDynamic(f)
		defer s.leaveDynamic(f)
		a, err := s.expr(f, x.Consequence, env)
		if err != nil {
			return nil, err
		}
		b, err := s.expr(f, x.Alternative, env)
		if err != nil {
			return nil, err
		}
		return s.selectValue(x, c, a, b)
	}

	side := func(e ast.Expression) arm {
		return func() (object.Value, completion, error) {
			v, err := s.expr(f, e, env)
			if err != nil && callFree(e) {
				return nil, exited, s.faultArm(err, e)
			}
			return v, normal, err
		}
	}
	v, comp, err := s.branch(f, env, c, "cond", x, side(x.Consequence), side(x.Alternative))
	if err != nil {
		return nil, err
	}
	if comp == exited {
		return nil, failure(x, "both branches of a conditional expression fail")
	}
	return v, nil
}

// faultArm lowers a compile-time fault in a call-free arm of a runtime
// conditional to a failing terminator: only the path taking the arm fails.
func (s *state) faultArm(err error, node ast.Node) error {
	e, ok := diag.AsError(err)
	if !ok || e.Kind != diag.EvaluationFailure || s.em.Current().Terminated() ||
		!s.cfg.Permitted.Has(caps.ReturnInDynamicScope) {
		return err
	}
	if err := s.require(caps.ReturnInDynamicScope, node); err != nil {
		return err
	}
	return s.em.Fail(e.Message)
}

// callFree reports whether evaluating e emits nothing but classical
// operations.
func callFree(e ast.Expression) bool {
	ok := true
	ast.Inspect(e, func(n ast.Node) bool {
		if _, call := n.(*ast.CallExpression); call {
			ok = false
		}
		return ok
	})
	return ok
}

// selectable reports whether an arm of a conditional can be evaluated
// eagerly and merged with a select: it is call-free and has no index or
// division that could fault at compile time.
func selectable(e ast.Expression) bool {
	if !callFree(e) {
		return false
	}
	ok := true
	ast.Inspect(e, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IndexExpression:
			ok = false
		case *ast.InfixExpression:
			if x.Operator == "/" || x.Operator == "%" {
				ok = false
			}
		}
		return ok
	})
	return ok
}
