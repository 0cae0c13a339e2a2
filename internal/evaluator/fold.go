package evaluator

import (
	"math"

	"github.com/pkg/errors"

	"qlower/internal/object"
	"qlower/internal/typesys"
)

// errRuntimeEquality marks container comparisons whose outcome depends on
// runtime elements.
var errRuntimeEquality = errors.New("comparison of containers holding runtime values")

// foldBinary applies an infix operator to two compile-time operands. Int
// arithmetic wraps like the target's 64-bit integers.
func foldBinary(op string, l, r object.Object) (object.Object, error) {
	switch x := l.(type) {
	case *object.Integer:
		switch y := r.(type) {
		case *object.Integer:
			return foldInt(op, x.Value, y.Value)
		case *object.Double:
			return foldDouble(op, float64(x.Value), y.Value)
		}
	case *object.Double:
		switch y := r.(type) {
		case *object.Double:
			return foldDouble(op, x.Value, y.Value)
		case *object.Integer:
			return foldDouble(op, x.Value, float64(y.Value))
		}
	case *object.Boolean:
		if y, ok := r.(*object.Boolean); ok {
			switch op {
			case "and":
				return boolean(x.Value && y.Value), nil
			case "or":
				return boolean(x.Value || y.Value), nil
			case "==":
				return boolean(x.Value == y.Value), nil
			case "!=":
				return boolean(x.Value != y.Value), nil
			}
		}
	case *object.String:
		if y, ok := r.(*object.String); ok {
			switch op {
			case "+":
				return &object.String{Value: x.Value + y.Value}, nil
			case "==":
				return boolean(x.Value == y.Value), nil
			case "!=":
				return boolean(x.Value != y.Value), nil
			}
		}
	case *object.Array:
		if y, ok := r.(*object.Array); ok && op == "+" {
			elems := make([]object.Value, 0, len(x.Elements)+len(y.Elements))
			elems = append(elems, x.Elements...)
			elems = append(elems, y.Elements...)
			elem := x.ElementType
			if elem == "" || elem == typesys.Unknown {
				elem = y.ElementType
			}
			return &object.Array{ElementType: elem, Elements: elems}, nil
		}
	}

	if op == "==" || op == "!=" {
		if l.Type() != r.Type() {
			return nil, errors.Errorf("type mismatch: %s %s %s", l.Type(), op, r.Type())
		}
		if !staticContents(l) || !staticContents(r) {
			return nil, errRuntimeEquality
		}
		eq := object.Equal(l, r)
		return boolean(eq == (op == "==")), nil
	}
	return nil, errors.Errorf("unknown operator: %s %s %s", l.Type(), op, r.Type())
}

func foldInt(op string, a, b int64) (object.Object, error) {
	switch op {
	case "+":
		return integer(a + b), nil
	case "-":
		return integer(a - b), nil
	case "*":
		return integer(a * b), nil
	case "/":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return integer(a / b), nil
	case "%":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return integer(a % b), nil
	case "^":
		if b < 0 {
			return nil, errors.Errorf("negative exponent %d", b)
		}
		out := int64(1)
		for base := a; b > 0; b >>= 1 {
			if b&1 == 1 {
				out *= base
			}
			base *= base
		}
		return integer(out), nil
	case "==":
		return boolean(a == b), nil
	case "!=":
		return boolean(a != b), nil
	case "<":
		return boolean(a < b), nil
	case "<=":
		return boolean(a <= b), nil
	case ">":
		return boolean(a > b), nil
	case ">=":
		return boolean(a >= b), nil
	}
	return nil, errors.Errorf("unknown operator: Int %s Int", op)
}

func foldDouble(op string, a, b float64) (object.Object, error) {
	switch op {
	case "+":
		return double(a + b), nil
	case "-":
		return double(a - b), nil
	case "*":
		return double(a * b), nil
	case "/":
		return double(a / b), nil
	case "%":
		return double(math.Mod(a, b)), nil
	case "^":
		return double(math.Pow(a, b)), nil
	case "==":
		return boolean(a == b), nil
	case "!=":
		return boolean(a != b), nil
	case "<":
		return boolean(a < b), nil
	case "<=":
		return boolean(a <= b), nil
	case ">":
		return boolean(a > b), nil
	case ">=":
		return boolean(a >= b), nil
	}
	return nil, errors.Errorf("unknown operator: Double %s Double", op)
}

// foldPrefix applies a prefix operator to a compile-time operand.
func foldPrefix(op string, o object.Object) (object.Object, error) {
	switch x := o.(type) {
	case *object.Integer:
		switch op {
		case "-":
			return integer(-x.Value), nil
		case "+":
			return x, nil
		}
	case *object.Double:
		switch op {
		case "-":
			return double(-x.Value), nil
		case "+":
			return x, nil
		}
	case *object.Boolean:
		if op == "not" {
			return boolean(!x.Value), nil
		}
	}
	return nil, errors.Errorf("unknown operator: %s%s", op, o.Type())
}

func staticContents(o object.Object) bool {
	return object.IsFullyStatic(object.NewStatic(o))
}

func integer(v int64) object.Object  { return &object.Integer{Value: v} }
func double(v float64) object.Object { return &object.Double{Value: v} }
func boolean(v bool) object.Object   { return &object.Boolean{Value: v} }
