package builtins

import (
	"math"

	"github.com/pkg/errors"

	"qlower/internal/object"
)

func intArg(args []object.Object, i int) (int64, error) {
	if i >= len(args) {
		return 0, errors.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(*object.Integer)
	if !ok {
		return 0, errors.Errorf("argument %d: expected Int, got %s", i, args[i].Type())
	}
	return v.Value, nil
}

func doubleArgValue(args []object.Object, i int) (float64, error) {
	if i >= len(args) {
		return 0, errors.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(*object.Double)
	if !ok {
		return 0, errors.Errorf("argument %d: expected Double, got %s", i, args[i].Type())
	}
	return v.Value, nil
}

func foldLength(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("Length expects 1 argument, got=%d", len(args))
	}
	arr, ok := args[0].(*object.Array)
	if !ok {
		return nil, errors.Errorf("Length expects an array, got %s", args[0].Type())
	}
	return &object.Integer{Value: int64(len(arr.Elements))}, nil
}

func foldIntAsDouble(args []object.Object) (object.Object, error) {
	i, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	return &object.Double{Value: float64(i)}, nil
}

func truncate(d float64) float64 { return math.Trunc(d) }
func floor(d float64) float64    { return math.Floor(d) }
func ceiling(d float64) float64  { return math.Ceil(d) }
func round(d float64) float64    { return math.Round(d) }
func sqrt(d float64) float64     { return math.Sqrt(d) }
func sin(d float64) float64      { return math.Sin(d) }
func cos(d float64) float64      { return math.Cos(d) }
func absD(d float64) float64     { return math.Abs(d) }

func foldRounding(fn func(float64) float64) FoldFunc {
	return func(args []object.Object) (object.Object, error) {
		d, err := doubleArgValue(args, 0)
		if err != nil {
			return nil, err
		}
		r := fn(d)
		if math.IsNaN(r) || r > math.MaxInt64 || r < math.MinInt64 {
			return nil, errors.Errorf("value %g does not fit in Int", d)
		}
		return &object.Integer{Value: int64(r)}, nil
	}
}

func foldUnaryDouble(fn func(float64) float64) FoldFunc {
	return func(args []object.Object) (object.Object, error) {
		d, err := doubleArgValue(args, 0)
		if err != nil {
			return nil, err
		}
		return &object.Double{Value: fn(d)}, nil
	}
}

func foldAbsI(args []object.Object) (object.Object, error) {
	i, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i = -i
	}
	return &object.Integer{Value: i}, nil
}

func foldMinMax(min bool) FoldFunc {
	return func(args []object.Object) (object.Object, error) {
		a, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		if (a < b) == min {
			return &object.Integer{Value: a}, nil
		}
		return &object.Integer{Value: b}, nil
	}
}

func foldPI(args []object.Object) (object.Object, error) {
	if len(args) != 0 {
		return nil, errors.Errorf("PI expects no arguments, got=%d", len(args))
	}
	return &object.Double{Value: math.Pi}, nil
}
