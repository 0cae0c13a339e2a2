package object

import (
	"qlower/internal/qir"
)

// Value is the result of evaluating an expression: either Static, known at
// compile time, or Dynamic, a handle to a runtime value in the emitted module.
type Value interface {
	Inspect() string
	TypeName() string
	isValue()
}

type Static struct {
	Object Object
}

func (s *Static) Inspect() string  { return s.Object.Inspect() }
func (s *Static) TypeName() string { return TypeNameOf(s.Object) }
func (s *Static) isValue()         {}

// Dynamic refers to a value only known when the emitted program runs.
type Dynamic struct {
	Operand qir.Operand
}

func (d *Dynamic) Inspect() string  { return "<" + d.Operand.String() + ":" + d.Operand.Type + ">" }
func (d *Dynamic) TypeName() string { return d.Operand.Type }
func (d *Dynamic) isValue()         {}

func NewStatic(o Object) Value        { return &Static{Object: o} }
func NewDynamic(op qir.Operand) Value { return &Dynamic{Operand: op} }

func Int(v int64) Value        { return NewStatic(&Integer{Value: v}) }
func Float(v float64) Value    { return NewStatic(&Double{Value: v}) }
func Bool(v bool) Value        { return NewStatic(&Boolean{Value: v}) }
func Str(v string) Value       { return NewStatic(&String{Value: v}) }
func QubitID(id int) Value     { return NewStatic(&Qubit{ID: id}) }
func ResultLit(one bool) Value { return NewStatic(&Result{One: one}) }

var UnitValue Value = &Static{Object: UNIT}

// IsDynamic reports whether v itself is a runtime handle. A static container
// holding dynamic elements is not dynamic.
func IsDynamic(v Value) bool {
	_, ok := v.(*Dynamic)
	return ok
}

// IsFullyStatic reports whether v and everything inside it is static.
func IsFullyStatic(v Value) bool {
	s, ok := v.(*Static)
	if !ok {
		return false
	}
	switch o := s.Object.(type) {
	case *Array:
		for _, el := range o.Elements {
			if !IsFullyStatic(el) {
				return false
			}
		}
	case *Tuple:
		for _, el := range o.Elements {
			if !IsFullyStatic(el) {
				return false
			}
		}
	}
	return true
}

// StaticObject returns the object of a static value.
func StaticObject(v Value) (Object, bool) {
	s, ok := v.(*Static)
	if !ok {
		return nil, false
	}
	return s.Object, true
}

// SameValue reports whether a and b are indistinguishable: equal static
// objects or the same runtime handle.
func SameValue(a, b Value) bool {
	switch x := a.(type) {
	case *Static:
		y, ok := b.(*Static)
		return ok && Equal(x.Object, y.Object)
	case *Dynamic:
		y, ok := b.(*Dynamic)
		return ok && x.Operand == y.Operand
	}
	return false
}

// Operand converts a scalar value into an instruction operand. Static
// containers, strings, paulis and ranges have no operand form.
func Operand(v Value) (qir.Operand, bool) {
	switch x := v.(type) {
	case *Dynamic:
		return x.Operand, true
	case *Static:
		switch o := x.Object.(type) {
		case *Integer:
			return qir.ConstInt(o.Value), true
		case *Double:
			return qir.ConstDouble(o.Value), true
		case *Boolean:
			return qir.ConstBool(o.Value), true
		case *Result:
			return qir.ConstResult(o.One), true
		case *Qubit:
			return qir.Qubit(o.ID), true
		}
	}
	return qir.Operand{}, false
}

// Elements returns the elements of a static array or tuple.
func Elements(v Value) ([]Value, bool) {
	s, ok := v.(*Static)
	if !ok {
		return nil, false
	}
	switch o := s.Object.(type) {
	case *Array:
		return o.Elements, true
	case *Tuple:
		return o.Elements, true
	}
	return nil, false
}
