package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"qlower/internal/typesys"
)

// ObjectType identifies what kind of static value we have
type ObjectType string

const (
	INTEGER_OBJ ObjectType = "Int"
	DOUBLE_OBJ  ObjectType = "Double"
	BOOLEAN_OBJ ObjectType = "Bool"
	STRING_OBJ  ObjectType = "String"
	RESULT_OBJ  ObjectType = "Result"
	PAULI_OBJ   ObjectType = "Pauli"
	RANGE_OBJ   ObjectType = "Range"
	UNIT_OBJ    ObjectType = "Unit"
	QUBIT_OBJ   ObjectType = "Qubit"
	ARRAY_OBJ   ObjectType = "Array"
	TUPLE_OBJ   ObjectType = "Tuple"
)

// Object is a value whose shape is known at compile time
type Object interface {
	Type() ObjectType
	Inspect() string
}

type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }

type Double struct {
	Value float64
}

func (d *Double) Type() ObjectType { return DOUBLE_OBJ }
func (d *Double) Inspect() string  { return strconv.FormatFloat(d.Value, 'g', -1, 64) }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }

type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return strconv.Quote(s.Value) }

// Result is a measurement outcome known at compile time (a literal).
type Result struct {
	One bool
}

func (r *Result) Type() ObjectType { return RESULT_OBJ }
func (r *Result) Inspect() string {
	if r.One {
		return "One"
	}
	return "Zero"
}

type Pauli struct {
	Value string
}

func (p *Pauli) Type() ObjectType { return PAULI_OBJ }
func (p *Pauli) Inspect() string  { return p.Value }

// Range is an inclusive integer range with a non-zero step.
type Range struct {
	Start int64
	Step  int64
	End   int64
}

func (r *Range) Type() ObjectType { return RANGE_OBJ }
func (r *Range) Inspect() string {
	if r.Step == 1 {
		return fmt.Sprintf("%d..%d", r.Start, r.End)
	}
	return fmt.Sprintf("%d..%d..%d", r.Start, r.Step, r.End)
}

// Len is the number of elements the range yields.
func (r *Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start <= r.End:
		return (r.End-r.Start)/r.Step + 1
	case r.Step < 0 && r.Start >= r.End:
		return (r.Start-r.End)/(-r.Step) + 1
	}
	return 0
}

func (r *Range) At(i int64) int64 { return r.Start + i*r.Step }

type Unit struct{}

func (u *Unit) Type() ObjectType { return UNIT_OBJ }
func (u *Unit) Inspect() string  { return "()" }

// Qubit is a statically known qubit id.
type Qubit struct {
	ID int
}

func (q *Qubit) Type() ObjectType { return QUBIT_OBJ }
func (q *Qubit) Inspect() string  { return "q" + strconv.Itoa(q.ID) }

// Array is a statically shaped array. Its elements may still be dynamic.
type Array struct {
	ElementType string
	Elements    []Value
}

func (a *Array) Type() ObjectType { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	var out bytes.Buffer
	parts := make([]string, 0, len(a.Elements))
	for _, el := range a.Elements {
		parts = append(parts, el.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(parts, ", "))
	out.WriteString("]")
	return out.String()
}

// Tuple is a fixed-size heterogeneous tuple. Its elements may be dynamic.
type Tuple struct {
	Elements []Value
}

func (t *Tuple) Type() ObjectType { return TUPLE_OBJ }
func (t *Tuple) Inspect() string {
	var out bytes.Buffer
	parts := make([]string, 0, len(t.Elements))
	for _, el := range t.Elements {
		parts = append(parts, el.Inspect())
	}
	out.WriteString("(")
	out.WriteString(strings.Join(parts, ", "))
	out.WriteString(")")
	return out.String()
}

var UNIT = &Unit{}

// TypeNameOf returns the source type name of a static object.
func TypeNameOf(o Object) string {
	switch v := o.(type) {
	case *Array:
		elem := v.ElementType
		if elem == "" && len(v.Elements) > 0 {
			elem = v.Elements[0].TypeName()
		}
		if elem == "" {
			elem = typesys.Unknown
		}
		return typesys.WithArrayDimension(elem)
	case *Tuple:
		parts := make([]string, 0, len(v.Elements))
		for _, el := range v.Elements {
			parts = append(parts, el.TypeName())
		}
		return typesys.TupleTypeName(parts)
	case nil:
		return typesys.Unknown
	}
	return string(o.Type())
}

// Equal compares two static objects structurally. Containers holding
// dynamic elements compare equal only when the handles are identical.
func Equal(a, b Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case *Integer:
		return x.Value == b.(*Integer).Value
	case *Double:
		return x.Value == b.(*Double).Value
	case *Boolean:
		return x.Value == b.(*Boolean).Value
	case *String:
		return x.Value == b.(*String).Value
	case *Result:
		return x.One == b.(*Result).One
	case *Pauli:
		return x.Value == b.(*Pauli).Value
	case *Range:
		return *x == *b.(*Range)
	case *Unit:
		return true
	case *Qubit:
		return x.ID == b.(*Qubit).ID
	case *Array:
		return equalValues(x.Elements, b.(*Array).Elements)
	case *Tuple:
		return equalValues(x.Elements, b.(*Tuple).Elements)
	}
	return false
}

func equalValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !SameValue(a[i], b[i]) {
			return false
		}
	}
	return true
}
