package evaluator

import (
	"strconv"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/typesys"
)

// join merges the values arriving at the current block over edges. Equal
// values pass through, static containers of one shape merge element by
// element and scalars meet in a phi.
func (s *state) join(edges []edge, node ast.Node) (object.Value, error) {
	first := edges[0].value
	same := true
	for _, e := range edges[1:] {
		if !object.SameValue(first, e.value) {
			same = false
			break
		}
	}
	if same {
		return first, nil
	}

	if elems, ok := object.Elements(first); ok {
		parts := make([][]edge, len(elems))
		for _, e := range edges {
			other, ok := object.Elements(e.value)
			if !ok || !sameKind(first, e.value) || len(other) != len(elems) {
				return nil, unsupported(node, "values of different shapes meet where control flow rejoins: %s and %s",
					first.Inspect(), e.value.Inspect())
			}
			for i, el := range other {
				parts[i] = append(parts[i], edge{from: e.from, value: el})
			}
		}
		out := make([]object.Value, len(elems))
		for i := range parts {
			v, err := s.join(parts[i], node)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return withElements(first, out), nil
	}

	typ := first.TypeName()
	incoming := make([]qir.PhiEdge, 0, len(edges))
	for _, e := range edges {
		op, ok := object.Operand(e.value)
		if !ok || op.Type != typ {
			return nil, unsupported(node, "%s and %s cannot be merged at runtime", first.Inspect(), e.value.Inspect())
		}
		incoming = append(incoming, qir.PhiEdge{Block: e.from.ID, Value: op})
	}
	if err := s.requireSet(caps.ForType(typ), node); err != nil {
		return nil, err
	}
	phi, err := s.em.Phi(typ, incoming...)
	if err != nil {
		return nil, err
	}
	return object.NewDynamic(phi), nil
}

// selectValue picks a when c holds and b otherwise without branching.
func (s *state) selectValue(node ast.Node, c qir.Operand, a, b object.Value) (object.Value, error) {
	if object.SameValue(a, b) {
		return a, nil
	}
	if ae, ok := object.Elements(a); ok {
		be, ok := object.Elements(b)
		if !ok || !sameKind(a, b) || len(ae) != len(be) {
			return nil, unsupported(node, "cannot select between %s and %s at runtime", a.Inspect(), b.Inspect())
		}
		out := make([]object.Value, len(ae))
		for i := range ae {
			v, err := s.selectValue(node, c, ae[i], be[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return withElements(a, out), nil
	}
	ao, aok := object.Operand(a)
	bo, bok := object.Operand(b)
	if !aok || !bok || ao.Type != bo.Type {
		return nil, unsupported(node, "cannot select between %s and %s at runtime", a.Inspect(), b.Inspect())
	}
	if err := s.requireSet(caps.ForType(ao.Type), node); err != nil {
		return nil, err
	}
	v, err := s.em.Select(ao.Type, c, ao, bo)
	if err != nil {
		return nil, err
	}
	return object.NewDynamic(v), nil
}

// output records the entry point's return value. Containers announce their
// length, then their elements follow labelled by position.
func (s *state) output(v object.Value, label string) error {
	if elems, ok := object.Elements(v); ok {
		tag := "array"
		if !isArray(v) {
			tag = "tuple"
		}
		if err := s.em.Output(tag, label, qir.ConstInt(int64(len(elems)))); err != nil {
			return err
		}
		for i, el := range elems {
			if err := s.output(el, label+"."+strconv.Itoa(i)); err != nil {
				return err
			}
		}
		return nil
	}
	if o, ok := object.StaticObject(v); ok {
		if _, unit := o.(*object.Unit); unit {
			return nil
		}
	}
	op, ok := object.Operand(v)
	tag, known := outputTags[op.Type]
	if !ok || !known {
		return failure(nil, "a %s value cannot be recorded as output", v.TypeName())
	}
	return s.em.Output(tag, label, op)
}

var outputTags = map[string]string{
	typesys.Result: "result",
	typesys.Bool:   "bool",
	typesys.Int:    "int",
	typesys.Double: "double",
}

// flatten lists the scalar leaves of v depth first.
func flatten(v object.Value) []object.Value {
	elems, ok := object.Elements(v)
	if !ok {
		return []object.Value{v}
	}
	var out []object.Value
	for _, el := range elems {
		out = append(out, flatten(el)...)
	}
	return out
}

// rebuild is the inverse of flatten: it returns a value shaped like shape
// holding leaves.
func rebuild(shape object.Value, leaves []object.Value) object.Value {
	v, _ := rebuildFrom(shape, leaves)
	return v
}

func rebuildFrom(shape object.Value, leaves []object.Value) (object.Value, []object.Value) {
	elems, ok := object.Elements(shape)
	if !ok {
		return leaves[0], leaves[1:]
	}
	out := make([]object.Value, len(elems))
	for i, el := range elems {
		out[i], leaves = rebuildFrom(el, leaves)
	}
	return withElements(shape, out), leaves
}

func withElements(shape object.Value, elems []object.Value) object.Value {
	if a, ok := staticArray(shape); ok {
		return object.NewStatic(&object.Array{ElementType: a.ElementType, Elements: elems})
	}
	return object.NewStatic(&object.Tuple{Elements: elems})
}

func sameKind(a, b object.Value) bool { return isArray(a) == isArray(b) }

func isArray(v object.Value) bool {
	_, ok := staticArray(v)
	return ok
}

func values(bs []*object.Binding) []object.Value {
	out := make([]object.Value, len(bs))
	for i, b := range bs {
		out[i] = b.Value
	}
	return out
}

func restore(bs []*object.Binding, vals []object.Value) {
	for i, b := range bs {
		b.Value = vals[i]
	}
}

func staticBool(v object.Value) (bool, bool) {
	o, ok := object.StaticObject(v)
	if !ok {
		return false, false
	}
	b, ok := o.(*object.Boolean)
	if !ok {
		return false, false
	}
	return b.Value, true
}

func staticInt(v object.Value) (int64, bool) {
	o, ok := object.StaticObject(v)
	if !ok {
		return 0, false
	}
	i, ok := o.(*object.Integer)
	if !ok {
		return 0, false
	}
	return i.Value, true
}

func mustInt(v object.Value) int64 {
	n, _ := staticInt(v)
	return n
}

func staticArray(v object.Value) (*object.Array, bool) {
	o, ok := object.StaticObject(v)
	if !ok {
		return nil, false
	}
	a, ok := o.(*object.Array)
	return a, ok
}

func tupleElements(v object.Value) ([]object.Value, bool) {
	o, ok := object.StaticObject(v)
	if !ok {
		return nil, false
	}
	t, ok := o.(*object.Tuple)
	if !ok {
		return nil, false
	}
	return t.Elements, true
}

func qubitArray(qs []object.Value) object.Value {
	return object.NewStatic(&object.Array{ElementType: typesys.Qubit, Elements: qs})
}

// qubitOperand resolves v to a single qubit.
func qubitOperand(node ast.Node, v object.Value) (qir.Operand, error) {
	op, ok := object.Operand(v)
	if !ok || op.Type != typesys.Qubit {
		return qir.Operand{}, failure(node, "expected a Qubit, got %s", v.TypeName())
	}
	return op, nil
}

// qubitOperands resolves a static qubit register.
func qubitOperands(node ast.Node, v object.Value) ([]qir.Operand, error) {
	elems, ok := object.Elements(v)
	if !ok || !isArray(v) {
		if object.IsDynamic(v) {
			return nil, unsupported(node, "qubit register whose length is only known at runtime")
		}
		return nil, failure(node, "expected a Qubit[], got %s", v.TypeName())
	}
	out := make([]qir.Operand, 0, len(elems))
	for _, el := range elems {
		q, err := qubitOperand(node, el)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// condition turns a branch condition into a Bool operand.
func condition(v object.Value, node ast.Node) (qir.Operand, error) {
	op, ok := object.Operand(v)
	if !ok || op.Type != typesys.Bool {
		return qir.Operand{}, failure(node, "condition must be a Bool, got %s", v.TypeName())
	}
	return op, nil
}

func messageText(v object.Value) string {
	if o, ok := object.StaticObject(v); ok {
		if str, ok := o.(*object.String); ok {
			return str.Value
		}
	}
	return v.Inspect()
}
