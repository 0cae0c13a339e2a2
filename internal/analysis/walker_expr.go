package analysis

import (
	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/token"
	"qlower/internal/typesys"
)

func (w *walker) expr(e ast.Expression) value {
	switch x := e.(type) {
	case nil:
		return value{level: Static, typ: typesys.Unit}
	case *ast.IntegerLiteral:
		return value{level: Static, typ: typesys.Int}
	case *ast.DoubleLiteral:
		return value{level: Static, typ: typesys.Double}
	case *ast.BooleanLiteral:
		return value{level: Static, typ: typesys.Bool}
	case *ast.StringLiteral:
		return value{level: Static, typ: typesys.String}
	case *ast.ResultLiteral:
		return value{level: Static, typ: typesys.Result}
	case *ast.PauliLiteral:
		return value{level: Static, typ: typesys.Pauli}
	case *ast.UnitLiteral:
		return value{level: Static, typ: typesys.Unit}

	case *ast.Identifier:
		if v, ok := w.scope.lookup(x.Value); ok {
			return value{level: v.level, typ: v.typ}
		}
		return value{level: Static, typ: typesys.Unknown}

	case *ast.ArrayLiteral:
		out := value{level: Static, typ: typesys.Unknown + "[]"}
		for i, el := range x.Elements {
			v := w.expr(el)
			if i == 0 {
				out.typ = typesys.WithArrayDimension(v.typ)
			}
			if v.level.IsDynamic() {
				out.level = Dynamic
			}
		}
		return out

	case *ast.RepeatArrayLiteral:
		v := w.expr(x.Value)
		size := w.expr(x.Size)
		out := value{level: Static, typ: typesys.WithArrayDimension(v.typ)}
		if v.level.IsDynamic() {
			out.level = Dynamic
		}
		if size.level.IsDynamic() {
			w.charge(caps.SetOf(caps.DynamicAllocation), ast.PosOf(x.Size), "array of runtime size")
			out.level = DynamicShape
		}
		return out

	case *ast.TupleLiteral:
		out := value{level: Static}
		members := make([]string, 0, len(x.Elements))
		for _, el := range x.Elements {
			v := w.expr(el)
			members = append(members, v.typ)
			out.level = out.level.Join(v.level)
		}
		out.typ = typesys.TupleTypeName(members)
		return out

	case *ast.RangeExpression:
		lvl := w.expr(x.Start).level.Join(w.expr(x.End).level)
		if x.Step != nil {
			lvl = lvl.Join(w.expr(x.Step).level)
		}
		if lvl.IsDynamic() {
			w.charge(caps.SetOf(caps.HigherLevelConstructs), ast.PosOf(x), "range with runtime bounds")
			lvl = Dynamic
		}
		return value{level: lvl, typ: typesys.Range}

	case *ast.PrefixExpression:
		v := w.expr(x.Right)
		if !v.level.IsDynamic() {
			return v
		}
		op := x.Operator
		if op == "!" {
			op = "not"
		}
		w.charge(caps.ForOperator(op, v.typ), ast.PosOf(x), "runtime "+op)
		return value{level: Dynamic, typ: v.typ}

	case *ast.InfixExpression:
		return w.binary(x.Operator, w.expr(x.Left), w.expr(x.Right), ast.PosOf(x))

	case *ast.IndexExpression:
		return w.index(x)

	case *ast.CallExpression:
		return w.call(x)

	case *ast.FunctorExpression:
		return value{level: Static, typ: typesys.Unknown}

	case *ast.ConditionalExpression:
		if taken, ok := staticCondition(x.Condition); ok {
			if taken {
				return w.expr(x.Consequence)
			}
			return w.expr(x.Alternative)
		}
		cond := w.expr(x.Condition)
		if !cond.level.IsDynamic() {
			a, b := w.expr(x.Consequence), w.expr(x.Alternative)
			return value{level: a.level.Join(b.level), typ: mergeType(a.typ, b.typ)}
		}
		w.dynDepth++
		a, b := w.expr(x.Consequence), w.expr(x.Alternative)
		w.dynDepth--
		typ := mergeType(a.typ, b.typ)
		w.charge(caps.SetOf(caps.BranchOnMeasurement).Union(caps.ForType(typ)), ast.PosOf(x.Condition), "conditional on a runtime value")
		return value{level: Dynamic.Join(a.level).Join(b.level), typ: typ}
	}
	return value{level: Static, typ: typesys.Unknown}
}

func mergeType(a, b string) string {
	if t, ok := typesys.MergeTypeNames(a, b); ok {
		return t
	}
	return typesys.Unknown
}

// binary abstracts an infix operator, also used for compound assignment.
func (w *walker) binary(op string, l, r value, pos token.Pos) value {
	operand := l.typ
	if operand == "" || operand == typesys.Unknown {
		operand = r.typ
	}
	typ := typesys.ArithmeticResultType(l.typ, r.typ)
	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "and", "or":
		typ = typesys.Bool
	}
	if !l.level.IsDynamic() && !r.level.IsDynamic() {
		return value{level: Static, typ: typ}
	}
	if op == "+" && typesys.IsArray(operand) {
		if l.level == DynamicShape || r.level == DynamicShape {
			w.charge(caps.SetOf(caps.DynamicAllocation), pos, "concatenation of runtime-sized arrays")
			return value{level: DynamicShape, typ: typ}
		}
		return value{level: Dynamic, typ: typ}
	}
	w.charge(caps.ForOperator(op, operand), pos, "runtime "+op)
	return value{level: Dynamic, typ: typ}
}

func (w *walker) index(x *ast.IndexExpression) value {
	left := w.expr(x.Left)
	idx := w.expr(x.Index)
	if idx.typ == typesys.Range {
		if idx.level.IsDynamic() {
			return value{level: DynamicShape, typ: left.typ}
		}
		return value{level: left.level, typ: left.typ}
	}
	out := value{level: Static, typ: elementType(left.typ)}
	switch {
	case idx.level.IsDynamic() && left.level == DynamicShape:
		out.level = Dynamic
	case idx.level.IsDynamic():
		w.charge(caps.SetOf(caps.DynamicIndex), ast.PosOf(x), "index with a runtime value")
		out.level = Dynamic
	case left.level.IsDynamic():
		out.level = Dynamic
	}
	if typesys.IsArray(out.typ) && left.level == DynamicShape {
		out.level = DynamicShape
	}
	return out
}

// arg is an evaluated call argument; tuple literals keep their members so a
// packed controlled call can be matched against the callee's parameters.
type arg struct {
	v     value
	elems []arg
}

func (w *walker) argument(e ast.Expression) arg {
	t, ok := e.(*ast.TupleLiteral)
	if !ok {
		return arg{v: w.expr(e)}
	}
	out := arg{v: value{level: Static}, elems: make([]arg, 0, len(t.Elements))}
	members := make([]string, 0, len(t.Elements))
	for _, el := range t.Elements {
		a := w.argument(el)
		out.elems = append(out.elems, a)
		members = append(members, a.v.typ)
		out.v.level = out.v.level.Join(a.v.level)
	}
	out.v.typ = typesys.TupleTypeName(members)
	return out
}

// spread lines the arguments up with the parameters of the entered variant.
// A call through k Controlled functors passes (c1, (c2, ... (ck, args)));
// the registers merge into the single control parameter.
func spread(args []arg, controlled int, params int) []Level {
	if controlled == 0 {
		out := make([]Level, 0, len(args))
		for _, a := range args {
			out = append(out, a.v.level)
		}
		return out
	}
	if len(args) == 0 {
		return nil
	}
	ctl := args[0].v.level
	rest := arg{v: value{level: Static}}
	if len(args) > 1 {
		rest = args[1]
	}
	for j := 1; j < controlled; j++ {
		if len(rest.elems) != 2 {
			ctl = ctl.Join(rest.v.level)
			break
		}
		ctl = ctl.Join(rest.elems[0].v.level)
		rest = rest.elems[1]
	}
	return append([]Level{ctl}, unpack(rest, params)...)
}

func unpack(a arg, n int) []Level {
	switch {
	case n == 0:
		return nil
	case n == 1:
		return []Level{a.v.level}
	case len(a.elems) == n:
		out := make([]Level, n)
		for i, el := range a.elems {
			out[i] = el.v.level
		}
		return out
	}
	out := make([]Level, n)
	for i := range out {
		out[i] = a.v.level
	}
	return out
}

func (w *walker) call(x *ast.CallExpression) value {
	args := make([]arg, 0, len(x.Arguments))
	for _, a := range x.Arguments {
		args = append(args, w.argument(a))
	}
	pos := ast.PosOf(x)
	site, ok := w.res.Graph.resolve(x)
	if !ok {
		w.charge(caps.Maximal, pos, "unresolved call to "+site.Name)
		w.fails = true
		w.warn(pos, x.String(), "call to %s (%s) does not resolve; assuming every capability", site.Name, site.Variant)
		return value{level: DynamicShape, typ: typesys.Unknown}
	}
	callee := w.res.Graph.Node(site.Callee)
	sum := w.res.Summaries[site.Callee]
	ref, _ := ast.ResolveCallee(x.Function)

	reason := "call to " + callee.Name()
	w.charge(sum.Caps(), pos, reason)
	out := Static
	if sum != nil {
		out = sum.Return
		if sum.Fails {
			w.fails = true
			if w.inDynamic() {
				w.charge(caps.SetOf(caps.ReturnInDynamicScope), pos, reason+" that may fail in a dynamic scope")
			}
		}
	}
	for i, lvl := range spread(args, ref.Controlled, len(callee.Callable.Params)) {
		eff := sum.For(i, lvl)
		w.charge(eff.Caps, pos, reason)
		out = out.Join(eff.Return)
	}
	typ := callee.Callable.ReturnType
	if !typesys.IsArray(typ) && out == DynamicShape {
		out = Dynamic
	}
	return value{level: out, typ: typ}
}
