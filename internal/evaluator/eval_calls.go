package evaluator

import (
	"strings"

	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/diag"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/typesys"
)

// call inlines a call to a user callable or lowers it to target
// instructions when the callee is an intrinsic.
func (s *state) call(f *frame, x *ast.CallExpression, env *object.Environment) (object.Value, error) {
	ref, ok := ast.ResolveCallee(x.Function)
	if !ok {
		return nil, unsupported(x, "call through a callable value")
	}
	c, ok := s.prog.Lookup(ref.Name)
	if !ok {
		return nil, failure(x, "call to undefined callable %s", ref.Name)
	}
	v := ref.Variant()
	spec := c.Spec(v)
	if spec == nil {
		return nil, failure(x, "%s has no %s specialization", c.Name, v)
	}
	args, err := s.exprs(f, x.Arguments, env)
	if err != nil {
		return nil, err
	}
	controls, args, err := spread(x, c, ref.Controlled, args)
	if err != nil {
		return nil, err
	}
	if in, ok := builtins.Resolve(c); ok {
		return s.intrinsic(x, in, v, controls, args)
	}
	return s.inline(x, c, v, spec, controls, args)
}

// spread splits the arguments of a call entering a controlled variant
// through n Controlled applications into the concatenated control register
// and the callee's own arguments.
func spread(x *ast.CallExpression, c *ast.Callable, n int, args []object.Value) ([]object.Value, []object.Value, error) {
	var controls []object.Value
	for ; n > 0; n-- {
		if len(args) != 2 {
			return nil, nil, failure(x, "controlled call of %s expects (controls, arguments), got %d arguments", c.Name, len(args))
		}
		qs, ok := object.Elements(args[0])
		if !ok || !isArray(args[0]) {
			if object.IsDynamic(args[0]) {
				return nil, nil, unsupported(x, "control register whose length is only known at runtime")
			}
			return nil, nil, failure(x, "controls must be a Qubit[], got %s", args[0].TypeName())
		}
		controls = append(controls, qs...)
		args = unpack(args[1], n-1, len(c.Params))
	}
	if len(args) != len(c.Params) {
		return nil, nil, failure(x, "%s expects %d arguments, got %d", c.Name, len(c.Params), len(args))
	}
	return controls, args, nil
}

// unpack opens the packed argument tuple of a controlled call. With further
// Controlled applications pending it is itself a (controls, arguments) pair.
func unpack(packed object.Value, pending, params int) []object.Value {
	if pending > 0 || params > 1 {
		if elems, ok := tupleElements(packed); ok {
			return elems
		}
	}
	if params == 0 && pending == 0 {
		if o, ok := object.StaticObject(packed); ok {
			if _, unit := o.(*object.Unit); unit {
				return nil
			}
		}
	}
	return []object.Value{packed}
}

// inline evaluates a user callable's body in a fresh frame. Pure functions
// called with compile-time arguments are memoized.
func (s *state) inline(x *ast.CallExpression, c *ast.Callable, v ast.Variant, spec *ast.Specialization, controls, args []object.Value) (object.Value, error) {
	if spec.Body == nil {
		return nil, failure(x, "%s has no body for the %s specialization", c.Name, v)
	}
	if max := s.cfg.MaxCallDepth; max > 0 && s.depth >= max {
		return nil, diag.Errorf(diag.RecursionDepthExceeded, ast.PosOf(x),
			"call to %s exceeds the call depth limit of %d", c.Name, max)
	}
	key, cacheable := cacheKey(c, v, controls, args)
	if cacheable {
		if r, ok := s.cache.Get(key); ok {
			functionCacheTotal.WithLabelValues("hit").Inc()
			return r, nil
		}
		functionCacheTotal.WithLabelValues("miss").Inc()
	}

	env := object.NewEnvironment()
	params := c.ParamsFor(v)
	if v.IsControlled() {
		env.Define(params[0].Name, qubitArray(controls), false)
		params = params[1:]
	}
	for i, p := range params {
		env.Define(p.Name, args[i], false)
	}
	callee := &frame{callable: c, variant: v, ownedBase: len(s.owned)}
	before := s.em.Emitted()

	s.depth++
	comp, err := s.block(callee, spec.Body, env)
	s.depth--
	if err != nil {
		return nil, err
	}
	result, err := s.leave(callee, comp)
	if err != nil {
		return nil, err
	}
	if s.em.Current().Terminated() {
		// every path through the callee failed; what follows is unreachable
		// and dropped when the module is finished
		dead, err := s.newBlock("unreachable")
		if err != nil {
			return nil, err
		}
		s.em.SetInsertPoint(dead)
	}
	if cacheable && callee.exit == nil && s.em.Emitted() == before && object.IsFullyStatic(result) {
		s.cache.Add(key, result)
	}
	return result, nil
}

func cacheKey(c *ast.Callable, v ast.Variant, controls, args []object.Value) (string, bool) {
	if c.Kind != ast.Function || len(controls) > 0 {
		return "", false
	}
	parts := make([]string, len(args))
	for i, a := range args {
		if !object.IsFullyStatic(a) {
			return "", false
		}
		parts[i] = a.Inspect()
	}
	return c.Name + "/" + v.String() + "(" + strings.Join(parts, ", ") + ")", true
}

// intrinsic lowers a call to a target intrinsic.
func (s *state) intrinsic(x *ast.CallExpression, in *builtins.Intrinsic, v ast.Variant, controls, args []object.Value) (object.Value, error) {
	if err := s.requireSet(in.Caps, x); err != nil {
		return nil, err
	}
	switch in.Class {
	case builtins.Gate:
		return object.UnitValue, s.gate(x, in, v, controls, args)

	case builtins.Measurement:
		if v != ast.Body {
			return nil, unsupported(x, "%s variant of measurement %s", v, in.Name)
		}
		return s.measure(x, in, args)

	case builtins.ResetOp:
		for _, a := range args {
			var qs []qir.Operand
			var err error
			if typesys.IsArray(a.TypeName()) {
				qs, err = qubitOperands(x, a)
			} else {
				var q qir.Operand
				q, err = qubitOperand(x, a)
				qs = []qir.Operand{q}
			}
			if err != nil {
				return nil, err
			}
			for _, q := range qs {
				if err := s.em.Reset(q); err != nil {
					return nil, err
				}
			}
		}
		return object.UnitValue, nil

	case builtins.Classical:
		return s.classical(x, in, args)
	}
	return nil, failure(x, "unknown intrinsic class %s", in.Class)
}

func (s *state) gate(x *ast.CallExpression, in *builtins.Intrinsic, v ast.Variant, controls, args []object.Value) error {
	ctls := make([]qir.Operand, 0, len(controls))
	for _, c := range controls {
		q, err := qubitOperand(x, c)
		if err != nil {
			return err
		}
		ctls = append(ctls, q)
	}
	var classical, targets []qir.Operand
	for i, p := range in.Params {
		a := args[i]
		switch p.Type {
		case typesys.Qubit:
			q, err := qubitOperand(x, a)
			if err != nil {
				return err
			}
			targets = append(targets, q)
		case "Qubit[]":
			qs, err := qubitOperands(x, a)
			if err != nil {
				return err
			}
			targets = append(targets, qs...)
		default:
			if in.Rotation && v.IsAdjoint() {
				var err error
				if a, err = s.negate(x, a); err != nil {
					return err
				}
			}
			op, ok := object.Operand(a)
			if !ok {
				return unsupported(x, "argument %s of %s has no runtime form", p.Name, in.Name)
			}
			if !op.IsConst() {
				if err := s.requireSet(in.DynamicCaps, x); err != nil {
					return err
				}
			}
			classical = append(classical, op)
		}
	}
	name := in.QIS
	if v.IsAdjoint() && in.AdjointQIS != "" {
		name = in.AdjointQIS
	}
	name, ctls, targets = controlledForm(in.Name, name, ctls, targets)
	return s.em.Gate(name, ctls, append(classical, targets...))
}

func (s *state) negate(node ast.Node, v object.Value) (object.Value, error) {
	if o, ok := object.StaticObject(v); ok {
		r, err := foldPrefix("-", o)
		if err != nil {
			return nil, failure(node, "%v", err)
		}
		return object.NewStatic(r), nil
	}
	op, _ := object.Operand(v)
	r, err := s.em.Op("neg", op.Type, op)
	if err != nil {
		return nil, err
	}
	return object.NewDynamic(r), nil
}

// controlledForm rewrites the fixed two- and three-qubit gates to controlled
// single-qubit gates, then uses the target's native controlled gate when
// one matches.
func controlledForm(gate, qis string, ctls, targets []qir.Operand) (string, []qir.Operand, []qir.Operand) {
	extra := 0
	switch gate {
	case "CNOT", "CX":
		gate, qis, extra = "X", "x", 1
	case "CY":
		gate, qis, extra = "Y", "y", 1
	case "CZ":
		gate, qis, extra = "Z", "z", 1
	case "CCNOT":
		gate, qis, extra = "X", "x", 2
	}
	if extra > 0 {
		all := append(append([]qir.Operand(nil), ctls...), targets[:extra]...)
		ctls, targets = all, targets[extra:]
	}
	native := ""
	switch {
	case gate == "X" && len(ctls) == 1:
		native = "cx"
	case gate == "X" && len(ctls) == 2:
		native = "ccx"
	case gate == "Y" && len(ctls) == 1:
		native = "cy"
	case gate == "Z" && len(ctls) == 1:
		native = "cz"
	}
	if native != "" {
		return native, nil, append(append([]qir.Operand(nil), ctls...), targets...)
	}
	return qis, ctls, targets
}

// measure lowers a measurement. Measure measures a single qubit in the
// given Pauli basis by rotating it to Z and back.
func (s *state) measure(x *ast.CallExpression, in *builtins.Intrinsic, args []object.Value) (object.Value, error) {
	pos := ast.PosOf(x)
	if in.Name == "Measure" {
		bases, _ := object.Elements(args[0])
		qs, _ := object.Elements(args[1])
		if len(bases) != 1 || len(qs) != 1 {
			return nil, unsupported(x, "Measure of anything but a single qubit in a single basis")
		}
		o, _ := object.StaticObject(bases[0])
		pauli, ok := o.(*object.Pauli)
		if !ok {
			return nil, unsupported(x, "measurement basis %s", bases[0].Inspect())
		}
		q, err := qubitOperand(x, qs[0])
		if err != nil {
			return nil, err
		}
		var into, back []string
		switch pauli.Value {
		case "PauliI":
			return object.ResultLit(false), nil
		case "PauliX":
			into, back = []string{"h"}, []string{"h"}
		case "PauliY":
			into, back = []string{"s__adj", "h"}, []string{"h", "s"}
		}
		for _, g := range into {
			if err := s.em.Gate(g, nil, []qir.Operand{q}); err != nil {
				return nil, err
			}
		}
		r, err := s.em.Measure(in.QIS, q, pos)
		if err != nil {
			return nil, err
		}
		for _, g := range back {
			if err := s.em.Gate(g, nil, []qir.Operand{q}); err != nil {
				return nil, err
			}
		}
		return object.NewDynamic(r), nil
	}

	for i, p := range in.Params {
		if p.Type != typesys.Qubit {
			continue
		}
		q, err := qubitOperand(x, args[i])
		if err != nil {
			return nil, err
		}
		r, err := s.em.Measure(in.QIS, q, pos)
		if err != nil {
			return nil, err
		}
		return object.NewDynamic(r), nil
	}
	return nil, failure(x, "measurement %s takes no qubit", in.Name)
}

// classical folds a classical intrinsic over compile-time arguments and
// calls its runtime implementation otherwise.
func (s *state) classical(x *ast.CallExpression, in *builtins.Intrinsic, args []object.Value) (object.Value, error) {
	switch in.Name {
	case "Message":
		if !object.IsFullyStatic(args[0]) {
			if err := s.requireSet(in.DynamicCaps, x); err != nil {
				return nil, err
			}
		}
		return object.UnitValue, s.em.Message(messageText(args[0]))
	case "Length":
		if d, ok := args[0].(*object.Dynamic); ok && d.Operand.Type == "Qubit[]" {
			if err := s.requireSet(in.DynamicCaps, x); err != nil {
				return nil, err
			}
			n, err := s.em.ArrayLen(d.Operand)
			if err != nil {
				return nil, err
			}
			return object.NewDynamic(n), nil
		}
		if elems, ok := object.Elements(args[0]); ok && isArray(args[0]) {
			return object.Int(int64(len(elems))), nil
		}
	}

	if objs, ok := staticObjects(args); ok && in.Fold != nil {
		r, err := in.Fold(objs)
		if err != nil {
			return nil, failure(x, "%s: %v", in.Name, err)
		}
		return object.NewStatic(r), nil
	}
	if in.Extern == "" {
		return nil, unsupported(x, "%s has no runtime implementation", in.Name)
	}
	ops := make([]qir.Operand, 0, len(args))
	dynamic := false
	for _, a := range args {
		op, ok := object.Operand(a)
		if !ok {
			return nil, unsupported(x, "argument %s of %s has no runtime form", a.Inspect(), in.Name)
		}
		dynamic = dynamic || !op.IsConst()
		ops = append(ops, op)
	}
	if dynamic {
		if err := s.requireSet(in.DynamicCaps, x); err != nil {
			return nil, err
		}
	}
	r, err := s.em.CallExtern(in.Extern, in.ReturnType, ops...)
	if err != nil {
		return nil, err
	}
	if in.ReturnType == typesys.Unit {
		return object.UnitValue, nil
	}
	return object.NewDynamic(r), nil
}

func staticObjects(args []object.Value) ([]object.Object, bool) {
	out := make([]object.Object, 0, len(args))
	for _, a := range args {
		if !object.IsFullyStatic(a) {
			return nil, false
		}
		o, _ := object.StaticObject(a)
		out = append(out, o)
	}
	return out, true
}
