package evaluator

import (
	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/codegen"
	"qlower/internal/diag"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/typesys"
)

// Loops whose continuation is known at compile time are unrolled up to the
// iteration budget. Once the continuation depends on a runtime value the
// remaining iterations are emitted once as a rotated loop: a header holding a
// phi per loop-carried value, the body, and a conditional back edge.

func (s *state) budget(node ast.Node, iterations int64) error {
	if max := int64(s.cfg.MaxLoopIterations); max > 0 && iterations > max {
		return diag.Errorf(diag.BoundedLoopOverflow, ast.PosOf(node),
			"loop runs more than %d iterations", max)
	}
	return nil
}

func (s *state) countIteration() {
	s.unrolled++
	loopIterationsUnrolled.Inc()
}

func (s *state) forStatement(f *frame, st *ast.ForStatement, env *object.Environment) (completion, error) {
	if r, ok := st.Iterable.(*ast.RangeExpression); ok {
		start, step, end, err := s.rangeParts(f, r, env)
		if err != nil {
			return normal, err
		}
		if object.IsFullyStatic(start) && object.IsFullyStatic(end) {
			rng := &object.Range{Start: mustInt(start), Step: step, End: mustInt(end)}
			return s.unroll(f, st, env, rng.Len(), func(i int64) object.Value {
				return object.Int(rng.At(i))
			})
		}
		return s.dynamicFor(f, st, env, start, end, step, nil)
	}

	iter, err := s.expr(f, st.Iterable, env)
	if err != nil {
		return normal, err
	}
	if d, ok := iter.(*object.Dynamic); ok {
		if d.Operand.Type != "Qubit[]" {
			return normal, unsupported(st, "loop over a runtime %s", d.Operand.Type)
		}
		n, err := s.em.ArrayLen(d.Operand)
		if err != nil {
			return normal, err
		}
		last, err := s.em.Op("sub", typesys.Int, n, qir.ConstInt(1))
		if err != nil {
			return normal, err
		}
		return s.dynamicFor(f, st, env, object.Int(0), object.NewDynamic(last), 1,
			func(i qir.Operand) (object.Value, error) {
				q, err := s.em.ArrayGet(d.Operand, i)
				return object.NewDynamic(q), err
			})
	}
	switch o := iter.(*object.Static).Object.(type) {
	case *object.Range:
		return s.unroll(f, st, env, o.Len(), func(i int64) object.Value { return object.Int(o.At(i)) })
	case *object.Array:
		return s.unroll(f, st, env, int64(len(o.Elements)), func(i int64) object.Value { return o.Elements[i] })
	}
	return normal, failure(st, "cannot iterate over %s", iter.TypeName())
}

// rangeParts evaluates the bounds of a range written in a for header. The
// step must be known at compile time.
func (s *state) rangeParts(f *frame, r *ast.RangeExpression, env *object.Environment) (start object.Value, step int64, end object.Value, err error) {
	if start, err = s.expr(f, r.Start, env); err != nil {
		return
	}
	if end, err = s.expr(f, r.End, env); err != nil {
		return
	}
	step = 1
	if r.Step != nil {
		var v object.Value
		if v, err = s.expr(f, r.Step, env); err != nil {
			return
		}
		n, ok := staticInt(v)
		if !ok {
			if object.IsDynamic(v) {
				err = unsupported(r.Step, "range with a runtime step")
			} else {
				err = failure(r.Step, "range step must be an Int, got %s", v.TypeName())
			}
			return
		}
		step = n
	}
	if step == 0 {
		err = failure(r, "range step must not be zero")
		return
	}
	for _, v := range []object.Value{start, end} {
		if v.TypeName() != typesys.Int {
			err = failure(r, "range bounds must be Int, got %s", v.TypeName())
			return
		}
	}
	return
}

// unroll runs the body once per element, binding the loop pattern to at(i).
func (s *state) unroll(f *frame, st *ast.ForStatement, env *object.Environment, n int64, at func(int64) object.Value) (completion, error) {
	if err := s.budget(st, n); err != nil {
		return normal, err
	}
	for k := int64(0); k < n; k++ {
		if err := s.checkCancel(); err != nil {
			return normal, err
		}
		i := k
		if st.Reverse {
			i = n - 1 - k
		}
		comp, err := s.scoped(env, func(inner *object.Environment) (completion, error) {
			if err := s.bind(st, st.Pattern, at(i), false, inner); err != nil {
				return normal, err
			}
			return s.statements(f, st.Body.Statements, inner)
		})
		s.countIteration()
		if err != nil || comp == exited {
			return comp, err
		}
	}
	return normal, nil
}

// dynamicFor lowers a loop over start..step..end where a bound is a runtime
// value. element maps the counter to the bound value when iterating an
// array; nil binds the counter itself.
func (s *state) dynamicFor(f *frame, st *ast.ForStatement, env *object.Environment, start, end object.Value, step int64, element func(qir.Operand) (object.Value, error)) (completion, error) {
	if st.Reverse {
		return normal, unsupported(st, "reversed loop over a runtime range")
	}
	from, _ := object.Operand(start)
	to, _ := object.Operand(end)
	cmp := "le"
	if step < 0 {
		cmp = "ge"
	}
	if err := s.requireSet(caps.ForType(typesys.Int), st); err != nil {
		return normal, err
	}
	counter := &object.Binding{Name: "", Value: start, Mutable: true}
	l, err := s.newLoop(st, env, []*object.Binding{counter}, st.Body)
	if err != nil {
		return normal, err
	}
	c0, err := s.em.Op(cmp, typesys.Bool, from, to)
	if err != nil {
		return normal, err
	}
	pre := s.em.Current()
	if err := l.branch(c0, false, l.header); err != nil {
		return normal, err
	}
	if err := l.open(pre); err != nil {
		return normal, err
	}

	s.enterDynamic(f)
	_, err = s.scoped(env, func(inner *object.Environment) (completion, error) {
		i, _ := object.Operand(counter.Value)
		v := counter.Value
		if element != nil {
			var err error
			if v, err = element(i); err != nil {
				return normal, err
			}
		}
		if err := s.bind(st, st.Pattern, v, false, inner); err != nil {
			return normal, err
		}
		comp, err := s.statements(f, st.Body.Statements, inner)
		if err != nil || s.em.Current().Terminated() {
			return comp, err
		}
		next, err := s.em.Op("add", typesys.Int, i, qir.ConstInt(step))
		if err != nil {
			return normal, err
		}
		counter.Value = object.NewDynamic(next)
		c, err := s.em.Op(cmp, typesys.Bool, next, to)
		if err != nil {
			return normal, err
		}
		if err := l.patch(); err != nil {
			return normal, err
		}
		return normal, l.branch(c, false, l.header)
	})
	s.leaveDynamic(f)
	if err != nil {
		return normal, err
	}
	return normal, l.close()
}

func (s *state) whileStatement(f *frame, st *ast.WhileStatement, env *object.Environment) (completion, error) {
	for n := int64(1); ; n++ {
		if err := s.checkCancel(); err != nil {
			return normal, err
		}
		cond, err := s.expr(f, st.Condition, env)
		if err != nil {
			return normal, err
		}
		b, ok := staticBool(cond)
		if !ok {
			return s.dynamicWhile(f, st, env, cond)
		}
		if !b {
			return normal, nil
		}
		if err := s.budget(st, n); err != nil {
			return normal, err
		}
		comp, err := s.block(f, st.Body, env)
		s.countIteration()
		if err != nil || comp == exited {
			return comp, err
		}
	}
}

func (s *state) dynamicWhile(f *frame, st *ast.WhileStatement, env *object.Environment, cond object.Value) (completion, error) {
	c0, err := condition(cond, st.Condition)
	if err != nil {
		return normal, err
	}
	l, err := s.newLoop(st, env, nil, st.Condition, st.Body)
	if err != nil {
		return normal, err
	}
	pre := s.em.Current()
	if err := l.branch(c0, false, l.header); err != nil {
		return normal, err
	}
	if err := l.open(pre); err != nil {
		return normal, err
	}

	s.enterDynamic(f)
	err = func() error {
		if _, err := s.block(f, st.Body, env); err != nil || s.em.Current().Terminated() {
			return err
		}
		cond, err := s.expr(f, st.Condition, env)
		if err != nil {
			return err
		}
		c, err := condition(cond, st.Condition)
		if err != nil {
			return err
		}
		if err := l.patch(); err != nil {
			return err
		}
		return l.branch(c, false, l.header)
	}()
	s.leaveDynamic(f)
	if err != nil {
		return normal, err
	}
	return normal, l.close()
}

// repeatStatement runs body, then until, then fixup while until is false.
// until and fixup see the body's bindings.
func (s *state) repeatStatement(f *frame, st *ast.RepeatStatement, env *object.Environment) (completion, error) {
	for n := int64(1); ; n++ {
		if err := s.checkCancel(); err != nil {
			return normal, err
		}
		if err := s.budget(st, n); err != nil {
			return normal, err
		}
		done := false
		comp, err := s.scoped(env, func(inner *object.Environment) (completion, error) {
			comp, err := s.statements(f, st.Body.Statements, inner)
			if err != nil || comp == exited {
				return comp, err
			}
			until, err := s.expr(f, st.Until, inner)
			if err != nil {
				return normal, err
			}
			b, ok := staticBool(until)
			if !ok {
				done = true
				return s.dynamicRepeat(f, st, env, inner, until)
			}
			if b {
				done = true
				return normal, nil
			}
			return s.block(f, st.Fixup, inner)
		})
		s.countIteration()
		if err != nil || comp == exited || done {
			return comp, err
		}
	}
}

// dynamicRepeat continues a repeat loop whose until condition became a
// runtime value in the iteration scope inner.
func (s *state) dynamicRepeat(f *frame, st *ast.RepeatStatement, env, inner *object.Environment, until object.Value) (completion, error) {
	c0, err := condition(until, st.Until)
	if err != nil {
		return normal, err
	}
	l, err := s.newLoop(st, env, nil, st.Body, st.Until, st.Fixup)
	if err != nil {
		return normal, err
	}
	fixup, err := s.newBlock("repeat.fixup")
	if err != nil {
		return normal, err
	}
	if err := l.branch(c0, true, fixup); err != nil {
		return normal, err
	}
	s.em.SetInsertPoint(fixup)

	s.enterDynamic(f)
	defer s.leaveDynamic(f)
	if _, err := s.block(f, st.Fixup, inner); err != nil {
		return normal, err
	}
	if pre := s.em.Current(); !pre.Terminated() {
		if err := s.em.Br(l.header); err != nil {
			return normal, err
		}
		if err := l.open(pre); err != nil {
			return normal, err
		}
		_, err := s.scoped(env, func(body *object.Environment) (completion, error) {
			comp, err := s.statements(f, st.Body.Statements, body)
			if err != nil || s.em.Current().Terminated() {
				return comp, err
			}
			until, err := s.expr(f, st.Until, body)
			if err != nil {
				return normal, err
			}
			c, err := condition(until, st.Until)
			if err != nil {
				return normal, err
			}
			fix, err := s.newBlock("repeat.fixup")
			if err != nil {
				return normal, err
			}
			if err := l.branch(c, true, fix); err != nil {
				return normal, err
			}
			s.em.SetInsertPoint(fix)
			if _, err := s.block(f, st.Fixup, body); err != nil || s.em.Current().Terminated() {
				return normal, err
			}
			if err := l.patch(); err != nil {
				return normal, err
			}
			return normal, s.em.Br(l.header)
		})
		if err != nil {
			return normal, err
		}
	}
	return normal, l.close()
}

// loop is a rotated loop under construction.
type loop struct {
	s       *state
	node    ast.Node
	carried []*object.Binding
	header  *qir.Block
	exit    *qir.Block
	// slots holds, per carried binding, the header phi of each leaf; leaves
	// without an operand form have none and must not change.
	slots  [][]phiSlot
	exits  [][]edge
	qubits []codegen.QubitState
}

type phiSlot struct {
	phi    qir.Operand
	hasPhi bool
	leaf   object.Value
}

// newLoop prepares a rotated loop. The carried values are the mutables
// assigned anywhere in scan plus extra.
func (s *state) newLoop(node ast.Node, env *object.Environment, extra []*object.Binding, scan ...ast.Node) (*loop, error) {
	if err := s.require(caps.BackwardBranching, node); err != nil {
		return nil, err
	}
	header, err := s.newBlock("loop")
	if err != nil {
		return nil, err
	}
	exit, err := s.newBlock("loop.end")
	if err != nil {
		return nil, err
	}
	carried := append(assigned(env, scan...), extra...)
	return &loop{
		s:       s,
		node:    node,
		carried: carried,
		header:  header,
		exit:    exit,
		slots:   make([][]phiSlot, len(carried)),
		exits:   make([][]edge, len(carried)),
	}, nil
}

// assigned lists the visible mutables that a set or update inside nodes
// writes, in source order.
func assigned(env *object.Environment, nodes ...ast.Node) []*object.Binding {
	var out []*object.Binding
	seen := map[*object.Binding]bool{}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ast.Inspect(n, func(node ast.Node) bool {
			var name string
			switch x := node.(type) {
			case *ast.SetStatement:
				name = x.Name.Value
			case *ast.UpdateStatement:
				name = x.Name.Value
			default:
				return true
			}
			if b, ok := env.Lookup(name); ok && b.Mutable && !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
			return true
		})
	}
	return out
}

// branch leaves the loop from the current block when c equals exitOn and
// continues at stay otherwise.
func (l *loop) branch(c qir.Operand, exitOn bool, stay *qir.Block) error {
	from := l.s.em.Current()
	for i, b := range l.carried {
		l.exits[i] = append(l.exits[i], edge{from: from, value: b.Value})
	}
	l.qubits = append(l.qubits, l.s.em.QubitState())
	if exitOn {
		return l.s.em.CondBr(c, l.exit, stay)
	}
	return l.s.em.CondBr(c, stay, l.exit)
}

// open starts the header, entered from pre with the current values.
func (l *loop) open(pre *qir.Block) error {
	l.s.em.SetInsertPoint(l.header)
	for i, b := range l.carried {
		leaves := flatten(b.Value)
		slots := make([]phiSlot, len(leaves))
		for j, leaf := range leaves {
			slots[j].leaf = leaf
			op, ok := object.Operand(leaf)
			if !ok {
				continue
			}
			if err := l.s.requireSet(caps.ForType(op.Type), l.node); err != nil {
				return err
			}
			phi, err := l.s.em.Phi(op.Type, qir.PhiEdge{Block: pre.ID, Value: op})
			if err != nil {
				return err
			}
			slots[j] = phiSlot{phi: phi, hasPhi: true, leaf: leaf}
			leaves[j] = object.NewDynamic(phi)
		}
		l.slots[i] = slots
		b.Value = rebuild(b.Value, leaves)
	}
	return nil
}

// patch adds the back edge from the current block to every header phi.
func (l *loop) patch() error {
	latch := l.s.em.Current()
	for i, b := range l.carried {
		leaves := flatten(b.Value)
		slots := l.slots[i]
		if len(leaves) != len(slots) {
			return unsupported(l.node, "loop changes the shape of %s", b.Name)
		}
		for j, slot := range slots {
			if !slot.hasPhi {
				if !object.SameValue(slot.leaf, leaves[j]) {
					return unsupported(l.node, "loop changes %s, which has no runtime representation", b.Name)
				}
				continue
			}
			op, ok := object.Operand(leaves[j])
			if !ok || op.Type != slot.phi.Type {
				return unsupported(l.node, "loop changes the type of %s", b.Name)
			}
			if err := l.s.em.AddIncoming(l.header, slot.phi, qir.PhiEdge{Block: latch.ID, Value: op}); err != nil {
				return err
			}
		}
	}
	return nil
}

// close continues after the loop with the carried values merged over every
// exit edge.
func (l *loop) close() error {
	l.s.em.SetInsertPoint(l.exit)
	l.s.em.JoinQubits(l.qubits...)
	for i, b := range l.carried {
		v, err := l.s.join(l.exits[i], l.node)
		if err != nil {
			return err
		}
		b.Value = v
	}
	return nil
}
