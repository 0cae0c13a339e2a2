package evaluator

import (
	"strings"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/codegen"
	"qlower/internal/diag"
	"qlower/internal/object"
	"qlower/internal/qir"
	"qlower/internal/typesys"
)

// block evaluates b in a new scope enclosed by env.
func (s *state) block(f *frame, b *ast.BlockStatement, env *object.Environment) (completion, error) {
	if b == nil {
		return normal, nil
	}
	return s.scoped(env, func(inner *object.Environment) (completion, error) {
		return s.statements(f, b.Statements, inner)
	})
}

// scoped runs fn in a scope enclosed by env. Qubits allocated in the scope
// are released when it closes.
func (s *state) scoped(env *object.Environment, fn func(*object.Environment) (completion, error)) (completion, error) {
	inner := object.NewEnclosedEnvironment(env)
	s.owned = append(s.owned, nil)
	comp, err := fn(inner)
	owned := s.owned[len(s.owned)-1]
	s.owned = s.owned[:len(s.owned)-1]
	if err != nil {
		return comp, err
	}
	return comp, s.release(owned)
}

func (s *state) statements(f *frame, stmts []ast.Statement, env *object.Environment) (completion, error) {
	for _, st := range stmts {
		comp, err := s.statement(f, st, env)
		if err != nil {
			return comp, annotateError(err, st, f)
		}
		if comp == exited {
			return exited, nil
		}
	}
	return normal, nil
}

func (s *state) statement(f *frame, stmt ast.Statement, env *object.Environment) (completion, error) {
	switch st := stmt.(type) {
	case *ast.LetStatement:
		v, err := s.expr(f, st.Value, env)
		if err != nil {
			return normal, err
		}
		return normal, s.bind(st, st.Pattern, v, st.Mutable, env)

	case *ast.SetStatement:
		return normal, s.set(f, st, env)

	case *ast.UpdateStatement:
		return normal, s.update(f, st, env)

	case *ast.ReturnStatement:
		return s.returnStatement(f, st, env)

	case *ast.FailStatement:
		return s.fail(f, st, env)

	case *ast.UseStatement:
		return normal, s.use(f, st, env)

	case *ast.ExpressionStatement:
		if st.Expression == nil {
			return normal, nil
		}
		_, err := s.expr(f, st.Expression, env)
		return normal, err

	case *ast.BlockStatement:
		return s.block(f, st, env)

	case *ast.IfStatement:
		return s.ifStatement(f, st, env)

	case *ast.ForStatement:
		return s.forStatement(f, st, env)

	case *ast.WhileStatement:
		return s.whileStatement(f, st, env)

	case *ast.RepeatStatement:
		return s.repeatStatement(f, st, env)

	case *ast.WithinApplyStatement:
		return s.withinApply(f, st, env)

	case nil:
		return normal, nil
	}
	return normal, failure(stmt, "unsupported statement %T", stmt)
}

// bind introduces the names of p. Tuple patterns destructure static tuples.
func (s *state) bind(node ast.Node, p *ast.Pattern, v object.Value, mutable bool, env *object.Environment) error {
	if p == nil {
		return nil
	}
	if !p.IsTuple() {
		env.Define(p.Name, v, mutable)
		return nil
	}
	elems, ok := tupleElements(v)
	if !ok || len(elems) != len(p.Elements) {
		return failure(node, "cannot bind %s to pattern %s", v.Inspect(), p)
	}
	for i, el := range p.Elements {
		if err := s.bind(node, el, elems[i], mutable, env); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) set(f *frame, st *ast.SetStatement, env *object.Environment) error {
	rhs, err := s.expr(f, st.Value, env)
	if err != nil {
		return err
	}
	b, ok := env.Lookup(st.Name.Value)
	if !ok {
		return failure(st, "assignment to undeclared variable %s", st.Name.Value)
	}
	if op := strings.TrimSuffix(st.Operator, "="); op != "" {
		if rhs, err = s.binary(st, op, b.Value, rhs); err != nil {
			return err
		}
	}
	if err := env.Assign(st.Name.Value, rhs); err != nil {
		return failure(st, "%v", err)
	}
	return nil
}

// update evaluates "set a w/= i <- v". A runtime index rewrites every
// element through a select on its position.
func (s *state) update(f *frame, st *ast.UpdateStatement, env *object.Environment) error {
	name := st.Name.Value
	b, ok := env.Lookup(name)
	if !ok {
		return failure(st, "assignment to undeclared variable %s", name)
	}
	idx, err := s.expr(f, st.Index, env)
	if err != nil {
		return err
	}
	val, err := s.expr(f, st.Value, env)
	if err != nil {
		return err
	}
	arr, ok := staticArray(b.Value)
	if !ok {
		return unsupported(st, "update of %s, whose length is only known at runtime", name)
	}
	elems := append([]object.Value(nil), arr.Elements...)

	if o, ok := object.StaticObject(idx); ok {
		i, isInt := o.(*object.Integer)
		if !isInt {
			return failure(st, "array update index must be an Int, got %s", idx.TypeName())
		}
		if i.Value < 0 || i.Value >= int64(len(elems)) {
			return failure(st, "index out of range: %d (length %d)", i.Value, len(elems))
		}
		elems[i.Value] = val
	} else {
		at, ok := object.Operand(idx)
		if !ok || at.Type != typesys.Int {
			return failure(st, "array update index must be an Int, got %s", idx.TypeName())
		}
		if err := s.require(caps.DynamicIndex, st); err != nil {
			return err
		}
		for j := range elems {
			c, err := s.em.Op("eq", typesys.Bool, at, qir.ConstInt(int64(j)))
			if err != nil {
				return err
			}
			if elems[j], err = s.selectValue(st, c, val, elems[j]); err != nil {
				return err
			}
		}
	}
	updated := object.NewStatic(&object.Array{ElementType: arr.ElementType, Elements: elems})
	if err := env.Assign(name, updated); err != nil {
		return failure(st, "%v", err)
	}
	return nil
}

// returnStatement records a return. Outside runtime control flow the value
// is kept in the frame; otherwise the current block branches to the frame's
// exit, where all returned values meet.
func (s *state) returnStatement(f *frame, st *ast.ReturnStatement, env *object.Environment) (completion, error) {
	v := object.UnitValue
	if st.ReturnValue != nil {
		var err error
		if v, err = s.expr(f, st.ReturnValue, env); err != nil {
			return normal, err
		}
	}
	if f.dyn == 0 && f.exit == nil {
		f.result = v
		return exited, nil
	}
	if f.dyn > 0 {
		if err := s.require(caps.ReturnInDynamicScope, st); err != nil {
			return normal, err
		}
	}
	if f.exit == nil {
		exit, err := s.newBlock(f.callable.Name + ".exit")
		if err != nil {
			return normal, err
		}
		f.exit = exit
	}
	if err := s.unwind(f); err != nil {
		return normal, err
	}
	f.returns = append(f.returns, edge{from: s.em.Current(), value: v})
	return exited, s.em.Br(f.exit)
}

// unwind emits, on a path about to branch to the frame's exit, what the
// frame's open blocks would emit when closing: the adjoints of within blocks
// and the release of runtime-sized registers, innermost first.
func (s *state) unwind(f *frame) error {
	undos := f.undos
	next := func(level int) error {
		for len(undos) > 0 && undos[len(undos)-1].level > level {
			u := undos[len(undos)-1]
			undos = undos[:len(undos)-1]
			if _, err := s.block(f, u.block, u.env); err != nil {
				return err
			}
		}
		return nil
	}
	for level := len(s.owned) - 1; level >= f.ownedBase; level-- {
		if err := next(level); err != nil {
			return err
		}
		owned := s.owned[level]
		for i := len(owned) - 1; i >= 0; i-- {
			if d, ok := owned[i].(*object.Dynamic); ok {
				if err := s.em.ReleaseArray(d.Operand); err != nil {
					return err
				}
			}
		}
	}
	return next(-1)
}

// fail aborts compilation when reached unconditionally and becomes a failing
// terminator under runtime control flow.
func (s *state) fail(f *frame, st *ast.FailStatement, env *object.Environment) (completion, error) {
	msg, err := s.expr(f, st.Message, env)
	if err != nil {
		return normal, err
	}
	text := messageText(msg)
	if s.dyn == 0 {
		return exited, diag.Errorf(diag.EvaluationFailure, ast.PosOf(st), "program failed: %s", text)
	}
	if err := s.require(caps.ReturnInDynamicScope, st); err != nil {
		return normal, err
	}
	return exited, s.em.Fail(text)
}

func (s *state) use(f *frame, st *ast.UseStatement, env *object.Environment) error {
	pos := ast.PosOf(st)
	var v object.Value
	if st.Count == nil {
		q, err := s.em.AllocQubit(pos)
		if err != nil {
			return err
		}
		v = object.QubitID(q.ID)
	} else {
		count, err := s.expr(f, st.Count, env)
		if err != nil {
			return err
		}
		if n, ok := staticInt(count); ok {
			if n < 0 {
				return failure(st, "cannot allocate %d qubits", n)
			}
			qs := make([]object.Value, 0, n)
			for i := int64(0); i < n; i++ {
				q, err := s.em.AllocQubit(pos)
				if err != nil {
					return err
				}
				qs = append(qs, object.QubitID(q.ID))
			}
			v = qubitArray(qs)
		} else {
			op, ok := object.Operand(count)
			if !ok || op.Type != typesys.Int {
				return failure(st, "qubit count must be an Int, got %s", count.TypeName())
			}
			if err := s.require(caps.DynamicAllocation, st); err != nil {
				return err
			}
			arr, err := s.em.AllocArray(op)
			if err != nil {
				return err
			}
			v = object.NewDynamic(arr)
		}
	}
	s.own(v)
	env.Define(st.Name.Value, v, false)
	return nil
}

func (s *state) own(v object.Value) {
	if n := len(s.owned); n > 0 {
		s.owned[n-1] = append(s.owned[n-1], v)
	}
}

// release frees the qubits of a closing scope, last allocated first.
func (s *state) release(owned []object.Value) error {
	for i := len(owned) - 1; i >= 0; i-- {
		switch v := owned[i].(type) {
		case *object.Dynamic:
			if !s.em.Current().Terminated() {
				if err := s.em.ReleaseArray(v.Operand); err != nil {
					return err
				}
			}
		case *object.Static:
			if q, ok := v.Object.(*object.Qubit); ok {
				s.em.ReleaseQubit(qir.Qubit(q.ID))
				continue
			}
			elems, _ := object.Elements(v)
			for j := len(elems) - 1; j >= 0; j-- {
				if op, ok := object.Operand(elems[j]); ok {
					s.em.ReleaseQubit(op)
				}
			}
		}
	}
	return nil
}

func (s *state) ifStatement(f *frame, st *ast.IfStatement, env *object.Environment) (completion, error) {
	cond, err := s.expr(f, st.Condition, env)
	if err != nil {
		return normal, err
	}
	if b, ok := staticBool(cond); ok {
		if b {
			return s.block(f, st.Consequence, env)
		}
		return s.alternative(f, st.Alternative, env)
	}
	c, err := condition(cond, st.Condition)
	if err != nil {
		return normal, err
	}
	if err := s.require(caps.BranchOnMeasurement, st.Condition); err != nil {
		return normal, err
	}
	_, comp, err := s.branch(f, env, c, "if", st,
		func() (object.Value, completion, error) {
			comp, err := s.block(f, st.Consequence, env)
			return nil, comp, err
		},
		func() (object.Value, completion, error) {
			comp, err := s.alternative(f, st.Alternative, env)
			return nil, comp, err
		})
	return comp, err
}

func (s *state) alternative(f *frame, alt ast.Statement, env *object.Environment) (completion, error) {
	switch a := alt.(type) {
	case nil:
		return normal, nil
	case *ast.BlockStatement:
		return s.block(f, a, env)
	case *ast.IfStatement:
		return s.ifStatement(f, a, env)
	}
	return normal, failure(alt, "unsupported else branch %T", alt)
}

// arm evaluates one side of a runtime branch. A nil value means the arm
// produces none.
type arm func() (object.Value, completion, error)

// branch lowers a two-way branch on c. Both arms start from the same
// bindings and qubit states; where the live arms rejoin, mutables that
// differ and the arms' values are merged.
func (s *state) branch(f *frame, env *object.Environment, c qir.Operand, label string, node ast.Node, then, otherwise arm) (object.Value, completion, error) {
	thenB, err := s.newBlock(label + ".then")
	if err != nil {
		return nil, normal, err
	}
	elseB, err := s.newBlock(label + ".else")
	if err != nil {
		return nil, normal, err
	}
	if err := s.em.CondBr(c, thenB, elseB); err != nil {
		return nil, normal, err
	}

	type outcome struct {
		end    *qir.Block
		value  object.Value
		vals   []object.Value
		qubits codegen.QubitState
	}
	muts := env.Mutables()
	before := values(muts)
	qubits := s.em.QubitState()

	var arms []outcome
	s.enterDynamic(f)
	for _, a := range []struct {
		b  *qir.Block
		fn arm
	}{{thenB, then}, {elseB, otherwise}} {
		restore(muts, before)
		s.em.RestoreQubits(qubits)
		s.em.SetInsertPoint(a.b)
		v, _, err := a.fn()
		if err != nil {
			s.leaveDynamic(f)
			return nil, normal, err
		}
		if end := s.em.Current(); !end.Terminated() {
			arms = append(arms, outcome{end: end, value: v, vals: values(muts), qubits: s.em.QubitState()})
		}
	}
	s.leaveDynamic(f)

	if len(arms) == 0 {
		restore(muts, before)
		return nil, exited, nil
	}
	join, err := s.newBlock(label + ".end")
	if err != nil {
		return nil, normal, err
	}
	states := make([]codegen.QubitState, 0, len(arms))
	for _, a := range arms {
		s.em.SetInsertPoint(a.end)
		if err := s.em.Br(join); err != nil {
			return nil, normal, err
		}
		states = append(states, a.qubits)
	}
	s.em.SetInsertPoint(join)
	s.em.JoinQubits(states...)

	for i, b := range muts {
		edges := make([]edge, 0, len(arms))
		for _, a := range arms {
			edges = append(edges, edge{from: a.end, value: a.vals[i]})
		}
		v, err := s.join(edges, node)
		if err != nil {
			return nil, normal, err
		}
		b.Value = v
	}
	if arms[0].value == nil {
		return nil, normal, nil
	}
	edges := make([]edge, 0, len(arms))
	for _, a := range arms {
		edges = append(edges, edge{from: a.end, value: a.value})
	}
	v, err := s.join(edges, node)
	return v, normal, err
}

func (s *state) enterDynamic(f *frame) {
	f.dyn++
	s.dyn++
}

func (s *state) leaveDynamic(f *frame) {
	f.dyn--
	s.dyn--
}

// withinApply runs the within block, the apply block, then the adjoint of
// the within block. A return from the apply block under runtime control flow
// emits the adjoint on its own path before leaving.
func (s *state) withinApply(f *frame, st *ast.WithinApplyStatement, env *object.Environment) (completion, error) {
	if st.Undo == nil {
		return normal, failure(st, "within block has no derived adjoint")
	}
	comp, err := s.block(f, st.Within, env)
	if err != nil || comp == exited {
		return comp, err
	}
	f.undos = append(f.undos, undo{block: st.Undo, env: env, level: len(s.owned)})
	applied, err := s.block(f, st.Apply, env)
	f.undos = f.undos[:len(f.undos)-1]
	if err != nil {
		return applied, err
	}
	if applied == exited && s.em.Current().Terminated() {
		return exited, nil
	}
	undone, err := s.block(f, st.Undo, env)
	if err != nil {
		return undone, err
	}
	if applied == exited || undone == exited {
		return exited, nil
	}
	return normal, nil
}
