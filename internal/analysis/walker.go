package analysis

import (
	"strings"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/token"
	"qlower/internal/typesys"
)

// value is the abstraction of an evaluated expression.
type value struct {
	level Level
	typ   string
}

type varInfo struct {
	level   Level
	typ     string
	mutable bool
}

// scope mirrors the evaluator's environments: one per block, linked outward.
type scope struct {
	vars  map[string]*varInfo
	outer *scope
}

func newScope(outer *scope) *scope {
	return &scope{vars: map[string]*varInfo{}, outer: outer}
}

func (s *scope) lookup(name string) (*varInfo, bool) {
	for sc := s; sc != nil; sc = sc.outer {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) define(name string, v *varInfo) {
	if name == "" || name == "_" {
		return
	}
	s.vars[name] = v
}

// levels records the level of every visible variable so that branches and
// loop iterations can be joined.
type levels map[*varInfo]Level

func (s *scope) snapshot() levels {
	out := levels{}
	for sc := s; sc != nil; sc = sc.outer {
		for _, v := range sc.vars {
			if _, seen := out[v]; !seen {
				out[v] = v.level
			}
		}
	}
	return out
}

func (l levels) restore() {
	for v, lvl := range l {
		v.level = lvl
	}
}

// join raises every variable to at least its level in other.
func (l levels) join(other levels) levels {
	out := levels{}
	for v, lvl := range l {
		out[v] = lvl.Join(other[v])
	}
	return out
}

func (l levels) equal(other levels) bool {
	if len(l) != len(other) {
		return false
	}
	for v, lvl := range l {
		if other[v] != lvl {
			return false
		}
	}
	return true
}

// walker abstractly executes one body. It never folds a condition: both arms
// of every branch and at least one iteration of every loop are visited, which
// keeps the result monotone in the summaries of the callees.
type walker struct {
	res      *Result
	node     *Node
	scope    *scope
	reqs     caps.Requirements
	quiet    int
	dynDepth int
	ret      Level
	fails    bool
	warnings diag.List
}

type walkResult struct {
	reqs     caps.Requirements
	ret      Level
	fails    bool
	warnings diag.List
}

// walk analyzes n with its parameters bound at the given levels.
func walk(res *Result, n *Node, params []Level) walkResult {
	w := &walker{res: res, node: n, scope: newScope(nil)}
	for i, p := range n.Params() {
		lvl := Static
		if i < len(params) {
			lvl = params[i]
		}
		w.scope.define(p.Name, &varInfo{level: lvl, typ: p.TypeName})
	}
	w.block(n.Body)
	return walkResult{reqs: w.reqs, ret: w.ret, fails: w.fails, warnings: w.warnings}
}

func (w *walker) charge(s caps.Set, pos token.Pos, reason string) {
	if w.quiet > 0 || s.IsEmpty() {
		return
	}
	w.reqs.AddSet(s, caps.Origin{Callable: w.node.Callable.Name, Pos: pos, Reason: reason})
}

func (w *walker) warn(pos token.Pos, context string, format string, args ...interface{}) {
	if w.quiet > 0 {
		return
	}
	err := diag.Errorf(diag.UnresolvedCallee, pos, format, args...)
	e, _ := diag.AsError(err)
	d := e.Diagnostic()
	d.Severity = diag.SeverityWarning
	d.Callable = w.node.Callable.Name
	d.Variant = w.node.Variant.String()
	d.Context = context
	w.warnings = append(w.warnings, d)
}

func (w *walker) push()           { w.scope = newScope(w.scope) }
func (w *walker) pop()            { w.scope = w.scope.outer }
func (w *walker) inDynamic() bool { return w.dynDepth > 0 }

func (w *walker) block(b *ast.BlockStatement) {
	if b == nil {
		return
	}
	w.push()
	for _, s := range b.Statements {
		w.statement(s)
	}
	w.pop()
}

func (w *walker) statement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		v := w.expr(s.Value)
		w.bind(s.Pattern, v, s.Mutable, ast.PosOf(s))
	case *ast.SetStatement:
		w.set(s)
	case *ast.UpdateStatement:
		w.update(s)
	case *ast.ReturnStatement:
		v := value{level: Static, typ: typesys.Unit}
		if s.ReturnValue != nil {
			v = w.expr(s.ReturnValue)
		}
		if w.inDynamic() {
			need := caps.SetOf(caps.ReturnInDynamicScope).Union(caps.ForType(w.node.Callable.ReturnType))
			w.charge(need, ast.PosOf(s), "return in a dynamic scope")
			v.level = v.level.Join(Dynamic)
		}
		w.ret = w.ret.Join(v.level)
	case *ast.FailStatement:
		w.expr(s.Message)
		w.fails = true
		if w.inDynamic() {
			w.charge(caps.SetOf(caps.ReturnInDynamicScope), ast.PosOf(s), "fail in a dynamic scope")
		}
	case *ast.UseStatement:
		v := value{level: Static, typ: typesys.Qubit}
		if s.Count != nil {
			n := w.expr(s.Count)
			v = value{level: Static, typ: "Qubit[]"}
			if n.level.IsDynamic() {
				w.charge(caps.SetOf(caps.DynamicAllocation), ast.PosOf(s), "qubit allocation of runtime size")
				v.level = DynamicShape
			}
		}
		w.scope.define(s.Name.Value, &varInfo{level: v.level, typ: v.typ})
	case *ast.ExpressionStatement:
		if s.Expression != nil {
			w.expr(s.Expression)
		}
	case *ast.BlockStatement:
		w.block(s)
	case *ast.IfStatement:
		w.ifStatement(s)
	case *ast.ForStatement:
		w.forStatement(s)
	case *ast.WhileStatement:
		w.whileStatement(s)
	case *ast.RepeatStatement:
		w.repeatStatement(s)
	case *ast.WithinApplyStatement:
		w.block(s.Within)
		w.block(s.Apply)
		w.block(s.Undo)
	}
}

// bind introduces the names of a pattern. Tuple patterns take member types
// from the value's type when it is known.
func (w *walker) bind(p *ast.Pattern, v value, mutable bool, pos token.Pos) {
	if p == nil {
		return
	}
	if p.IsTuple() {
		for i, el := range p.Elements {
			typ, ok := typesys.TupleMemberType(v.typ, i)
			if !ok {
				typ = typesys.Unknown
			}
			lvl := v.level
			if lvl == DynamicShape && !typesys.IsArray(typ) {
				lvl = Dynamic
			}
			w.bind(el, value{level: lvl, typ: typ}, mutable, pos)
		}
		return
	}
	if mutable && v.typ == typesys.Bool && v.level.IsDynamic() {
		w.charge(caps.SetOf(caps.DynamicBool), pos, "runtime Bool stored in a mutable")
	}
	w.scope.define(p.Name, &varInfo{level: v.level, typ: v.typ, mutable: mutable})
}

func (w *walker) set(s *ast.SetStatement) {
	pos := ast.PosOf(s)
	rhs := w.expr(s.Value)
	vi, ok := w.scope.lookup(s.Name.Value)
	if !ok {
		return
	}
	if op := strings.TrimSuffix(s.Operator, "="); op != "" {
		rhs = w.binary(op, value{level: vi.level, typ: vi.typ}, rhs, pos)
	}
	lvl := rhs.level
	if w.inDynamic() {
		lvl = lvl.Join(Dynamic)
		need := caps.ForType(vi.typ)
		if typesys.IsArray(vi.typ) {
			lvl = DynamicShape
			need = need.With(caps.DynamicAllocation)
		}
		w.charge(need, pos, "assignment in a dynamic scope")
	}
	if vi.typ == typesys.Bool && lvl.IsDynamic() {
		w.charge(caps.SetOf(caps.DynamicBool), pos, "runtime Bool stored in a mutable")
	}
	vi.level = lvl
}

func (w *walker) update(s *ast.UpdateStatement) {
	pos := ast.PosOf(s)
	idx := w.expr(s.Index)
	val := w.expr(s.Value)
	vi, ok := w.scope.lookup(s.Name.Value)
	if !ok {
		return
	}
	if idx.level.IsDynamic() && vi.level != DynamicShape {
		w.charge(caps.SetOf(caps.DynamicIndex), pos, "update at a runtime index")
	}
	lvl := vi.level
	if idx.level.IsDynamic() || val.level.IsDynamic() {
		lvl = lvl.Join(Dynamic)
	}
	if w.inDynamic() {
		lvl = lvl.Join(Dynamic)
		w.charge(caps.ForType(elementType(vi.typ)), pos, "assignment in a dynamic scope")
	}
	vi.level = lvl
}

func (w *walker) ifStatement(s *ast.IfStatement) {
	if taken, ok := staticCondition(s.Condition); ok {
		if taken {
			w.block(s.Consequence)
		} else {
			w.alternative(s.Alternative)
		}
		return
	}
	cond := w.expr(s.Condition)
	dynamic := cond.level.IsDynamic()
	if dynamic {
		w.charge(caps.SetOf(caps.BranchOnMeasurement), ast.PosOf(s.Condition), "branch on a runtime condition")
		w.dynDepth++
	}
	before := w.scope.snapshot()
	w.block(s.Consequence)
	taken := w.scope.snapshot()
	before.restore()
	w.alternative(s.Alternative)
	w.scope.snapshot().join(taken).restore()
	if dynamic {
		w.dynDepth--
	}
}

func (w *walker) alternative(alt ast.Statement) {
	switch a := alt.(type) {
	case *ast.BlockStatement:
		w.block(a)
	case *ast.IfStatement:
		w.ifStatement(a)
	}
}

// iterate runs one loop iteration without charging until the levels of the
// variables visible at the loop stop rising, then runs it once more charged.
// step reports whether the loop's continuation depends on a runtime value.
func (w *walker) iterate(dynamic bool, step func(dynamic bool) bool) {
	acc := w.scope.snapshot()
	w.quiet++
	for {
		acc.restore()
		grew := step(dynamic) && !dynamic
		if grew {
			dynamic = true
		}
		next := acc.join(w.scope.snapshot())
		if next.equal(acc) && !grew {
			break
		}
		acc = next
	}
	w.quiet--
	acc.restore()
	step(dynamic)
	acc.restore()
}

func (w *walker) forStatement(s *ast.ForStatement) {
	pos := ast.PosOf(s)
	elem := value{level: Static, typ: typesys.Int}
	dynamic := false
	if r, ok := s.Iterable.(*ast.RangeExpression); ok {
		lvl := w.expr(r.Start).level.Join(w.expr(r.End).level)
		if r.Step != nil {
			step := w.expr(r.Step)
			if step.level.IsDynamic() {
				w.charge(caps.SetOf(caps.HigherLevelConstructs), ast.PosOf(r.Step), "range with a runtime step")
			}
			lvl = lvl.Join(step.level)
		}
		dynamic = lvl.IsDynamic()
	} else {
		iter := w.expr(s.Iterable)
		if iter.typ == typesys.Range {
			dynamic = iter.level.IsDynamic()
		} else {
			elem.typ = elementType(iter.typ)
			dynamic = iter.level == DynamicShape
			if iter.level.IsDynamic() {
				elem.level = Dynamic
			}
		}
	}
	if dynamic {
		elem.level = Dynamic
	}
	w.iterate(dynamic, func(dyn bool) bool {
		if dyn {
			w.charge(caps.SetOf(caps.BackwardBranching).Union(caps.ForType(typesys.Int)), pos, "loop over a runtime range")
			w.dynDepth++
			defer func() { w.dynDepth-- }()
		}
		w.push()
		w.bind(s.Pattern, elem, false, pos)
		w.block(s.Body)
		w.pop()
		return false
	})
}

func (w *walker) whileStatement(s *ast.WhileStatement) {
	pos := ast.PosOf(s)
	w.iterate(false, func(dyn bool) bool {
		if dyn {
			w.charge(caps.SetOf(caps.BackwardBranching), pos, "loop on a runtime condition")
			w.dynDepth++
			defer func() { w.dynDepth-- }()
		}
		cond := w.expr(s.Condition)
		w.block(s.Body)
		return cond.level.IsDynamic()
	})
}

func (w *walker) repeatStatement(s *ast.RepeatStatement) {
	pos := ast.PosOf(s)
	w.iterate(false, func(dyn bool) bool {
		if dyn {
			w.charge(caps.SetOf(caps.BackwardBranching), pos, "loop on a runtime condition")
			w.dynDepth++
			defer func() { w.dynDepth-- }()
		}
		w.push()
		for _, st := range s.Body.Statements {
			w.statement(st)
		}
		until := w.expr(s.Until)
		w.block(s.Fixup)
		w.pop()
		return until.level.IsDynamic()
	})
}

func elementType(t string) string {
	if elem, ok := typesys.PeelArrayType(t); ok {
		return elem
	}
	return typesys.Unknown
}
