// Package codegen owns the module under construction. The partial evaluator
// drives it one instruction at a time; the emitter keeps every block well
// formed and hands out qubit, result and variable identifiers.
package codegen

import (
	"sort"

	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/qir"
	"qlower/internal/token"
)

// Config fixes the identity and resource limits of one emission.
type Config struct {
	Name       string
	Profile    caps.Profile
	Permitted  caps.Set
	MaxQubits  int
	MaxResults int
}

// Emitter builds one qir.Module. It is not safe for concurrent use.
type Emitter struct {
	mod     *qir.Module
	cur     *qir.Block
	nextVar int
	emitted int

	nextQubit  int
	freeQubits []int
	clean      map[int]bool
	reuse      bool
	maxQubits  int

	nextResult int
	maxResults int

	required caps.Set
	finished bool
}

// New creates an emitter positioned at a fresh entry block.
func New(cfg Config) *Emitter {
	e := &Emitter{
		mod: &qir.Module{
			Name:      cfg.Name,
			Profile:   cfg.Profile.String(),
			Permitted: cfg.Permitted,
		},
		clean:      map[int]bool{},
		reuse:      cfg.Permitted.Has(caps.QubitReuse),
		maxQubits:  cfg.MaxQubits,
		maxResults: cfg.MaxResults,
	}
	e.cur = e.NewBlock("entry")
	return e
}

// NewBlock appends an empty block. The insertion point does not move.
func (e *Emitter) NewBlock(label string) *qir.Block {
	b := &qir.Block{ID: len(e.mod.Blocks), Label: label}
	e.mod.Blocks = append(e.mod.Blocks, b)
	return b
}

func (e *Emitter) SetInsertPoint(b *qir.Block) { e.cur = b }

func (e *Emitter) Current() *qir.Block { return e.cur }

// Emitted counts the instructions appended so far.
func (e *Emitter) Emitted() int { return e.emitted }

// Use records that a capability was exercised by emitted code.
func (e *Emitter) Use(f caps.Flag) { e.required = e.required.With(f) }

func (e *Emitter) Required() caps.Set { return e.required }

func (e *Emitter) fresh(typ string) qir.Operand {
	v := qir.NewVar(e.nextVar, typ)
	e.nextVar++
	return v
}

func (e *Emitter) emit(in qir.Instr) error {
	if e.finished {
		return internalError("emit after the module was finished")
	}
	if e.cur.Terminated() {
		return internalError("emit %s into terminated block b%d", in.Kind, e.cur.ID)
	}
	e.cur.Instrs = append(e.cur.Instrs, in)
	e.emitted++
	return nil
}

func (e *Emitter) emitValue(in qir.Instr, typ string) (qir.Operand, error) {
	dest := e.fresh(typ)
	in.Dest = &dest
	if err := e.emit(in); err != nil {
		return qir.Operand{}, err
	}
	return dest, nil
}

func (e *Emitter) touch(ops ...qir.Operand) {
	for _, o := range ops {
		if o.Kind == qir.QubitRef {
			e.clean[o.ID] = false
		}
	}
}

// Gate appends a quantum call. Args carries classical parameters first, then
// the target qubits.
func (e *Emitter) Gate(name string, controls []qir.Operand, args []qir.Operand) error {
	e.touch(controls...)
	e.touch(args...)
	return e.emit(qir.Instr{Kind: qir.QIS, Name: name, Controls: controls, Args: args})
}

// Measure measures q into a fresh result id. mresetz leaves q in |0>.
func (e *Emitter) Measure(gate string, q qir.Operand, pos token.Pos) (qir.Operand, error) {
	if e.maxResults > 0 && e.nextResult >= e.maxResults {
		return qir.Operand{}, diag.Errorf(diag.AllocationSpaceExhausted, pos,
			"result space exhausted after %d measurements", e.maxResults)
	}
	r := qir.Result(e.nextResult)
	e.nextResult++
	if err := e.emit(qir.Instr{Kind: qir.Measure, Name: gate, Args: []qir.Operand{q, r}}); err != nil {
		return qir.Operand{}, err
	}
	e.touch(q)
	if gate == "mresetz" && q.Kind == qir.QubitRef {
		e.clean[q.ID] = true
	}
	return r, nil
}

func (e *Emitter) Reset(q qir.Operand) error {
	if err := e.emit(qir.Instr{Kind: qir.Reset, Args: []qir.Operand{q}}); err != nil {
		return err
	}
	if q.Kind == qir.QubitRef {
		e.clean[q.ID] = true
	}
	return nil
}

// ReadResult converts a result handle to a Bool that is true for One.
func (e *Emitter) ReadResult(r qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.ReadResult, Args: []qir.Operand{r}}, "Bool")
}

// Op appends a classical operation producing a value of type typ.
func (e *Emitter) Op(name string, typ string, args ...qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.Op, Name: name, Args: args}, typ)
}

func (e *Emitter) Select(typ string, cond, then, otherwise qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.Select, Args: []qir.Operand{cond, then, otherwise}}, typ)
}

// Phi inserts a phi at the head of the current block, after existing phis.
func (e *Emitter) Phi(typ string, incoming ...qir.PhiEdge) (qir.Operand, error) {
	if e.cur.Terminated() {
		return qir.Operand{}, internalError("phi into terminated block b%d", e.cur.ID)
	}
	dest := e.fresh(typ)
	in := qir.Instr{Kind: qir.Phi, Dest: &dest, Incoming: append([]qir.PhiEdge(nil), incoming...)}
	at := 0
	for at < len(e.cur.Instrs) && e.cur.Instrs[at].Kind == qir.Phi {
		at++
	}
	e.cur.Instrs = append(e.cur.Instrs, qir.Instr{})
	copy(e.cur.Instrs[at+1:], e.cur.Instrs[at:])
	e.cur.Instrs[at] = in
	e.emitted++
	return dest, nil
}

// AddIncoming patches the phi defining dest in block b with one more edge.
// Loop headers are created before their back edge exists.
func (e *Emitter) AddIncoming(b *qir.Block, dest qir.Operand, edge qir.PhiEdge) error {
	for i := range b.Instrs {
		in := &b.Instrs[i]
		if in.Kind == qir.Phi && in.Dest != nil && in.Dest.ID == dest.ID {
			in.Incoming = append(in.Incoming, edge)
			return nil
		}
	}
	return internalError("no phi for %s in block b%d", dest, b.ID)
}

func (e *Emitter) AllocArray(count qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.QAllocArray, Args: []qir.Operand{count}}, "Qubit[]")
}

func (e *Emitter) ArrayGet(arr, index qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.QArrayGet, Args: []qir.Operand{arr, index}}, "Qubit")
}

func (e *Emitter) ReleaseArray(arr qir.Operand) error {
	return e.emit(qir.Instr{Kind: qir.QReleaseArray, Args: []qir.Operand{arr}})
}

func (e *Emitter) ArrayLen(arr qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.ArrayLen, Args: []qir.Operand{arr}}, "Int")
}

// CallExtern calls a classical runtime function on dynamic arguments.
func (e *Emitter) CallExtern(name string, typ string, args ...qir.Operand) (qir.Operand, error) {
	return e.emitValue(qir.Instr{Kind: qir.CallExtern, Name: name, Args: args}, typ)
}

// Output records one entry-point output. Containers are announced with their
// element count before their elements.
func (e *Emitter) Output(tag string, label string, args ...qir.Operand) error {
	return e.emit(qir.Instr{Kind: qir.Output, Name: tag, Args: args, Text: label})
}

func (e *Emitter) Message(text string) error {
	return e.emit(qir.Instr{Kind: qir.Message, Text: text})
}

func (e *Emitter) terminate(t *qir.Terminator) error {
	if e.cur.Terminated() {
		return internalError("block b%d already terminated", e.cur.ID)
	}
	e.cur.Term = t
	return nil
}

func (e *Emitter) Br(target *qir.Block) error {
	return e.terminate(&qir.Terminator{Kind: qir.Br, Then: target.ID})
}

func (e *Emitter) CondBr(cond qir.Operand, then, otherwise *qir.Block) error {
	if cond.Type != "Bool" {
		return internalError("branch condition %s has type %s", cond, cond.Type)
	}
	return e.terminate(&qir.Terminator{Kind: qir.CondBr, Cond: cond, Then: then.ID, Else: otherwise.ID})
}

func (e *Emitter) Ret() error { return e.terminate(&qir.Terminator{Kind: qir.Ret}) }

func (e *Emitter) Fail(message string) error {
	return e.terminate(&qir.Terminator{Kind: qir.Fail, Message: message})
}

// AllocQubit hands out the lowest reusable id, or the next fresh one.
func (e *Emitter) AllocQubit(pos token.Pos) (qir.Operand, error) {
	if len(e.freeQubits) > 0 {
		id := e.freeQubits[0]
		e.freeQubits = e.freeQubits[1:]
		e.clean[id] = true
		return qir.Qubit(id), nil
	}
	if e.maxQubits > 0 && e.nextQubit >= e.maxQubits {
		return qir.Operand{}, diag.Errorf(diag.AllocationSpaceExhausted, pos,
			"qubit space exhausted after %d allocations", e.maxQubits)
	}
	id := e.nextQubit
	e.nextQubit++
	e.clean[id] = true
	return qir.Qubit(id), nil
}

// ReleaseQubit returns q to the free list when the profile permits reuse and
// q is known to be back in |0>. Other ids are retired.
func (e *Emitter) ReleaseQubit(q qir.Operand) bool {
	if q.Kind != qir.QubitRef || !e.reuse || !e.clean[q.ID] {
		return false
	}
	e.freeQubits = append(e.freeQubits, q.ID)
	sort.Ints(e.freeQubits)
	return true
}

// QubitState is the set of qubits known to be in |0>.
type QubitState map[int]bool

// QubitState snapshots which qubits are clean. Runtime branches evaluate
// each arm from the same snapshot and join the results.
func (e *Emitter) QubitState() QubitState {
	out := make(QubitState, len(e.clean))
	for id, ok := range e.clean {
		out[id] = ok
	}
	return out
}

func (e *Emitter) RestoreQubits(st QubitState) {
	e.clean = make(map[int]bool, len(st))
	for id, ok := range st {
		e.clean[id] = ok
	}
}

// JoinQubits keeps a qubit clean only when it is clean in every state.
func (e *Emitter) JoinQubits(states ...QubitState) {
	joined := map[int]bool{}
	for i, st := range states {
		for id, ok := range st {
			if i == 0 {
				joined[id] = ok
				continue
			}
			if prev, seen := joined[id]; seen {
				joined[id] = prev && ok
			}
		}
		if i > 0 {
			for id := range joined {
				if !st[id] {
					joined[id] = false
				}
			}
		}
	}
	e.clean = joined
}

// Discard drops everything emitted so far.
func (e *Emitter) Discard() {
	e.mod = nil
	e.cur = nil
	e.finished = true
}
