package codegen

import (
	"github.com/pkg/errors"

	"qlower/internal/qir"
)

// Finish closes emission and returns the module. The current block must be
// terminated. Blocks unreachable from the entry are dropped and the rest are
// renumbered in creation order.
func (e *Emitter) Finish() (*qir.Module, error) {
	if e.finished {
		return nil, internalError("module already finished")
	}
	if !e.cur.Terminated() {
		return nil, internalError("current block b%d is not terminated", e.cur.ID)
	}
	e.finished = true
	m := e.mod
	m.Blocks = pruneUnreachable(m.Blocks)
	m.NumQubits = e.nextQubit
	m.NumResults = e.nextResult
	m.Required = e.required
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "emitted module is malformed")
	}
	return m, nil
}

func pruneUnreachable(blocks []*qir.Block) []*qir.Block {
	reachable := make([]bool, len(blocks))
	stack := []int{0}
	reachable[0] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := blocks[id].Term
		if t == nil {
			continue
		}
		for _, s := range t.Successors() {
			if !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}

	remap := make([]int, len(blocks))
	kept := make([]*qir.Block, 0, len(blocks))
	for i, b := range blocks {
		if !reachable[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, b)
	}
	if len(kept) == len(blocks) {
		return blocks
	}
	for _, b := range kept {
		b.ID = remap[b.ID]
		if b.Term != nil {
			b.Term.Then = remap[b.Term.Then]
			if b.Term.Kind == qir.CondBr {
				b.Term.Else = remap[b.Term.Else]
			}
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Kind != qir.Phi {
				continue
			}
			edges := in.Incoming[:0]
			for _, edge := range in.Incoming {
				if remap[edge.Block] < 0 {
					continue
				}
				edge.Block = remap[edge.Block]
				edges = append(edges, edge)
			}
			in.Incoming = edges
		}
	}
	return kept
}
