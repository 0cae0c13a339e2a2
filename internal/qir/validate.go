package qir

import (
	"github.com/pkg/errors"
)

// Validate re-checks the structural rules every emitted module obeys: block
// ids match their index, each block ends in exactly one terminator, branch
// targets exist, phis lead their block and name real predecessors, and no
// variable is defined twice.
func (m *Module) Validate() error {
	if len(m.Blocks) == 0 {
		return errors.New("module has no blocks")
	}
	preds := make([]map[int]bool, len(m.Blocks))
	for i := range preds {
		preds[i] = map[int]bool{}
	}
	for i, b := range m.Blocks {
		if b.ID != i {
			return errors.Errorf("block at index %d has id b%d", i, b.ID)
		}
		if b.Term == nil {
			return errors.Errorf("block b%d has no terminator", b.ID)
		}
		for _, s := range b.Term.Successors() {
			if s < 0 || s >= len(m.Blocks) {
				return errors.Errorf("block b%d branches to missing block b%d", b.ID, s)
			}
			if s == 0 {
				return errors.Errorf("block b%d branches to the entry block", b.ID)
			}
			preds[s][b.ID] = true
		}
	}

	defined := map[int]bool{}
	for _, b := range m.Blocks {
		leading := true
		for _, in := range b.Instrs {
			if in.Kind == Phi {
				if !leading {
					return errors.Errorf("block b%d: phi after a non-phi instruction", b.ID)
				}
				if len(in.Incoming) == 0 {
					return errors.Errorf("block b%d: phi without incoming values", b.ID)
				}
				for _, e := range in.Incoming {
					if !preds[b.ID][e.Block] {
						return errors.Errorf("block b%d: phi names b%d which is not a predecessor", b.ID, e.Block)
					}
				}
			} else {
				leading = false
			}
			if in.Dest != nil {
				if in.Dest.Kind != Var {
					return errors.Errorf("block b%d: %s defines a non-variable", b.ID, in.Kind)
				}
				if defined[in.Dest.ID] {
					return errors.Errorf("variable %s defined twice", in.Dest)
				}
				defined[in.Dest.ID] = true
			}
			if err := m.checkOperands(b, in); err != nil {
				return err
			}
		}
		if b.Term.Kind == CondBr && b.Term.Cond.Type != "Bool" {
			return errors.Errorf("block b%d: condbr on %s operand", b.ID, b.Term.Cond.Type)
		}
	}
	return nil
}

func (m *Module) checkOperands(b *Block, in Instr) error {
	check := func(o Operand) error {
		switch o.Kind {
		case QubitRef:
			if o.ID < 0 || o.ID >= m.NumQubits {
				return errors.Errorf("block b%d: qubit %s outside allocated range", b.ID, o)
			}
		case ResultRef:
			if o.ID < 0 || o.ID >= m.NumResults {
				return errors.Errorf("block b%d: result %s outside allocated range", b.ID, o)
			}
		}
		return nil
	}
	for _, o := range in.Args {
		if err := check(o); err != nil {
			return err
		}
	}
	for _, o := range in.Controls {
		if err := check(o); err != nil {
			return err
		}
	}
	for _, e := range in.Incoming {
		if err := check(e.Value); err != nil {
			return err
		}
	}
	return nil
}
