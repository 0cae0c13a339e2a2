package codegen

import (
	"strings"
	"testing"

	"qlower/internal/caps"
	"qlower/internal/diag"
	"qlower/internal/qir"
	"qlower/internal/token"
)

func newEmitter(p caps.Profile) *Emitter {
	return New(Config{Name: "Main", Profile: p, Permitted: caps.DefaultLattice().Permitted(p), MaxQubits: 4, MaxResults: 4})
}

func TestEmitStraightLine(t *testing.T) {
	e := newEmitter(caps.Minimal)
	q, err := e.AllocQubit(token.Pos{})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := e.Gate("h", nil, []qir.Operand{q}); err != nil {
		t.Fatalf("gate: %v", err)
	}
	r, err := e.Measure("mz", q, token.Pos{})
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if err := e.Output("result", "", r); err != nil {
		t.Fatalf("output: %v", err)
	}
	if err := e.Ret(); err != nil {
		t.Fatalf("ret: %v", err)
	}
	m, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if m.NumQubits != 1 || m.NumResults != 1 || len(m.Blocks) != 1 {
		t.Fatalf("unexpected module shape:\n%s", m)
	}
	if !strings.Contains(m.String(), "mz q0, r0") {
		t.Fatalf("missing measurement:\n%s", m)
	}
}

func TestEmitIntoTerminatedBlockFails(t *testing.T) {
	e := newEmitter(caps.Minimal)
	if err := e.Ret(); err != nil {
		t.Fatalf("ret: %v", err)
	}
	if err := e.Gate("x", nil, []qir.Operand{qir.Qubit(0)}); err == nil {
		t.Fatalf("expected error emitting after terminator")
	}
	if err := e.Ret(); err == nil {
		t.Fatalf("expected error on second terminator")
	}
}

func TestFinishRequiresTerminator(t *testing.T) {
	e := newEmitter(caps.Minimal)
	if _, err := e.Finish(); err == nil {
		t.Fatalf("expected unterminated block to be rejected")
	}
}

func TestPhiPlacementAndPatching(t *testing.T) {
	e := newEmitter(caps.Unrestricted)
	entry := e.Current()
	header := e.NewBlock("loop")
	exit := e.NewBlock("exit")
	if err := e.Br(header); err != nil {
		t.Fatalf("br: %v", err)
	}
	e.SetInsertPoint(header)
	i, _ := e.Phi("Int", qir.PhiEdge{Block: entry.ID, Value: qir.ConstInt(0)})
	next, _ := e.Op("add", "Int", i, qir.ConstInt(1))
	j, _ := e.Phi("Int", qir.PhiEdge{Block: entry.ID, Value: qir.ConstInt(5)})
	if header.Instrs[0].Kind != qir.Phi || header.Instrs[1].Kind != qir.Phi || header.Instrs[2].Kind != qir.Op {
		t.Fatalf("phis must lead the block:\n%s", header)
	}
	cond, _ := e.Op("lt", "Bool", next, j)
	if err := e.AddIncoming(header, i, qir.PhiEdge{Block: header.ID, Value: next}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := e.AddIncoming(header, j, qir.PhiEdge{Block: header.ID, Value: j}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := e.CondBr(cond, header, exit); err != nil {
		t.Fatalf("condbr: %v", err)
	}
	e.SetInsertPoint(exit)
	_ = e.Ret()
	m, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v\n%s", err, m)
	}
	if got := len(m.Blocks[1].Instrs[0].Incoming); got != 2 {
		t.Fatalf("expected patched phi with 2 edges, got %d", got)
	}
}

func TestFinishPrunesUnreachableBlocks(t *testing.T) {
	e := newEmitter(caps.Partial)
	dead := e.NewBlock("dead")
	live := e.NewBlock("live")
	_ = e.Br(live)
	e.SetInsertPoint(dead)
	_ = e.Br(live)
	e.SetInsertPoint(live)
	_ = e.Ret()
	m, err := e.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(m.Blocks) != 2 || m.Blocks[1].Label != "live" || m.Blocks[0].Term.Then != 1 {
		t.Fatalf("unexpected pruning result:\n%s", m)
	}
}

func TestQubitReuseNeedsProfileAndCleanQubit(t *testing.T) {
	for _, tc := range []struct {
		profile caps.Profile
		reset   bool
		wantID  int
	}{
		{caps.Minimal, true, 1},
		{caps.Partial, false, 1},
		{caps.Partial, true, 0},
	} {
		e := newEmitter(tc.profile)
		q, _ := e.AllocQubit(token.Pos{})
		_ = e.Gate("x", nil, []qir.Operand{q})
		if tc.reset {
			_ = e.Reset(q)
		}
		e.ReleaseQubit(q)
		q2, _ := e.AllocQubit(token.Pos{})
		if q2.ID != tc.wantID {
			t.Fatalf("profile=%s reset=%v: got q%d want q%d", tc.profile, tc.reset, q2.ID, tc.wantID)
		}
	}
}

func TestAllocationBudgets(t *testing.T) {
	e := New(Config{Name: "Main", Profile: caps.Minimal, MaxQubits: 1, MaxResults: 1})
	q, _ := e.AllocQubit(token.Pos{})
	_, err := e.AllocQubit(token.Pos{Line: 3, Column: 5})
	if diag.KindOf(err) != diag.AllocationSpaceExhausted {
		t.Fatalf("expected qubit exhaustion, got %v", err)
	}
	_, _ = e.Measure("mz", q, token.Pos{})
	_, err = e.Measure("mz", q, token.Pos{})
	if diag.KindOf(err) != diag.AllocationSpaceExhausted {
		t.Fatalf("expected result exhaustion, got %v", err)
	}
}

func TestJoinQubitsKeepsOnlyCommonlyClean(t *testing.T) {
	e := newEmitter(caps.Partial)
	q, _ := e.AllocQubit(token.Pos{})
	before := e.QubitState()

	_ = e.Gate("x", nil, []qir.Operand{q})
	dirty := e.QubitState()
	e.RestoreQubits(before)
	clean := e.QubitState()

	e.JoinQubits(clean, dirty)
	if e.ReleaseQubit(q) {
		t.Fatalf("qubit touched on one path must not be released")
	}
	e.JoinQubits(clean, clean)
	if !e.ReleaseQubit(q) {
		t.Fatalf("qubit clean on every path should be released")
	}
}
