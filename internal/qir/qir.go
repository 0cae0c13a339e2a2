// Package qir models the lowered program: a flat list of basic blocks holding
// quantum calls and the residual classical instructions, with explicit
// terminators.
package qir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"qlower/internal/caps"
)

type OperandKind int

const (
	Const OperandKind = iota
	Var
	QubitRef
	ResultRef
)

// Operand is a typed instruction argument. Type uses the source type names
// (Int, Double, Bool, Qubit, Result, Qubit[]).
type Operand struct {
	Kind OperandKind
	Type string
	ID   int
	Lit  string
}

func ConstInt(v int64) Operand {
	return Operand{Kind: Const, Type: "Int", Lit: strconv.FormatInt(v, 10)}
}

func ConstDouble(v float64) Operand {
	return Operand{Kind: Const, Type: "Double", Lit: strconv.FormatFloat(v, 'g', -1, 64)}
}

func ConstBool(v bool) Operand {
	return Operand{Kind: Const, Type: "Bool", Lit: strconv.FormatBool(v)}
}

// ConstResult is a literal Zero or One.
func ConstResult(one bool) Operand {
	lit := "Zero"
	if one {
		lit = "One"
	}
	return Operand{Kind: Const, Type: "Result", Lit: lit}
}

func Qubit(id int) Operand  { return Operand{Kind: QubitRef, Type: "Qubit", ID: id} }
func Result(id int) Operand { return Operand{Kind: ResultRef, Type: "Result", ID: id} }

func NewVar(id int, typ string) Operand { return Operand{Kind: Var, Type: typ, ID: id} }

func (o Operand) IsConst() bool { return o.Kind == Const }

func (o Operand) String() string {
	switch o.Kind {
	case Const:
		return o.Lit
	case Var:
		return "%" + strconv.Itoa(o.ID)
	case QubitRef:
		return "q" + strconv.Itoa(o.ID)
	case ResultRef:
		return "r" + strconv.Itoa(o.ID)
	}
	return "?"
}

type InstrKind int

const (
	QIS InstrKind = iota
	Measure
	Reset
	ReadResult
	Op
	Select
	Phi
	QAllocArray
	QArrayGet
	QReleaseArray
	ArrayLen
	CallExtern
	Output
	Message
)

func (k InstrKind) String() string {
	switch k {
	case QIS:
		return "qis"
	case Measure:
		return "measure"
	case Reset:
		return "reset"
	case ReadResult:
		return "read_result"
	case Op:
		return "op"
	case Select:
		return "select"
	case Phi:
		return "phi"
	case QAllocArray:
		return "qalloc_array"
	case QArrayGet:
		return "qarray_get"
	case QReleaseArray:
		return "qrelease_array"
	case ArrayLen:
		return "array_len"
	case CallExtern:
		return "call_extern"
	case Output:
		return "output"
	case Message:
		return "message"
	}
	return "unknown"
}

// PhiEdge is one incoming value of a phi.
type PhiEdge struct {
	Block int
	Value Operand
}

// Instr is one non-terminator instruction. Name holds the gate, operator,
// extern or output tag depending on Kind.
type Instr struct {
	Kind     InstrKind
	Dest     *Operand
	Name     string
	Controls []Operand
	Args     []Operand
	Incoming []PhiEdge
	Text     string
}

func joinOperands(ops []Operand) string {
	parts := make([]string, 0, len(ops))
	for _, o := range ops {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, ", ")
}

func (in Instr) String() string {
	var out bytes.Buffer
	if in.Dest != nil {
		fmt.Fprintf(&out, "%s:%s = ", in.Dest, in.Dest.Type)
	}
	switch in.Kind {
	case QIS:
		out.WriteString("qis " + in.Name)
		if len(in.Controls) > 0 {
			out.WriteString(" ctl[" + joinOperands(in.Controls) + "]")
		}
		if len(in.Args) > 0 {
			out.WriteString(" " + joinOperands(in.Args))
		}
	case Measure:
		out.WriteString(in.Name + " " + joinOperands(in.Args))
	case Op, CallExtern:
		out.WriteString(in.Kind.String() + " " + in.Name + " " + joinOperands(in.Args))
	case Phi:
		out.WriteString("phi")
		for i, e := range in.Incoming {
			if i > 0 {
				out.WriteString(",")
			}
			fmt.Fprintf(&out, " [%s, b%d]", e.Value, e.Block)
		}
	case Output:
		out.WriteString("output " + in.Name)
		if len(in.Args) > 0 {
			out.WriteString(" " + joinOperands(in.Args))
		}
		if in.Text != "" {
			out.WriteString(" " + strconv.Quote(in.Text))
		}
	case Message:
		out.WriteString("message " + strconv.Quote(in.Text))
	default:
		out.WriteString(in.Kind.String())
		if len(in.Args) > 0 {
			out.WriteString(" " + joinOperands(in.Args))
		}
	}
	return out.String()
}

type TermKind int

const (
	Br TermKind = iota
	CondBr
	Ret
	Fail
)

type Terminator struct {
	Kind    TermKind
	Cond    Operand
	Then    int
	Else    int
	Message string
}

func (t *Terminator) String() string {
	switch t.Kind {
	case Br:
		return fmt.Sprintf("br b%d", t.Then)
	case CondBr:
		return fmt.Sprintf("condbr %s, b%d, b%d", t.Cond, t.Then, t.Else)
	case Ret:
		return "ret"
	case Fail:
		return "fail " + strconv.Quote(t.Message)
	}
	return "unknown"
}

// Successors lists the blocks t may transfer control to.
func (t *Terminator) Successors() []int {
	switch t.Kind {
	case Br:
		return []int{t.Then}
	case CondBr:
		if t.Then == t.Else {
			return []int{t.Then}
		}
		return []int{t.Then, t.Else}
	}
	return nil
}

// Block is a straight-line sequence closed by exactly one terminator.
type Block struct {
	ID     int
	Label  string
	Instrs []Instr
	Term   *Terminator
}

func (b *Block) Terminated() bool { return b.Term != nil }

func (b *Block) String() string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "b%d", b.ID)
	if b.Label != "" {
		out.WriteString(" ; " + b.Label)
	}
	out.WriteString(":\n")
	for _, in := range b.Instrs {
		out.WriteString("  " + in.String() + "\n")
	}
	if b.Term != nil {
		out.WriteString("  " + b.Term.String() + "\n")
	}
	return out.String()
}

// Module is the lowered entry point.
type Module struct {
	Name       string
	Profile    string
	Permitted  caps.Set
	Required   caps.Set
	Blocks     []*Block
	NumQubits  int
	NumResults int
}

// Outputs returns the output instructions in program order.
func (m *Module) Outputs() []Instr {
	var out []Instr
	for _, b := range m.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == Output {
				out = append(out, in)
			}
		}
	}
	return out
}

// CountKind counts instructions of kind k across all blocks.
func (m *Module) CountKind(k InstrKind) int {
	n := 0
	for _, b := range m.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == k {
				n++
			}
		}
	}
	return n
}

// BranchCount counts conditional terminators.
func (m *Module) BranchCount() int {
	n := 0
	for _, b := range m.Blocks {
		if b.Term != nil && b.Term.Kind == CondBr {
			n++
		}
	}
	return n
}

func (m *Module) String() string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "; module %s\n", m.Name)
	fmt.Fprintf(&out, "; profile %s %s\n", m.Profile, m.Permitted)
	fmt.Fprintf(&out, "; required %s\n", m.Required)
	fmt.Fprintf(&out, "; qubits %d results %d\n", m.NumQubits, m.NumResults)
	for _, b := range m.Blocks {
		out.WriteString(b.String())
	}
	return out.String()
}
