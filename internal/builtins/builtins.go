// Package builtins is the table of target intrinsics: the gates, measurements
// and classical library functions a program may call without defining them.
package builtins

import (
	"sort"
	"strings"

	"qlower/internal/ast"
	"qlower/internal/caps"
	"qlower/internal/object"
	"qlower/internal/token"
	"qlower/internal/typesys"
)

type Class int

const (
	Gate Class = iota
	Measurement
	ResetOp
	Classical
)

func (c Class) String() string {
	switch c {
	case Gate:
		return "gate"
	case Measurement:
		return "measurement"
	case ResetOp:
		return "reset"
	case Classical:
		return "classical"
	}
	return "unknown"
}

type Param struct {
	Name string
	Type string
}

// FoldFunc evaluates a classical intrinsic over static arguments.
type FoldFunc func(args []object.Object) (object.Object, error)

// Intrinsic describes one target-provided callable.
type Intrinsic struct {
	Name       string
	Class      Class
	Params     []Param
	ReturnType string

	// QIS is the gate or measurement name in the emitted module. AdjointQIS
	// names a distinct adjoint gate (S, T); rotations negate their angle
	// instead; every other gate is its own inverse.
	QIS        string
	AdjointQIS string
	Rotation   bool

	Adjointable  bool
	Controllable bool

	// Caps is required by every call. DynamicCaps is added when any
	// classical argument is dynamic.
	Caps        caps.Set
	DynamicCaps caps.Set

	// Extern is the runtime function computing a classical intrinsic over
	// dynamic arguments.
	Extern string
	Fold   FoldFunc
}

// Kind is the callable kind the intrinsic is declared with.
func (in *Intrinsic) Kind() ast.CallableKind {
	if in.Class == Classical {
		return ast.Function
	}
	return ast.Operation
}

// ReturnsDynamic reports whether calls always produce a runtime value:
// measurements, and classical functions the compiler cannot fold.
func (in *Intrinsic) ReturnsDynamic() bool {
	if in.Class == Classical {
		return in.Fold == nil && in.ReturnType != typesys.Unit
	}
	return in.Class == Measurement
}

var (
	qubit     = []Param{{"q", typesys.Qubit}}
	twoQubits = []Param{{"control", typesys.Qubit}, {"target", typesys.Qubit}}
	rotation  = []Param{{"theta", typesys.Double}, {"q", typesys.Qubit}}
	doubleArg = []Param{{"d", typesys.Double}}
)

func gate(name, qis string, params []Param) *Intrinsic {
	return &Intrinsic{Name: name, Class: Gate, Params: params, ReturnType: typesys.Unit,
		QIS: qis, Adjointable: true, Controllable: true}
}

func rot(name, qis string) *Intrinsic {
	g := gate(name, qis, rotation)
	g.Rotation = true
	g.DynamicCaps = caps.SetOf(caps.DynamicDouble)
	return g
}

func classical(name string, params []Param, ret string, extern string, dyn caps.Set, fold FoldFunc) *Intrinsic {
	return &Intrinsic{Name: name, Class: Classical, Params: params, ReturnType: ret,
		Extern: extern, DynamicCaps: dyn, Fold: fold}
}

var table = map[string]*Intrinsic{
	"H":     gate("H", "h", qubit),
	"X":     gate("X", "x", qubit),
	"Y":     gate("Y", "y", qubit),
	"Z":     gate("Z", "z", qubit),
	"S":     withAdjoint(gate("S", "s", qubit), "s__adj"),
	"T":     withAdjoint(gate("T", "t", qubit), "t__adj"),
	"Rx":    rot("Rx", "rx"),
	"Ry":    rot("Ry", "ry"),
	"Rz":    rot("Rz", "rz"),
	"R1":    rot("R1", "r1"),
	"CNOT":  gate("CNOT", "cx", twoQubits),
	"CX":    gate("CX", "cx", twoQubits),
	"CY":    gate("CY", "cy", twoQubits),
	"CZ":    gate("CZ", "cz", twoQubits),
	"SWAP":  gate("SWAP", "swap", []Param{{"a", typesys.Qubit}, {"b", typesys.Qubit}}),
	"CCNOT": gate("CCNOT", "ccx", []Param{{"c1", typesys.Qubit}, {"c2", typesys.Qubit}, {"target", typesys.Qubit}}),

	"M":       {Name: "M", Class: Measurement, Params: qubit, ReturnType: typesys.Result, QIS: "mz"},
	"Mz":      {Name: "Mz", Class: Measurement, Params: qubit, ReturnType: typesys.Result, QIS: "mz"},
	"MResetZ": {Name: "MResetZ", Class: Measurement, Params: qubit, ReturnType: typesys.Result, QIS: "mresetz"},
	"Measure": {Name: "Measure", Class: Measurement, ReturnType: typesys.Result, QIS: "mz",
		Params: []Param{{"bases", "Pauli[]"}, {"qubits", "Qubit[]"}}},

	"Reset": {Name: "Reset", Class: ResetOp, Params: qubit, ReturnType: typesys.Unit, QIS: "reset",
		Caps: caps.SetOf(caps.QubitReuse)},
	"ResetAll": {Name: "ResetAll", Class: ResetOp, Params: []Param{{"qs", "Qubit[]"}}, ReturnType: typesys.Unit,
		QIS: "reset", Caps: caps.SetOf(caps.QubitReuse)},

	"Length":      classical("Length", []Param{{"a", "'T[]"}}, typesys.Int, "", caps.SetOf(caps.DynamicInt), foldLength),
	"IntAsDouble": classical("IntAsDouble", []Param{{"i", typesys.Int}}, typesys.Double, "int_as_double", caps.SetOf(caps.DynamicDouble), foldIntAsDouble),
	"Truncate":    classical("Truncate", doubleArg, typesys.Int, "truncate", caps.SetOf(caps.DynamicInt), foldRounding(truncate)),
	"Floor":       classical("Floor", doubleArg, typesys.Int, "floor", caps.SetOf(caps.DynamicInt), foldRounding(floor)),
	"Ceiling":     classical("Ceiling", doubleArg, typesys.Int, "ceiling", caps.SetOf(caps.DynamicInt), foldRounding(ceiling)),
	"Round":       classical("Round", doubleArg, typesys.Int, "round", caps.SetOf(caps.DynamicInt), foldRounding(round)),
	"Sqrt":        classical("Sqrt", doubleArg, typesys.Double, "sqrt", caps.SetOf(caps.DynamicDouble), foldUnaryDouble(sqrt)),
	"Sin":         classical("Sin", doubleArg, typesys.Double, "sin", caps.SetOf(caps.DynamicDouble), foldUnaryDouble(sin)),
	"Cos":         classical("Cos", doubleArg, typesys.Double, "cos", caps.SetOf(caps.DynamicDouble), foldUnaryDouble(cos)),
	"AbsD":        classical("AbsD", doubleArg, typesys.Double, "abs_d", caps.SetOf(caps.DynamicDouble), foldUnaryDouble(absD)),
	"AbsI":        classical("AbsI", []Param{{"i", typesys.Int}}, typesys.Int, "abs_i", caps.SetOf(caps.DynamicInt), foldAbsI),
	"MinI":        classical("MinI", []Param{{"a", typesys.Int}, {"b", typesys.Int}}, typesys.Int, "min_i", caps.SetOf(caps.DynamicInt), foldMinMax(true)),
	"MaxI":        classical("MaxI", []Param{{"a", typesys.Int}, {"b", typesys.Int}}, typesys.Int, "max_i", caps.SetOf(caps.DynamicInt), foldMinMax(false)),
	"PI":          classical("PI", nil, typesys.Double, "", caps.Empty, foldPI),
	"Message":     classical("Message", []Param{{"msg", typesys.String}}, typesys.Unit, "", caps.SetOf(caps.HigherLevelConstructs), nil),
}

func withAdjoint(in *Intrinsic, adj string) *Intrinsic {
	in.AdjointQIS = adj
	return in
}

// Lookup finds an intrinsic by name.
func Lookup(name string) (*Intrinsic, bool) {
	in, ok := table[name]
	return in, ok
}

// Names lists the table in sorted order.
func Names() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the intrinsic behind c: the table entry when c is a
// declaration of one, otherwise a description derived from c's signature for
// user-declared "body intrinsic" callables.
func Resolve(c *ast.Callable) (*Intrinsic, bool) {
	if c == nil || !c.IsIntrinsic() {
		return nil, false
	}
	if in, ok := table[c.Name]; ok {
		return in, true
	}
	return generic(c), true
}

func generic(c *ast.Callable) *Intrinsic {
	in := &Intrinsic{
		Name:         c.Name,
		ReturnType:   c.ReturnType,
		QIS:          strings.ToLower(c.Name),
		Adjointable:  c.Adjoint,
		Controllable: c.Controlled,
	}
	if adj := c.Spec(ast.Adj); adj != nil && adj.Kind != ast.SpecSelf {
		in.AdjointQIS = in.QIS + "__adj"
	}
	for _, p := range c.Params {
		in.Params = append(in.Params, Param{Name: p.Name, Type: p.TypeName})
		if p.TypeName != typesys.Qubit && p.TypeName != "Qubit[]" {
			in.DynamicCaps = in.DynamicCaps.Union(caps.ForType(p.TypeName))
		}
	}
	switch {
	case c.Kind == ast.Function:
		in.Class = Classical
		in.Extern = c.Name
	case c.ReturnType == typesys.Result:
		in.Class = Measurement
	default:
		in.Class = Gate
	}
	return in
}

// Declare adds a declaration for every intrinsic the program does not define
// itself, so later passes resolve calls to them like any other callable.
func Declare(prog *ast.Program) {
	for _, name := range Names() {
		if _, exists := prog.Lookup(name); exists {
			continue
		}
		prog.Add(declaration(table[name]))
	}
}

func declaration(in *Intrinsic) *ast.Callable {
	tok := token.Token{Type: token.IDENT, Literal: in.Name}
	c := &ast.Callable{
		Token:      tok,
		Kind:       in.Kind(),
		Name:       in.Name,
		ReturnType: in.ReturnType,
		Adjoint:    in.Adjointable,
		Controlled: in.Controllable,
		Specs:      map[ast.Variant]*ast.Specialization{},
	}
	for _, p := range in.Params {
		c.Params = append(c.Params, &ast.Param{Token: tok, Name: p.Name, TypeName: p.Type})
	}
	for _, v := range ast.Variants {
		if (v.IsAdjoint() && !in.Adjointable) || (v.IsControlled() && !in.Controllable) {
			continue
		}
		c.Specs[v] = &ast.Specialization{Token: tok, Variant: v, Kind: ast.SpecIntrinsic}
	}
	return c
}
