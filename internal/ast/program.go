package ast

import (
	"bytes"
	"strings"

	"qlower/internal/token"
)

// Variant selects one of the up to four bodies of a callable.
type Variant int

const (
	Body Variant = iota
	Adj
	Ctl
	CtlAdj
)

// Variants lists every variant in canonical order.
var Variants = []Variant{Body, Adj, Ctl, CtlAdj}

func (v Variant) String() string {
	switch v {
	case Body:
		return "body"
	case Adj:
		return "adj"
	case Ctl:
		return "ctl"
	case CtlAdj:
		return "ctladj"
	default:
		return "unknown"
	}
}

// IsControlled reports whether the variant takes a leading control register.
func (v Variant) IsControlled() bool { return v == Ctl || v == CtlAdj }

// IsAdjoint reports whether the variant runs the inverse of the body.
func (v Variant) IsAdjoint() bool { return v == Adj || v == CtlAdj }

// ComposeVariant picks the variant a call with the given functors enters.
func ComposeVariant(adjoint bool, controlled bool) Variant {
	switch {
	case adjoint && controlled:
		return CtlAdj
	case adjoint:
		return Adj
	case controlled:
		return Ctl
	default:
		return Body
	}
}

type CallableKind int

const (
	Operation CallableKind = iota
	Function
)

func (k CallableKind) String() string {
	if k == Function {
		return "function"
	}
	return "operation"
}

// SpecKind records how a variant's body is obtained.
type SpecKind int

const (
	SpecExplicit   SpecKind = iota // authored in source
	SpecIntrinsic                  // no body, supplied by the target
	SpecSelf                       // adjoint self: the body is its own inverse
	SpecInvert                     // derived by inverting another variant
	SpecDistribute                 // derived by adding controls to another variant
	SpecAuto                       // declared through "is Adj/Ctl", generator chosen at derivation
)

func (k SpecKind) String() string {
	switch k {
	case SpecExplicit:
		return "explicit"
	case SpecIntrinsic:
		return "intrinsic"
	case SpecSelf:
		return "self"
	case SpecInvert:
		return "invert"
	case SpecDistribute:
		return "distribute"
	case SpecAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// DefaultControlsName names the control register of generated controlled variants.
const DefaultControlsName = "__controls"

// Specialization is one variant of a callable. Derived bodies are stored next
// to authored ones so later passes treat them uniformly.
type Specialization struct {
	Token        token.Token
	Variant      Variant
	Kind         SpecKind
	ControlsName string
	Body         *BlockStatement
	Derived      bool
}

// Param is one declared parameter of a callable.
type Param struct {
	Token    token.Token
	Name     string
	TypeName string
}

func (p *Param) String() string { return p.Name + " : " + p.TypeName }

// Callable is a typed operation or function together with its variants.
type Callable struct {
	Token      token.Token
	Kind       CallableKind
	Name       string
	Params     []*Param
	ReturnType string
	Adjoint    bool // declared "is Adj"
	Controlled bool // declared "is Ctl"
	Specs      map[Variant]*Specialization
}

func (c *Callable) statementNode()       {}
func (c *Callable) TokenLiteral() string { return c.Token.Literal }
func (c *Callable) String() string {
	var out bytes.Buffer
	out.WriteString(c.Kind.String())
	out.WriteString(" ")
	out.WriteString(c.Name)
	out.WriteString("(")
	params := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		params = append(params, p.String())
	}
	out.WriteString(strings.Join(params, ", "))
	out.WriteString(") : ")
	out.WriteString(c.ReturnType)
	if fs := c.functorSupport(); fs != "" {
		out.WriteString(" is ")
		out.WriteString(fs)
	}
	out.WriteString(" ")
	if b := c.Spec(Body); b != nil && b.Body != nil {
		out.WriteString(b.Body.String())
	} else {
		out.WriteString("{ body intrinsic; }")
	}
	return out.String()
}

func (c *Callable) functorSupport() string {
	switch {
	case c.Adjoint && c.Controlled:
		return "Adj + Ctl"
	case c.Adjoint:
		return "Adj"
	case c.Controlled:
		return "Ctl"
	}
	return ""
}

// Spec returns the specialization for v or nil.
func (c *Callable) Spec(v Variant) *Specialization {
	if c == nil || c.Specs == nil {
		return nil
	}
	return c.Specs[v]
}

func (c *Callable) HasVariant(v Variant) bool { return c.Spec(v) != nil }

// IsIntrinsic reports whether the callable has no authored body.
func (c *Callable) IsIntrinsic() bool {
	s := c.Spec(Body)
	return s == nil || s.Kind == SpecIntrinsic
}

func (c *Callable) IsOperation() bool { return c.Kind == Operation }

// ParamsFor returns the parameter list the given variant is entered with.
// Controlled variants take the control register first.
func (c *Callable) ParamsFor(v Variant) []*Param {
	if !v.IsControlled() {
		return c.Params
	}
	name := DefaultControlsName
	if s := c.Spec(v); s != nil && s.ControlsName != "" {
		name = s.ControlsName
	}
	out := make([]*Param, 0, len(c.Params)+1)
	out = append(out, &Param{Token: c.Token, Name: name, TypeName: "Qubit[]"})
	return append(out, c.Params...)
}

// Program is the typed program graph handed to the backend.
type Program struct {
	Callables []*Callable
	index     map[string]int
}

func NewProgram(callables ...*Callable) *Program {
	p := &Program{index: map[string]int{}}
	for _, c := range callables {
		p.Add(c)
	}
	return p
}

// Add registers c. It returns false when the name is already taken.
func (p *Program) Add(c *Callable) bool {
	if p.index == nil {
		p.index = map[string]int{}
	}
	if _, exists := p.index[c.Name]; exists {
		return false
	}
	p.index[c.Name] = len(p.Callables)
	p.Callables = append(p.Callables, c)
	return true
}

func (p *Program) Lookup(name string) (*Callable, bool) {
	if p == nil {
		return nil, false
	}
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.Callables[i], true
}

func (p *Program) TokenLiteral() string {
	if len(p.Callables) > 0 {
		return p.Callables[0].TokenLiteral()
	}
	return ""
}

// String builds the program back into source code (useful for debugging)
func (p *Program) String() string {
	var out bytes.Buffer
	for i, c := range p.Callables {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(c.String())
	}
	return out.String()
}

// CalleeRef is the static target of a call expression after functor
// applications are folded.
type CalleeRef struct {
	Token      token.Token
	Name       string
	Adjoint    bool
	Controlled int
}

// Variant is the variant of the callee the call enters.
func (r CalleeRef) Variant() Variant {
	return ComposeVariant(r.Adjoint, r.Controlled > 0)
}

// ResolveCallee folds Adjoint/Controlled applications around an identifier.
// Calls through values other than a named callable do not resolve.
func ResolveCallee(e Expression) (CalleeRef, bool) {
	switch v := e.(type) {
	case *Identifier:
		return CalleeRef{Token: v.Token, Name: v.Value}, true
	case *FunctorExpression:
		ref, ok := ResolveCallee(v.Operand)
		if !ok {
			return ref, false
		}
		switch v.Functor {
		case FunctorAdjoint:
			ref.Adjoint = !ref.Adjoint
		case FunctorControlled:
			ref.Controlled++
		default:
			return ref, false
		}
		return ref, true
	}
	return CalleeRef{}, false
}
