package analysis

import (
	"qlower/internal/builtins"
	"qlower/internal/caps"
	"qlower/internal/typesys"
)

// intrinsicSummary reads a target intrinsic's summary off the builtin table.
func intrinsicSummary(n *Node) *Summary {
	in := n.Intrinsic
	params := n.Params()
	s := &Summary{Params: make([]ParamEffect, len(params))}
	s.Inherent.AddSet(in.Caps, caps.Origin{
		Callable: n.Callable.Name,
		Pos:      n.Callable.Token.Pos(),
		Reason:   in.Class.String() + " intrinsic " + in.Name,
	})
	if in.ReturnsDynamic() {
		s.Return = Dynamic
	}
	for i, p := range params {
		if n.Variant.IsControlled() && i == 0 {
			s.Params[i].Shape = Effect{Caps: caps.SetOf(caps.HigherLevelConstructs)}
			continue
		}
		s.Params[i] = intrinsicParam(in, p.TypeName)
	}
	return s
}

func intrinsicParam(in *builtins.Intrinsic, typ string) ParamEffect {
	if in.Name == "Length" && in.Class == builtins.Classical {
		return ParamEffect{
			Shape: Effect{Caps: caps.SetOf(caps.DynamicInt), Return: Dynamic},
		}
	}
	if typ == typesys.Qubit || typ == "Qubit[]" {
		pe := ParamEffect{}
		if typ == "Qubit[]" {
			pe.Shape = Effect{Caps: caps.SetOf(caps.HigherLevelConstructs)}
		}
		return pe
	}
	need := in.DynamicCaps
	if need.IsEmpty() {
		need = caps.ForType(typ)
	}
	eff := Effect{Caps: need}
	if in.Class == builtins.Classical {
		eff.Return = Dynamic
	}
	shape := eff
	if typesys.IsArray(typ) {
		shape.Caps = shape.Caps.With(caps.HigherLevelConstructs)
	}
	return ParamEffect{Dynamic: eff, Shape: shape}
}
