package analysis

import (
	"fmt"
	"strings"

	"qlower/internal/caps"
)

// Level abstracts what is known about a value at compile time.
type Level uint8

const (
	// Static values are known while lowering.
	Static Level = iota
	// Dynamic values depend on a runtime outcome. Containers at this level
	// have a known length.
	Dynamic
	// DynamicShape containers have a runtime length.
	DynamicShape
)

func (l Level) String() string {
	switch l {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case DynamicShape:
		return "dynamic-shape"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) IsDynamic() bool { return l >= Dynamic }

// Join is the least upper bound of l and o.
func (l Level) Join(o Level) Level {
	if o > l {
		return o
	}
	return l
}

// Effect is what a call adds when one argument is at a given level.
type Effect struct {
	Caps   caps.Set
	Return Level
}

// ParamEffect records the effect of a runtime argument for one parameter.
// Shape applies when an array argument has a runtime length.
type ParamEffect struct {
	Dynamic Effect
	Shape   Effect
}

// Summary is the analysis result for one (callable, variant) node.
type Summary struct {
	// Inherent is required by every call, with parameters taken as static.
	Inherent caps.Requirements
	// Return is the level of the result with static arguments.
	Return Level
	// Fails reports whether a fail statement is reachable from the body.
	Fails  bool
	Params []ParamEffect
}

// For returns the effect of parameter i receiving an argument at level l.
func (s *Summary) For(i int, l Level) Effect {
	if s == nil || i < 0 || i >= len(s.Params) || !l.IsDynamic() {
		return Effect{}
	}
	if l == DynamicShape {
		return s.Params[i].Shape
	}
	return s.Params[i].Dynamic
}

// Caps is the inherent capability set.
func (s *Summary) Caps() caps.Set {
	if s == nil {
		return caps.Empty
	}
	return s.Inherent.Set()
}

// sameAs compares everything but origins.
func (s *Summary) sameAs(o *Summary) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Inherent.Set() != o.Inherent.Set() || s.Return != o.Return || s.Fails != o.Fails {
		return false
	}
	if len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

func (s *Summary) String() string {
	if s == nil {
		return "<none>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "caps=%s return=%s", s.Inherent.Set(), s.Return)
	if s.Fails {
		b.WriteString(" fails")
	}
	for i, p := range s.Params {
		if p == (ParamEffect{}) {
			continue
		}
		fmt.Fprintf(&b, " p%d=%s/%s", i, p.Dynamic.Caps, p.Dynamic.Return)
		if p.Shape != p.Dynamic {
			fmt.Fprintf(&b, " p%d[shape]=%s/%s", i, p.Shape.Caps, p.Shape.Return)
		}
	}
	return b.String()
}
