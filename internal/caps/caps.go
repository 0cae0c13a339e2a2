// Package caps defines runtime capability flags, sets of them annotated with
// the source location that introduced each flag, and the target profiles that
// permit them.
package caps

import (
	"math/bits"
	"strings"

	"qlower/internal/token"
)

// Flag is one discrete runtime behavior a program may need.
type Flag uint8

const (
	BranchOnMeasurement Flag = iota
	DynamicBool
	QubitReuse
	DynamicInt
	DynamicDouble
	DynamicIndex
	ReturnInDynamicScope
	BackwardBranching
	DynamicAllocation
	HigherLevelConstructs

	numFlags
)

// NumFlags is the size of the flag catalogue.
const NumFlags = int(numFlags)

var flagNames = [numFlags]string{
	BranchOnMeasurement:   "BranchOnMeasurement",
	DynamicBool:           "DynamicBool",
	QubitReuse:            "QubitReuse",
	DynamicInt:            "DynamicInt",
	DynamicDouble:         "DynamicDouble",
	DynamicIndex:          "DynamicIndex",
	ReturnInDynamicScope:  "ReturnInDynamicScope",
	BackwardBranching:     "BackwardBranching",
	DynamicAllocation:     "DynamicAllocation",
	HigherLevelConstructs: "HigherLevelConstructs",
}

func (f Flag) String() string {
	if f >= numFlags {
		return "UnknownCapability"
	}
	return flagNames[f]
}

// AllFlags lists the catalogue in declaration order.
func AllFlags() []Flag {
	out := make([]Flag, 0, NumFlags)
	for f := Flag(0); f < numFlags; f++ {
		out = append(out, f)
	}
	return out
}

// ParseFlag resolves a flag by name, case-insensitively.
func ParseFlag(name string) (Flag, bool) {
	for f := Flag(0); f < numFlags; f++ {
		if strings.EqualFold(flagNames[f], name) {
			return f, true
		}
	}
	return 0, false
}

// Set is a set of flags. Union is the only combinator used by the analysis.
type Set uint16

const Empty Set = 0

// Maximal contains every flag.
const Maximal Set = (1 << numFlags) - 1

func SetOf(flags ...Flag) Set {
	var s Set
	for _, f := range flags {
		s |= 1 << f
	}
	return s
}

func (s Set) Has(f Flag) bool     { return s&(1<<f) != 0 }
func (s Set) Union(o Set) Set     { return s | o }
func (s Set) Minus(o Set) Set     { return s &^ o }
func (s Set) IsEmpty() bool       { return s == 0 }
func (s Set) Len() int            { return bits.OnesCount16(uint16(s)) }
func (s Set) SubsetOf(o Set) bool { return s&^o == 0 }

func (s Set) With(f Flag) Set { return s | 1<<f }

// Flags lists members in catalogue order.
func (s Set) Flags() []Flag {
	out := make([]Flag, 0, s.Len())
	for f := Flag(0); f < numFlags; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Set) String() string {
	if s.IsEmpty() {
		return "{}"
	}
	names := make([]string, 0, s.Len())
	for _, f := range s.Flags() {
		names = append(names, f.String())
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Origin is where a flag was first introduced.
type Origin struct {
	Callable string
	Pos      token.Pos
	Reason   string
}

// before orders origins by position, then callable name, so the choice of
// "first" does not depend on analysis order.
func (o Origin) before(other Origin) bool {
	if o.Pos != other.Pos {
		if o.Pos.Before(other.Pos) {
			return true
		}
		if other.Pos.Before(o.Pos) {
			return false
		}
	}
	if o.Callable != other.Callable {
		return o.Callable < other.Callable
	}
	return o.Reason < other.Reason
}

// Requirements is a Set that also remembers the origin of every member.
type Requirements struct {
	set     Set
	origins [numFlags]Origin
}

func (r *Requirements) Set() Set { return r.set }

func (r *Requirements) Has(f Flag) bool { return r.set.Has(f) }

// Origin returns where f was introduced.
func (r *Requirements) Origin(f Flag) (Origin, bool) {
	if !r.set.Has(f) {
		return Origin{}, false
	}
	return r.origins[f], true
}

// Add records f at o. When f is already present the earlier origin wins.
// It reports whether the set grew.
func (r *Requirements) Add(f Flag, o Origin) bool {
	if r.set.Has(f) {
		if o.before(r.origins[f]) {
			r.origins[f] = o
		}
		return false
	}
	r.set = r.set.With(f)
	r.origins[f] = o
	return true
}

// AddSet records every flag of s at o.
func (r *Requirements) AddSet(s Set, o Origin) bool {
	grew := false
	for _, f := range s.Flags() {
		if r.Add(f, o) {
			grew = true
		}
	}
	return grew
}

// Merge unions other into r keeping other's origins.
func (r *Requirements) Merge(other Requirements) bool {
	grew := false
	for _, f := range other.set.Flags() {
		if r.Add(f, other.origins[f]) {
			grew = true
		}
	}
	return grew
}

// Clone returns an independent copy.
func (r *Requirements) Clone() Requirements { return *r }
