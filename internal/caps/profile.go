package caps

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Profile names a target execution profile.
type Profile int

const (
	Minimal Profile = iota
	Partial
	Extended
	Unrestricted
)

// Profiles lists the lattice from least to most permissive.
var Profiles = []Profile{Minimal, Partial, Extended, Unrestricted}

func (p Profile) String() string {
	switch p {
	case Minimal:
		return "minimal"
	case Partial:
		return "partial"
	case Extended:
		return "extended"
	case Unrestricted:
		return "unrestricted"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

func ParseProfile(name string) (Profile, error) {
	for _, p := range Profiles {
		if strings.EqualFold(p.String(), strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return Minimal, errors.Errorf("unknown target profile %q", name)
}

// Lattice maps each profile to the capabilities it permits. Every profile's
// set contains the previous one's.
type Lattice struct {
	permitted [4]Set
}

var partialSet = SetOf(BranchOnMeasurement, DynamicBool, QubitReuse)

var defaultLattice = Lattice{permitted: [4]Set{
	Minimal:      Empty,
	Partial:      partialSet,
	Extended:     partialSet.Union(SetOf(DynamicInt, DynamicDouble, DynamicIndex, ReturnInDynamicScope)),
	Unrestricted: Maximal,
}}

func DefaultLattice() Lattice { return defaultLattice }

// NewLattice builds a lattice from explicit permitted sets. Profiles absent
// from the map keep their default set. The result must stay linear.
func NewLattice(overrides map[Profile]Set) (Lattice, error) {
	l := defaultLattice
	for p, s := range overrides {
		if p < Minimal || p > Unrestricted {
			return Lattice{}, errors.Errorf("unknown target profile %d", int(p))
		}
		l.permitted[p] = s
	}
	for i := 1; i < len(Profiles); i++ {
		prev, cur := Profiles[i-1], Profiles[i]
		if !l.permitted[prev].SubsetOf(l.permitted[cur]) {
			return Lattice{}, errors.Errorf("profile %s permits %s which %s does not",
				prev, l.permitted[prev].Minus(l.permitted[cur]), cur)
		}
	}
	return l, nil
}

func (l Lattice) Permitted(p Profile) Set {
	if p < Minimal || p > Unrestricted {
		return Empty
	}
	return l.permitted[p]
}

// Admits reports whether s is a subset of what p permits.
func (l Lattice) Admits(p Profile, s Set) bool { return s.SubsetOf(l.Permitted(p)) }

// MinimalProfile returns the least profile admitting s. The second result is
// false when no profile does.
func (l Lattice) MinimalProfile(s Set) (Profile, bool) {
	for _, p := range Profiles {
		if l.Admits(p, s) {
			return p, true
		}
	}
	return Unrestricted, false
}
