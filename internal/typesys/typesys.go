package typesys

import (
	"strings"
)

// Type names used throughout the program graph. Compound types are spelled the
// way the source does: arrays as "Qubit[]", tuples as "(Int, Result)".
const (
	Unit    = "Unit"
	Int     = "Int"
	BigInt  = "BigInt"
	Double  = "Double"
	Bool    = "Bool"
	String  = "String"
	Result  = "Result"
	Pauli   = "Pauli"
	Qubit   = "Qubit"
	Range   = "Range"
	Unknown = "Unknown"
)

func ParseTypeDescriptor(t string) (string, int, bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return "", 0, false
	}
	base := t
	depth := 0
	for strings.HasSuffix(base, "[]") {
		base = strings.TrimSpace(base[:len(base)-2])
		depth++
	}
	if strings.HasSuffix(base, "]") {
		return "", 0, false
	}
	base = stripOuterGroupingParens(base)
	if base == "" {
		return "", 0, false
	}
	return base, depth, true
}

func FormatTypeDescriptor(base string, depth int) string {
	out := base
	for i := 0; i < depth; i++ {
		out += "[]"
	}
	return out
}

// PeelArrayType returns the element type of an array type.
func PeelArrayType(t string) (string, bool) {
	base, depth, ok := ParseTypeDescriptor(t)
	if !ok || depth == 0 {
		return "", false
	}
	if _, isTuple := SplitTopLevelTuple(base); isTuple && depth == 1 {
		return base, true
	}
	return FormatTypeDescriptor(base, depth-1), true
}

func WithArrayDimension(elem string) string {
	if _, isTuple := SplitTopLevelTuple(elem); isTuple && !isWrappedInParens(elem) {
		elem = "(" + elem + ")"
	}
	return elem + "[]"
}

func IsArray(t string) bool {
	_, depth, ok := ParseTypeDescriptor(t)
	return ok && depth > 0
}

func IsBuiltinTypeName(name string) bool {
	switch name {
	case Unit, Int, BigInt, Double, Bool, String, Result, Pauli, Qubit, Range:
		return true
	default:
		return false
	}
}

// IsClassicalScalar reports types whose runtime values can be computed by
// classical instructions in the emitted module.
func IsClassicalScalar(t string) bool {
	switch t {
	case Int, Double, Bool, BigInt:
		return true
	default:
		return false
	}
}

// ContainsType reports whether want appears anywhere inside t.
func ContainsType(t, want string) bool {
	base, _, ok := ParseTypeDescriptor(t)
	if !ok {
		return false
	}
	if parts, isTuple := SplitTopLevelTuple(base); isTuple {
		for _, p := range parts {
			if ContainsType(p, want) {
				return true
			}
		}
		return false
	}
	return base == want
}

// MergeTypeNames picks the type both arms of a join agree on. Unknown yields
// to anything; otherwise the types must match.
func MergeTypeNames(a, b string) (string, bool) {
	switch {
	case a == b:
		return a, true
	case a == "" || a == Unknown:
		return b, true
	case b == "" || b == Unknown:
		return a, true
	}
	return "", false
}

// ArithmeticResultType is the type of a binary arithmetic operator over l and r.
func ArithmeticResultType(l, r string) string {
	switch {
	case l == Double || r == Double:
		return Double
	case l == BigInt || r == BigInt:
		return BigInt
	case l == String || r == String:
		return String
	case l == Int && r == Int:
		return Int
	case IsArray(l) && l == r:
		return l
	}
	if m, ok := MergeTypeNames(l, r); ok {
		return m
	}
	return Unknown
}

func stripOuterGroupingParens(s string) string {
	s = strings.TrimSpace(s)
	for isWrappedInParens(s) {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if hasTopLevelComma(inner) {
			return s
		}
		s = inner
	}
	return s
}

func hasTopLevelComma(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

func SplitTopLevelTuple(t string) ([]string, bool) {
	t = strings.TrimSpace(t)
	if !isWrappedInParens(t) {
		return nil, false
	}
	inner := strings.TrimSpace(t[1 : len(t)-1])
	if !hasTopLevelComma(inner) {
		return nil, false
	}
	parts := SplitTopLevelComma(inner)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, false
		}
	}
	return parts, true
}

func TupleMemberType(typeName string, idx int) (string, bool) {
	parts, ok := SplitTopLevelTuple(typeName)
	if !ok || idx < 0 || idx >= len(parts) {
		return "", false
	}
	return parts[idx], true
}

// TupleTypeName spells a tuple of the given member types.
func TupleTypeName(members []string) string {
	if len(members) == 0 {
		return Unit
	}
	if len(members) == 1 {
		return members[0]
	}
	return "(" + strings.Join(members, ", ") + ")"
}

func isWrappedInParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func SplitTopLevelComma(s string) []string {
	parts := []string{}
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
