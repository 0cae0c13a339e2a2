package typesys

import "testing"

func TestTypeDescriptorParsingAndFormatting(t *testing.T) {
	base, depth, ok := ParseTypeDescriptor("Int[][]")
	if !ok || base != "Int" || depth != 2 {
		t.Fatalf("unexpected parse result: %q %d %v", base, depth, ok)
	}
	if got := FormatTypeDescriptor(base, depth); got != "Int[][]" {
		t.Fatalf("FormatTypeDescriptor=%q", got)
	}
	if _, _, ok := ParseTypeDescriptor("Int[3]"); ok {
		t.Fatalf("sized arrays are not part of the type grammar")
	}
	if _, _, ok := ParseTypeDescriptor(""); ok {
		t.Fatalf("empty type should not parse")
	}
}

func TestArrayHelpers(t *testing.T) {
	elem, ok := PeelArrayType("Qubit[]")
	if !ok || elem != "Qubit" {
		t.Fatalf("PeelArrayType unexpected: %q %v", elem, ok)
	}
	elem, ok = PeelArrayType("(Int, Result)[]")
	if !ok || elem != "(Int, Result)" {
		t.Fatalf("PeelArrayType tuple unexpected: %q %v", elem, ok)
	}
	if _, ok := PeelArrayType("Int"); ok {
		t.Fatalf("PeelArrayType on scalar should fail")
	}
	if got := WithArrayDimension("Result"); got != "Result[]" {
		t.Fatalf("WithArrayDimension=%q", got)
	}
	if got := WithArrayDimension("(Int, Bool)"); got != "(Int, Bool)[]" {
		t.Fatalf("WithArrayDimension tuple=%q", got)
	}
	if !IsArray("Bool[]") || IsArray("Bool") {
		t.Fatalf("IsArray unexpected")
	}
}

func TestTupleHelpers(t *testing.T) {
	parts, ok := SplitTopLevelTuple("(Int, (Qubit, Result[]), Double)")
	if !ok || len(parts) != 3 || parts[1] != "(Qubit, Result[])" {
		t.Fatalf("SplitTopLevelTuple=%v %v", parts, ok)
	}
	if _, ok := SplitTopLevelTuple("(Int)"); ok {
		t.Fatalf("single parenthesized type is not a tuple")
	}
	if got, ok := TupleMemberType("(Int, Bool)", 1); !ok || got != "Bool" {
		t.Fatalf("TupleMemberType=%q %v", got, ok)
	}
	if got := TupleTypeName([]string{"Int", "Result"}); got != "(Int, Result)" {
		t.Fatalf("TupleTypeName=%q", got)
	}
	if got := TupleTypeName(nil); got != Unit {
		t.Fatalf("empty tuple should be Unit, got %q", got)
	}
}

func TestContainsAndMerge(t *testing.T) {
	if !ContainsType("(Int, Result[])", Result) {
		t.Fatalf("ContainsType should find nested Result")
	}
	if ContainsType("Int[]", Qubit) {
		t.Fatalf("ContainsType false positive")
	}
	if got, ok := MergeTypeNames(Unknown, Int); !ok || got != Int {
		t.Fatalf("MergeTypeNames unknown=%q %v", got, ok)
	}
	if _, ok := MergeTypeNames(Int, Double); ok {
		t.Fatalf("Int and Double must not merge")
	}
	if got := ArithmeticResultType(Int, Double); got != Double {
		t.Fatalf("ArithmeticResultType=%q", got)
	}
	if got := ArithmeticResultType(Int, Int); got != Int {
		t.Fatalf("ArithmeticResultType ints=%q", got)
	}
	if !IsClassicalScalar(Bool) || IsClassicalScalar(Qubit) {
		t.Fatalf("IsClassicalScalar unexpected")
	}
	if !IsBuiltinTypeName(Pauli) || IsBuiltinTypeName("Foo") {
		t.Fatalf("IsBuiltinTypeName unexpected")
	}
}
