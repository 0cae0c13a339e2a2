package caps

import "qlower/internal/typesys"

// ForType is what computing with a runtime value of type t needs: merging two
// such values at a join, selecting between them, or holding them in a
// loop-carried variable.
func ForType(t string) Set {
	switch t {
	case typesys.Int, typesys.BigInt:
		return SetOf(DynamicInt)
	case typesys.Double:
		return SetOf(DynamicDouble)
	case typesys.Bool:
		return SetOf(DynamicBool)
	case typesys.Result, typesys.Qubit, typesys.Unit:
		return Empty
	}
	if elem, ok := typesys.PeelArrayType(t); ok {
		return ForType(elem)
	}
	if members, ok := typesys.SplitTopLevelTuple(t); ok {
		var s Set
		for _, m := range members {
			s = s.Union(ForType(m))
		}
		return s
	}
	return SetOf(HigherLevelConstructs)
}

// ForOperator is what applying op to a runtime operand of type operand needs.
func ForOperator(op string, operand string) Set {
	switch op {
	case "not", "and", "or":
		return SetOf(DynamicBool)
	case "==", "!=":
		switch operand {
		case typesys.Result:
			return Empty
		case typesys.Bool, typesys.Int, typesys.BigInt, typesys.Double:
			return ForType(operand)
		}
		return SetOf(HigherLevelConstructs)
	case "<", "<=", ">", ">=", "+", "-", "*", "/", "%", "^":
		switch operand {
		case typesys.Int, typesys.BigInt, typesys.Double:
			return ForType(operand)
		}
		if op == "+" && typesys.IsArray(operand) {
			return Empty
		}
		return SetOf(HigherLevelConstructs)
	}
	return SetOf(HigherLevelConstructs)
}
