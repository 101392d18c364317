// Package fieldtype defines the closed set of value types, operational
// types, and field origins shared by every stage of the compiler.
package fieldtype

// Type is the closed set of value types a node can carry. Ordering matters:
// coercion between two types always picks the lower rank, and Bool never
// coerces with anything but Bool.
type Type int

const (
	Invalid Type = iota
	Bool
	Number
	String
	Table
	StringTable
	Lambda
	Void
)

// rank gives the coercion order used by CoerceToSameType. Lower ranks win
// when mixed with a higher one, except Bool, which never mixes.
var rank = map[Type]int{
	Bool:        0,
	Number:      1,
	String:      2,
	Table:       3,
	StringTable: 4,
	Lambda:      5,
	Void:        6,
	Invalid:     7,
}

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Table:
		return "table"
	case StringTable:
		return "string-table"
	case Lambda:
		return "lambda"
	case Void:
		return "void"
	default:
		return "invalid"
	}
}

// Compatible reports whether a and b can be coerced to a common type: Bool
// is only compatible with itself.
func Compatible(a, b Type) bool {
	if a == Bool || b == Bool {
		return a == b
	}
	return true
}

// Lower returns whichever of a, b has the lower coercion rank. Callers must
// have already checked Compatible.
func Lower(a, b Type) Type {
	if rank[a] <= rank[b] {
		return a
	}
	return b
}

// OpType is the PMML operational type of a field, used by the optimiser and
// a handful of function semantics (e.g. isIn on ordinal fields).
type OpType int

const (
	OpInvalid OpType = iota
	Categorical
	Continuous
	Ordinal
)

// Origin records where a field's value ultimately comes from. The
// optimiser's aliasing and inlining passes treat origins differently:
// Temporary values are always safe to inline away, DataDictionary and
// Parameter values are not.
type Origin int

const (
	OriginDataDictionary Origin = iota
	OriginParameter
	OriginTemporary
	OriginOutput
	OriginTransformedValue
	OriginSpecial
)
