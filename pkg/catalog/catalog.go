// Package catalog is the static function catalog (component C1): the
// closed set of PMML built-in functions together with their Lua
// equivalents, precedence, output type and missing-value rule.
package catalog

import (
	"sort"

	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// FunctionType selects which family of emission/analysis logic a call site
// uses. This is a closed Go enum dispatched with a switch in each phase,
// replacing the tag-class-plus-template-dispatch pattern of the original
// implementation (see DESIGN.md).
type FunctionType int

const (
	UnaryOperator FunctionType = iota
	NotOperator
	Operator
	Comparison
	Functionlike
	RoundMacro
	Log10Macro
	MeanMacro
	TernaryMacro
	BoundMacro
	IsMissing
	IsNotMissing
	IsIn
	SubstringMacro
	TrimBlank
	Constant
	FieldRef
	SurrogateMacro
	BooleanAnd
	BooleanOr
	BooleanXor
	DefaultMacro
	ThresholdMacro
	Block
	Declaration
	Assignment
	IfChain
	MakeTuple
	Lambda
	RunLambda
	ReturnStatement
	Unsupported
)

// MissingValueRule governs how a call site's own potential-missingness is
// derived from its arguments.
type MissingValueRule int

const (
	NeverMissing MissingValueRule = iota
	MissingIfAnyArgMissing
	MaybeMissingIfAnyArgMissing
	MaybeMissing
)

// Operator precedence levels, matching the target language's own operator
// table exactly (see pkg/emitter for where these are consumed).
const (
	PrecedenceTop         = 0
	PrecedencePower       = 1
	PrecedenceUnary       = 2
	PrecedenceTimes       = 3
	PrecedencePlus        = 4
	PrecedenceConcat      = 5
	PrecedenceEqual       = 6
	PrecedenceAnd         = 7
	PrecedenceOr          = 8
	PrecedenceParenthesis = 9
)

// Definition is one entry of the function catalog: everything the
// analyser, emitter and optimiser need to know about a function without
// re-deriving it from the PMML name.
type Definition struct {
	// PMMLName is empty for internal-only definitions that never appear in
	// a PMML document (e.g. the ternary/bound/surrogate macros).
	PMMLName string
	// TargetName is the function/operator token emitted in the target
	// language. Empty for macro FunctionTypes that don't correspond to one
	// callable symbol (ternary, threshold, trimBlanks...).
	TargetName string
	Kind       FunctionType
	// OutputType is fieldtype.Invalid when the return type equals the
	// (coerced) type of the arguments.
	OutputType       fieldtype.Type
	Precedence       int
	MissingValueRule MissingValueRule
	MinArgs          int
	MaxArgs          int // -1 means unbounded
}

const unbounded = -1

// Table is the closed, PMML-name-sorted set of builtin functions, searched
// with FindBuiltin's binary search. It must stay sorted for that to work.
var Table = []Definition{
	{PMMLName: "*", TargetName: "*", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "+", TargetName: "+", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedencePlus, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "-", TargetName: "-", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedencePlus, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "/", TargetName: "/", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "abs", TargetName: "math.abs", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "acos", TargetName: "math.acos", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "and", TargetName: "and", Kind: BooleanAnd, OutputType: fieldtype.Bool, Precedence: PrecedenceAnd, MissingValueRule: MaybeMissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "asin", TargetName: "math.asin", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "atan", TargetName: "math.atan", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "avg", TargetName: "+", Kind: MeanMacro, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "ceil", TargetName: "math.ceil", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "concat", TargetName: "..", Kind: Operator, OutputType: fieldtype.String, Precedence: PrecedenceConcat, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "cos", TargetName: "math.cos", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "cosh", TargetName: "math.cosh", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "dateDaysSinceYear", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "dateSecondsSinceMidnight", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "dateSecondsSinceYear", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "equal", TargetName: "==", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "erf", TargetName: "erf", Kind: RunLambda, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "exp", TargetName: "math.exp", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "expm1", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "floor", TargetName: "math.floor", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "formatDatetime", Kind: Unsupported, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "formatNumber", TargetName: "string.format", Kind: Functionlike, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "greaterOrEqual", TargetName: ">=", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "greaterThan", TargetName: ">", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "if", Kind: TernaryMacro, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 3},
	{PMMLName: "isIn", TargetName: "==", Kind: IsIn, OutputType: fieldtype.Bool, Precedence: PrecedenceOr, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: unbounded},
	{PMMLName: "isMissing", TargetName: "==", Kind: IsMissing, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: NeverMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "isNotIn", TargetName: "~=", Kind: IsIn, OutputType: fieldtype.Bool, Precedence: PrecedenceAnd, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: unbounded},
	{PMMLName: "isNotMissing", TargetName: "not", Kind: IsNotMissing, OutputType: fieldtype.Bool, Precedence: PrecedenceUnary, MissingValueRule: NeverMissing, MinArgs: 1, MaxArgs: 1},
	// isNotValid/isValid are aliased onto isMissing/isNotMissing: PMML's
	// validity concept and our missing-value concept are not the same
	// thing, but treating them identically gives the right answer in the
	// overwhelming majority of real models. Preserved as-is.
	{PMMLName: "isNotValid", TargetName: "==", Kind: IsMissing, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: NeverMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "isValid", TargetName: "not", Kind: IsNotMissing, OutputType: fieldtype.Bool, Precedence: PrecedenceUnary, MissingValueRule: NeverMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "lessOrEqual", TargetName: "<=", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "lessThan", TargetName: "<", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "log10", TargetName: "math.log", Kind: Log10Macro, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "ln", TargetName: "math.log", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "lowercase", TargetName: "string.lower", Kind: Functionlike, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "matches", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "max", TargetName: "math.max", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "median", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "min", TargetName: "math.min", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "modulo", TargetName: "%", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "normalCDF", TargetName: "normalCDF", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 3, MaxArgs: 3},
	{PMMLName: "normalIDF", TargetName: "normalIDF", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 3, MaxArgs: 3},
	{PMMLName: "normalPDF", TargetName: "normalPDF", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 3, MaxArgs: 3},
	{PMMLName: "not", TargetName: "not", Kind: NotOperator, OutputType: fieldtype.Bool, Precedence: PrecedenceUnary, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "notEqual", TargetName: "~=", Kind: Comparison, OutputType: fieldtype.Bool, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "or", TargetName: "or", Kind: BooleanOr, OutputType: fieldtype.Bool, Precedence: PrecedenceOr, MissingValueRule: MaybeMissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "pow", TargetName: "^", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedencePower, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "product", TargetName: "*", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "replace", Kind: Unsupported, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "round", TargetName: "math.floor", Kind: RoundMacro, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "sin", TargetName: "math.sin", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "sinh", TargetName: "math.sinh", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "stdNormalCDF", TargetName: "stdNormalCDF", Kind: RunLambda, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "stdNormalIDF", TargetName: "stdNormalIDF", Kind: RunLambda, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "stdNormalPDF", Kind: Unsupported, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "substring", TargetName: "string.sub", Kind: SubstringMacro, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 3, MaxArgs: 3},
	{PMMLName: "sum", TargetName: "+", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedencePlus, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: unbounded},
	{PMMLName: "tan", TargetName: "math.tan", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "tanh", TargetName: "math.tanh", Kind: Functionlike, OutputType: fieldtype.Number, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "threshold", Kind: ThresholdMacro, OutputType: fieldtype.Number, Precedence: PrecedenceOr, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
	{PMMLName: "trimBlanks", Kind: TrimBlank, OutputType: fieldtype.String, Precedence: PrecedenceOr, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "uppercase", TargetName: "string.upper", Kind: Functionlike, OutputType: fieldtype.String, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 1, MaxArgs: 1},
	{PMMLName: "x-modulo", TargetName: "%", Kind: Operator, OutputType: fieldtype.Number, Precedence: PrecedenceTimes, MissingValueRule: MissingIfAnyArgMissing, MinArgs: 2, MaxArgs: 2},
}

func init() {
	if !sort.SliceIsSorted(Table, func(i, j int) bool { return Table[i].PMMLName < Table[j].PMMLName }) {
		panic("catalog: Table must be sorted by PMMLName for FindBuiltin's binary search")
	}
}

// FindBuiltin looks up a builtin function definition by its PMML name.
func FindBuiltin(pmmlName string) (*Definition, bool) {
	i := sort.Search(len(Table), func(i int) bool { return Table[i].PMMLName >= pmmlName })
	if i < len(Table) && Table[i].PMMLName == pmmlName {
		return &Table[i], true
	}
	return nil, false
}

// Internal-only definitions: never reachable by PMML name, only built up by
// the compiler itself (ternary/bound/surrogate lowering, lambda machinery,
// runtime-helper prologue).
var (
	BoundFunction = Definition{Kind: BoundMacro, OutputType: fieldtype.Invalid, Precedence: PrecedenceOr, MissingValueRule: MaybeMissing}

	UnaryMinus = Definition{TargetName: "-", Kind: UnaryOperator, OutputType: fieldtype.Invalid, Precedence: PrecedenceUnary, MissingValueRule: MissingIfAnyArgMissing}

	MakeTupleDef = Definition{Kind: MakeTuple, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing}

	RunLambdaDef             = Definition{Kind: RunLambda, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissing}
	RunLambdaArgsMissingDef  = Definition{Kind: RunLambda, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissingIfAnyArgMissing}
	RunLambdaNeverMissingDef = Definition{Kind: RunLambda, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}

	SqrtFunction = Definition{TargetName: "math.sqrt", Kind: Functionlike, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing}

	SortTableDef     = Definition{TargetName: "table.sort", Kind: Functionlike, OutputType: fieldtype.Void, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing}
	InsertToTableDef = Definition{TargetName: "table.insert", Kind: Functionlike, OutputType: fieldtype.Void, Precedence: PrecedenceTop, MissingValueRule: MissingIfAnyArgMissing}
	ListLengthDef    = Definition{TargetName: "#", Kind: UnaryOperator, OutputType: fieldtype.Number, Precedence: PrecedenceUnary, MissingValueRule: MissingIfAnyArgMissing}

	// SurrogateFunction's target symbol is "or" so a chain of surrogates
	// reads as `A or B or C` when the value type isn't bool. This breaks
	// silently when an earlier surrogate evaluates to a falsy-but-present
	// value (e.g. number 0, empty string) — a target-language-specific
	// quirk preserved deliberately rather than fixed.
	SurrogateFunction = Definition{TargetName: "or", Kind: SurrogateMacro, OutputType: fieldtype.Invalid, Precedence: PrecedenceOr, MissingValueRule: MaybeMissingIfAnyArgMissing}
	XorFunction       = Definition{TargetName: "~=", Kind: BooleanXor, OutputType: fieldtype.Invalid, Precedence: PrecedenceEqual, MissingValueRule: MissingIfAnyArgMissing}
)

// Structural definitions: these never correspond to a callable PMML or
// target-language function, they mark the syntactic role of an AstBuilder
// node (constant leaf, field reference, block, assignment...). Kept as
// Definitions, same as the original, so the analyser/emitter/optimiser's
// single per-phase switch on Kind covers every node uniformly.
var (
	ConstantDef    = Definition{Kind: Constant, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}
	NilDef         = Definition{Kind: Constant, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissing}
	FieldDef       = Definition{Kind: FieldRef, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissing}
	BlockDef       = Definition{Kind: Block, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissing}
	IfChainDef     = Definition{Kind: IfChain, OutputType: fieldtype.Invalid, Precedence: PrecedenceTop, MissingValueRule: MaybeMissing}
	AssignmentDef  = Definition{Kind: Assignment, OutputType: fieldtype.Void, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}
	DeclarationDef = Definition{Kind: Declaration, OutputType: fieldtype.Void, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}
	DefaultDef     = Definition{Kind: DefaultMacro, OutputType: fieldtype.Invalid, Precedence: PrecedenceOr, MissingValueRule: NeverMissing}
	LambdaDef      = Definition{Kind: Lambda, OutputType: fieldtype.Lambda, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}
	ReturnDef      = Definition{Kind: ReturnStatement, OutputType: fieldtype.Void, Precedence: PrecedenceTop, MissingValueRule: NeverMissing}
)
