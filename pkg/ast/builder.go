package ast

import (
	"strconv"

	"github.com/pmmlc/pmmlc/internal/cerr"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

// InitialValue selects whether Declare pops an initialiser off the stack.
type InitialValue bool

const (
	HasInitialValue InitialValue = true
	NoInitialValue  InitialValue = false
)

// Builder is the typed RPN stack every model parser pushes nodes through.
// Every push method (Field, Constant*, Function, Block, ...) either adds a
// single leaf or pops some fixed number of already-pushed nodes and pushes
// one combining node — exactly the original's stack discipline.
type Builder struct {
	ctx       *pmmlctx.Context
	stack     []Node
	nextID    int
	errorHook cerr.Hook
}

// NewBuilder creates a builder over ctx, reporting errors through hook (nil
// is fine; ParsingError then becomes a no-op, matching the original's
// optional m_customErrorHook falling back to stderr — callers wanting that
// exact behaviour should pass a Hook that writes to stderr themselves).
func NewBuilder(ctx *pmmlctx.Context, hook cerr.Hook) *Builder {
	return &Builder{ctx: ctx, errorHook: hook}
}

// Context returns the conversion context this builder is attached to.
func (b *Builder) Context() *pmmlctx.Context { return b.ctx }

// StackSize returns the number of nodes currently on the stack.
func (b *Builder) StackSize() int { return len(b.stack) }

func (b *Builder) push(n Node) {
	n.ID = b.nextID
	b.nextID++
	if n.CoercedType == fieldtype.Invalid {
		n.CoercedType = n.Type
	}
	b.stack = append(b.stack, n)
}

// popN removes and returns the top n nodes, oldest first (so they read in
// source order as children of the node being built on top of them).
func (b *Builder) popN(n int) []Node {
	if n > len(b.stack) {
		panic("ast: popN asked for more nodes than are on the stack")
	}
	start := len(b.stack) - n
	out := make([]Node, n)
	copy(out, b.stack[start:])
	b.stack = b.stack[:start]
	return out
}

// PopNodesIntoVector is the exported form of popN, named to match the
// original API for callers outside this package (the optimiser rebuilds
// trees with it).
func (b *Builder) PopNodesIntoVector(n int) []Node { return b.popN(n) }

// TopNode returns a pointer to the stack's top node for in-place mutation
// (e.g. SimplifyTrivialValue).
func (b *Builder) TopNode() *Node {
	if len(b.stack) == 0 {
		panic("ast: TopNode called on an empty stack")
	}
	return &b.stack[len(b.stack)-1]
}

// PopNode removes and returns the top node.
func (b *Builder) PopNode() Node {
	return b.popN(1)[0]
}

// PushNode re-pushes an already-built node (used by the optimiser when
// rewriting a subtree it popped off).
func (b *Builder) PushNode(n Node) {
	b.stack = append(b.stack, n)
}

// Field pushes a plain reference to an already-declared field.
func (b *Builder) Field(id fieldtype.ID) {
	desc := b.ctx.Registry.Get(id)
	b.push(Node{Def: &catalog.FieldDef, Content: desc.Name, Type: desc.Type, Field: id})
}

// FieldWithMining pushes a field reference wrapped by whatever outlier
// treatment and replacement-value handling its mining-schema entry
// declares — the exact expansion the original's field(MiningField*)
// performs:
//
//	asExtremeValues: max(min(field, maxValue), minValue)
//	asMissingValues: bound(field >= minValue and field <= maxValue, field)
//
// and, in either case, if a replacement value is set, the whole expression
// is further wrapped in a default-value macro.
func (b *Builder) FieldWithMining(mf fieldtype.MiningField) {
	switch mf.OutlierTreatment {
	case fieldtype.OutlierAsExtremeValues:
		b.Field(mf.Field)
		b.ConstantFloat(mf.MaxValue)
		min, _ := catalog.FindBuiltin("min")
		b.Function(min, 2)
		b.ConstantFloat(mf.MinValue)
		max, _ := catalog.FindBuiltin("max")
		b.Function(max, 2)
	case fieldtype.OutlierAsMissingValues:
		b.Field(mf.Field)
		b.ConstantFloat(mf.MinValue)
		ge, _ := catalog.FindBuiltin("greaterOrEqual")
		b.Function(ge, 2)
		b.Field(mf.Field)
		b.ConstantFloat(mf.MaxValue)
		le, _ := catalog.FindBuiltin("lessOrEqual")
		b.Function(le, 2)
		and, _ := catalog.FindBuiltin("and")
		b.Function(and, 2)
		b.Field(mf.Field)
		b.Function(&catalog.BoundFunction, 2)
	default:
		b.Field(mf.Field)
	}
	if mf.HasReplacementValue {
		b.DefaultValue(mf.ReplacementValue)
	}
}

// FieldIndirect pops nIndirections index expressions and pushes a table (or
// string-table) element access. A table access degrades to number, a
// string-table access degrades to string — the container type only matters
// for declaring the variable, not for reading one cell out of it.
func (b *Builder) FieldIndirect(id fieldtype.ID, nIndirections int) {
	children := b.popN(nIndirections)
	desc := b.ctx.Registry.Get(id)
	n := Node{Children: children, Def: &catalog.FieldDef, Content: desc.Name, Type: desc.Type, Field: id}
	switch n.Type {
	case fieldtype.Table:
		n.Type, n.CoercedType = fieldtype.Number, fieldtype.Number
	case fieldtype.StringTable:
		n.Type, n.CoercedType = fieldtype.String, fieldtype.String
	}
	b.push(n)
}

// ConstantRaw pushes a literal whose target-language text is already
// formatted.
func (b *Builder) ConstantRaw(text string, t fieldtype.Type) {
	b.push(Node{Def: &catalog.ConstantDef, Content: text, Type: t, Field: fieldtype.InvalidID})
}

// ConstantFloat pushes a numeric constant, formatted with 17 significant
// digits so a float64 round-trips exactly through the emitted source.
func (b *Builder) ConstantFloat(f float64) {
	b.ConstantRaw(formatFloat(f), fieldtype.Number)
}

// ConstantInt pushes an integral numeric constant.
func (b *Builder) ConstantInt(i int) {
	b.ConstantRaw(strconv.Itoa(i), fieldtype.Number)
}

// ConstantString pushes a string literal; the target-language escaping
// happens at emission time, not here — Content holds the raw string value.
func (b *Builder) ConstantString(s string) {
	b.ConstantRaw(s, fieldtype.String)
}

// ConstantBool pushes a boolean literal.
func (b *Builder) ConstantBool(v bool) {
	b.ConstantRaw(strconv.FormatBool(v), fieldtype.Bool)
}

// Nil pushes the nil/missing-value literal.
func (b *Builder) Nil() {
	b.push(Node{Def: &catalog.NilDef, Content: "nil", Type: fieldtype.Invalid, Field: fieldtype.InvalidID})
}

// DefaultValue pops one node and wraps it in a default-value macro that
// substitutes replacement when the popped expression is missing.
func (b *Builder) DefaultValue(replacement string) {
	children := b.popN(1)
	b.push(Node{Children: children, Def: &catalog.DefaultDef, Content: replacement, Type: children[0].Type, Field: fieldtype.InvalidID})
}

// Function pops nArgs nodes and pushes a call/operator node; nArgs is not
// checked against def.MinArgs or def.MaxArgs. The output type, when the definition doesn't fix one
// (catalog entries with OutputType == fieldtype.Invalid), is taken from the
// last child with a known type, walking backwards — ternary and bound
// macros put their predicate first and their value last, so walking in
// reverse picks the value's type rather than the predicate's bool.
func (b *Builder) Function(def *catalog.Definition, nArgs int) {
	if def.Kind == catalog.Unsupported {
		panic("ast: attempted to build an unsupported function node")
	}
	children := b.popN(nArgs)
	dataType := def.OutputType
	if dataType == fieldtype.Invalid {
		for i := len(children) - 1; i >= 0 && dataType == fieldtype.Invalid; i-- {
			dataType = children[i].EffectiveType()
		}
	}
	b.push(Node{Children: children, Def: def, Type: dataType, Field: fieldtype.InvalidID})
}

// CustomNode pushes a node for a user-defined function call or any other
// construct that needs an explicit type/content rather than the ones
// Function derives automatically.
func (b *Builder) CustomNode(def *catalog.Definition, t fieldtype.Type, content string, nArgs int) {
	children := b.popN(nArgs)
	b.push(Node{Children: children, Def: def, Content: content, Type: t, Field: fieldtype.InvalidID})
}

// Declare introduces a new local bound to id. With HasInitialValue it pops
// one node as the initialiser.
func (b *Builder) Declare(id fieldtype.ID, hasInitial InitialValue) {
	var children []Node
	if hasInitial == HasInitialValue {
		children = b.popN(1)
	}
	desc := b.ctx.Registry.Get(id)
	b.push(Node{Children: children, Def: &catalog.DeclarationDef, Content: desc.Name, Field: id, Type: fieldtype.Void})
}

// Assign pops one node (the new value) and pushes a direct assignment to
// id.
func (b *Builder) Assign(id fieldtype.ID) {
	children := b.popN(1)
	desc := b.ctx.Registry.Get(id)
	b.push(Node{Children: children, Def: &catalog.AssignmentDef, Content: desc.Name, Field: id, Type: fieldtype.Void})
}

// AssignIndirect pops the new value plus nIndirections index expressions
// and pushes an indexed assignment to id.
func (b *Builder) AssignIndirect(id fieldtype.ID, nIndirections int) {
	children := b.popN(1 + nIndirections)
	desc := b.ctx.Registry.Get(id)
	b.push(Node{Children: children, Def: &catalog.AssignmentDef, Content: desc.Name, Field: id, Type: fieldtype.Void})
}

// Block pops nInstructions statements (oldest-first) and pushes a sequence
// node whose value is its last statement's value (or Invalid if empty).
func (b *Builder) Block(nInstructions int) {
	children := b.popN(nInstructions)
	dataType := fieldtype.Invalid
	if len(children) > 0 {
		dataType = children[len(children)-1].Type
	}
	b.push(Node{Children: children, Def: &catalog.BlockDef, Type: dataType, Field: fieldtype.InvalidID})
}

// IfChain pops nInstructions nodes, oldest-first, laid out as (clause,
// predicate) pairs with an optional trailing implicit-else clause, and pushes an if/elseif/else
// chain node. This is a thin wrapper over Function(IfChainDef, ...), same
// as the original.
func (b *Builder) IfChain(nInstructions int) {
	b.Function(&catalog.IfChainDef, nInstructions)
}

// Lambda pops one body node plus nArguments parameter-declaration nodes and
// pushes a lambda literal whose type is its body's type.
func (b *Builder) Lambda(nArguments int) {
	children := b.popN(nArguments + 1)
	b.push(Node{Children: children, Def: &catalog.LambdaDef, Type: children[len(children)-1].Type, Field: fieldtype.InvalidID})
}

// CoerceToSameType sets CoercedType on the top nEntries nodes to the single
// most permissive type among them (lowest fieldtype.Type rank), returning
// false if that would mix Bool with a non-Bool type.
func (b *Builder) CoerceToSameType(nEntries int) bool {
	if nEntries == 0 {
		return true
	}
	start := len(b.stack) - nEntries
	t := b.stack[start].Type
	for _, n := range b.stack[start:] {
		t = fieldtype.Lower(t, n.Type)
	}
	nBool := 0
	for _, n := range b.stack[start:] {
		if n.Type == fieldtype.Bool {
			nBool++
		}
	}
	ok := nBool == 0 || nBool == nEntries
	for i := start; i < len(b.stack); i++ {
		b.stack[i].CoercedType = t
	}
	return ok
}

// CoerceToSpecificTypes sets CoercedType per-slot on the top len(types)
// nodes. fieldtype.Invalid in types means "leave this slot alone". Returns
// false if any requested type would narrow (a higher-rank type coerced down
// into a lower-rank one), which the original treats as unlikely to produce
// correct results.
func (b *Builder) CoerceToSpecificTypes(types []fieldtype.Type) bool {
	start := len(b.stack) - len(types)
	ok := true
	for i, t := range types {
		if t == fieldtype.Invalid {
			continue
		}
		orig := b.stack[start+i].Type
		if t != orig && fieldtype.Lower(t, orig) == orig {
			ok = false
		}
		b.stack[start+i].CoercedType = t
	}
	return ok
}

// SwapNodes swaps the stack entries at indices a and b, each of which may
// be negative to count back from the top (-1 is the top element).
func (b *Builder) SwapNodes(a, b2 int) {
	n := len(b.stack)
	if a < 0 {
		a = n + a
	}
	if b2 < 0 {
		b2 = n + b2
	}
	b.stack[a], b.stack[b2] = b.stack[b2], b.stack[a]
}

// ParsingError reports a malformed-input style error at line through the
// builder's error hook.
func (b *Builder) ParsingError(kind cerr.Kind, code, message string, line int) {
	if b.errorHook != nil {
		b.errorHook.Report(cerr.New(kind, code, message, line))
	}
}

// ParsingErrorWithArg is ParsingError with an offending name/value attached.
func (b *Builder) ParsingErrorWithArg(kind cerr.Kind, code, message, arg string, line int) {
	if b.errorHook != nil {
		b.errorHook.Report(cerr.New(kind, code, message, line).WithArg(arg))
	}
}
