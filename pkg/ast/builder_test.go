package ast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/internal/cerr"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

func newTestBuilder(t *testing.T) (*Builder, *pmmlctx.Context, fieldtype.ID) {
	t.Helper()
	ctx := pmmlctx.New()
	ctx.SetupInputs(
		[]fieldtype.Description{{Type: fieldtype.Number}},
		[]string{"age"},
		map[string]bool{"age": true},
		map[string]bool{},
	)
	return NewBuilder(ctx, nil), ctx, ctx.GetFieldDescription("age")
}

func TestFieldPushesOneNode(t *testing.T) {
	b, _, age := newTestBuilder(t)
	b.Field(age)
	require.Equal(t, 1, b.StackSize())
	n := b.TopNode()
	require.Equal(t, catalog.FieldRef, n.Kind())
	require.Equal(t, age, n.Field)
	require.Equal(t, fieldtype.Number, n.Type)
}

func TestFunctionPopsArgsAndPushesOneNode(t *testing.T) {
	b, _, age := newTestBuilder(t)
	b.Field(age)
	b.ConstantFloat(10)
	lessThan, ok := catalog.FindBuiltin("lessThan")
	require.True(t, ok)
	b.Function(lessThan, 2)

	require.Equal(t, 1, b.StackSize())
	n := b.PopNode()
	require.Equal(t, catalog.Comparison, n.Kind())
	require.Equal(t, fieldtype.Bool, n.Type)
	require.Len(t, n.Children, 2)
	require.Equal(t, age, n.Children[0].Field)
}

func TestFunctionOutputTypeFallsBackToLastChildWalkingBackwards(t *testing.T) {
	b, _, age := newTestBuilder(t)
	b.Field(age)
	b.ConstantBool(true)
	b.ConstantFloat(1)
	b.ConstantFloat(2)
	ternary, ok := catalog.FindBuiltin("if")
	require.True(t, ok)
	b.Function(ternary, 3)

	n := b.PopNode()
	require.Equal(t, fieldtype.Number, n.Type, "ternary's output type should come from its value branch, not its predicate")
}

func TestFunctionPanicsOnUnsupportedDefinition(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	b.ConstantFloat(1)
	matches, ok := catalog.FindBuiltin("matches")
	require.True(t, ok)
	require.Equal(t, catalog.Unsupported, matches.Kind)
	require.Panics(t, func() { b.Function(matches, 1) })
}

func TestDeclareAndBlockAssembleASequence(t *testing.T) {
	b, ctx, age := newTestBuilder(t)
	temp := ctx.CreateVariable(fieldtype.Number, "doubled", fieldtype.OriginTemporary)

	b.Field(age)
	b.ConstantFloat(2)
	times, ok := catalog.FindBuiltin("*")
	require.True(t, ok)
	b.Function(times, 2)
	b.Declare(temp, HasInitialValue)

	b.Field(temp)
	b.Block(2)

	require.Equal(t, 1, b.StackSize())
	block := b.PopNode()
	require.Equal(t, catalog.Block, block.Kind())
	require.Len(t, block.Children, 2)
	require.Equal(t, catalog.Declaration, block.Children[0].Kind())
	require.Equal(t, fieldtype.Number, block.Type, "a Block's type is its last statement's type")
}

func TestBlockOfZeroInstructionsIsInvalidType(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	b.Block(0)
	n := b.PopNode()
	require.Equal(t, fieldtype.Invalid, n.Type)
	require.Empty(t, n.Children)
}

func TestCoerceToSameTypeRejectsBoolMixedWithNonBool(t *testing.T) {
	b, _, age := newTestBuilder(t)
	b.Field(age)
	b.ConstantBool(true)
	ok := b.CoerceToSameType(2)
	require.False(t, ok, "Bool never coerces with a non-Bool type")
	require.Equal(t, fieldtype.Bool, b.stack[len(b.stack)-2].CoercedType)
	require.Equal(t, fieldtype.Bool, b.stack[len(b.stack)-1].CoercedType)
}

func TestCoerceToSameTypePicksMostPermissiveType(t *testing.T) {
	b, _, age := newTestBuilder(t)
	b.Field(age)
	b.ConstantString("x")
	ok := b.CoerceToSameType(2)
	require.True(t, ok)
	require.Equal(t, fieldtype.String, b.stack[len(b.stack)-2].CoercedType)
	require.Equal(t, fieldtype.String, b.stack[len(b.stack)-1].CoercedType)
}

func TestSwapNodesAcceptsNegativeIndices(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	b.ConstantFloat(1)
	b.ConstantFloat(2)
	b.SwapNodes(-2, -1)
	require.Equal(t, "2", b.stack[0].Content)
	require.Equal(t, "1", b.stack[1].Content)
}

type recordingHook struct{ reports []cerr.Error }

func (h *recordingHook) Report(e cerr.Error) { h.reports = append(h.reports, e) }

func TestParsingErrorReportsThroughTheHook(t *testing.T) {
	ctx := pmmlctx.New()
	hook := &recordingHook{}
	b := NewBuilder(ctx, hook)
	b.ParsingError(cerr.MalformedInput, "P0-TEST", "bad field reference", 7)
	require.Len(t, hook.reports, 1)
	require.Equal(t, "P0-TEST", hook.reports[0].Code)
}

func TestParsingErrorIsANoOpWithoutAHook(t *testing.T) {
	ctx := pmmlctx.New()
	b := NewBuilder(ctx, nil)
	require.NotPanics(t, func() { b.ParsingError(cerr.MalformedInput, "P0-TEST", "ignored", 0) })
}
