package analyser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

func newTestField(t *testing.T, ctx *pmmlctx.Context, name string) fieldtype.ID {
	t.Helper()
	ctx.SetupInputs(
		[]fieldtype.Description{{Type: fieldtype.Number}},
		[]string{name},
		map[string]bool{name: true},
		map[string]bool{},
	)
	return ctx.GetFieldDescription(name)
}

func fieldRef(field fieldtype.ID) ast.Node {
	return ast.Node{Def: &catalog.FieldDef, Field: field, Type: fieldtype.Number}
}

func boolConst(v bool) ast.Node {
	content := "false"
	if v {
		content = "true"
	}
	return ast.Node{Def: &catalog.ConstantDef, Content: content, Type: fieldtype.Bool, Field: fieldtype.InvalidID}
}

func TestMightVariableBeMissingDefaultsToTrue(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)
	require.True(t, c.MightVariableBeMissing(age))
}

func TestAssertionGuardSuppressesMissingWhileHeld(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)

	guard := NewAssertionGuard(c)
	guard.AddVariableAssertionByID(age)
	require.False(t, c.MightVariableBeMissing(age))

	guard.Release()
	require.True(t, c.MightVariableBeMissing(age), "releasing the guard must undo its assertion")
}

func TestAssertionGuardsNestAndUnwindIndependently(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)

	outer := NewAssertionGuard(c)
	outer.AddVariableAssertionByID(age)
	inner := NewAssertionGuard(c)
	inner.AddVariableAssertionByID(age)

	inner.Release()
	require.False(t, c.MightVariableBeMissing(age), "the outer guard's assertion is still live")

	outer.Release()
	require.True(t, c.MightVariableBeMissing(age))
}

func TestMightBeMissingFieldRefHonoursAssertion(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)
	n := fieldRef(age)

	require.True(t, c.MightBeMissing(&n))

	guard := NewAssertionGuard(c)
	guard.AddVariableAssertionByID(age)
	require.False(t, c.MightBeMissing(&n))
	guard.Release()
}

func TestMightBeMissingIndirectFieldRefIsAlwaysTrue(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)
	n := fieldRef(age)
	n.Children = []ast.Node{boolConst(true)}

	guard := NewAssertionGuard(c)
	guard.AddVariableAssertionByID(age)
	defer guard.Release()

	require.True(t, c.MightBeMissing(&n), "a table access's missingness is never asserted away, even if the underlying field is")
}

func TestMightBeMissingBooleanAndIsTrueWhenAnUnassertedOperandMightBeMissing(t *testing.T) {
	ctx := pmmlctx.New()
	x := newTestField(t, ctx, "x")
	ctx.AddUnscopedDataField("y", fieldtype.Description{Type: fieldtype.Number}, fieldtype.OriginDataDictionary)
	y := ctx.GetFieldDescription("y")
	c := NewContext(ctx.Registry)

	andDef, ok := catalog.FindBuiltin("and")
	require.True(t, ok)
	n := ast.Node{Def: andDef, Field: fieldtype.InvalidID, Children: []ast.Node{fieldRef(x), fieldRef(y)}}

	require.True(t, c.MightBeMissing(&n), "neither operand is asserted not-missing, so the AND as a whole might be")
}

func TestCheckIfTrivialBooleanAndShortCircuitsOnAnAlwaysFalseOperandRegardlessOfPosition(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)

	andDef, ok := catalog.FindBuiltin("and")
	require.True(t, ok)
	n := ast.Node{Def: andDef, Field: fieldtype.InvalidID, Children: []ast.Node{fieldRef(age), boolConst(false)}}

	require.Equal(t, ast.AlwaysFalse, c.CheckIfTrivial(&n), "a false operand makes the whole AND trivially false, even though the first operand is only known at runtime")
}

func TestCheckIfTrivialOnConstants(t *testing.T) {
	ctx := pmmlctx.New()
	c := NewContext(ctx.Registry)

	trueNode := boolConst(true)
	falseNode := boolConst(false)
	require.Equal(t, ast.AlwaysTrue, c.CheckIfTrivial(&trueNode))
	require.Equal(t, ast.AlwaysFalse, c.CheckIfTrivial(&falseNode))
}

func TestChildAssertionIteratorAssertsTrueOperandsWhileWalkingAnAnd(t *testing.T) {
	ctx := pmmlctx.New()
	age := newTestField(t, ctx, "age")
	c := NewContext(ctx.Registry)

	andDef, ok := catalog.FindBuiltin("and")
	require.True(t, ok)
	notMissing, ok := catalog.FindBuiltin("isNotMissing")
	require.True(t, ok)
	check := ast.Node{Def: notMissing, Field: fieldtype.InvalidID, Children: []ast.Node{fieldRef(age)}}
	n := ast.Node{Def: andDef, Field: fieldtype.InvalidID, Children: []ast.Node{check, fieldRef(age)}}

	it := NewChildAssertionIterator(c, &n)
	defer it.Release()
	require.True(t, c.MightVariableBeMissing(age), "no assertion should apply before walking past the isNotMissing check")

	it.Next()
	require.False(t, c.MightVariableBeMissing(age), "walking past a true isNotMissing(age) check should assert age isn't missing")
}
