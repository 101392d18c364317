package optimiser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/pkg/analyser"
	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

func boolConst(v bool) ast.Node {
	content := "false"
	if v {
		content = "true"
	}
	return ast.Node{Def: &catalog.ConstantDef, Content: content, Type: fieldtype.Bool, Field: fieldtype.InvalidID}
}

func numConst(text string) ast.Node {
	return ast.Node{Def: &catalog.ConstantDef, Content: text, Type: fieldtype.Number, Field: fieldtype.InvalidID}
}

func fieldRef(id fieldtype.ID) ast.Node {
	return ast.Node{Def: &catalog.FieldDef, Field: id, Type: fieldtype.Number}
}

func TestFoldIfChainDropsAnAlwaysFalseBranch(t *testing.T) {
	ctx := pmmlctx.New()
	analysisCtx := analyser.NewContext(ctx.Registry)

	n := ast.Node{Def: &catalog.IfChainDef, Field: fieldtype.InvalidID, Children: []ast.Node{
		numConst("1"), boolConst(false),
		numConst("2"), boolConst(true),
	}}
	FoldConstants(analysisCtx, &n)

	require.Len(t, n.Children, 2, "the always-false body/predicate pair should be dropped entirely")
	require.Equal(t, "2", n.Children[0].Content)
}

func TestFoldIfChainTruncatesAfterAnAlwaysTrueBranch(t *testing.T) {
	ctx := pmmlctx.New()
	analysisCtx := analyser.NewContext(ctx.Registry)

	n := ast.Node{Def: &catalog.IfChainDef, Field: fieldtype.InvalidID, Children: []ast.Node{
		numConst("1"), boolConst(true),
		numConst("2"), boolConst(false),
	}}
	FoldConstants(analysisCtx, &n)

	require.Len(t, n.Children, 2, "nothing after an always-true branch is reachable")
	require.Equal(t, "1", n.Children[0].Content)
}

func TestFoldPredicatedCollapsesATrivialTernary(t *testing.T) {
	ctx := pmmlctx.New()
	analysisCtx := analyser.NewContext(ctx.Registry)

	ternary, ok := catalog.FindBuiltin("if")
	require.True(t, ok)
	n := ast.Node{Def: ternary, Field: fieldtype.InvalidID, Children: []ast.Node{boolConst(true), numConst("1"), numConst("2")}}
	FoldConstants(analysisCtx, &n)

	require.Equal(t, catalog.Constant, n.Kind())
	require.Equal(t, "1", n.Content)
}

func TestFoldPredicatedCollapsesATrivialBoundWithNoFalseBranch(t *testing.T) {
	ctx := pmmlctx.New()
	analysisCtx := analyser.NewContext(ctx.Registry)

	n := ast.Node{Def: &catalog.BoundFunction, Field: fieldtype.InvalidID, Children: []ast.Node{boolConst(false), numConst("5")}}
	FoldConstants(analysisCtx, &n)

	require.Equal(t, "nil", n.Content, "a bound macro has no false branch, so an always-false predicate collapses the whole node to nil")
}

func TestFoldShortCircuitTruncatesAnAndAtAnAlwaysFalseOperand(t *testing.T) {
	ctx := pmmlctx.New()
	age := declareField(t, ctx, "age")
	analysisCtx := analyser.NewContext(ctx.Registry)

	and, ok := catalog.FindBuiltin("and")
	require.True(t, ok)
	n := ast.Node{Def: and, Type: fieldtype.Bool, Field: fieldtype.InvalidID, Children: []ast.Node{fieldRef(age), boolConst(false), fieldRef(age)}}
	FoldConstants(analysisCtx, &n)

	require.Equal(t, catalog.Constant, n.Kind(), "once an always-false operand is found, the whole chain collapses to a constant")
	require.Equal(t, "false", n.Content)
}

func declareField(t *testing.T, ctx *pmmlctx.Context, name string) fieldtype.ID {
	t.Helper()
	ctx.SetupInputs(
		[]fieldtype.Description{{Type: fieldtype.Number}},
		[]string{name},
		map[string]bool{name: true},
		map[string]bool{},
	)
	return ctx.GetFieldDescription(name)
}

func TestCollectVariableUsageCountsReadsAndWrites(t *testing.T) {
	ctx := pmmlctx.New()
	age := declareField(t, ctx, "age")
	temp := ctx.CreateVariable(fieldtype.Number, "t", fieldtype.OriginTemporary)

	decl := ast.Node{Def: &catalog.DeclarationDef, Field: temp, Type: fieldtype.Void, Children: []ast.Node{fieldRef(age)}}
	block := ast.Node{Def: &catalog.BlockDef, Field: fieldtype.InvalidID, Children: []ast.Node{decl, fieldRef(temp), fieldRef(age)}}

	usage := CollectVariableUsage(ctx.Registry, &block)
	require.Equal(t, 2, usage.ReadCount[age])
	require.Equal(t, 1, usage.ReadCount[temp])
	require.Equal(t, 1, usage.WriteCount[temp])
	require.Equal(t, fieldtype.OriginTemporary, usage.Origin[temp])
}

func TestInlineSingleUseTemporariesSubstitutesAtTheReadSite(t *testing.T) {
	ctx := pmmlctx.New()
	age := declareField(t, ctx, "age")
	temp := ctx.CreateVariable(fieldtype.Number, "doubled", fieldtype.OriginTemporary)

	times, ok := catalog.FindBuiltin("*")
	require.True(t, ok)
	initialiser := ast.Node{Def: times, Type: fieldtype.Number, Field: fieldtype.InvalidID, Children: []ast.Node{fieldRef(age), numConst("2")}}
	decl := ast.Node{Def: &catalog.DeclarationDef, Field: temp, Type: fieldtype.Void, Children: []ast.Node{initialiser}}
	block := ast.Node{Def: &catalog.BlockDef, Field: fieldtype.InvalidID, Children: []ast.Node{decl, fieldRef(temp)}}

	usage := CollectVariableUsage(ctx.Registry, &block)
	InlineSingleUseTemporaries(usage, &block)

	require.Len(t, block.Children, 2, "InlineSingleUseTemporaries only rewrites read sites, it doesn't remove the now-dead declaration itself")
	require.Equal(t, catalog.Operator, block.Children[1].Kind(), "the single read site should now hold the inlined multiplication directly")
}

func TestInlineSingleUseTemporariesLeavesMultiplyReadVariablesAlone(t *testing.T) {
	ctx := pmmlctx.New()
	age := declareField(t, ctx, "age")
	temp := ctx.CreateVariable(fieldtype.Number, "doubled", fieldtype.OriginTemporary)

	decl := ast.Node{Def: &catalog.DeclarationDef, Field: temp, Type: fieldtype.Void, Children: []ast.Node{fieldRef(age)}}
	block := ast.Node{Def: &catalog.BlockDef, Field: fieldtype.InvalidID, Children: []ast.Node{decl, fieldRef(temp), fieldRef(temp)}}

	usage := CollectVariableUsage(ctx.Registry, &block)
	InlineSingleUseTemporaries(usage, &block)

	require.Equal(t, catalog.FieldRef, block.Children[1].Kind())
	require.Equal(t, temp, block.Children[1].Field, "read twice, so the temporary must stay a real declaration")
}

func TestComputeAliasesReusesASlotOnceItsIntervalEnds(t *testing.T) {
	ctx := pmmlctx.New()
	first := ctx.CreateVariable(fieldtype.Number, "first", fieldtype.OriginTemporary)
	second := ctx.CreateVariable(fieldtype.Number, "second", fieldtype.OriginTemporary)

	declFirst := ast.Node{Def: &catalog.DeclarationDef, Field: first, Type: fieldtype.Void, Children: []ast.Node{numConst("1")}}
	useFirst := ast.Node{Def: &catalog.AssignmentDef, Field: first, Type: fieldtype.Void, Children: []ast.Node{numConst("2")}}
	declSecond := ast.Node{Def: &catalog.DeclarationDef, Field: second, Type: fieldtype.Void, Children: []ast.Node{numConst("3")}}
	block := ast.Node{Def: &catalog.BlockDef, Field: fieldtype.InvalidID, Children: []ast.Node{declFirst, useFirst, declSecond}}

	usage := CollectVariableUsage(ctx.Registry, &block)
	aliases := ComputeAliases(usage, &block)

	canonical, aliased := aliases[second]
	require.True(t, aliased, "second's interval starts only after first's ends, so it should reuse first's slot")
	require.Equal(t, first, canonical)
}

func TestComputeAliasesKeepsOverlappingVariablesDistinct(t *testing.T) {
	ctx := pmmlctx.New()
	first := ctx.CreateVariable(fieldtype.Number, "first", fieldtype.OriginTemporary)
	second := ctx.CreateVariable(fieldtype.Number, "second", fieldtype.OriginTemporary)

	declFirst := ast.Node{Def: &catalog.DeclarationDef, Field: first, Type: fieldtype.Void, Children: []ast.Node{numConst("1")}}
	declSecond := ast.Node{Def: &catalog.DeclarationDef, Field: second, Type: fieldtype.Void, Children: []ast.Node{numConst("2")}}
	useBoth := ast.Node{Def: &catalog.AssignmentDef, Field: first, Type: fieldtype.Void, Children: []ast.Node{fieldRef(second)}}
	block := ast.Node{Def: &catalog.BlockDef, Field: fieldtype.InvalidID, Children: []ast.Node{declFirst, declSecond, useBoth}}

	usage := CollectVariableUsage(ctx.Registry, &block)
	aliases := ComputeAliases(usage, &block)

	_, aliased := aliases[second]
	require.False(t, aliased, "first and second are both still live at useBoth, so they can't share a slot")
}

func TestAssignOverflowSlotsSpillsTheLeastUsedFieldsFirst(t *testing.T) {
	live := []fieldtype.ID{1, 2, 3, 4}
	usage := &VariableUsage{
		ReadCount:  map[fieldtype.ID]int{1: 5, 2: 1, 3: 3, 4: 1},
		WriteCount: map[fieldtype.ID]int{},
	}

	overflow := AssignOverflowSlots(usage, live, 2)
	require.Len(t, overflow, 2)
	require.True(t, overflow[2], "field 2 has the fewest uses (1) and a lower ID than field 4, so it spills first")
	require.True(t, overflow[4], "field 4 ties field 2's use count but loses the ascending-ID tiebreak")
	require.False(t, overflow[1])
	require.False(t, overflow[3])
}

func TestAssignOverflowSlotsIsANoOpUnderBudget(t *testing.T) {
	usage := &VariableUsage{ReadCount: map[fieldtype.ID]int{1: 1}, WriteCount: map[fieldtype.ID]int{}}
	overflow := AssignOverflowSlots(usage, []fieldtype.ID{1}, 195)
	require.Empty(t, overflow)
}
