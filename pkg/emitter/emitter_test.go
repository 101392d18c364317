package emitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/pkg/analyser"
	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

// newTestConverter builds a Converter over a context declaring the given
// field names (all Number, all potentially missing), returning the
// converter, the context and the fields in declaration order.
func newTestConverter(t *testing.T, names ...string) (*Converter, *pmmlctx.Context, []fieldtype.ID) {
	t.Helper()
	ctx := pmmlctx.New()
	fields := make([]fieldtype.Description, len(names))
	active := map[string]bool{}
	for i, n := range names {
		fields[i] = fieldtype.Description{Type: fieldtype.Number}
		active[n] = true
	}
	ctx.SetupInputs(fields, names, active, map[string]bool{})

	ids := make([]fieldtype.ID, len(names))
	for i, n := range names {
		ids[i] = ctx.GetFieldDescription(n)
	}

	analysisCtx := analyser.NewContext(ctx.Registry)
	w := NewWriter(true, 195)
	return NewConverter(ctx, analysisCtx, w), ctx, ids
}

func fieldRef(ctx *pmmlctx.Context, id fieldtype.ID) ast.Node {
	desc := ctx.Registry.Get(id)
	return ast.Node{Def: &catalog.FieldDef, Content: desc.Name, Type: desc.Type, Field: id}
}

func (c *Converter) source() string { return c.w.String() }

func TestEmitExpressionGuardsAComparisonAgainstAMissingField(t *testing.T) {
	conv, ctx, ids := newTestConverter(t, "x")
	lessThan, _ := catalog.FindBuiltin("lessThan")
	cmp := ast.Node{
		Def:   lessThan,
		Type:  fieldtype.Bool,
		Field: fieldtype.InvalidID,
		Children: []ast.Node{
			fieldRef(ctx, ids[0]),
			{Def: &catalog.ConstantDef, Content: "10", Type: fieldtype.Number, Field: fieldtype.InvalidID},
		},
	}

	conv.EmitExpression(&cmp, PrecedenceTop)
	out := conv.source()
	require.Contains(t, out, "x < 10")
	require.True(t, strings.Index(out, "x") < strings.Index(out, "x < 10"), "the missing-value guard must precede the comparison it protects")
}

func TestEmitExpressionSurrogateFallsThroughOnMissing(t *testing.T) {
	conv, ctx, ids := newTestConverter(t, "x", "y")
	n := ast.Node{
		Def:   &catalog.SurrogateFunction,
		Type:  fieldtype.Number,
		Field: fieldtype.InvalidID,
		Children: []ast.Node{
			fieldRef(ctx, ids[0]),
			fieldRef(ctx, ids[1]),
		},
	}

	conv.EmitExpression(&n, PrecedenceTop)
	require.Contains(t, conv.source(), "x or y")
}

func TestEmitStatementBlockEmitsDeclarationsThenReturn(t *testing.T) {
	conv, ctx, ids := newTestConverter(t, "age")
	temp := ctx.CreateVariable(fieldtype.Number, "doubled", fieldtype.OriginTemporary)
	times, _ := catalog.FindBuiltin("*")

	decl := ast.Node{
		Def:   &catalog.DeclarationDef,
		Field: temp,
		Type:  fieldtype.Void,
		Children: []ast.Node{
			{Def: times, Type: fieldtype.Number, Field: fieldtype.InvalidID, Children: []ast.Node{
				fieldRef(ctx, ids[0]),
				{Def: &catalog.ConstantDef, Content: "2", Type: fieldtype.Number, Field: fieldtype.InvalidID},
			}},
		},
	}
	ret := ast.Node{
		Def:      &catalog.ReturnDef,
		Type:     fieldtype.Void,
		Field:    fieldtype.InvalidID,
		Children: []ast.Node{fieldRef(ctx, temp)},
	}
	block := ast.Node{Def: &catalog.BlockDef, Type: fieldtype.Number, Field: fieldtype.InvalidID, Children: []ast.Node{decl, ret}}

	conv.EmitStatement(&block)
	out := conv.source()
	require.Contains(t, out, "local doubled")
	require.Contains(t, out, "return")
	require.True(t, strings.Index(out, "local doubled") < strings.Index(out, "return"), "the declaration must precede the return statement it feeds")
}
