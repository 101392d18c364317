package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/driver"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

func newTestContext(t *testing.T, fieldName string) (*pmmlctx.Context, fieldtype.ID) {
	t.Helper()
	ctx := pmmlctx.New()
	ctx.SetupInputs(
		[]fieldtype.Description{{Type: fieldtype.Number}},
		[]string{fieldName},
		map[string]bool{fieldName: true},
		map[string]bool{},
	)
	return ctx, ctx.GetFieldDescription(fieldName)
}

func TestBuildRegressionTableCompiles(t *testing.T) {
	ctx, age := newTestContext(t, "age")
	require.NotEqual(t, fieldtype.InvalidID, age)

	table := RegressionTable{
		Intercept: 1.5,
		Terms:     []RegressionTerm{{FieldName: "age", Coefficient: 0.25}},
	}

	result := driver.Compile(ctx, driver.Options{
		FunctionName:   "score",
		ArgumentFields: []fieldtype.ID{age},
		Lowercase:      true,
	}, func(b *ast.Builder) error { return BuildRegressionTable(b, table) })

	require.Empty(t, result.Errors)
	require.Contains(t, result.Source, "function score(age)")
	require.Contains(t, result.Source, "0.25")
	require.Contains(t, result.Source, "1.5")
	require.True(t, strings.Contains(result.Source, "return"))
}

func TestBuildRegressionTableLogitLinkWrapsSigmoid(t *testing.T) {
	ctx, age := newTestContext(t, "age")

	table := RegressionTable{
		Intercept:           0,
		Terms:               []RegressionTerm{{FieldName: "age", Coefficient: 1}},
		NormalizationMethod: "logit",
	}

	result := driver.Compile(ctx, driver.Options{
		FunctionName:   "score",
		ArgumentFields: []fieldtype.ID{age},
		Lowercase:      true,
	}, func(b *ast.Builder) error { return BuildRegressionTable(b, table) })

	require.Empty(t, result.Errors)
	require.Contains(t, result.Source, "exp")
}

func TestBuildRegressionTableUnknownFieldErrors(t *testing.T) {
	ctx, _ := newTestContext(t, "age")

	table := RegressionTable{Terms: []RegressionTerm{{FieldName: "missing", Coefficient: 1}}}

	result := driver.Compile(ctx, driver.Options{
		FunctionName: "score",
		Lowercase:    true,
	}, func(b *ast.Builder) error { return BuildRegressionTable(b, table) })

	require.NotEmpty(t, result.Errors)
}

func TestBuildSimplePredicateCompiles(t *testing.T) {
	ctx, age := newTestContext(t, "age")

	pred := Predicate{FieldName: "age", Operator: "greaterThan", Value: "18"}

	result := driver.Compile(ctx, driver.Options{
		FunctionName:   "isAdult",
		ArgumentFields: []fieldtype.ID{age},
		Lowercase:      true,
	}, func(b *ast.Builder) error { return BuildSimplePredicate(b, pred) })

	require.Empty(t, result.Errors)
	require.Contains(t, result.Source, "function isAdult(age)")
}
