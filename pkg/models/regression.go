package models

import (
	"fmt"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// RegressionTerm is one <NumericPredictor field="..." coefficient="...">.
type RegressionTerm struct {
	FieldName   string
	Coefficient float64
}

// RegressionTable is a flat linear predictor y = intercept + Σ coefficient*field,
// with an optional link function applied to the sum.
type RegressionTable struct {
	Intercept           float64
	Terms               []RegressionTerm
	NormalizationMethod string // "", "none", "softmax", "logit"
}

// BuildRegressionTable emits one declaration per term (each holding
// coefficient*field, with field wrapped by whatever mining-schema
// outlier/replacement handling applies), then a final expression summing
// every declared temporary plus the intercept and applying the requested
// link function. It pushes a single ast.Builder.Block node representing
// the whole table.
//
// Declaring each term separately rather than building one deep expression
// tree gives the optimiser's single-use-temporary inlining pass something
// to fold back together once emission order is fixed.
func BuildRegressionTable(b *ast.Builder, t RegressionTable) error {
	ctx := b.Context()
	plus, _ := catalog.FindBuiltin("+")
	times, _ := catalog.FindBuiltin("*")

	nStatements := 0
	termFields := make([]fieldtype.ID, 0, len(t.Terms))
	for _, term := range t.Terms {
		field := ctx.GetFieldDescription(term.FieldName)
		if field == fieldtype.InvalidID {
			return fmt.Errorf("RegressionTable: unknown field %q", term.FieldName)
		}

		if mf, ok := ctx.GetMiningField(term.FieldName); ok {
			b.FieldWithMining(mf)
		} else {
			b.Field(field)
		}
		b.ConstantFloat(term.Coefficient)
		b.Function(times, 2)

		temp := ctx.CreateVariable(fieldtype.Number, term.FieldName+"_term", fieldtype.OriginTemporary)
		b.Declare(temp, ast.HasInitialValue)
		nStatements++
		termFields = append(termFields, temp)
	}

	b.ConstantFloat(t.Intercept)
	for _, temp := range termFields {
		b.Field(temp)
		b.Function(plus, 2)
	}

	if err := applyLinkFunction(b, t.NormalizationMethod); err != nil {
		return err
	}

	b.Block(nStatements + 1)
	return nil
}

// applyLinkFunction wraps the top-of-stack linear predictor in the named
// normalization, matching RegressionModel's normalizationMethod handling.
// softmax is approximated here as a single exp() — a true multi-class
// softmax needs every category's sum at once, out of scope for one table
// built in isolation — while logit applies the standard sigmoid.
func applyLinkFunction(b *ast.Builder, method string) error {
	switch method {
	case "", "none":
		return nil
	case "softmax":
		exp, _ := catalog.FindBuiltin("exp")
		b.Function(exp, 1)
		return nil
	case "logit":
		b.Function(&catalog.UnaryMinus, 1)
		exp, _ := catalog.FindBuiltin("exp")
		b.Function(exp, 1)
		b.ConstantFloat(1)
		plus, _ := catalog.FindBuiltin("+")
		b.Function(plus, 2)
		b.ConstantFloat(1)
		b.SwapNodes(-1, -2)
		div, _ := catalog.FindBuiltin("/")
		b.Function(div, 2)
		return nil
	default:
		return fmt.Errorf("RegressionTable: unsupported normalizationMethod %q", method)
	}
}
