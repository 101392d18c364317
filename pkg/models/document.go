package models

import (
	"fmt"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
	"github.com/pmmlc/pmmlc/pkg/xmldom"
)

// ParsedRegressionModel is the result of reading one <PMML><RegressionModel>
// document: the input fields the emitted function should take as
// parameters, a driver.BuildFunc closure ready to hand to driver.Compile,
// and the mining-schema guard's Release, which the caller must invoke once
// Build has run (matching pmmlctx.MiningSchemaGuard's RAII contract).
type ParsedRegressionModel struct {
	InputFields []fieldtype.ID
	Build       func(b *ast.Builder) error
	Release     func()
}

// ParseRegressionDocument reads the minimal subset of a PMML document this
// compiler understands end-to-end: a <DataDictionary> of <DataField>s, one
// <RegressionModel> with a <MiningSchema> and a single <RegressionTable> of
// <NumericPredictor>s. This is the glue the HTTP compile service and the
// `pmmlc compile` CLI command both use to turn an uploaded/on-disk PMML
// file into a driver.Compile call.
func ParseRegressionDocument(ctx *pmmlctx.Context, root xmldom.Node) (ParsedRegressionModel, error) {
	if header, ok := root.Child("Header"); ok {
		if app, ok := header.Child("Application"); ok {
			if name, ok := app.Attr("name"); ok {
				ctx.SetApplication(name)
			}
		}
	}

	dict, ok := root.Child("DataDictionary")
	if !ok {
		return ParsedRegressionModel{}, fmt.Errorf("PMML document has no DataDictionary")
	}
	names := make([]string, 0)
	descs := make([]fieldtype.Description, 0)
	for _, df := range dict.Children("DataField") {
		name, err := df.RequireAttr("name")
		if err != nil {
			return ParsedRegressionModel{}, err
		}
		dataType, _ := df.Attr("dataType")
		names = append(names, name)
		descs = append(descs, fieldtype.Description{Type: fieldTypeFromPMML(dataType)})
	}

	model, ok := root.Child("RegressionModel")
	if !ok {
		return ParsedRegressionModel{}, fmt.Errorf("PMML document has no RegressionModel")
	}

	schema, ok := model.Child("MiningSchema")
	if !ok {
		return ParsedRegressionModel{}, fmt.Errorf("RegressionModel has no MiningSchema")
	}
	active := map[string]bool{}
	var miningFields []pmmlctx.MiningFieldXML
	for _, mf := range schema.Children("MiningField") {
		name, err := mf.RequireAttr("name")
		if err != nil {
			return ParsedRegressionModel{}, err
		}
		active[name] = true

		mfx := pmmlctx.MiningFieldXML{Name: name, Usage: pmmlctx.UsageIn}
		if low, status := mf.QueryDouble("lowValue"); status == xmldom.AttrOK {
			if high, status := mf.QueryDouble("highValue"); status == xmldom.AttrOK {
				mfx.HasBounds = true
				mfx.LowValue, mfx.HighValue = low, high
				mfx.OutlierTreatmentString, _ = mf.Attr("outliers")
			}
		}
		if replacement, ok := mf.Attr(missingValueReplacementAttr(ctx)); ok {
			mfx.HasReplacementValue = true
			mfx.MissingValueReplacement = replacement
		}
		miningFields = append(miningFields, mfx)
	}
	ctx.SetupInputs(descs, names, active, map[string]bool{})

	var missingFieldErr error
	guard := pmmlctx.NewMiningSchemaGuard(ctx, miningFields, func(fieldName string) {
		if missingFieldErr == nil {
			missingFieldErr = fmt.Errorf("MiningSchema references unknown field %q", fieldName)
		}
	})
	if missingFieldErr != nil {
		guard.Release()
		return ParsedRegressionModel{}, missingFieldErr
	}

	table, ok := model.Child("RegressionTable")
	if !ok {
		guard.Release()
		return ParsedRegressionModel{}, fmt.Errorf("RegressionModel has no RegressionTable")
	}
	intercept, _ := table.QueryDouble("intercept")

	var terms []RegressionTerm
	for _, np := range table.Children("NumericPredictor") {
		name, err := np.RequireAttr("name")
		if err != nil {
			guard.Release()
			return ParsedRegressionModel{}, err
		}
		coeff, status := np.QueryDouble("coefficient")
		if status != xmldom.AttrOK {
			guard.Release()
			return ParsedRegressionModel{}, fmt.Errorf("NumericPredictor %q has no numeric coefficient", name)
		}
		terms = append(terms, RegressionTerm{FieldName: name, Coefficient: coeff})
	}

	normalization, _ := model.Attr("normalizationMethod")
	regTable := RegressionTable{Intercept: intercept, Terms: terms, NormalizationMethod: normalization}

	inputFields := make([]fieldtype.ID, 0, len(active))
	for _, name := range names {
		if active[name] {
			inputFields = append(inputFields, ctx.GetFieldDescription(name))
		}
	}

	return ParsedRegressionModel{
		InputFields: inputFields,
		Build: func(b *ast.Builder) error {
			return BuildRegressionTable(b, regTable)
		},
		Release: guard.Release,
	}, nil
}

// missingValueReplacementAttr picks the MiningField attribute name that
// carries a missing-value substitute. JPMML-SkLearn's PMML export writes
// this under "defaultValue" instead of the standard's "missingValueReplacement"
// (ported from the original's producingApplication check in
// transformation.cpp, adapted here to the MiningField-level construct this
// compiler actually models rather than MapValues/Discretize).
func missingValueReplacementAttr(ctx *pmmlctx.Context) string {
	if ctx.Application() == "JPMML-SkLearn" {
		return "defaultValue"
	}
	return "missingValueReplacement"
}

func fieldTypeFromPMML(dataType string) fieldtype.Type {
	switch dataType {
	case "boolean":
		return fieldtype.Bool
	case "string":
		return fieldtype.String
	default:
		return fieldtype.Number
	}
}
