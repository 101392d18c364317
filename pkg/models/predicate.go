// Package models builds AST subtrees for a small, illustrative slice of
// PMML model elements (SimplePredicate, RegressionTable) — enough to drive
// the compiler end to end.
package models

import (
	"fmt"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// Predicate is a single <SimplePredicate operator="..." field="..." value="...">.
// isMissing/isNotMissing carry no value.
type Predicate struct {
	FieldName string
	Operator  string
	Value     string
}

// BuildSimplePredicate pushes one comparison or unary node onto b's stack
// evaluating this predicate, wrapping the field reference in whatever
// outlier/replacement handling its mining-schema entry declares.
func BuildSimplePredicate(b *ast.Builder, p Predicate) error {
	ctx := b.Context()
	field := ctx.GetFieldDescription(p.FieldName)
	if field == fieldtype.InvalidID {
		return fmt.Errorf("SimplePredicate: unknown field %q", p.FieldName)
	}

	if mf, ok := ctx.GetMiningField(p.FieldName); ok {
		b.FieldWithMining(mf)
	} else {
		b.Field(field)
	}

	switch p.Operator {
	case "isMissing", "isNotMissing":
		def, ok := catalog.FindBuiltin(p.Operator)
		if !ok {
			return fmt.Errorf("SimplePredicate: unknown operator %q", p.Operator)
		}
		b.Function(def, 1)
		return nil
	case "equal", "notEqual", "lessThan", "lessOrEqual", "greaterThan", "greaterOrEqual":
		def, ok := catalog.FindBuiltin(p.Operator)
		if !ok {
			return fmt.Errorf("SimplePredicate: unknown operator %q", p.Operator)
		}
		pushLiteralForField(b, ctx.Registry.Get(field).Type, p.Value)
		b.Function(def, 2)
		return nil
	default:
		return fmt.Errorf("SimplePredicate: unsupported operator %q", p.Operator)
	}
}

// pushLiteralForField pushes raw as whichever constant kind matches t, the
// same dispatch <SimplePredicate value="..."> needs since the XML
// attribute is always plain text regardless of the field's declared type.
func pushLiteralForField(b *ast.Builder, t fieldtype.Type, raw string) {
	switch t {
	case fieldtype.Bool:
		b.ConstantBool(raw == "true" || raw == "1")
	case fieldtype.Number:
		var f float64
		if _, err := fmt.Sscanf(raw, "%g", &f); err != nil {
			b.ConstantFloat(0)
			return
		}
		b.ConstantFloat(f)
	default:
		b.ConstantString(raw)
	}
}
