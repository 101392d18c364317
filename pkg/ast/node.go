// Package ast implements AstBuilder (component C3): the RPN-style,
// typed-stack tree builder every PMML model parser pushes nodes through.
package ast

import (
	"strconv"

	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// Node is one vertex of the compiled expression tree. Children are stored
// by value (mirroring the original's std::vector<AstNode>) — a compilation
// owns its whole tree outright, nothing aliases across nodes except
// through a Field ID into the shared Registry.
type Node struct {
	ID       int
	Children []Node
	Def      *catalog.Definition
	// Content carries a constant's literal text (already formatted for the
	// target language) or a custom/unsupported node's opaque payload.
	Content     string
	Type        fieldtype.Type
	CoercedType fieldtype.Type
	// Field is fieldtype.InvalidID unless this node is a field reference or
	// declaration/assignment target.
	Field fieldtype.ID
}

// Kind is shorthand for the node's function-dispatch tag.
func (n *Node) Kind() catalog.FunctionType {
	if n.Def == nil {
		return catalog.Unsupported
	}
	return n.Def.Kind
}

// EffectiveType returns CoercedType if coercion narrowed this node, else its
// own Type.
func (n *Node) EffectiveType() fieldtype.Type {
	if n.CoercedType != fieldtype.Invalid {
		return n.CoercedType
	}
	return n.Type
}

// SimplifyTrivialValue collapses n to a boolean constant "true"/"false" when
// trivial is not RuntimeEvaluationNeeded, matching the original's
// simplifyTrivialValue — called by the optimiser's constant-fold pass.
func SimplifyTrivialValue(n *Node, trivial TrivialValue) {
	switch trivial {
	case AlwaysTrue:
		*n = Node{ID: n.ID, Def: &catalog.ConstantDef, Content: "true", Type: fieldtype.Bool, Field: fieldtype.InvalidID}
	case AlwaysFalse:
		*n = Node{ID: n.ID, Def: &catalog.ConstantDef, Content: "false", Type: fieldtype.Bool, Field: fieldtype.InvalidID}
	}
}

// TrivialValue is the analyser's verdict on whether a boolean expression's
// value is known at compile time.
type TrivialValue int

const (
	RuntimeEvaluationNeeded TrivialValue = iota
	AlwaysTrue
	AlwaysFalse
)

// formatFloat renders a float64 constant with the same 17-significant-digit
// precision the original's std::stringstream with maximum precision uses,
// so round-tripping a constant through the target language never loses a
// bit of a float64's value.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// FormatFloat is the exported form of formatFloat, for callers outside
// this package that need the same 17-significant-digit literal rendering
// (e.g. the driver's runtime-helper prologue).
func FormatFloat(f float64) string {
	return formatFloat(f)
}
