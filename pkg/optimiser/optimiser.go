// Package optimiser implements component C6: tree rewrites that run after
// analysis and before emission. Lua only allows a bounded number of local
// variables per function (MaxLocals), which a large neural network or
// scorecard model can easily exceed; this package's job is to bring the
// live variable count under that budget and to strip branches the
// analyser has already proven are dead, so the emitted source is both
// valid and no bulkier than it needs to be.
package optimiser

import (
	"sort"

	"github.com/pmmlc/pmmlc/pkg/analyser"
	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// MaxLocals is the per-function local variable budget, kept below Lua's
// hard ceiling of 200 locals per function. Every
// distinct field referenced by a compiled scoring function must fit under
// this budget, directly or through the overflow table.
const MaxLocals = 195

// FoldConstants recursively simplifies node in place: conditions the
// analyser can prove are always true or always false are collapsed to
// boolean literals via ast.SimplifyTrivialValue, and the now-dead branch of
// an if/ternary/bound expression is dropped.
func FoldConstants(ctx *analyser.Context, node *ast.Node) {
	for i := range node.Children {
		FoldConstants(ctx, &node.Children[i])
	}

	switch node.Kind() {
	case catalog.IfChain:
		foldIfChain(ctx, node)
	case catalog.TernaryMacro, catalog.BoundMacro:
		foldPredicated(ctx, node)
	case catalog.BooleanAnd, catalog.BooleanOr:
		foldShortCircuit(ctx, node)
	}

	if node.Kind() != catalog.Constant {
		trivial := ctx.CheckIfTrivial(node)
		if trivial != ast.RuntimeEvaluationNeeded && (node.Type == fieldtype.Bool || node.CoercedType == fieldtype.Bool) {
			ast.SimplifyTrivialValue(node, trivial)
		}
	}
}

// foldIfChain drops any (body, predicate) pair whose predicate the
// analyser proves is always false, and truncates the chain at the first
// pair whose predicate is always true (everything after it is
// unreachable). A trailing unpaired child is the else clause.
func foldIfChain(ctx *analyser.Context, node *ast.Node) {
	kept := node.Children[:0]
	for i := 0; i < len(node.Children); i += 2 {
		if i+1 >= len(node.Children) {
			kept = append(kept, node.Children[i])
			continue
		}
		trivial := ctx.CheckIfTrivial(&node.Children[i+1])
		if trivial == ast.AlwaysFalse {
			continue
		}
		kept = append(kept, node.Children[i], node.Children[i+1])
		if trivial == ast.AlwaysTrue {
			break
		}
	}
	node.Children = kept
}

// foldPredicated simplifies a ternary or bound-macro node (both carry
// [predicate, ifTrue, ifFalse?] or [predicate, value] children) down to
// whichever branch the analyser proves is the only one reachable.
func foldPredicated(ctx *analyser.Context, node *ast.Node) {
	trivial := ctx.CheckIfTrivial(&node.Children[0])
	switch trivial {
	case ast.AlwaysTrue:
		*node = node.Children[1]
	case ast.AlwaysFalse:
		if len(node.Children) > 2 {
			*node = node.Children[2]
		} else {
			*node = ast.Node{ID: node.ID, Def: &catalog.NilDef, Content: "nil", Type: fieldtype.Invalid, Field: fieldtype.InvalidID}
		}
	}
}

// foldShortCircuit drops operands of an AND/OR chain that the analyser
// proves cannot change the outcome once a prior operand already decides it
// (e.g. `false and x` never needs to evaluate x).
func foldShortCircuit(ctx *analyser.Context, node *ast.Node) {
	isAnd := node.Kind() == catalog.BooleanAnd
	shortCircuit := ast.AlwaysFalse
	if !isAnd {
		shortCircuit = ast.AlwaysTrue
	}
	kept := node.Children[:0]
	for i := range node.Children {
		if ctx.CheckIfTrivial(&node.Children[i]) == shortCircuit {
			kept = append(kept, node.Children[i])
			node.Children = kept
			return
		}
		kept = append(kept, node.Children[i])
	}
	node.Children = kept
}

// VariableUsage tracks how many times each field is referenced across a
// compiled function, used both to decide what's safe to inline away and to
// pick which fields overflow into the shared table.
type VariableUsage struct {
	ReadCount  map[fieldtype.ID]int
	WriteCount map[fieldtype.ID]int
	Origin     map[fieldtype.ID]fieldtype.Origin
}

// CollectVariableUsage walks node, recording every field read/write.
func CollectVariableUsage(registry *fieldtype.Registry, node *ast.Node) *VariableUsage {
	u := &VariableUsage{ReadCount: map[fieldtype.ID]int{}, WriteCount: map[fieldtype.ID]int{}, Origin: map[fieldtype.ID]fieldtype.Origin{}}
	collectVariableUsage(registry, node, u)
	return u
}

func collectVariableUsage(registry *fieldtype.Registry, node *ast.Node, u *VariableUsage) {
	if node.Field != fieldtype.InvalidID {
		u.Origin[node.Field] = registry.Get(node.Field).Origin
		switch node.Kind() {
		case catalog.Declaration, catalog.Assignment:
			u.WriteCount[node.Field]++
		default:
			u.ReadCount[node.Field]++
		}
	}
	for i := range node.Children {
		collectVariableUsage(registry, &node.Children[i], u)
	}
}

// InlineSingleUseTemporaries finds `local x = expr` declarations where x
// is a compiler-introduced temporary (fieldtype.OriginTemporary) read
// exactly once and never reassigned, and substitutes expr directly at the
// read site. The declaration itself is left in place; this pass does not
// remove it.
func InlineSingleUseTemporaries(usage *VariableUsage, node *ast.Node) {
	substitutions := map[fieldtype.ID]*ast.Node{}
	collectInlineCandidates(usage, node, substitutions)
	if len(substitutions) == 0 {
		return
	}
	applyInlineSubstitutions(node, substitutions)
}

func collectInlineCandidates(usage *VariableUsage, node *ast.Node, out map[fieldtype.ID]*ast.Node) {
	if node.Kind() == catalog.Declaration && len(node.Children) == 1 {
		if usage.Origin[node.Field] == fieldtype.OriginTemporary && usage.ReadCount[node.Field] == 1 && usage.WriteCount[node.Field] == 1 {
			value := node.Children[0]
			out[node.Field] = &value
		}
	}
	for i := range node.Children {
		collectInlineCandidates(usage, &node.Children[i], out)
	}
}

func applyInlineSubstitutions(node *ast.Node, substitutions map[fieldtype.ID]*ast.Node) {
	for i := range node.Children {
		applyInlineSubstitutions(&node.Children[i], substitutions)
	}
	if node.Kind() == catalog.FieldRef && len(node.Children) == 0 {
		if replacement, ok := substitutions[node.Field]; ok {
			*node = *replacement
		}
	}
}

// isMovable reports whether field is eligible for aliasing/overflow at all:
// parameters and other special-origin variables keep a stable dedicated
// slot for the lifetime of the function (never reusing a parameter's or
// other special-origin variable's dedicated slot).
func isMovable(usage *VariableUsage, field fieldtype.ID) bool {
	switch usage.Origin[field] {
	case fieldtype.OriginTemporary, fieldtype.OriginTransformedValue:
		return true
	default:
		return false
	}
}

// VariableInterval is a single tracked variable's usage span within a
// flattened block, expressed as the index of its first and last touching
// statement.
type VariableInterval struct {
	Field fieldtype.ID
	Start int
	End   int
}

// ComputeAliases implements the optimiser's Alias pass:
// within every Block node of the tree, it computes each movable variable's
// (first-use, last-use) statement interval, then sweeps those intervals in
// ascending start order, handing a variable's Lua local slot to the next
// variable whose own interval starts no earlier than the first one ended.
// The result maps a reused variable's field ID to the canonical ID whose
// slot it now shares; Writer.SetAliasedVariables/VariableName consult this
// so the two fields render as the same Lua identifier.
func ComputeAliases(usage *VariableUsage, node *ast.Node) map[fieldtype.ID]fieldtype.ID {
	aliases := map[fieldtype.ID]fieldtype.ID{}
	computeAliasesRecursive(usage, node, aliases)
	return aliases
}

// computeAliasesRecursive runs the sweep independently for every Block node
// in the tree (the top-level function body and any nested lambda bodies),
// merging each block's reuse decisions into aliases.
func computeAliasesRecursive(usage *VariableUsage, node *ast.Node, aliases map[fieldtype.ID]fieldtype.ID) {
	if node.Kind() == catalog.Block {
		for field, canonical := range sweepBlockAliases(usage, node) {
			aliases[field] = canonical
		}
	}
	for i := range node.Children {
		computeAliasesRecursive(usage, &node.Children[i], aliases)
	}
}

func sweepBlockAliases(usage *VariableUsage, block *ast.Node) map[fieldtype.ID]fieldtype.ID {
	intervals := collectIntervals(usage, block)
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })

	type freeSlot struct {
		canonical fieldtype.ID
		end       int
	}
	var free []freeSlot
	aliases := map[fieldtype.ID]fieldtype.ID{}

	for _, iv := range intervals {
		reused := false
		for i := range free {
			if free[i].end <= iv.Start {
				aliases[iv.Field] = free[i].canonical
				free[i].end = iv.End
				reused = true
				break
			}
		}
		if !reused {
			free = append(free, freeSlot{canonical: iv.Field, end: iv.End})
		}
	}
	return aliases
}

func collectIntervals(usage *VariableUsage, node *ast.Node) []VariableInterval {
	if node.Kind() != catalog.Block {
		return nil
	}
	first := map[fieldtype.ID]int{}
	last := map[fieldtype.ID]int{}
	for i := range node.Children {
		touchFieldsInStatement(&node.Children[i], func(f fieldtype.ID) {
			if !isMovable(usage, f) {
				return
			}
			if _, ok := first[f]; !ok {
				first[f] = i
			}
			last[f] = i
		})
	}
	intervals := make([]VariableInterval, 0, len(first))
	for f, start := range first {
		intervals = append(intervals, VariableInterval{Field: f, Start: start, End: last[f]})
	}
	return intervals
}

func touchFieldsInStatement(n *ast.Node, visit func(fieldtype.ID)) {
	if n.Field != fieldtype.InvalidID {
		visit(n.Field)
	}
	for i := range n.Children {
		touchFieldsInStatement(&n.Children[i], visit)
	}
}

// AssignOverflowSlots decides, once the set of live (still distinctly
// slotted) variables is known, which specific field IDs must spill into
// the shared overflow table to bring the function under maxLocals. Per
// Candidates are sorted by ascending use-count (reads plus
// writes) and the least-used ones are selected first; ties break on
// ascending field ID to keep the choice deterministic. The emitter
// consults the result via Writer.SetOverflowedVariables.
func AssignOverflowSlots(usage *VariableUsage, live []fieldtype.ID, maxLocals int) map[fieldtype.ID]bool {
	over := len(live) - maxLocals
	result := map[fieldtype.ID]bool{}
	if over <= 0 {
		return result
	}

	sorted := append([]fieldtype.ID(nil), live...)
	useCount := func(f fieldtype.ID) int { return usage.ReadCount[f] + usage.WriteCount[f] }
	sort.Slice(sorted, func(i, j int) bool {
		ci, cj := useCount(sorted[i]), useCount(sorted[j])
		if ci != cj {
			return ci < cj
		}
		return sorted[i] < sorted[j]
	})
	for i := 0; i < over; i++ {
		result[sorted[i]] = true
	}
	return result
}
