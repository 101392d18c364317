// Package analyser implements component C4: static analysis over an
// already-built ast.Node tree used by the optimiser's dead-code and
// nil-check elimination passes. It tracks, at a given point in the tree,
// which fields and which already-evaluated subexpressions are known not to
// be missing, and uses that knowledge to determine whether a boolean
// subexpression's value is known at compile time.
package analyser

import (
	"strings"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// Assumption is what the surrounding control flow lets us assume about an
// expression's value at a particular point in the tree.
type Assumption int

const (
	NoAssumptions Assumption = iota
	AssumeNotMissing
	AssumeMissing
	AssumeTrue
	AssumeFalse
	AssumeNotTrue
	AssumeNotFalse
)

var isInDef, _ = catalog.FindBuiltin("isIn")

// Context represents a particular point of execution and what is known (or
// can be inferred) to be true, false or not missing there. It starts empty
// (the totally unknown state at the top of the generated function) and is
// mutated by AssertionGuard and ChildAssertionIterator as analysis walks
// down through the tree.
type Context struct {
	registry               *fieldtype.Registry
	assertNotMissing       map[fieldtype.ID]int
	assertClauseNotMissing map[int]int
}

// NewContext creates an analysis context over registry, used to resolve a
// field-reference node's declared type.
func NewContext(registry *fieldtype.Registry) *Context {
	return &Context{
		registry:               registry,
		assertNotMissing:       make(map[fieldtype.ID]int),
		assertClauseNotMissing: make(map[int]int),
	}
}

// MightVariableBeMissing reports whether no enclosing assertion already
// guarantees field isn't missing.
func (c *Context) MightVariableBeMissing(field fieldtype.ID) bool {
	_, asserted := c.assertNotMissing[field]
	return !asserted
}

// MightClauseBeMissing reports whether no enclosing assertion already
// guarantees the node with this id isn't missing.
func (c *Context) MightClauseBeMissing(nodeID int) bool {
	_, asserted := c.assertClauseNotMissing[nodeID]
	return !asserted
}

// MightBeMissing reports whether node could possibly evaluate to nil in
// this context.
func (c *Context) MightBeMissing(node *ast.Node) bool {
	if !c.MightClauseBeMissing(node.ID) {
		return false
	}
	return c.mightBeMissingDispatch(node)
}

// CheckIfTrivial reports whether node's value is already known in this
// context.
func (c *Context) CheckIfTrivial(node *ast.Node) ast.TrivialValue {
	return c.checkIfTrivialDispatch(node)
}

// AssertionGuard is a stack frame of "not missing" assertions. Release must
// be called (by the owner, in LIFO order with any guard created after it)
// once the guard's assertions go out of scope, mirroring the original's
// RAII stack guard.
type AssertionGuard struct {
	context        *Context
	frameVariables []fieldtype.ID
	frameClauses   []int
}

// NewAssertionGuard opens a new, initially empty, assertion frame over ctx.
func NewAssertionGuard(ctx *Context) *AssertionGuard {
	return &AssertionGuard{context: ctx}
}

// Context returns the guard's underlying analysis context.
func (g *AssertionGuard) Context() *Context { return g.context }

// AddVariableAssertionByID records that field is known not to be missing
// for the lifetime of this guard.
func (g *AssertionGuard) AddVariableAssertionByID(field fieldtype.ID) {
	g.context.assertNotMissing[field]++
	g.frameVariables = append(g.frameVariables, field)
}

// AddClauseAssertion records that the node with this id is known not to be
// missing for the lifetime of this guard.
func (g *AssertionGuard) AddClauseAssertion(nodeID int) {
	g.context.assertClauseNotMissing[nodeID]++
	g.frameClauses = append(g.frameClauses, nodeID)
}

// Release undoes every assertion this guard added.
func (g *AssertionGuard) Release() {
	for _, id := range g.frameVariables {
		g.context.assertNotMissing[id]--
		if g.context.assertNotMissing[id] == 0 {
			delete(g.context.assertNotMissing, id)
		}
	}
	for _, id := range g.frameClauses {
		g.context.assertClauseNotMissing[id]--
		if g.context.assertClauseNotMissing[id] == 0 {
			delete(g.context.assertClauseNotMissing, id)
		}
	}
	g.frameVariables = nil
	g.frameClauses = nil
}

func (g *AssertionGuard) addToIntersection(existingVars map[fieldtype.ID]struct{}, existingClauses map[int]struct{}, outVars map[fieldtype.ID]struct{}, outClauses map[int]struct{}) {
	for _, id := range g.frameVariables {
		if _, ok := existingVars[id]; ok {
			outVars[id] = struct{}{}
		}
	}
	for _, id := range g.frameClauses {
		if _, ok := existingClauses[id]; ok {
			outClauses[id] = struct{}{}
		}
	}
}

// AddAssertionsForCheck adds whatever assertions follow from assuming node
// evaluates to the value assumption describes.
func (g *AssertionGuard) AddAssertionsForCheck(node *ast.Node, assumption Assumption) {
	addAssertionsForCheck(node, assumption, g)
	if assumption == AssumeNotMissing || assumption == AssumeTrue || assumption == AssumeFalse {
		g.AddClauseAssertion(node.ID)
	}
}

type intersectable interface {
	addToIntersection(existingVars map[fieldtype.ID]struct{}, existingClauses map[int]struct{}, outVars map[fieldtype.ID]struct{}, outClauses map[int]struct{})
}

// AssertionIntersection finds the minimum set of assertions common to
// several branches (e.g. every arm of an if chain), so the intersection
// can be safely applied once execution rejoins them.
type AssertionIntersection struct {
	variables map[fieldtype.ID]struct{}
	clauses   map[int]struct{}
}

// NewAssertionIntersection creates an empty intersection accumulator.
func NewAssertionIntersection() *AssertionIntersection {
	return &AssertionIntersection{variables: make(map[fieldtype.ID]struct{}), clauses: make(map[int]struct{})}
}

// Add seeds the intersection with src's assertions (call once, for the
// first branch).
func (ai *AssertionIntersection) Add(src intersectable) {
	g, ok := src.(*AssertionGuard)
	if ok {
		for _, id := range g.frameVariables {
			ai.variables[id] = struct{}{}
		}
		for _, id := range g.frameClauses {
			ai.clauses[id] = struct{}{}
		}
		return
	}
	if it, ok := src.(*ChildAssertionIterator); ok {
		ai.Add(it.runningAssertions)
		ai.Add(it.blockAssertions)
	}
}

// Intersect narrows the accumulated set down to what src(s) also assert.
func (ai *AssertionIntersection) Intersect(srcs ...intersectable) {
	newVars := make(map[fieldtype.ID]struct{}, len(ai.variables))
	newClauses := make(map[int]struct{}, len(ai.clauses))
	for _, src := range srcs {
		src.addToIntersection(ai.variables, ai.clauses, newVars, newClauses)
	}
	ai.variables = newVars
	ai.clauses = newClauses
}

// Apply writes the accumulated intersection into guard.
func (ai *AssertionIntersection) Apply(guard *AssertionGuard) {
	for id := range ai.variables {
		guard.AddVariableAssertionByID(id)
	}
	for id := range ai.clauses {
		guard.AddClauseAssertion(id)
	}
}

// ChildAssertionIterator walks a node's children while maintaining the
// assertions that apply to whichever child it currently points at — e.g.
// walking the true-branch of a ternary implies the predicate was true;
// walking the Nth operand of an AND implies the first N-1 operands were
// not false. Release must be called once the caller is done with it.
type ChildAssertionIterator struct {
	node               *ast.Node
	maintainAssertions bool
	index              int
	blockAssertions    *AssertionGuard
	runningAssertions  *AssertionGuard
}

// NewChildAssertionIterator starts iterating node's children under ctx.
func NewChildAssertionIterator(ctx *Context, node *ast.Node) *ChildAssertionIterator {
	return newChildAssertionIterator(ctx, node, true)
}

func newChildAssertionIterator(ctx *Context, node *ast.Node, maintain bool) *ChildAssertionIterator {
	it := &ChildAssertionIterator{
		node:               node,
		maintainAssertions: maintain,
		blockAssertions:    NewAssertionGuard(ctx),
		runningAssertions:  NewAssertionGuard(ctx),
	}
	it.fixAssertions()
	return it
}

func (it *ChildAssertionIterator) fixAssertions() {
	it.blockAssertions.Release()
	if !it.maintainAssertions || !it.Valid() {
		return
	}
	fixAssertions(it.node, it.index, it.blockAssertions, it.runningAssertions)
}

// Valid reports whether the iterator still points at an existing child.
func (it *ChildAssertionIterator) Valid() bool { return it.index < len(it.node.Children) }

// Index returns the iterator's current child position.
func (it *ChildAssertionIterator) Index() int { return it.index }

// Next advances to the next child, updating assertions as it goes.
func (it *ChildAssertionIterator) Next() {
	it.index++
	it.fixAssertions()
}

// Current returns the child the iterator currently points at.
func (it *ChildAssertionIterator) Current() *ast.Node { return &it.node.Children[it.index] }

// Release frees both of the iterator's internal assertion frames. Callers
// must release in the reverse order they were created, same as any other
// stack guard in this compiler.
func (it *ChildAssertionIterator) Release() {
	it.blockAssertions.Release()
	it.runningAssertions.Release()
}

func (it *ChildAssertionIterator) addToIntersection(ev map[fieldtype.ID]struct{}, ec map[int]struct{}, ov map[fieldtype.ID]struct{}, oc map[int]struct{}) {
	it.runningAssertions.addToIntersection(ev, ec, ov, oc)
	it.blockAssertions.addToIntersection(ev, ec, ov, oc)
}

// --- mightBeMissing ---------------------------------------------------

func (c *Context) mightBeMissingDispatch(node *ast.Node) bool {
	switch node.Kind() {
	case catalog.BooleanAnd, catalog.BooleanOr:
		it := NewChildAssertionIterator(c, node)
		defer it.Release()
		for ; it.Valid(); it.Next() {
			tmp := NewAssertionGuard(c)
			assume := AssumeNotFalse
			if node.Kind() == catalog.BooleanOr {
				assume = AssumeNotTrue
			}
			for j := it.Index() + 1; j < len(node.Children); j++ {
				tmp.AddAssertionsForCheck(&node.Children[j], assume)
			}
			missing := c.MightBeMissing(it.Current())
			tmp.Release()
			if missing {
				return true
			}
		}
		return false

	case catalog.SurrogateMacro:
		for i := range node.Children {
			if !c.MightBeMissing(&node.Children[i]) {
				return false
			}
		}
		return true

	case catalog.FieldRef:
		if len(node.Children) > 0 {
			return true
		}
		return c.MightVariableBeMissing(node.Field)

	case catalog.BoundMacro:
		it := NewChildAssertionIterator(c, node)
		defer it.Release()
		if c.CheckIfTrivial(it.Current()) != ast.AlwaysTrue {
			return true
		}
		it.Next()
		return c.MightBeMissing(it.Current())

	case catalog.TernaryMacro:
		it := NewChildAssertionIterator(c, node)
		defer it.Release()
		trivial := c.CheckIfTrivial(it.Current())
		if trivial == ast.AlwaysTrue {
			it.Next()
			return c.MightBeMissing(it.Current())
		}
		if trivial == ast.AlwaysFalse {
			it.Next()
			it.Next()
			return c.MightBeMissing(it.Current())
		}
		for ; it.Valid(); it.Next() {
			if c.MightBeMissing(it.Current()) {
				return true
			}
		}
		return false

	case catalog.RunLambda:
		last := &node.Children[len(node.Children)-1]
		if last.Kind() != catalog.Lambda {
			return c.mightBeMissingDefault(node)
		}
		body := &last.Children[len(last.Children)-1]
		idx := len(node.Children) - 1
		if idx < len(body.Children) {
			return c.MightBeMissing(&body.Children[idx])
		}
		return c.MightBeMissing(body)

	default:
		return c.mightBeMissingDefault(node)
	}
}

func (c *Context) mightBeMissingDefault(node *ast.Node) bool {
	switch node.Def.MissingValueRule {
	case catalog.MissingIfAnyArgMissing, catalog.MaybeMissingIfAnyArgMissing:
		for i := range node.Children {
			if c.MightBeMissing(&node.Children[i]) {
				return true
			}
		}
		return false
	case catalog.NeverMissing:
		return false
	default:
		return true
	}
}

// --- addAssertionsForCheck ---------------------------------------------

func addAssertionsForCheck(node *ast.Node, assumption Assumption, assertions *AssertionGuard) {
	switch node.Kind() {
	case catalog.NotOperator:
		switch assumption {
		case AssumeFalse:
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeTrue)
		case AssumeTrue:
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeFalse)
		case AssumeNotFalse:
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeNotTrue)
		case AssumeNotTrue:
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeNotFalse)
		}

	case catalog.IsMissing:
		if assumption == AssumeFalse || assumption == AssumeNotTrue {
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeNotMissing)
		}

	case catalog.IsNotMissing:
		if assumption == AssumeTrue || assumption == AssumeNotFalse {
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeNotMissing)
		}

	case catalog.BooleanAnd, catalog.BooleanOr:
		if assumption == AssumeTrue || assumption == AssumeNotFalse || assumption == AssumeFalse || assumption == AssumeNotTrue {
			trueish := assumption == AssumeTrue || assumption == AssumeNotFalse
			if (node.Kind() == catalog.BooleanAnd && trueish) || (node.Kind() == catalog.BooleanOr && !trueish) {
				for i := range node.Children {
					assertions.AddAssertionsForCheck(&node.Children[i], assumption)
				}
			} else {
				intersection := NewAssertionIntersection()
				first := true
				for i := range node.Children {
					local := NewAssertionGuard(assertions.Context())
					local.AddAssertionsForCheck(&node.Children[i], assumption)
					if first {
						intersection.Add(local)
						first = false
					} else {
						intersection.Intersect(local)
					}
					local.Release()
				}
				intersection.Apply(assertions)
			}
		}

	case catalog.Declaration, catalog.Assignment:
		desc := assertions.Context().registry.Get(node.Field)
		if (len(node.Children) > 0 && !assertions.Context().MightBeMissing(&node.Children[0])) ||
			desc.Type == fieldtype.Table || desc.Type == fieldtype.StringTable {
			assertions.AddVariableAssertionByID(node.Field)
		}

	case catalog.Block:
		for i := range node.Children {
			assertions.AddAssertionsForCheck(&node.Children[i], NoAssumptions)
		}

	case catalog.IfChain:
		intersection := NewAssertionIntersection()
		it := NewChildAssertionIterator(assertions.Context(), node)
		defer it.Release()
		started := false
		implicitElse := true
		for it.Valid() {
			local := NewAssertionGuard(assertions.Context())
			local.AddAssertionsForCheck(it.Current(), assumption)
			if !started {
				intersection.Add(it)
				intersection.Add(local)
				started = true
			} else {
				intersection.Intersect(it, local)
			}
			local.Release()

			it.Next()
			if !it.Valid() || assertions.Context().CheckIfTrivial(it.Current()) == ast.AlwaysTrue {
				implicitElse = false
				break
			}
		}
		if implicitElse {
			intersection.Intersect(it)
		}
		intersection.Apply(assertions)

	case catalog.TernaryMacro:
		if assumption != NoAssumptions && assumption != AssumeMissing {
			it := NewChildAssertionIterator(assertions.Context(), node)
			defer it.Release()
			if assumption == AssumeNotMissing || assumption == AssumeTrue || assumption == AssumeFalse {
				assertions.AddAssertionsForCheck(it.Current(), AssumeNotMissing)
			}
			intersection := NewAssertionIntersection()
			it.Next()
			intersection.Add(it)
			localTrue := NewAssertionGuard(assertions.Context())
			localTrue.AddAssertionsForCheck(it.Current(), assumption)
			intersection.Add(localTrue)
			localTrue.Release()

			it.Next()
			localFalse := NewAssertionGuard(assertions.Context())
			localFalse.AddAssertionsForCheck(it.Current(), assumption)
			intersection.Intersect(it, localFalse)
			localFalse.Release()

			intersection.Apply(assertions)
		}

	case catalog.DefaultMacro:
		if node.Content == "false" && (assumption == AssumeTrue || assumption == AssumeNotFalse) {
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeTrue)
		}
		if node.Content == "true" && (assumption == AssumeFalse || assumption == AssumeNotTrue) {
			assertions.AddAssertionsForCheck(&node.Children[0], AssumeFalse)
		}

	case catalog.BoundMacro:
		assertions.AddAssertionsForCheck(&node.Children[0], AssumeTrue)
		assertions.AddAssertionsForCheck(&node.Children[len(node.Children)-1], assumption)

	case catalog.FieldRef:
		if assumption == AssumeNotMissing || assumption == AssumeTrue || assumption == AssumeFalse {
			assertions.AddVariableAssertionByID(node.Field)
		}

	default:
		if assumption == AssumeNotMissing || assumption == AssumeTrue || assumption == AssumeFalse {
			if node.Def.MissingValueRule == catalog.MissingIfAnyArgMissing {
				for i := range node.Children {
					assertions.AddAssertionsForCheck(&node.Children[i], AssumeNotMissing)
				}
			}
		}
	}
}

// --- checkIfTrivial -----------------------------------------------------

func (c *Context) checkIfTrivialDispatch(node *ast.Node) ast.TrivialValue {
	switch node.Kind() {
	case catalog.IsMissing:
		if c.MightBeMissing(&node.Children[0]) {
			return ast.RuntimeEvaluationNeeded
		}
		return ast.AlwaysFalse

	case catalog.IsNotMissing:
		if c.MightBeMissing(&node.Children[0]) {
			return ast.RuntimeEvaluationNeeded
		}
		return ast.AlwaysTrue

	case catalog.Constant:
		if node.Type == fieldtype.Bool && strings.EqualFold(node.Content, "false") {
			return ast.AlwaysFalse
		}
		return ast.AlwaysTrue

	case catalog.BooleanAnd, catalog.BooleanOr:
		isAnd := node.Kind() == catalog.BooleanAnd
		out := ast.AlwaysTrue
		shortCircuit := ast.AlwaysFalse
		if !isAnd {
			out, shortCircuit = ast.AlwaysFalse, ast.AlwaysTrue
		}
		it := NewChildAssertionIterator(c, node)
		defer it.Release()
		for ; it.Valid(); it.Next() {
			tmp := NewAssertionGuard(c)
			assume := AssumeTrue
			if !isAnd {
				assume = AssumeFalse
			}
			for j := it.Index() + 1; j < len(node.Children); j++ {
				tmp.AddAssertionsForCheck(&node.Children[j], assume)
			}
			value := c.CheckIfTrivial(it.Current())
			tmp.Release()
			if value == shortCircuit {
				return shortCircuit
			}
			if out != ast.RuntimeEvaluationNeeded && value == ast.RuntimeEvaluationNeeded {
				out = ast.RuntimeEvaluationNeeded
			}
		}
		return out

	case catalog.BooleanXor:
		out := ast.AlwaysFalse
		it := NewChildAssertionIterator(c, node)
		defer it.Release()
		for ; it.Valid(); it.Next() {
			value := c.CheckIfTrivial(it.Current())
			if value == ast.RuntimeEvaluationNeeded {
				out = value
			} else if out == value {
				out = ast.AlwaysFalse
			} else {
				out = ast.AlwaysTrue
			}
		}
		return out

	case catalog.IsIn:
		if len(node.Children) > 1 {
			return ast.RuntimeEvaluationNeeded
		}
		if node.Def == isInDef {
			return ast.AlwaysFalse
		}
		return ast.AlwaysTrue

	default:
		return ast.RuntimeEvaluationNeeded
	}
}

// --- fixAssertions --------------------------------------------------------

func fixAssertions(node *ast.Node, i int, blockAssertions, runningAssertions *AssertionGuard) {
	switch node.Kind() {
	case catalog.TernaryMacro, catalog.BoundMacro:
		if i == 1 {
			blockAssertions.AddAssertionsForCheck(&node.Children[0], AssumeTrue)
		} else if i == 2 {
			blockAssertions.AddAssertionsForCheck(&node.Children[0], AssumeFalse)
		}

	case catalog.SurrogateMacro:
		if i > 0 {
			runningAssertions.AddAssertionsForCheck(&node.Children[i-1], AssumeMissing)
		}

	case catalog.BooleanAnd:
		if i > 0 {
			runningAssertions.AddAssertionsForCheck(&node.Children[i-1], AssumeNotFalse)
		}

	case catalog.BooleanOr:
		if i > 0 {
			runningAssertions.AddAssertionsForCheck(&node.Children[i-1], AssumeNotTrue)
		}

	case catalog.IfChain:
		if i%2 == 0 {
			if i > 0 {
				runningAssertions.AddAssertionsForCheck(&node.Children[i-1], AssumeNotTrue)
			}
			if i+1 < len(node.Children) {
				blockAssertions.AddAssertionsForCheck(&node.Children[i+1], AssumeTrue)
			}
		}

	case catalog.RunLambda:
		if i == len(node.Children)-1 && node.Children[i].Kind() == catalog.Lambda {
			lambda := &node.Children[i]
			for j := 0; j < i; j++ {
				if !blockAssertions.Context().MightBeMissing(&node.Children[j]) {
					blockAssertions.AddVariableAssertionByID(lambda.Children[j].Field)
				}
			}
		}

	default:
		if i > 0 {
			runningAssertions.AddAssertionsForCheck(&node.Children[i-1], NoAssumptions)
		}
	}
}
