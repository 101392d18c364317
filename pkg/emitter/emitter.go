package emitter

import (
	"fmt"
	"strings"

	"github.com/pmmlc/pmmlc/pkg/analyser"
	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

// DefaultIfMissing is the three-valued signal the emitter threads down
// through expression emission, recording what the surrounding code will do
// with a missing (nil) result, so a subexpression can pick the cheapest
// encoding that still produces the right answer for its caller.
type DefaultIfMissing int

const (
	// DIMNil: caller distinguishes missing from false; never conflate them.
	DIMNil DefaultIfMissing = iota
	// DIMFalse: caller only cares about truthiness (e.g. an if predicate);
	// missing may come out false if that's cheaper to emit.
	DIMFalse
	// DIMTrue: caller needs an unknown (possibly-missing) outcome treated as
	// true; used as scaffolding inside and-chains.
	DIMTrue
)

// Converter walks an already-built ast.Node tree and renders it to Lua
// source through a Writer, consulting analysis for the missing-value facts
// that decide which three-valued-logic encoding a node needs.
type Converter struct {
	ctx      *pmmlctx.Context
	analysis *analyser.Context
	w        *Writer
}

// NewConverter creates a Converter that writes to w, resolving field names
// against ctx's registry and missingness facts against analysis.
func NewConverter(ctx *pmmlctx.Context, analysis *analyser.Context, w *Writer) *Converter {
	return &Converter{ctx: ctx, analysis: analysis, w: w}
}

func (c *Converter) fieldName(n *ast.Node) string {
	desc := c.ctx.Registry.Get(n.Field)
	return c.w.VariableName(n.Field, desc.Name)
}

// EmitStatement writes n as a full statement (ending its own line where
// appropriate) — used for block contents and the top-level function body.
func (c *Converter) EmitStatement(n *ast.Node) {
	switch n.Kind() {
	case catalog.Block:
		for i := range n.Children {
			c.EmitStatement(&n.Children[i])
		}

	case catalog.Declaration:
		// A variable the optimiser overflowed into the shared table is
		// never its own Lua local; its "declaration" is just the initial
		// assignment into that table's slot.
		if c.w.IsOverflowed(n.Field) {
			c.w.raw(c.fieldName(n))
			c.w.raw(" = ")
			if len(n.Children) > 0 {
				c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
			} else {
				c.w.raw("nil")
			}
			c.w.Endline()
			break
		}
		c.w.Keyword("local")
		c.w.raw(" " + c.fieldName(n))
		if len(n.Children) > 0 {
			c.w.raw(" = ")
			c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
		}
		c.w.Endline()

	case catalog.Assignment:
		c.w.raw(c.fieldName(n))
		for i := 0; i < len(n.Children)-1; i++ {
			c.w.OpenBracket()
			c.emitExpr(&n.Children[i], PrecedenceTop, DIMNil)
			c.w.CloseBracket()
		}
		c.w.raw(" = ")
		c.emitExpr(&n.Children[len(n.Children)-1], PrecedenceTop, DIMNil)
		c.w.Endline()

	case catalog.IfChain:
		c.emitIfChainStatement(n)

	case catalog.ReturnStatement:
		c.w.Keyword("return")
		if len(n.Children) > 0 {
			c.w.raw(" ")
			c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
		}
		c.w.Endline()

	default:
		// An expression used in statement position (e.g. a bare function
		// call inserted for side effects, such as table.insert/table.sort).
		c.emitExpr(n, PrecedenceTop, DIMNil)
		c.w.Endline()
	}
}

func (c *Converter) emitIfChainStatement(n *ast.Node) {
	for i := 0; i < len(n.Children); i += 2 {
		if i+1 >= len(n.Children) {
			// Trailing implicit else clause.
			c.w.StartElse()
			c.EmitStatement(&n.Children[i])
			continue
		}
		if i == 0 {
			c.w.StartIf()
		} else {
			c.w.StartElseIf()
		}
		// A predicate only needs a true/false answer: DIMFalse lets a
		// maybe-missing condition collapse to false instead of carrying a
		// nil-distinguishing guard it would never use.
		// Children come in (body, predicate) pairs: the predicate follows
		// the body it guards.
		c.emitExpr(&n.Children[i+1], PrecedenceTop, DIMFalse)
		c.w.DoBlock()
		c.EmitStatement(&n.Children[i])
	}
	c.w.EndBlock(true)
}

// EmitExpression writes n as a value expression at the caller's surrounding
// operator precedence, parenthesising only when genuinely needed. Callers
// outside this package always want the nil-preserving encoding.
func (c *Converter) EmitExpression(n *ast.Node, precedence int) {
	c.emitExpr(n, precedence, DIMNil)
}

// emitExpr is the primary recursion:
// before dispatching on node kind it guards ordinary missing-if-any-arg
// nodes with an explicit missing check whenever the analyser can't already
// rule out a missing result here — regardless of dim, since an unguarded
// comparison or arithmetic op run on a genuinely-missing operand doesn't
// quietly become nil in the target language, it raises a runtime error.
func (c *Converter) emitExpr(n *ast.Node, precedence int, dim DefaultIfMissing) {
	if n.Def != nil && n.Def.MissingValueRule == catalog.MissingIfAnyArgMissing && c.analysis.MightBeMissing(n) {
		c.emitGuardedByMissingClause(n, dim)
		return
	}
	c.emitExprKind(n, precedence, dim)
}

// emitGuardedByMissingClause wraps n's natural expansion with the guard dim
// demands. DIM=NIL and DIM=FALSE both use `not-missing(n) and n`: for a
// non-bool node not-missing(n) degrades to n's own leaf field (see the
// FieldRef case below), which is a real nil exactly when n is missing, so
// Lua's `and` short-circuits straight to that nil without ever evaluating
// (and erroring on) n's missing operand. DIM=TRUE instead needs
// `is-missing(n) or n`: forcing an unknown result to true means
// short-circuiting on a definite positive before n is evaluated at all.
func (c *Converter) emitGuardedByMissingClause(n *ast.Node, dim DefaultIfMissing) {
	if dim == DIMTrue {
		g := c.w.OpenScope(PrecedenceOr, true)
		c.emitMissingClause(n, false)
		c.w.raw(" or ")
		c.emitExprKind(n, PrecedenceOr, dim)
		g.Release()
		return
	}
	g := c.w.OpenScope(PrecedenceAnd, true)
	c.emitMissingClause(n, true)
	c.w.raw(" and ")
	c.emitExprKind(n, PrecedenceAnd, dim)
	g.Release()
}

// emitMissingClause writes an expression that's truthy iff n is missing
// (invert flips that to truthy iff n is NOT missing). For a plain
// missing-if-any-arg node this recurses into whichever children might
// actually be missing (emitStandardMissingClause), exactly mirroring the
// analyser's own aggregation rule instead of re-running n's (possibly
// erroring) computation. Only nodes with a bespoke missing rule — ternary,
// surrogate, bound — fall back to the brute-force `(compute == nil)` check,
// and those are only ever reached here once their own predicate/indices are
// already known safe to evaluate.
func (c *Converter) emitMissingClause(n *ast.Node, invert bool) {
	switch n.Kind() {
	case catalog.BooleanAnd, catalog.BooleanOr:
		// (not naive-value) and/or each child's own missing-clause.
		isAnd := n.Kind() == catalog.BooleanAnd
		joiner := " and "
		if !isAnd {
			joiner = " or "
		}
		if invert {
			if isAnd {
				joiner = " or "
			} else {
				joiner = " and "
			}
		}
		prec := PrecedenceAnd
		if joiner == " or " {
			prec = PrecedenceOr
		}
		g := c.w.OpenScope(prec, true)
		for i := range n.Children {
			if i > 0 {
				c.w.raw(joiner)
			}
			c.emitMissingClause(&n.Children[i], invert)
		}
		g.Release()

	case catalog.FieldRef:
		if invert && len(n.Children) == 0 {
			if n.EffectiveType() == fieldtype.Bool {
				// A stored false must not be mistaken for missing: check
				// nullity explicitly, and fold a false answer back to nil
				// so the "and" this feeds doesn't short-circuit on it.
				g := c.w.OpenScope(PrecedenceOr, true)
				c.w.raw(c.fieldName(n))
				c.w.raw(" ~= nil or nil")
				g.Release()
			} else {
				// The variable itself is nil exactly when missing — no
				// comparison needed, and (unlike a `~= nil` check) this
				// stays a genuine nil rather than a boolean false when an
				// enclosing `and` chain short-circuits on it.
				c.w.raw(c.fieldName(n))
			}
			return
		}
		g := c.w.OpenScope(PrecedenceEqual, true)
		c.emitExprKind(n, PrecedenceEqual, DIMNil)
		if invert {
			c.w.raw(" ~= nil")
		} else {
			c.w.raw(" == nil")
		}
		g.Release()

	default:
		if n.Def != nil && n.Def.MissingValueRule == catalog.MissingIfAnyArgMissing && len(n.Children) > 0 {
			c.emitStandardMissingClause(n, invert)
			return
		}
		op := "=="
		if invert {
			op = "~="
		}
		g := c.w.OpenScope(PrecedenceEqual, true)
		c.w.raw("(")
		c.emitExprKind(n, PrecedenceTop, DIMNil)
		c.w.raw(") " + op + " nil")
		g.Release()
	}
}

// emitStandardMissingClause handles a missing-if-any-arg node by counting
// how many of its children might actually be missing: zero means the node
// itself can't be, exactly one lets the check degrade to that child alone,
// and more than one joins each child's own clause.
func (c *Converter) emitStandardMissingClause(n *ast.Node, invert bool) {
	var maybeMissing []int
	for i := range n.Children {
		if c.analysis.MightBeMissing(&n.Children[i]) {
			maybeMissing = append(maybeMissing, i)
		}
	}
	switch len(maybeMissing) {
	case 0:
		if invert {
			c.w.raw("true")
		} else {
			c.w.raw("false")
		}
	case 1:
		c.emitMissingClause(&n.Children[maybeMissing[0]], invert)
	default:
		joiner, prec := " or ", PrecedenceOr
		if invert {
			joiner, prec = " and ", PrecedenceAnd
		}
		g := c.w.OpenScope(prec, true)
		for k, i := range maybeMissing {
			if k > 0 {
				c.w.raw(joiner)
			}
			c.emitMissingClause(&n.Children[i], invert)
		}
		g.Release()
	}
}

func (c *Converter) emitExprKind(n *ast.Node, precedence int, dim DefaultIfMissing) {
	switch n.Kind() {
	case catalog.Constant:
		c.w.Literal(n.Content, n.Type)

	case catalog.FieldRef:
		c.emitFieldRef(n, dim)

	case catalog.UnaryOperator:
		g := c.w.OpenScope(n.Def.Precedence, true)
		c.w.raw(n.Def.TargetName)
		c.emitExpr(&n.Children[0], n.Def.Precedence, DIMNil)
		g.Release()

	case catalog.NotOperator:
		g := c.w.OpenScope(PrecedenceUnary, true)
		c.w.Keyword("not")
		c.w.raw(" ")
		c.emitExpr(&n.Children[0], PrecedenceUnary, DIMNil)
		g.Release()

	case catalog.Operator, catalog.Comparison:
		c.emitInfix(n, n.Def.TargetName, n.Def.Precedence)

	case catalog.BooleanAnd:
		c.emitAnd(n, dim)

	case catalog.BooleanOr:
		c.emitOr(n, dim)

	case catalog.SurrogateMacro:
		c.emitSurrogate(n, dim)

	case catalog.BooleanXor:
		c.emitChain(n, "~=", PrecedenceEqual)

	case catalog.IsMissing:
		c.emitComparisonToNil(n, "==")

	case catalog.IsNotMissing:
		c.emitComparisonToNil(n, "~=")

	case catalog.IsIn:
		c.emitIsIn(n)

	case catalog.Functionlike:
		c.emitCall(n.Def.TargetName, n.Children)

	case catalog.RoundMacro:
		// math.floor(x + 0.5) — Lua/PMML round-half-up.
		g := c.w.OpenScope(PrecedenceTop, true)
		c.w.raw("math.floor(")
		c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
		c.w.raw(" + 0.5)")
		g.Release()

	case catalog.Log10Macro:
		g := c.w.OpenScope(PrecedenceTimes, true)
		c.w.raw("math.log(")
		c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
		c.w.raw(") / math.log(10)")
		g.Release()

	case catalog.MeanMacro:
		c.emitMean(n)

	case catalog.ThresholdMacro:
		// (x >= t and 1 or 0)
		g := c.w.OpenScope(PrecedenceOr, true)
		c.w.raw("(")
		c.emitExpr(&n.Children[0], PrecedenceEqual, DIMNil)
		c.w.raw(" >= ")
		c.emitExpr(&n.Children[1], PrecedenceEqual, DIMNil)
		c.w.raw(") and 1 or 0")
		g.Release()

	case catalog.SubstringMacro:
		c.emitSubstring(n)

	case catalog.TrimBlank:
		c.w.raw("(")
		c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
		c.w.raw(`):match("^%s*(.-)%s*$")`)

	case catalog.TernaryMacro:
		c.emitTernary(n, dim)

	case catalog.BoundMacro:
		c.emitBound(n, dim)

	case catalog.DefaultMacro:
		c.emitDefault(n)

	case catalog.MakeTuple:
		c.w.raw("{")
		for i := range n.Children {
			if i > 0 {
				c.w.Comma()
			}
			c.emitExpr(&n.Children[i], PrecedenceTop, DIMNil)
		}
		c.w.raw("}")

	case catalog.Lambda:
		c.emitLambda(n)

	case catalog.RunLambda:
		if n.Def.TargetName != "" {
			c.emitCall(n.Def.TargetName, n.Children)
		} else {
			c.emitCall("", n.Children)
		}

	default:
		c.w.raw(fmt.Sprintf("--[[unsupported:%d]]nil", int(n.Kind())))
	}
}

func (c *Converter) emitInfix(n *ast.Node, op string, precedence int) {
	g := c.w.OpenScope(precedence, true)
	for i := range n.Children {
		if i > 0 {
			c.w.raw(" " + op + " ")
		}
		c.emitExpr(&n.Children[i], precedence, DIMNil)
	}
	g.Release()
}

func (c *Converter) emitChain(n *ast.Node, op string, precedence int) {
	g := c.w.OpenScope(precedence, true)
	for i := range n.Children {
		if i > 0 {
			c.w.raw(" " + op + " ")
		}
		c.emitExpr(&n.Children[i], precedence, DIMNil)
	}
	g.Release()
}

// emitAnd implements the and(x1..xn) three-valued encoding. With DIM=FALSE or
// DIM=TRUE the naive join already has the right truthiness (a conjunction
// is only ever false/true-or-missing in ways those callers don't need to
// tell apart), so only DIM=NIL needs the restoring scaffolding.
func (c *Converter) emitAnd(n *ast.Node, dim DefaultIfMissing) {
	if dim != DIMNil {
		innerDim := dim
		g := c.w.OpenScope(PrecedenceAnd, true)
		for i := range n.Children {
			if i > 0 {
				c.w.raw(" and ")
			}
			c.emitExpr(&n.Children[i], PrecedenceAnd, innerDim)
		}
		g.Release()
		return
	}

	var settled, deferred []int
	for i := range n.Children {
		if c.analysis.MightBeMissing(&n.Children[i]) {
			deferred = append(deferred, i)
		} else {
			settled = append(settled, i)
		}
	}
	if len(deferred) == 0 {
		c.emitChain(n, "and", PrecedenceAnd)
		return
	}

	g := c.w.OpenScope(PrecedenceAnd, true)
	first := true
	emit := func(i int, d DefaultIfMissing) {
		if !first {
			c.w.raw(" and ")
		}
		first = false
		c.emitExpr(&n.Children[i], PrecedenceAnd, d)
	}
	for _, i := range settled {
		emit(i, DIMNil)
	}
	for k, i := range deferred {
		if k < len(deferred)-1 {
			emit(i, DIMTrue)
		} else {
			emit(i, DIMNil)
		}
	}
	// Restore nil for every deferred operand but the last: a truly-missing
	// operand was forced to true above purely as scaffolding, so the whole
	// conjunction must come back to nil rather than silently read true.
	for k := 0; k < len(deferred)-1; k++ {
		c.w.raw(" and ")
		c.emitOutputMissingRestore(&n.Children[deferred[k]])
	}
	g.Release()
}

// emitOutputMissingRestore writes `not missing(x)` so a prior DIM=TRUE
// scaffold operand can't silently promote a missing value to true.
func (c *Converter) emitOutputMissingRestore(n *ast.Node) {
	g := c.w.OpenScope(PrecedenceEqual, true)
	c.emitMissingClause(n, true)
	g.Release()
}

// emitOr implements the or(x1..xn) three-valued encoding, dual to emitAnd.
func (c *Converter) emitOr(n *ast.Node, dim DefaultIfMissing) {
	if dim != DIMNil {
		g := c.w.OpenScope(PrecedenceOr, true)
		for i := range n.Children {
			if i > 0 {
				c.w.raw(" or ")
			}
			c.emitExpr(&n.Children[i], PrecedenceOr, dim)
		}
		g.Release()
		return
	}

	var settled, deferred []int
	for i := range n.Children {
		if c.analysis.MightBeMissing(&n.Children[i]) {
			deferred = append(deferred, i)
		} else {
			settled = append(settled, i)
		}
	}
	if len(deferred) == 0 {
		c.emitChain(n, "or", PrecedenceOr)
		return
	}

	g := c.w.OpenScope(PrecedenceOr, true)
	first := true
	emit := func(i int) {
		if !first {
			c.w.raw(" or ")
		}
		first = false
		c.emitExpr(&n.Children[i], PrecedenceOr, DIMFalse)
	}
	for _, i := range settled {
		emit(i)
	}
	for _, i := range deferred {
		emit(i)
	}
	if len(deferred) >= 2 {
		// Every deferred operand was forced false-if-missing above, so a
		// value of false here is ambiguous between "genuinely false" and
		// "every deferred operand was missing". Disambiguate: if they were
		// ALL missing, the overall result must be nil, not false.
		c.w.raw(" or (")
		for k, i := range deferred {
			if k > 0 {
				c.w.raw(" and ")
			}
			c.emitMissingClause(&n.Children[i], false)
		}
		c.w.raw(" and false)")
	}
	g.Release()
}

func (c *Converter) emitComparisonToNil(n *ast.Node, op string) {
	g := c.w.OpenScope(PrecedenceEqual, true)
	c.emitExpr(&n.Children[0], PrecedenceEqual, DIMNil)
	c.w.raw(" " + op + " nil")
	g.Release()
}

func (c *Converter) emitIsIn(n *ast.Node) {
	g := c.w.OpenScope(PrecedenceOr, true)
	needle := &n.Children[0]
	op := "=="
	joiner := "or"
	if n.Def.TargetName == "~=" {
		op = "~="
		joiner = "and"
	}
	for i := 1; i < len(n.Children); i++ {
		if i > 1 {
			c.w.raw(" " + joiner + " ")
		}
		c.emitExpr(needle, PrecedenceEqual, DIMNil)
		c.w.raw(" " + op + " ")
		c.emitExpr(&n.Children[i], PrecedenceEqual, DIMNil)
	}
	g.Release()
}

func (c *Converter) emitCall(target string, args []ast.Node) {
	if target != "" {
		c.w.raw(target)
	} else {
		// RunLambda: last child is the callee expression, preceding
		// children are arguments.
		c.emitExpr(&args[len(args)-1], PrecedenceTop, DIMNil)
		args = args[:len(args)-1]
	}
	c.w.raw("(")
	for i := range args {
		if i > 0 {
			c.w.Comma()
		}
		c.emitExpr(&args[i], PrecedenceTop, DIMNil)
	}
	c.w.raw(")")
}

func (c *Converter) emitMean(n *ast.Node) {
	g := c.w.OpenScope(PrecedenceTimes, true)
	c.w.raw("(")
	for i := range n.Children {
		if i > 0 {
			c.w.raw(" + ")
		}
		c.emitExpr(&n.Children[i], PrecedencePlus, DIMNil)
	}
	c.w.raw(") / ")
	c.w.LiteralInt(len(n.Children))
	g.Release()
}

func (c *Converter) emitSubstring(n *ast.Node) {
	// PMML substring(string, startIndex[1-based], length).
	c.w.raw("string.sub(")
	c.emitExpr(&n.Children[0], PrecedenceTop, DIMNil)
	c.w.Comma()
	c.emitExpr(&n.Children[1], PrecedenceTop, DIMNil)
	c.w.raw(", (")
	c.emitExpr(&n.Children[1], PrecedenceTop, DIMNil)
	c.w.raw(") + (")
	c.emitExpr(&n.Children[2], PrecedenceTop, DIMNil)
	c.w.raw(") - 1)")
}

// emitFieldRef renders a (possibly multi-dimensional) field reference as
// the short-circuit chain a multi-dimensional field reference requires: `v and v[i1] and
// v[i1][i2] and ...`, so a missing intermediate table produces nil instead
// of a runtime index-nil error. If the analyser has already proved the
// base variable not-missing, the chain starts at depth 1 instead of depth
// 0. A boolean result then receives `or false`/`or true` scaffolding per
// dim, since a field's own declared type doesn't otherwise distinguish a
// stored false from a missing nil.
func (c *Converter) emitFieldRef(n *ast.Node, dim DefaultIfMissing) {
	name := c.fieldName(n)
	if len(n.Children) == 0 {
		c.w.raw(name)
		c.emitBoolScaffold(n, dim)
		return
	}

	baseKnownNotMissing := !c.analysis.MightVariableBeMissing(n.Field)
	g := c.w.OpenScope(PrecedenceAnd, true)
	prefix := name
	wroteAny := false
	if !baseKnownNotMissing {
		c.w.raw(prefix)
		wroteAny = true
	}
	for i := range n.Children {
		if wroteAny {
			c.w.raw(" and ")
		}
		wroteAny = true
		c.w.raw(prefix)
		c.w.OpenBracket()
		c.emitExpr(&n.Children[i], PrecedenceTop, DIMNil)
		c.w.CloseBracket()
		prefix = prefix + "[...]" // never read back; only used to grow c.w.raw calls above
		// Re-render the real indexed prefix for subsequent links.
		prefix = c.indexedPrefix(name, n, i)
	}
	g.Release()
	c.emitBoolScaffold(n, dim)
}

// indexedPrefix renders name[n.Children[0]]...[n.Children[upTo]] as source
// text so emitFieldRef's short-circuit chain can repeat each growing prefix
// without re-walking the index expressions' side effects.
func (c *Converter) indexedPrefix(name string, n *ast.Node, upTo int) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i <= upTo; i++ {
		b.WriteString("[")
		b.WriteString(c.renderIndexText(&n.Children[i]))
		b.WriteString("]")
	}
	return b.String()
}

// renderIndexText renders a simple index expression to text for reuse in
// emitFieldRef's repeated prefixes; indices are always constants or field
// reads in practice (PMML doesn't nest arbitrary expressions inside an
// indirection), so a dedicated lightweight renderer avoids re-invoking the
// full statement-aware Writer machinery mid-expression.
func (c *Converter) renderIndexText(n *ast.Node) string {
	switch n.Kind() {
	case catalog.Constant:
		if n.Type == fieldtype.String {
			return escapeLuaString(n.Content)
		}
		return n.Content
	case catalog.FieldRef:
		return c.fieldName(n)
	default:
		tmp := NewWriter(c.w.lowercase, c.w.maxVariables)
		tmp.SetOverflowedVariables(c.w.overflowFields)
		tmp.SetAliasedVariables(c.w.aliasedVariables)
		sub := &Converter{ctx: c.ctx, analysis: c.analysis, w: tmp}
		sub.emitExpr(n, PrecedenceTop, DIMNil)
		return tmp.String()
	}
}

func (c *Converter) emitBoolScaffold(n *ast.Node, dim DefaultIfMissing) {
	if n.EffectiveType() != fieldtype.Bool {
		return
	}
	if dim == DIMTrue {
		c.w.raw(" or true")
	} else if dim == DIMFalse {
		c.w.raw(" or false")
	}
}

// emitTernary renders `if(pred, ifTrue[, ifFalse])`, picking the cheapest
// of the three ternary encodings below. If pred might be missing,
// the whole thing is additionally guarded with a not-missing check (the
// ternary's own result is only well-defined once pred is known).
func (c *Converter) emitTernary(n *ast.Node, dim DefaultIfMissing) {
	pred := &n.Children[0]
	ifTrue := &n.Children[1]
	var ifFalse *ast.Node
	if len(n.Children) > 2 {
		ifFalse = &n.Children[2]
	}

	if c.analysis.MightBeMissing(pred) {
		g := c.w.OpenScope(PrecedenceAnd, true)
		c.emitMissingClause(pred, true)
		c.w.raw(" and (")
		c.emitTernaryForm(pred, ifTrue, ifFalse, dim)
		c.w.raw(")")
		g.Release()
		return
	}
	c.emitTernaryForm(pred, ifTrue, ifFalse, dim)
}

// ifTrueCanBeFalsy reports whether the true-branch could itself evaluate
// to a falsy-but-present value (boolean, or possibly missing), which rules
// out the Traditional `p and a or b` encoding.
func (c *Converter) ifTrueCanBeFalsy(ifTrue *ast.Node) bool {
	if ifTrue.EffectiveType() == fieldtype.Bool {
		return true
	}
	return c.analysis.MightBeMissing(ifTrue)
}

// falseBranchIsCompileTimeConstant reports whether the false branch is a
// literal constant, the condition the Backwards form needs.
func falseBranchIsCompileTimeConstant(ifFalse *ast.Node) bool {
	return ifFalse != nil && ifFalse.Kind() == catalog.Constant
}

func (c *Converter) emitTernaryForm(pred, ifTrue, ifFalse *ast.Node, dim DefaultIfMissing) {
	switch {
	case !c.ifTrueCanBeFalsy(ifTrue):
		// Traditional: p and a or b.
		g := c.w.OpenScope(PrecedenceOr, true)
		c.emitExpr(pred, PrecedenceAnd, DIMFalse)
		c.w.raw(" and ")
		c.emitExpr(ifTrue, PrecedenceOr, dim)
		c.w.raw(" or ")
		c.emitFalseBranch(ifFalse, dim)
		g.Release()

	case falseBranchIsCompileTimeConstant(ifFalse):
		// Backwards: not p and b or a.
		g := c.w.OpenScope(PrecedenceOr, true)
		c.w.Keyword("not")
		c.w.raw(" ")
		c.emitExpr(pred, PrecedenceUnary, DIMFalse)
		c.w.raw(" and ")
		c.emitFalseBranch(ifFalse, dim)
		c.w.raw(" or ")
		c.emitExpr(ifTrue, PrecedenceOr, dim)
		g.Release()

	default:
		// Function form: general fallback, correct for any predicate/branch
		// combination at the cost of an immediately-invoked closure.
		c.w.raw("(function() ")
		c.w.Keyword("if")
		c.w.raw(" ")
		c.emitExpr(pred, PrecedenceTop, DIMFalse)
		c.w.raw(" ")
		c.w.Keyword("then")
		c.w.raw(" ")
		c.w.Keyword("return")
		c.w.raw(" ")
		c.emitExpr(ifTrue, PrecedenceTop, dim)
		c.w.raw(" ")
		c.w.Keyword("else")
		c.w.raw(" ")
		c.w.Keyword("return")
		c.w.raw(" ")
		c.emitFalseBranch(ifFalse, dim)
		c.w.raw(" ")
		c.w.Keyword("end")
		c.w.raw(" end)()")
	}
}

func (c *Converter) emitFalseBranch(ifFalse *ast.Node, dim DefaultIfMissing) {
	if ifFalse == nil {
		c.w.raw("nil")
		return
	}
	c.emitExpr(ifFalse, PrecedenceOr, dim)
}

// emitBound renders the bound-macro [and-condition, field value] pair
// The bound macro's encoding scales by dim: the base encoding is `(p and x)`, but a
// caller needing a definite true/false (DIM=TRUE/FALSE) gets a cheaper
// form than always restoring nil.
func (c *Converter) emitBound(n *ast.Node, dim DefaultIfMissing) {
	pred := &n.Children[0]
	value := &n.Children[len(n.Children)-1]

	switch dim {
	case DIMTrue:
		// not p or x
		g := c.w.OpenScope(PrecedenceOr, true)
		c.w.Keyword("not")
		c.w.raw(" ")
		c.emitExpr(pred, PrecedenceUnary, DIMFalse)
		c.w.raw(" or ")
		c.emitExpr(value, PrecedenceOr, DIMTrue)
		g.Release()
	case DIMFalse:
		// p and x
		g := c.w.OpenScope(PrecedenceAnd, true)
		c.emitExpr(pred, PrecedenceAnd, DIMFalse)
		c.w.raw(" and ")
		c.emitExpr(value, PrecedenceAnd, DIMFalse)
		g.Release()
	default:
		// (p or nil) and x
		g := c.w.OpenScope(PrecedenceAnd, true)
		c.w.raw("(")
		c.emitExpr(pred, PrecedenceOr, DIMFalse)
		c.w.raw(" or nil) and ")
		c.emitExpr(value, PrecedenceAnd, DIMNil)
		g.Release()
	}
}

// emitDefault renders the default-macro [child] with its fallback literal
// n.Content, the encoding below: a true bool default needs
// no tail at all (DIM=TRUE already treats missing as true), everything
// else emits the child coerced to DIM=FALSE plus an explicit tail.
func (c *Converter) emitDefault(n *ast.Node) {
	isBoolTrue := n.Type == fieldtype.Bool && strings.EqualFold(n.Content, "true")
	if isBoolTrue {
		c.emitExpr(&n.Children[0], PrecedenceTop, DIMTrue)
		return
	}

	g := c.w.OpenScope(PrecedenceOr, true)
	if n.Type == fieldtype.Bool {
		c.w.raw("(")
		c.emitExpr(&n.Children[0], PrecedenceEqual, DIMFalse)
		c.w.raw(") == true")
	} else {
		c.emitExpr(&n.Children[0], PrecedenceOr, DIMFalse)
		c.w.raw(" or ")
		c.w.Literal(n.Content, n.Type)
	}
	g.Release()
}

// emitSurrogate renders a chain of substitute candidates. A boolean result
// with any maybe-missing candidate needs the general first-not-missing
// fallback as an inline function; otherwise a flat `x1 or x2 or ... or xn`
// chain is both valid and far cheaper (missing maps to nil in the host,
// and `or` skips nil/false) — known caveat: a falsy-but-present non-bool
// candidate can't occur in PMML for this macro's usage sites.
func (c *Converter) emitSurrogate(n *ast.Node, dim DefaultIfMissing) {
	anyMaybeMissing := false
	for i := range n.Children {
		if c.analysis.MightBeMissing(&n.Children[i]) {
			anyMaybeMissing = true
			break
		}
	}

	if n.EffectiveType() != fieldtype.Bool || !anyMaybeMissing {
		c.emitChain(n, "or", PrecedenceOr)
		return
	}

	c.w.raw("(function()")
	c.w.Endline()
	for i := range n.Children {
		if i == 0 {
			c.w.StartIf()
		} else {
			c.w.StartElseIf()
		}
		c.w.Keyword("not")
		c.w.raw(" (")
		c.emitMissingClause(&n.Children[i], false)
		c.w.raw(")")
		c.w.DoBlock()
		c.w.Keyword("return")
		c.w.raw(" ")
		c.emitExpr(&n.Children[i], PrecedenceTop, dim)
		c.w.Endline()
	}
	c.w.StartElse()
	c.w.Keyword("return")
	c.w.raw(" nil")
	c.w.Endline()
	c.w.EndBlock(true)
	c.w.raw("end)()")
}

func (c *Converter) emitLambda(n *ast.Node) {
	c.w.Function()
	for i := 0; i < len(n.Children)-1; i++ {
		if i > 0 {
			c.w.Comma()
		}
		c.w.raw(c.fieldName(&n.Children[i]))
	}
	c.w.FinishedArguments()
	body := &n.Children[len(n.Children)-1]
	if body.Type == fieldtype.Void {
		c.EmitStatement(body)
	} else {
		c.w.Keyword("return")
		c.w.raw(" ")
		c.emitExpr(body, PrecedenceTop, DIMNil)
		c.w.Endline()
	}
	c.w.EndBlock(false)
}
