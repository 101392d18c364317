// Package emitter implements component C5: rendering an analysed ast.Node
// tree to Lua source text, threading three-valued (nil/true/false) logic
// through Lua's native two-valued booleans via explicit DefaultIfMissing
// substitution at each call site that cares.
package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// Precedence levels, identical to the ones in pkg/catalog, repeated here so
// Writer doesn't need to import catalog just for these ten constants.
const (
	PrecedenceTop = iota
	PrecedencePower
	PrecedenceUnary
	PrecedenceTimes
	PrecedencePlus
	PrecedenceConcat
	PrecedenceEqual
	PrecedenceAnd
	PrecedenceOr
	PrecedenceParenthesis
)

type spaceState int

const (
	afterLineEnd spaceState = iota
	afterKeyword
	afterSpecial
)

type syntaxState int

const (
	stateGlobal syntaxState = iota
	stateFunctionBlock
	stateIfBlock
	stateWhileBlock
	stateElseBlock
	stateIfPredicate
	stateWhilePredicate
	stateFunctionArguments
	stateInsideParenthesis
	stateInsideBrackets
)

func isBlock(s syntaxState) bool {
	return s == stateGlobal || s == stateFunctionBlock || s == stateIfBlock || s == stateWhileBlock || s == stateElseBlock
}

func isPredicate(s syntaxState) bool {
	return s == stateIfPredicate || s == stateWhilePredicate
}

// Writer is a fluent, streaming Lua source writer, tracking indentation,
// block/predicate nesting and current operator precedence so callers never
// have to think about spacing or parenthesisation themselves.
type Writer struct {
	out                strings.Builder
	indentLevel        int
	operatorPrecedence int
	space              spaceState
	stack              []syntaxState
	lowercase          bool

	aliasedVariables map[fieldtype.ID]fieldtype.ID
	overflowFields   map[fieldtype.ID]bool
	maxVariables     int
}

// NewWriter creates a Writer. With lowercase set, Literal lower-cases every
// string literal before quoting it; other output is unaffected.
func NewWriter(lowercase bool, maxVariables int) *Writer {
	return &Writer{
		space:            afterLineEnd,
		lowercase:        lowercase,
		maxVariables:     maxVariables,
		aliasedVariables: map[fieldtype.ID]fieldtype.ID{},
		overflowFields:   map[fieldtype.ID]bool{},
	}
}

// String returns everything written so far.
func (w *Writer) String() string { return w.out.String() }

func (w *Writer) context() syntaxState {
	if len(w.stack) == 0 {
		return stateGlobal
	}
	return w.stack[len(w.stack)-1]
}

func (w *Writer) doIndent() {
	if w.space == afterLineEnd {
		w.out.WriteString(strings.Repeat("\t", w.indentLevel))
	}
}

func (w *Writer) raw(s string) *Writer {
	w.doIndent()
	w.out.WriteString(s)
	w.space = afterSpecial
	return w
}

// Raw is the exported form of raw, for callers outside this package (the
// driver) that need to write an identifier verbatim, e.g. a function
// parameter name where Keyword's automatic leading space would be wrong.
func (w *Writer) Raw(s string) *Writer { return w.raw(s) }

// Keyword writes a Lua reserved word, with the space before/after it that
// keywords (unlike punctuation) always need.
func (w *Writer) Keyword(kw string) *Writer {
	w.doIndent()
	if w.space != afterLineEnd {
		w.out.WriteString(" ")
	}
	w.out.WriteString(kw)
	w.space = afterKeyword
	return w
}

// Endline terminates the current line.
func (w *Writer) Endline() *Writer {
	w.out.WriteString("\n")
	w.space = afterLineEnd
	return w
}

// Comma writes a separator between arguments/elements.
func (w *Writer) Comma() *Writer {
	w.out.WriteString(", ")
	w.space = afterSpecial
	return w
}

// StartIf opens an if-statement's predicate.
func (w *Writer) StartIf() *Writer {
	w.Keyword("if")
	w.stack = append(w.stack, stateIfPredicate)
	return w
}

// StartElseIf closes the previous block and opens an elseif predicate.
func (w *Writer) StartElseIf() *Writer {
	w.endBlockKeepLine()
	w.Keyword("elseif")
	w.stack = append(w.stack, stateIfPredicate)
	return w
}

// StartElse closes the previous block and opens an else block.
func (w *Writer) StartElse() *Writer {
	w.endBlockKeepLine()
	w.Keyword("else")
	w.Endline()
	w.indentLevel++
	w.stack = append(w.stack, stateElseBlock)
	return w
}

// StartWhile opens a while-statement's predicate.
func (w *Writer) StartWhile() *Writer {
	w.Keyword("while")
	w.stack = append(w.stack, stateWhilePredicate)
	return w
}

// Function opens an anonymous function literal's argument list.
func (w *Writer) Function() *Writer {
	w.Keyword("function")
	w.raw("(")
	w.stack = append(w.stack, stateFunctionArguments)
	return w
}

// NamedFunction opens a named function declaration's argument list.
func (w *Writer) NamedFunction(name string) *Writer {
	w.Keyword("function")
	w.raw(" " + name + "(")
	w.stack = append(w.stack, stateFunctionArguments)
	return w
}

// FinishedArguments closes an argument list and opens the function body.
func (w *Writer) FinishedArguments() *Writer {
	w.popState(stateFunctionArguments)
	w.raw(")")
	w.Endline()
	w.indentLevel++
	w.stack = append(w.stack, stateFunctionBlock)
	return w
}

// DoBlock transitions from an if/while predicate into its body. An if
// predicate closes with Lua's "then"; only a while (or for) predicate
// actually uses "do".
func (w *Writer) DoBlock() *Writer {
	wasWhile := w.context() == stateWhilePredicate
	w.EndPredicate()
	if wasWhile {
		w.Keyword("do")
	} else {
		w.Keyword("then")
	}
	w.Endline()
	w.indentLevel++
	if wasWhile {
		w.stack = append(w.stack, stateWhileBlock)
	} else {
		w.stack = append(w.stack, stateIfBlock)
	}
	return w
}

// EndPredicate closes an if/while predicate (the "then"/"do" keyword is
// written by the caller right after).
func (w *Writer) EndPredicate() *Writer {
	if len(w.stack) > 0 && isPredicate(w.context()) {
		w.stack = w.stack[:len(w.stack)-1]
	}
	return w
}

func (w *Writer) endBlockKeepLine() *Writer {
	w.indentLevel--
	w.doIndent()
	if len(w.stack) > 0 {
		w.stack = w.stack[:len(w.stack)-1]
	}
	return w
}

// EndBlock closes the innermost block (function/if/while/else), emitting
// Lua's "end" keyword.
func (w *Writer) EndBlock(endLine bool) *Writer {
	w.indentLevel--
	w.doIndent()
	if len(w.stack) > 0 {
		w.stack = w.stack[:len(w.stack)-1]
	}
	w.out.WriteString("end")
	w.space = afterSpecial
	if endLine {
		w.Endline()
	}
	return w
}

func (w *Writer) popState(expect syntaxState) {
	if len(w.stack) > 0 && w.stack[len(w.stack)-1] == expect {
		w.stack = w.stack[:len(w.stack)-1]
	}
}

// OpenParen writes a literal "(".
func (w *Writer) OpenParen() *Writer {
	w.raw("(")
	w.stack = append(w.stack, stateInsideParenthesis)
	return w
}

// CloseParen writes a literal ")".
func (w *Writer) CloseParen() *Writer {
	w.popState(stateInsideParenthesis)
	w.raw(")")
	return w
}

// OpenBracket writes a literal "[" (table index).
func (w *Writer) OpenBracket() *Writer {
	w.raw("[")
	w.stack = append(w.stack, stateInsideBrackets)
	return w
}

// CloseBracket writes a literal "]".
func (w *Writer) CloseBracket() *Writer {
	w.popState(stateInsideBrackets)
	w.raw("]")
	return w
}

// --- OperatorScopeHelper --------------------------------------------------

// ScopeGuard wraps an expression at newPrecedence in parenthesis if the
// surrounding context needs them, so nested operators never over- or
// under-parenthesize. Release must be called when the expression is fully
// written.
type ScopeGuard struct {
	w             *Writer
	oldPrecedence int
	enabled       bool
}

func needsParenthesis(oldPrecedence, newPrecedence int) bool {
	if oldPrecedence < newPrecedence {
		return true
	}
	if oldPrecedence == newPrecedence && oldPrecedence != PrecedenceAnd && oldPrecedence != PrecedenceOr {
		return true
	}
	return false
}

// OpenScope begins an expression at newPrecedence, opening a parenthesis
// now if required.
func (w *Writer) OpenScope(newPrecedence int, enabled bool) *ScopeGuard {
	g := &ScopeGuard{w: w, oldPrecedence: w.operatorPrecedence, enabled: enabled}
	if enabled {
		if needsParenthesis(g.oldPrecedence, newPrecedence) {
			w.raw("(")
		}
		w.operatorPrecedence = newPrecedence
	}
	return g
}

// Release closes the parenthesis OpenScope opened, if any, and restores the
// caller's precedence.
func (g *ScopeGuard) Release() {
	if g.enabled && needsParenthesis(g.oldPrecedence, g.w.operatorPrecedence) {
		g.w.raw(")")
	}
	g.w.operatorPrecedence = g.oldPrecedence
}

// --- literals ---------------------------------------------------------

// escapeLuaString renders s as a double-quoted Lua string literal. Bytes
// outside the printable ASCII range are rendered as \xHH so a field value
// containing arbitrary binary data can never break out of the string
// literal or smuggle a byte the Lua lexer would misread.
func escapeLuaString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\x%02X`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Literal writes literalText (already formatted, e.g. by a prior
// strconv.FormatFloat) typed as t: strings get quoted and escaped (and
// lower-cased first when the Writer was created with lowercase),
// everything else is written verbatim.
func (w *Writer) Literal(literalText string, t fieldtype.Type) *Writer {
	if t == fieldtype.String {
		if w.lowercase {
			literalText = strings.ToLower(literalText)
		}
		return w.raw(escapeLuaString(literalText))
	}
	return w.raw(literalText)
}

// LiteralInt writes an integral numeric literal.
func (w *Writer) LiteralInt(v int) *Writer {
	return w.raw(strconv.Itoa(v))
}

// LiteralFloat writes a float64 literal at full round-trip precision.
func (w *Writer) LiteralFloat(v float64) *Writer {
	return w.raw(strconv.FormatFloat(v, 'g', 17, 64))
}

// LiteralString writes a plain double-quoted Lua string.
func (w *Writer) LiteralString(s string) *Writer {
	return w.raw(escapeLuaString(s))
}

// --- variable naming ----------------------------------------------------

// VariableName returns the Lua identifier used for field, honouring any
// alias or local-slot-overflow table assignment the optimiser recorded.
func (w *Writer) VariableName(field fieldtype.ID, declaredName string) string {
	if alias, ok := w.aliasedVariables[field]; ok {
		field = alias
	}
	if w.overflowFields[field] {
		return fmt.Sprintf("overflow[%d]", field)
	}
	return declaredName
}

// SetAliasedVariables records the optimiser's alias map (original variable
// ID -> canonical ID from the alias pass), consulted by VariableName.
func (w *Writer) SetAliasedVariables(aliases map[fieldtype.ID]fieldtype.ID) {
	w.aliasedVariables = aliases
}

// IsOverflowed reports whether field (after alias resolution) was selected
// to live in the shared overflow table rather than as its own Lua local.
func (w *Writer) IsOverflowed(field fieldtype.ID) bool {
	if alias, ok := w.aliasedVariables[field]; ok {
		field = alias
	}
	return w.overflowFields[field]
}

// SetOverflowedVariables records exactly which field IDs the optimiser
// selected (by ascending use-count) to spill into the shared overflow
// table because the target language's local-variable budget was
// exceeded.
func (w *Writer) SetOverflowedVariables(fields map[fieldtype.ID]bool) {
	w.overflowFields = fields
}

// MaxVariables returns the target language's local-variable budget.
func (w *Writer) MaxVariables() int { return w.maxVariables }
