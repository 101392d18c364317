// Package cerr implements the compiler's error taxonomy and reporting
// surfaces: the six error kinds malformed-input, unknown-reference,
// unsupported-feature, mismatched-type, resource-budget-exceeded and
// internal-invariant.
package cerr

import "fmt"

// Kind is the closed set of error categories the compiler can raise.
type Kind int

const (
	MalformedInput Kind = iota
	UnknownReference
	UnsupportedFeature
	MismatchedType
	ResourceBudgetExceeded
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "malformed-input"
	case UnknownReference:
		return "unknown-reference"
	case UnsupportedFeature:
		return "unsupported-feature"
	case MismatchedType:
		return "mismatched-type"
	case ResourceBudgetExceeded:
		return "resource-budget-exceeded"
	case InternalInvariant:
		return "internal-invariant"
	default:
		return "unknown"
	}
}

// codePrefix maps each Kind to its error-code prefix, following the
// teacher's per-phase code-range convention (compiler/errors/codes.go) but
// re-ranged over this compiler's own phases.
var codePrefix = map[Kind]string{
	MalformedInput:         "P0",
	UnknownReference:       "P1",
	UnsupportedFeature:     "P2",
	MismatchedType:         "P3",
	ResourceBudgetExceeded: "P4",
	InternalInvariant:      "P9",
}

// Error is the compiler's single error type. It implements the standard
// `error` interface and renders the one-line "<message> (<arg>) at line N"
// form.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Arg     string
	Line    int
}

// New constructs an Error with the given kind and code; code is stored as
// passed, not derived from kind.
func New(kind Kind, code, message string, line int) Error {
	return Error{Kind: kind, Code: code, Message: message, Line: line}
}

// WithArg returns a copy of e with Arg set, for the "<message> (<arg>)"
// form.
func (e Error) WithArg(arg string) Error {
	e.Arg = arg
	return e
}

func (e Error) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s at line %d", e.Message, e.Line)
	}
	return fmt.Sprintf("%s (%s) at line %d", e.Message, e.Arg, e.Line)
}

// Prefix returns the expected two-character code prefix for e.Kind, useful
// for validating that a raised Error's Code matches its Kind.
func (k Kind) Prefix() string { return codePrefix[k] }

// Hook is the pluggable error sink every phase reports through, matching
// the original's optional custom error hook: by default the Driver wires
// this to a sink that collects Errors, but it can just as well feed a
// terminal renderer, the LSP diagnostics publisher, or an HTTP response.
type Hook interface {
	Report(err Error)
}

// Collector is the simplest Hook: it just appends.
type Collector struct {
	Errors []Error
}

// Report implements Hook.
func (c *Collector) Report(err Error) {
	c.Errors = append(c.Errors, err)
}

// HasErrors reports whether any internal-invariant, malformed-input,
// unknown-reference, mismatched-type, or resource-budget error was
// collected (as opposed to merely informational diagnostics — today every
// cerr.Error is treated as an error, so this is equivalent to len > 0).
func (c *Collector) HasErrors() bool { return len(c.Errors) > 0 }
