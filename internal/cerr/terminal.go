package cerr

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
)

var (
	kindColor = map[Kind]*color.Color{
		MalformedInput:         color.New(color.FgRed, color.Bold),
		UnknownReference:       color.New(color.FgYellow, color.Bold),
		UnsupportedFeature:     color.New(color.FgMagenta, color.Bold),
		MismatchedType:         color.New(color.FgRed, color.Bold),
		ResourceBudgetExceeded: color.New(color.FgRed, color.Bold),
		InternalInvariant:      color.New(color.FgRed, color.Bold, color.BgBlack),
	}
	locColor = color.New(color.FgCyan)
)

// FormatForTerminal renders e the way a human reading a failed compile
// wants to see it: kind, one-line message, and source location, coloured
// when the caller is attached to a terminal.
func (e Error) FormatForTerminal() string {
	kc := kindColor[e.Kind]
	return fmt.Sprintf("%s: %s %s\n",
		kc.Sprint(e.Kind.String()),
		e.Error(),
		locColor.Sprintf("[%s]", e.Code))
}

// jsonError is the wire shape for Error — unexported fields of Error stay
// unexported, this is a deliberate, documented projection.
type jsonError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Arg     string `json:"arg,omitempty"`
	Line    int    `json:"line"`
}

// MarshalJSON implements json.Marshaler.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonError{
		Kind:    e.Kind.String(),
		Code:    e.Code,
		Message: e.Message,
		Arg:     e.Arg,
		Line:    e.Line,
	})
}

// FormatErrorsAsJSON renders a batch of errors as an indented JSON object
// holding a status string and the list of errors.
func FormatErrorsAsJSON(errs []Error) (string, error) {
	data, err := json.MarshalIndent(struct {
		Status string  `json:"status"`
		Errors []Error `json:"errors"`
		Count  int     `json:"count"`
	}{
		Status: statusFor(errs),
		Errors: errs,
		Count:  len(errs),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func statusFor(errs []Error) string {
	if len(errs) == 0 {
		return "success"
	}
	return "error"
}
