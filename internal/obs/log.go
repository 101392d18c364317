// Package obs wires structured logging through one compilation, the
// compile service, the watch dashboard, and the LSP server.
package obs

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger. Debug builds get the
// human-readable console encoder; everything else gets JSON so log
// aggregators can parse it.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// CompilationID mints a correlation id threaded through one driver.Compile
// call's log lines, HTTP response, and LSP diagnostics batch.
func CompilationID() string {
	return uuid.NewString()
}

// WithCompilation returns a child logger tagged with id, so every line a
// single compilation emits can be grep'd back together.
func WithCompilation(log *zap.Logger, id string) *zap.Logger {
	return log.With(zap.String("compilation_id", id))
}

// PhaseTimer records how long one pipeline phase (build, analyse, optimise,
// emit) took, logged at debug level — useful when a model doesn't fit the
// MaxLocals budget and its optimiser pass count needs explaining.
func PhaseTimer(log *zap.Logger, phase string) func() {
	log.Debug("phase started", zap.String("phase", phase))
	return func() {
		log.Debug("phase finished", zap.String("phase", phase))
	}
}
