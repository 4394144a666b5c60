// Package obs wires structured logging for components that need more than
// the teacher's human-facing Output can carry -- machine-parseable fields
// per compensating action, phase transition, and external-process
// invocation. It sits alongside Output, not in place of it: Output remains
// the CLI's narration layer, obs is the event stream.
package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	wt "github.com/kdunlap/wt"
)

// New builds a zerolog.Logger. When pretty is true (an interactive
// terminal) it uses zerolog's console writer; otherwise it emits one JSON
// object per line, suited to piping into a log aggregator.
func New(w io.Writer, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// TransactionWarn adapts a zerolog.Logger into a wt.WarnFunc, so the File
// Operation Transaction's compensation sink logs the fields the Transaction
// supplies (kind, path) as structured fields instead of writing directly to
// the console.
func TransactionWarn(logger zerolog.Logger) wt.WarnFunc {
	return func(message string, fields map[string]string) {
		event := logger.Warn()
		for k, v := range fields {
			event = event.Str(k, v)
		}
		event.Msg(message)
	}
}

// Phase logs a Setup Orchestrator phase transition.
func Phase(logger zerolog.Logger, phase, destination string) {
	logger.Info().Str("phase", phase).Str("path", destination).Msg("setup phase")
}

// ProcessInvocation logs one external-process invocation (rsync, git) at
// debug level, keyed by the command name and argument count rather than
// the full argument list, since arguments may include repository-local
// paths a shared log sink shouldn't need to retain verbatim.
func ProcessInvocation(logger zerolog.Logger, program string, argCount int, durationMs int64, err error) {
	event := logger.Debug().Str("program", program).Int("arg_count", argCount).Int64("duration_ms", durationMs)
	if err != nil {
		event.Err(err).Msg("process invocation failed")
		return
	}
	event.Msg("process invocation completed")
}
