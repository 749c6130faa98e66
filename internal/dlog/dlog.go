// Package dlog is the engine's structured logging wrapper around
// zerolog. The CLI keeps the teacher's plain ANSI-colored fmt.Fprintf
// output for humans (see internal/cli/colors.go); this package offers
// structured loggers carrying plan/node/attempt fields. No other package
// in the module imports it: the pump and executor take a plain
// zerolog.Logger, and the watchdog and capacity packages take none.
package dlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing RFC3339-timestamped JSON lines
// to w. Pass os.Stderr for a process-wide default, or a per-plan
// execution.log file (opened by the store) to mirror engine events
// into the same durable log an AttemptRecord's offsets index into.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Default is the process-wide fallback logger, used before a plan (and
// therefore its own log file) is known.
var Default = New(os.Stderr)

// ForPlan returns a child logger with the plan ID attached to every
// subsequent event.
func ForPlan(base zerolog.Logger, planID string) zerolog.Logger {
	return base.With().Str("plan", planID).Logger()
}

// ForNode returns a child logger with plan and node IDs attached.
func ForNode(base zerolog.Logger, planID, nodeID string) zerolog.Logger {
	return base.With().Str("plan", planID).Str("node", nodeID).Logger()
}

// ForAttempt returns a child logger with plan, node, and attempt number
// attached — this is the logger handed to a single Node Executor pass.
func ForAttempt(base zerolog.Logger, planID, nodeID string, attempt int) zerolog.Logger {
	return base.With().Str("plan", planID).Str("node", nodeID).Int("attempt", attempt).Logger()
}
