package cli

import "github.com/re-cinq/dagline/internal/model"

// ANSI escape codes for terminal colors
const (
	ansiGreen       = "\033[32m"
	ansiCyan        = "\033[36m"
	ansiYellow      = "\033[33m"
	ansiRed         = "\033[31m"
	ansiDim         = "\033[2m"
	ansiBoldMagenta = "\033[1;35m"
	ansiReset       = "\033[0m"
)

// stateDisplay returns the symbol and color for a given node status.
func stateDisplay(status model.NodeStatus) (symbol, color string) {
	switch status {
	case model.StatusPending:
		return "◯", ansiDim
	case model.StatusReady:
		return "◎", ansiYellow
	case model.StatusScheduled, model.StatusRunning:
		return "⟳", ansiYellow
	case model.StatusSucceeded:
		return "✓", ansiGreen
	case model.StatusFailed:
		return "✗", ansiRed
	case model.StatusBlocked:
		return "⊘", ansiDim
	case model.StatusCanceled:
		return "⊗", ansiDim
	default:
		return "·", ansiReset
	}
}

func planStateColor(status model.PlanStatus) string {
	switch status {
	case model.PlanSucceeded:
		return ansiGreen
	case model.PlanFailed:
		return ansiRed
	case model.PlanPartial:
		return ansiYellow
	case model.PlanRunning:
		return ansiCyan
	case model.PlanPaused:
		return ansiDim
	default:
		return ansiReset
	}
}
