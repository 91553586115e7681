package upload

import "ferry/internal/metrics"

// Outcome is the terminal state of one Process call.
type Outcome int

const (
	OutcomeSoftFailed Outcome = iota
	OutcomeSkippedExisting
	OutcomeSucceeded
	OutcomeMeltdown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkippedExisting:
		return metrics.OutcomeSkippedExisting
	case OutcomeSucceeded:
		return metrics.OutcomeSucceeded
	case OutcomeMeltdown:
		return metrics.OutcomeMeltdown
	default:
		return metrics.OutcomeSoftFailed
	}
}
