package upload

import "errors"

var (
	// ErrMeltdown reports that the circuit breaker tripped.
	ErrMeltdown = errors.New("storage meltdown")
	// ErrLocalFile reports a source file that is missing or unreadable.
	ErrLocalFile = errors.New("local file unavailable")
	// ErrLedger reports an object that was stored but whose ledger write failed.
	ErrLedger = errors.New("ledger write failed")
)
