package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the trading pipeline. Callers classify with errors.Is.
var (
	// ErrDataUnavailable: market data is stale or unreachable. Skip the token for this cycle.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrSignalParse: the oracle answered with something that does not match the signal schema.
	ErrSignalParse = errors.New("signal parse error")

	// ErrRejected: the gatekeeper refused the intent. Expected control flow, not a failure.
	ErrRejected = errors.New("rejected by gatekeeper")

	// ErrHalted: the daily loss limit was breached. No new intents until the next day boundary.
	ErrHalted = errors.New("trading halted")

	ErrExecutionTimeout = errors.New("execution timeout")
	ErrExecutionFailed  = errors.New("execution failed")

	ErrInvalidTransition = errors.New("invalid trade status transition")
)

// RejectedError carries the gatekeeper reason for a refused intent.
type RejectedError struct {
	Check  RiskCheck
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s", e.Reason)
}

// Unwrap always matches ErrRejected; the halt check also matches ErrHalted.
func (e *RejectedError) Unwrap() []error {
	if e.Check == CheckHalted {
		return []error{ErrHalted, ErrRejected}
	}
	return []error{ErrRejected}
}
