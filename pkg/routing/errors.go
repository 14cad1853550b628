package routing

import (
	"errors"
	"fmt"
)

// ErrNoActiveCandidates is returned when no active model is available for
// selection. This is a configuration problem, fatal to the request.
var ErrNoActiveCandidates = errors.New("no active candidate models")

// ErrRequestBlocked is returned when a blocking rule matched the request.
var ErrRequestBlocked = errors.New("request blocked by routing rule")

// BlockedError carries the rule that refused the request.
type BlockedError struct {
	RuleID   string
	RuleName string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked by rule %s (%s)", e.RuleID, e.RuleName)
}

// Is reports whether target is ErrRequestBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrRequestBlocked
}

// BackendError wraps a provider call failure. Retriable errors are retried
// with backoff up to the configured budget; non-retriable ones go straight
// to failover.
type BackendError struct {
	Provider  string
	Retriable bool
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every retry and failover alternate has
// been spent without a successful call.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all backends exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap returns the final attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
