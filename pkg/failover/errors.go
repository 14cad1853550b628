package failover

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when a provider's circuit rejects a request.
var ErrCircuitOpen = errors.New("circuit open")

// ErrNoAlternatives is returned when failover has nothing to switch to.
var ErrNoAlternatives = errors.New("no alternative providers")

// CircuitOpenError carries the provider whose circuit rejected a request.
type CircuitOpenError struct {
	Provider string
	Reason   string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
