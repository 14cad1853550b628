package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrCooldownActive is returned when a toggle is rejected because a previous
// switch executed within the cooldown period.
var ErrCooldownActive = errors.New("switch cooldown active")

// CooldownActiveError reports how long the cooldown has left to run.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("switch cooldown active, %s remaining", e.Remaining.Round(time.Second))
}

// Is reports whether target is ErrCooldownActive.
func (e *CooldownActiveError) Is(target error) bool {
	return target == ErrCooldownActive
}
