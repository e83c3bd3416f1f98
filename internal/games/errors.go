package games

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParams      = errors.New("invalid params")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrRetryBoundExceeded = errors.New("retry bound exceeded")
)

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

func invalidTransition(phase Phase, action string) error {
	return fmt.Errorf("%w: %s during %s", ErrInvalidTransition, action, phase)
}
