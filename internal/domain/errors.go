package domain

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures of an external dependency (mail transport, scraper feed).
// Items failing with it are recorded as failed and are not retried by the engine.
var ErrTransient = errors.New("transient dependency failure")

// ValidationError reports malformed user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
