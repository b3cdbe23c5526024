package service

import (
	"errors"
	"fmt"
)

// ValidationError rejects a command before any platform is touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrConcurrencyConflict aborts a whole command with no state change; the
// caller must re-read and retry. It is the only error with that property:
// platform failures never abort the command, they land in the aggregate result.
var ErrConcurrencyConflict = errors.New("concurrent modification detected: re-read and retry the command")
