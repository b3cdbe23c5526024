package marketplace

import (
	"errors"
	"fmt"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

// ErrorClass is the machine-readable classification of a failed adapter call.
// It drives the retry policy and is surfaced verbatim to the façade caller.
type ErrorClass string

const (
	// ClassAuthExpired triggers a one-shot re-authentication retry.
	ClassAuthExpired ErrorClass = "AUTH_EXPIRED"
	// ClassValidationRejected means the platform refused the payload; never retried.
	ClassValidationRejected ErrorClass = "VALIDATION_REJECTED"
	// ClassTransient covers timeouts and 5xx-equivalents; retried with backoff.
	ClassTransient ErrorClass = "TRANSIENT"
	// ClassUnknown is anything unclassifiable; never retried.
	ClassUnknown ErrorClass = "UNKNOWN"
)

// Error is the normalized failure of one adapter call.
type Error struct {
	Platform  entity.Platform
	Operation string
	Class     ErrorClass
	Detail    string
	Cause     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s failed (%s): %s", e.Platform, e.Operation, e.Class, e.Detail)
	}
	return fmt.Sprintf("%s %s failed (%s)", e.Platform, e.Operation, e.Class)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(platform entity.Platform, operation string, class ErrorClass, detail string, cause error) *Error {
	return &Error{
		Platform:  platform,
		Operation: operation,
		Class:     class,
		Detail:    detail,
		Cause:     cause,
	}
}

// ClassOf extracts the error class, defaulting to UNKNOWN for errors that did
// not come through the adapter boundary.
func ClassOf(err error) ErrorClass {
	var me *Error
	if errors.As(err, &me) {
		return me.Class
	}
	return ClassUnknown
}
