package eventstore

import (
	"errors"
	"fmt"
)

type (
	// EventStoreError is the base error type for eventstore operations,
	// carrying the failing operation name and the underlying cause.
	EventStoreError struct {
		Op  string
		Err error
	}

	// ValidationError reports malformed input to Push/PushMany/Query.
	ValidationError struct {
		EventStoreError
		Field string
		Value string
	}

	// ConcurrencyError reports an optimistic-lock clash: the caller's
	// expected aggregate version did not match the current one.
	ConcurrencyError struct {
		EventStoreError
		Expected int64
		Actual   int64
	}

	// ResourceError reports database/cache unavailability.
	ResourceError struct {
		EventStoreError
		Resource string
	}

	// NotFoundError reports a missing aggregate or event.
	NotFoundError struct {
		EventStoreError
		Resource string
	}
)

func (e *EventStoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eventstore.%s: %v", e.Op, e.Err)
	}
	return "eventstore." + e.Op
}

func (e *EventStoreError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsConcurrencyError reports whether err is a ConcurrencyError.
func IsConcurrencyError(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}

// IsResourceError reports whether err is a ResourceError.
func IsResourceError(err error) bool {
	var e *ResourceError
	return errors.As(err, &e)
}

// IsNotFoundError reports whether err is a NotFoundError.
func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// AsConcurrencyError extracts a ConcurrencyError from the error chain.
func AsConcurrencyError(err error) (*ConcurrencyError, bool) {
	var e *ConcurrencyError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func validationErr(op, field, value string, err error) *ValidationError {
	return &ValidationError{
		EventStoreError: EventStoreError{Op: op, Err: err},
		Field:           field,
		Value:           value,
	}
}

func resourceErr(op, resource string, err error) *ResourceError {
	return &ResourceError{
		EventStoreError: EventStoreError{Op: op, Err: err},
		Resource:        resource,
	}
}
