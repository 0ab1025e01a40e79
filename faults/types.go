package faults

import "errors"

type ErrorCategory string

const (
	// ConfigurationError covers broken repo/locale mappings, unsupported
	// file formats and other operator-visible misconfiguration. Fatal to
	// the operation that hit it, never retried automatically.
	ConfigurationError ErrorCategory = "ConfigurationError"
	// TransientError covers VCS and network failures scoped to a single
	// repo or locale; the next sync cycle retries them.
	TransientError ErrorCategory = "TransientError"
	// IntegrityError marks programmer/caller mistakes such as applying a
	// changeset twice. Always fatal.
	IntegrityError ErrorCategory = "IntegrityError"
	// NotAllowedError marks domain-rule violations rejected before any
	// mutation, e.g. an empty translation in a format that forbids one.
	NotAllowedError ErrorCategory = "NotAllowedError"
	NotFoundError   ErrorCategory = "NotFoundError"
	InternalError   ErrorCategory = "InternalError"
)

type TypedError struct {
	Category ErrorCategory
	Message  string
	Cause    error
}

func (e *TypedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" && e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Category)
}

func (e *TypedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewTypedError(category ErrorCategory, message string, cause error) *TypedError {
	return &TypedError{
		Category: category,
		Message:  message,
		Cause:    cause,
	}
}

func Configuration(message string) *TypedError {
	return NewTypedError(ConfigurationError, message, nil)
}

func Transient(message string, cause error) *TypedError {
	return NewTypedError(TransientError, message, cause)
}

func Integrity(message string) *TypedError {
	return NewTypedError(IntegrityError, message, nil)
}

func NotAllowed(message string) *TypedError {
	return NewTypedError(NotAllowedError, message, nil)
}

func NotFound(message string) *TypedError {
	return NewTypedError(NotFoundError, message, nil)
}

func IsCategory(err error, category ErrorCategory) bool {
	if err == nil {
		return false
	}

	var typedErr *TypedError
	if !errors.As(err, &typedErr) {
		return false
	}
	return typedErr.Category == category
}
