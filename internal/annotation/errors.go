package annotation

import (
	"errors"
)

// Sentinel errors. Compare with errors.Is.
var (
	ErrInvalidType        = RejectionError{reason: "invalidType"}
	ErrEmptyValue         = RejectionError{reason: "emptyValue"}
	ErrTooSmall           = RejectionError{reason: "tooSmall"}
	ErrDuplicate          = RejectionError{reason: "duplicate"}
	ErrMixedVariant       = RejectionError{reason: "mixedVariant"}
	ErrNoPending          = RejectionError{reason: "noPending"}
	ErrIncompleteTemplate = RejectionError{reason: "incompleteTemplate"}
	ErrPersistence        = RejectionError{reason: "persistence"}
	ErrSaveInProgress     = RejectionError{reason: "saveInProgress"}
)

// RejectionError reports why the model refused an operation.
type RejectionError struct {
	base   error
	reason string
}

// Is checks if the given error and the current RejectionError have the same reason.
func (re RejectionError) Is(target error) bool {
	var err RejectionError
	if !errors.As(target, &err) {
		return false
	}
	return re.reason == err.reason
}

// Error is used to output the error message.
func (re RejectionError) Error() string {
	if re.base == nil {
		return re.reason
	}
	return re.base.Error()
}

// Unwrap exposes the underlying failure, when there is one.
func (re RejectionError) Unwrap() error {
	return re.base
}

// Reason is the machine readable rejection kind.
func (re RejectionError) Reason() string {
	return re.reason
}

func reject(sentinel RejectionError, err error) error {
	return RejectionError{base: err, reason: sentinel.reason}
}
