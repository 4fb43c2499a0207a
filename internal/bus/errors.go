package bus

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes admission errors.
type ErrorCode string

const (
	// CodeInvalidActivity indicates a structurally malformed submission:
	// not a record, or missing actor or type.
	CodeInvalidActivity ErrorCode = "INVALID_ACTIVITY"

	// CodeActivityID indicates identity could not be synthesized (no
	// namespace configured) or a supplied id violates actor scoping.
	CodeActivityID ErrorCode = "ACTIVITY_ID"
)

// Error is an admission-time failure surfaced synchronously to the
// caller of Submit. Dispatch-time failures are never Errors; they become
// result entries or tombstones.
type Error struct {
	Code    ErrorCode
	Message string

	// ActivityID identifies the offending activity when it has one.
	ActivityID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ActivityID != "" {
		return fmt.Sprintf("%s: %s (activity=%s)", e.Code, e.Message, e.ActivityID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidActivity reports whether err is any admission failure. An id
// scoping failure counts: a badly scoped id makes the activity invalid.
// Uses errors.As to handle wrapped errors.
func IsInvalidActivity(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeInvalidActivity || be.Code == CodeActivityID
	}
	return false
}

// IsActivityIDError reports whether err is specifically an id synthesis
// or scoping failure.
func IsActivityIDError(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeActivityID
	}
	return false
}

func newInvalidActivity(message string) *Error {
	return &Error{Code: CodeInvalidActivity, Message: message}
}

func newActivityIDError(message, activityID string) *Error {
	return &Error{Code: CodeActivityID, Message: message, ActivityID: activityID}
}
