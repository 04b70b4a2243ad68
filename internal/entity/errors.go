package entity

import (
	"errors"
	"fmt"
)

// Code identifies an error category. Every failure a caller can observe
// carries exactly one code.
type Code string

const (
	// CodeNotFound indicates an unknown ID.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnauthorized indicates the caller fails the entity's policy, or
	// is anonymous.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeCapacityExceeded indicates an owner, item, grantee or rate ceiling.
	CodeCapacityExceeded Code = "CAPACITY_EXCEEDED"

	// CodePayloadTooLarge indicates a payload above the size ceiling.
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"

	// CodeAllocatorExhausted indicates a counter would overflow. Fatal.
	CodeAllocatorExhausted Code = "ALLOCATOR_EXHAUSTED"

	// CodeExternalServiceFailure indicates the key derivation exchange failed.
	CodeExternalServiceFailure Code = "EXTERNAL_SERVICE_FAILURE"

	// CodeInvalidState indicates a forbidden job transition or an index
	// entry pointing at a missing entity. The latter is fatal.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeInvalidArgument indicates malformed input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is the error type returned by every caller-facing operation.
type Error struct {
	Code    Code
	Message string

	// Kind and Ref identify the entity involved, when there is one.
	Kind Kind
	Ref  string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Kind != "" && e.Ref != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Kind, e.Ref)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error is unrecoverable for the call: allocator
// exhaustion or an internal-consistency violation. Callers must not retry.
func (e *Error) Fatal() bool {
	if e.Code == CodeAllocatorExhausted {
		return true
	}
	return e.Code == CodeInvalidState && e.Err != nil && errors.Is(e.Err, ErrDanglingIndex)
}

// ErrDanglingIndex marks an index entry that resolves to no entity.
var ErrDanglingIndex = errors.New("index entry has no entity")

// CodeOf returns the code carried by err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound returns true if err carries CodeNotFound.
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }

// IsUnauthorized returns true if err carries CodeUnauthorized.
func IsUnauthorized(err error) bool { return Is(err, CodeUnauthorized) }

// IsCapacityExceeded returns true if err carries CodeCapacityExceeded.
func IsCapacityExceeded(err error) bool { return Is(err, CodeCapacityExceeded) }

// IsFatal returns true if err is an *Error whose Fatal method reports true.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Fatal()
}

// NotFound creates a CodeNotFound error.
func NotFound(kind Kind, ref string) *Error {
	return &Error{Code: CodeNotFound, Message: "no such entity", Kind: kind, Ref: ref}
}

// Unauthorized creates a CodeUnauthorized error.
func Unauthorized(kind Kind, ref, message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message, Kind: kind, Ref: ref}
}

// CapacityExceeded creates a CodeCapacityExceeded error.
func CapacityExceeded(message string) *Error {
	return &Error{Code: CodeCapacityExceeded, Message: message}
}

// PayloadTooLarge creates a CodePayloadTooLarge error.
func PayloadTooLarge(size, limit int) *Error {
	return &Error{
		Code:    CodePayloadTooLarge,
		Message: fmt.Sprintf("payload has %d characters, limit is %d", size, limit),
	}
}

// AllocatorExhausted creates a CodeAllocatorExhausted error.
func AllocatorExhausted(kind Kind) *Error {
	return &Error{Code: CodeAllocatorExhausted, Message: "id counter reached the maximum", Kind: kind}
}

// ExternalServiceFailure wraps a key derivation failure.
func ExternalServiceFailure(err error) *Error {
	return &Error{Code: CodeExternalServiceFailure, Message: "key derivation service call failed", Err: err}
}

// InvalidState creates a CodeInvalidState error for a forbidden transition.
func InvalidState(kind Kind, ref, message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message, Kind: kind, Ref: ref}
}

// DanglingIndex creates the fatal CodeInvalidState error for an index entry
// that resolves to no entity.
func DanglingIndex(kind Kind, ref string) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: "index is inconsistent with entity store",
		Kind:    kind,
		Ref:     ref,
		Err:     ErrDanglingIndex,
	}
}

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}
