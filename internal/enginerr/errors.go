// Package enginerr defines the error taxonomy shared by every engine
// component. Errors are plain values; transports map kinds to status codes.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and degradation decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimited
	KindUpstream
	KindTimeout
	KindDecrypt
	KindKeyUnavailable
)

// String returns the string representation of a kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindUpstream:
		return "UPSTREAM"
	case KindTimeout:
		return "UPSTREAM_TIMEOUT"
	case KindDecrypt:
		return "DECRYPT"
	case KindKeyUnavailable:
		return "KEY_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// FieldError describes a single malformed input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the typed result every component returns on failure.
type Error struct {
	Kind    Kind
	Code    string // machine-readable code, e.g. "INVALID_ID", "NO_SESSION"
	Message string
	Fields  []FieldError
	// RetryAfterSeconds is set for rate-limited errors.
	RetryAfterSeconds int
	// Degraded marks soft failures where a fallback path was taken.
	Degraded bool

	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.wrapped = err
	return e
}

// WithFields attaches per-field validation failures.
func (e *Error) WithFields(fields ...FieldError) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input. Never retryable.
func Validation(code, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, format, args...)
}

// NotFound reports a missing session, consent or record.
func NotFound(code, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, format, args...)
}

// Conflict reports an illegal lifecycle transition or token mismatch.
func Conflict(code, format string, args ...interface{}) *Error {
	return newError(KindConflict, code, format, args...)
}

// RateLimited reports a locked identity with the remaining lockout window.
func RateLimited(code string, retryAfterSeconds int, format string, args ...interface{}) *Error {
	e := newError(KindRateLimited, code, format, args...)
	e.RetryAfterSeconds = retryAfterSeconds
	return e
}

// Upstream reports a failed outbound call.
func Upstream(code, format string, args ...interface{}) *Error {
	return newError(KindUpstream, code, format, args...)
}

// Timeout reports an outbound call that hit its deadline.
func Timeout(code, format string, args ...interface{}) *Error {
	return newError(KindTimeout, code, format, args...)
}

// Decrypt reports a failed AES-GCM open. Never falls back to plaintext.
func Decrypt(format string, args ...interface{}) *Error {
	return newError(KindDecrypt, "DECRYPT_FAILED", format, args...)
}

// KeyUnavailable reports unreadable key material.
func KeyUnavailable(format string, args ...interface{}) *Error {
	return newError(KindKeyUnavailable, "KEY_UNAVAILABLE", format, args...)
}

// Internal reports anything else; details belong in logs, not responses.
func Internal(format string, args ...interface{}) *Error {
	return newError(KindInternal, "INTERNAL", format, args...)
}

// KindOf extracts the kind from any error chain. Unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine-readable code from any error chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// AsEngineError returns the typed error if present in the chain.
func AsEngineError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
