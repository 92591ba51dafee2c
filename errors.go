package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrStreamConsumed is yielded when an upstream Stream is ranged over a second time.
var ErrStreamConsumed = errors.New("upstream: stream already consumed")

// ErrorCategory classifies upstream errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the upstream may succeed if the call is repeated.
	// Examples: rate limits, gateway timeouts, connection resets.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the call will not succeed without operator action.
	// Examples: invalid API key, app disabled, unknown endpoint.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput indicates the request itself was rejected by the upstream.
	// Examples: empty query, unknown conversation id, invalid inputs.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is an error that carries handling hints.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool
	StatusCode() int
	RetryAfter() time.Duration
}

// Error is an upstream failure with its category and HTTP metadata.
type Error struct {
	Msg          string
	Cat          ErrorCategory
	Code         int           // HTTP status code, 0 if not applicable
	UpstreamCode string        // provider error code such as "invalid_param"
	RetryDelay   time.Duration // from Retry-After, 0 if absent
	Cause        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.UpstreamCode != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.UpstreamCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Category() ErrorCategory { return e.Cat }

func (e *Error) Retryable() bool { return e.Cat == ErrorTransient }

func (e *Error) StatusCode() int { return e.Code }

func (e *Error) RetryAfter() time.Duration { return e.RetryDelay }

// NewTransientError creates a transient error that can be retried.
func NewTransientError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, Cause: cause}
}

// NewPermanentError creates a permanent error that should not be retried.
func NewPermanentError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, Code: statusCode, Cause: cause}
}

// NewUserInputError creates an error for a request the upstream rejected.
func NewUserInputError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, Code: statusCode, Cause: cause}
}

// NewStatusError builds a categorized error for a non-2xx upstream response.
// The category is derived from the status code and Retry-After is honored.
func NewStatusError(msg string, statusCode int, header http.Header, cause error) *Error {
	return &Error{
		Msg:        msg,
		Cat:        CategorizeStatus(statusCode),
		Code:       statusCode,
		RetryDelay: ParseRetryAfter(header),
		Cause:      cause,
	}
}

// CategorizeStatus maps an HTTP status code to an error category.
func CategorizeStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTransient
	case code >= 500 && code < 600:
		return ErrorTransient
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorPermanent
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		return ErrorUserInput
	default:
		return ErrorPermanent
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
// Returns 0 when the header is absent or unparseable.
func ParseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// IsTransient returns true if err or any wrapped error is categorized as transient.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorTransient
	}
	return false
}

// IsPermanent returns true if err or any wrapped error is categorized as permanent.
func IsPermanent(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorPermanent
	}
	return false
}

// IsUserInput returns true if err or any wrapped error is a rejected request.
func IsUserInput(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorUserInput
	}
	return false
}

// StatusCodeOf returns the HTTP status code from a categorized error, or 0.
func StatusCodeOf(err error) int {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the retry delay from a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}
