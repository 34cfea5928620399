// Package errs defines the error-kind taxonomy shared across the catalog,
// worker pool, thumbnail, HLS and indexer packages. Workers serialize errors
// of this shape into their result envelopes; HTTP handlers map Kind to a
// status code.
package errs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and HTTP-status-mapping purposes.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	Unavailable Kind = "unavailable"
	Timeout    Kind = "timeout"
	External   Kind = "external"
	Corruption Kind = "corruption"
	Internal   Kind = "internal"
)

// Error is the taxonomy's concrete type. Code is a short machine-readable
// string (e.g. "SEARCH_UNAVAILABLE") suitable for client logic; Details
// carries optional structured context (never secrets).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Stack   string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, errs.NotFound) style checks via a sentinel kind
// wrapper — see KindOf instead for the common case.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new taxonomy error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind and code to an underlying error, preserving it for
// errors.Unwrap/errors.As.
func Wrap(kind Kind, code string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: cause.Error(), cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(d map[string]any) *Error {
	cp := *e
	cp.Details = d
	return &cp
}

// KindOf extracts the Kind from err, defaulting to Internal if err is not a
// *Error (or is nil, which returns "").
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether err should be retried automatically per spec.md
// §7: only Unavailable and transient External (5xx/429-shaped) errors retry,
// bounded elsewhere to 3 attempts with exponential backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Unavailable, External:
		return true
	default:
		return false
	}
}

// RetryConfig bounds the backoff schedule Retry uses.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig matches spec §7: bounded to 3 attempts, exponential
// backoff between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Retry runs fn up to config.MaxAttempts times, wrapping each failure as an
// External error tagged with code (a failure that is already an *Error keeps
// its own Kind). It stops early if Retryable reports
// false for the wrapped failure, so a caller that reclassifies some
// failures (e.g. a non-transient validation error surfaced through an
// external command's exit code) doesn't spin through the full backoff
// schedule for something that will never succeed.
func Retry[T any](ctx context.Context, config RetryConfig, code string, fn func() (T, error)) (T, error) {
	var zero T
	backoff := config.InitialBackoff
	var lastErr *Error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		kind := External
		var classified *Error
		if errors.As(err, &classified) {
			kind = classified.Kind
		}
		lastErr = Wrap(kind, code, err)
		if !Retryable(lastErr) || attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return zero, lastErr
}

// HTTPStatus maps a Kind to the status code the (external) HTTP layer should
// use. Kept here so every collaborator agrees on the mapping without
// depending on net/http.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case Unavailable:
		return 503
	case Timeout:
		return 504
	case External, Internal, Corruption:
		return 500
	default:
		return 500
	}
}
