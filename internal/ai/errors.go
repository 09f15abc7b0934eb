package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies gateway failures.
type Kind string

const (
	// KindMissingCredentials means the provider cannot be used at all. Callers must not retry.
	KindMissingCredentials Kind = "missing_credentials"
	// KindQuotaExceeded means the account ran out of quota or billing.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindRateLimited means the provider throttled the request.
	KindRateLimited Kind = "rate_limited"
	// KindProvider is a transient or unknown provider failure.
	KindProvider Kind = "provider_error"
	// KindTimeout means the call was aborted by a deadline or cancellation.
	KindTimeout Kind = "timeout"
)

var (
	ErrMissingCredentials = &Error{Kind: KindMissingCredentials}
	ErrQuotaExceeded      = &Error{Kind: KindQuotaExceeded}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrProvider           = &Error{Kind: KindProvider}
	ErrTimeout            = &Error{Kind: KindTimeout}
)

// Error is a classified gateway failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	var prefix string
	if e.Provider != "" {
		prefix = e.Provider + ": "
	}
	if e.Err == nil {
		return prefix + string(e.Kind)
	}
	return fmt.Sprintf("%s%s: %v", prefix, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so the Err* values
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError wraps err with the given kind. A nil err still produces an error.
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the classification of err. Errors that were never classified
// count as provider errors, except context and network timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if IsTimeout(err) {
		return KindTimeout
	}
	return KindProvider
}

// IsTimeout reports whether err comes from a deadline, a cancellation or a
// network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Retryable reports whether a later attempt may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindProvider, KindTimeout:
		return true
	default:
		return false
	}
}
