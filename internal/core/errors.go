package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream fetch failures for retry policy.
type ErrorKind string

const (
	// ErrorKindTransient covers network failures and 5xx responses; these are
	// retried with exponential backoff.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers not-found and auth failures; these are
	// recorded but never retried automatically.
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindRateLimited covers upstream 429 responses. Distinct from local
	// admission denial, which never reaches the upstream at all.
	ErrorKindRateLimited ErrorKind = "rate_limited"
)

// UpstreamError wraps a failure reported by the upstream mod API.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream error"
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the scheduler may retry the failed fetch
// automatically.
func (e *UpstreamError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind == ErrorKindTransient || e.Kind == ErrorKindRateLimited
}

// IsRetryable reports whether err allows an automatic retry. Unclassified
// errors are treated as transient so a misbehaving upstream does not
// permanently poison a key.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	return true
}
