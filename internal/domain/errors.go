package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIndexNotFound signals a missing cached index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrEmptyDocument signals a document with no extractable text.
	ErrEmptyDocument = errors.New("document text is empty")
	// ErrEmptyEmbeddings signals an attempt to build an index from nothing.
	ErrEmptyEmbeddings = errors.New("no embeddings to index")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidChunking signals an unusable chunking configuration.
	ErrInvalidChunking = errors.New("invalid chunking config")
	// ErrNoFields signals an extraction request without any fields.
	ErrNoFields = errors.New("no fields to extract")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted provider quota.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrProviderUnavailable signals a transient provider failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderError signals a non-retryable provider failure.
	ErrProviderError = errors.New("provider error")
	// ErrUnparsableResponse signals a model response that is not the asked-for JSON.
	ErrUnparsableResponse = errors.New("unparsable model response")
	// ErrNoUsableAlgorithm signals that no chunking algorithm produced a usable index.
	ErrNoUsableAlgorithm = errors.New("no chunking algorithm produced a usable index")
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind string

const (
	// KindRateLimited: the provider throttled the request; retry after a pause.
	KindRateLimited ErrorKind = "rate_limited"
	// KindQuotaExhausted: a billing or daily quota is spent; retrying soon won't help.
	KindQuotaExhausted ErrorKind = "quota_exhausted"
	// KindTransient: network or 5xx class failure; retry with backoff.
	KindTransient ErrorKind = "transient"
	// KindFatal: bad request, auth failure, anything a retry cannot fix.
	KindFatal ErrorKind = "fatal"
)

// ProviderError is a classified provider failure. Adapters translate wire
// errors into this type; retry logic switches on Kind and RetryAfter only,
// never on error text.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	// RetryAfter is the provider-suggested pause before retrying.
	// Zero means the provider gave no hint.
	RetryAfter time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// Unwrap maps the kind to its sentinel so errors.Is keeps working at call sites.
func (e *ProviderError) Unwrap() error {
	switch e.Kind {
	case KindRateLimited:
		return ErrRateLimited
	case KindQuotaExhausted:
		return ErrQuotaExceeded
	case KindTransient:
		return ErrProviderUnavailable
	default:
		return ErrProviderError
	}
}

// Throttled reports whether the failure is a rate limit or quota condition.
func (e *ProviderError) Throttled() bool {
	return e.Kind == KindRateLimited || e.Kind == KindQuotaExhausted
}

// RetryHint returns the provider-suggested pause, if any.
func (e *ProviderError) RetryHint() (time.Duration, bool) {
	return e.RetryAfter, e.RetryAfter > 0
}

// NewProviderError creates a classified provider failure.
func NewProviderError(kind ErrorKind, statusCode int, message string) *ProviderError {
	return &ProviderError{Kind: kind, StatusCode: statusCode, Message: message}
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
