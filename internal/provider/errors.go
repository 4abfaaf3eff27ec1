package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// Error is a failure returned by a provider call. Transient failures are
// retried by the executor with backoff; terminal failures halt the affected
// subgraph only.
type Error struct {
	Err       error
	Transient bool
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable provider failure.
func NewTransient(err error) *Error {
	return &Error{Err: err, Transient: true}
}

// NewTerminal wraps err as a non-retryable provider failure.
func NewTerminal(err error) *Error {
	return &Error{Err: err, Transient: false}
}

// transientAPICodes are the throttling/availability error codes returned by
// AWS-style APIs that warrant a retry.
var transientAPICodes = map[string]bool{
	"Throttling":                      true,
	"ThrottlingException":             true,
	"TooManyRequestsException":        true,
	"RequestLimitExceeded":            true,
	"LimitExceededException":          true,
	"ServiceUnavailable":              true,
	"ServiceUnavailableError":         true,
	"InternalFailure":                 true,
	"InternalError":                   true,
	"InternalServerError":             true,
	"RequestTimeout":                  true,
	"RequestTimeoutException":         true,
	"ConcurrentModificationException": true,
}

// IsTransient classifies an error as retryable. Explicit classification via
// *Error wins; otherwise smithy API error codes, timeouts and network-level
// failures are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientAPICodes[apiErr.ErrorCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"i/o timeout",
		"tls handshake",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
