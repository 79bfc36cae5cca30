package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"syscall"
)

// TransientError represents an error that can be retried.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // human-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as retryable.
func NewTransientError(err error, message string) error {
	return &TransientError{Err: err, Message: message}
}

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks err as non-retryable.
func NewPermanentError(err error, message string) error {
	return &PermanentError{Err: err, Message: message}
}

var statusCodeRe = regexp.MustCompile(`\b([45]\d{2})\b`)

// IsTransient reports whether an error is retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Deadline expiry at the call site is reported, not retried blindly:
	// the caller's context is already gone.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if isNetworkError(err) {
		return true
	}
	if code := extractHTTPStatusCode(err); code > 0 {
		return isTransientHTTPStatus(code)
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func extractHTTPStatusCode(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}
	m := statusCodeRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func isTransientHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
