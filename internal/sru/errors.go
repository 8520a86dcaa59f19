package sru

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMalformedResponse is returned when a response body is not a readable SRU document.
	ErrMalformedResponse = errors.New("malformed SRU response")
	// ErrResponseTooLarge is returned when a response body exceeds the configured cap.
	ErrResponseTooLarge = errors.New("SRU response too large")
	// ErrMalformedRecord is returned when a single record cannot be parsed.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSurrogateDiagnostic is returned for records the server replaced by a diagnostic.
	ErrSurrogateDiagnostic = errors.New("surrogate diagnostic record")
)

// StatusError is returned for non-200 HTTP responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sru: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Diagnostic URIs with special handling.
const (
	diagGeneralSystemError    = "info:srw/diagnostic/1/1"
	diagTemporarilyUnavail    = "info:srw/diagnostic/1/2"
	diagFirstRecordOutOfRange = "info:srw/diagnostic/1/61"
)

// DiagnosticError is a non-surrogate diagnostic reported in an SRU response.
type DiagnosticError struct {
	URI     string
	Message string
	Details string
}

func (e *DiagnosticError) Error() string {
	msg := "sru diagnostic " + e.URI
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Temporary reports whether the server asked us to try again later.
func (e *DiagnosticError) Temporary() bool {
	return e.URI == diagGeneralSystemError || e.URI == diagTemporarilyUnavail
}

// endOfStream reports whether the diagnostic means the start position is past the last record.
func (e *DiagnosticError) endOfStream() bool {
	return strings.TrimSpace(e.URI) == diagFirstRecordOutOfRange
}

// IsRetryable classifies fetch errors. Transport failures, timeouts, throttling,
// server errors and truncated bodies are retried. Client errors, oversized
// bodies and fatal diagnostics are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrResponseTooLarge) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var diagErr *DiagnosticError
	if errors.As(err, &diagErr) {
		return diagErr.Temporary()
	}

	return true
}
