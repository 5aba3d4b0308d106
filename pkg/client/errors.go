package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrMalformedResponse is returned when a response body cannot be
	// decoded or lacks the expected data field. Never retried.
	ErrMalformedResponse = errors.New("malformed response")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents non-rate-limit 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses, plus the archive's
	// spurious 422s which clear on retry.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents undecodable or structurally invalid
	// response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// ArchiveError is a typed error for a failed archive request.
type ArchiveError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("archive %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// ClassOf extracts the error class from an error chain. Unclassified errors
// report ErrorClassNetwork so transport-level surprises stay retryable.
func ClassOf(err error) ErrorClass {
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae.Class
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorClassDecode
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its class.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	case ErrorClassClient, ErrorClassDecode:
		// 4xx responses mean the request itself is wrong, and malformed
		// bodies will not fix themselves; retrying only burns quota.
		return false
	default:
		return false
	}
}
