package catalog

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of catalog request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403, usually an expired or rejected session.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrMissingAppID is returned by New when no application id is configured.
var ErrMissingAppID = errors.New("app id is required")

// HTTPError is a non-success response from the catalog service.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Class      ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalog %s: %s error (status %d): %s", e.Endpoint, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog %s: %s error (status %d)", e.Endpoint, e.Class, e.StatusCode)
}

// Classify maps a status code to an error class. Success codes map to "".
func Classify(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorClassAuth
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// StatusCode extracts the HTTP status from err, 0 if err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
