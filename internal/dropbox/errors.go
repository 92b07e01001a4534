// Package dropbox provides an HTTP client for the Dropbox REST API: credential
// storage and request signing, the authorization-code exchange, and resumable
// chunked uploads.
package dropbox

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the error taxonomy. Use errors.Is to check.
var (
	ErrMalformedOAuthResponse    = errors.New("dropbox: malformed oauth response")
	ErrHTTPRequestFailed         = errors.New("dropbox: http request failed")
	ErrUnsupportedSecurityMethod = errors.New("dropbox: unsupported security method")
	ErrIO                        = errors.New("dropbox: i/o error")
	ErrMalformedResponse         = errors.New("dropbox: malformed response")
	ErrTransport                 = errors.New("dropbox: transport error")

	ErrNotLoggedIn         = errors.New("dropbox: not logged in")
	ErrNoAuthorizationCode = errors.New("dropbox: no authorization code captured")
	ErrFlowComplete        = errors.New("dropbox: authorization flow already complete")
	ErrSessionStarted      = errors.New("dropbox: upload session already started")
	ErrNothingToCommit     = errors.New("dropbox: nothing to commit")
)

// Status-class sentinels carried by APIError alongside ErrHTTPRequestFailed.
var (
	ErrBadRequest   = errors.New("dropbox: bad request")
	ErrUnauthorized = errors.New("dropbox: unauthorized")
	ErrForbidden    = errors.New("dropbox: forbidden")
	ErrNotFound     = errors.New("dropbox: not found")
	ErrConflict     = errors.New("dropbox: conflict")
	ErrThrottled    = errors.New("dropbox: throttled")
	ErrServerError  = errors.New("dropbox: server error")
)

// APIError is returned for every response whose status is not a success for
// the request that produced it. It matches ErrHTTPRequestFailed and, when the
// status has one, a status-class sentinel such as ErrNotFound.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // status-class sentinel, may be nil
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("dropbox: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("dropbox: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHTTPRequestFailed}
	}

	return []error{ErrHTTPRequestFailed, e.Err}
}

// StatusCode extracts the HTTP status from an error chain. Returns 0 when the
// error did not come from an HTTP response.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// classifyStatus maps an HTTP status code to a status-class sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
