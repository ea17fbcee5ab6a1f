package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport marks failures that happened before any response arrived
// (DNS, refused connections, timeouts).
var ErrTransport = errors.New("backend unreachable")

// ErrUnknownAction is returned for an action name the backend does not serve.
var ErrUnknownAction = errors.New("unknown action")

// ApiError is returned for any non-2xx response. Error returns the server's
// response text verbatim.
type ApiError struct {
	StatusCode int
	Body       string
}

func (e *ApiError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Body
}

// AuthError is returned when the backend rejects a login attempt.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return e.Message
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// *ApiError or *AuthError.
func StatusCode(err error) int {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}
