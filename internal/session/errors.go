package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrNoAuthenticator = errors.New("no authenticator configured")
	ErrEmptyToken      = errors.New("backend returned an empty token")
)
