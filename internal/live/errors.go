package live

import "errors"

// Sentinel errors for the live channel.
var (
	ErrConnectivity = errors.New("live channel unavailable")
	ErrUnauthorized = errors.New("live channel rejected token")
)

// CloseUnauthorized is the close code the backend uses for a missing or
// invalid token.
const CloseUnauthorized = 4401
