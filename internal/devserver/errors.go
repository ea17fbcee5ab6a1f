package devserver

import (
	"errors"
	"strings"
)

// Sentinel errors for dev server operations. Their text is what the HTTP
// layer sends back as the error detail.
var (
	ErrPlanNotFound            = errors.New("plan not found")
	ErrTaskNotFound            = errors.New("task not found")
	ErrInvalidCredentials      = errors.New("Invalid credentials")
	ErrNotAuthenticated        = errors.New("Not authenticated")
	ErrInvalidToken            = errors.New("Invalid token")
	ErrInsufficientPermissions = errors.New("Insufficient permissions")
	ErrNoTargetAddress         = errors.New("target address not configured for plan")
	ErrUnknownAction           = errors.New("unknown action")
)

// ValidationError lists every rule a plan creation request broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
