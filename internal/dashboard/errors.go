package dashboard

import "errors"

// Sentinel errors for dashboard operations.
var (
	ErrForbidden  = errors.New("action requires the admin role")
	ErrNoPlan     = errors.New("no plan selected")
	ErrEmptyJobID = errors.New("task has no job id")
)
