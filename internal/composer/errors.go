package composer

import "errors"

// Sentinel errors for composer operations.
var (
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownType     = errors.New("unknown task type")
	ErrFieldNotVisible = errors.New("field does not apply to task type")
	ErrInvalidValue    = errors.New("invalid value")
)
