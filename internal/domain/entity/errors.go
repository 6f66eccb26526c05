package entity

import "errors"

// Error kinds raised by the approval engine. Callers test with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidation       = errors.New("validation error")
	ErrNoApplicableRule = errors.New("no applicable rule")

	// ErrConflict means another writer updated the claim first; the operation may be retried
	ErrConflict = errors.New("concurrent modification")
)
