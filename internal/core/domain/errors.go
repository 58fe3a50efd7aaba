package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrState              = errors.New("illegal state")
	ErrInsufficientAmount = errors.New("insufficient amount")
	ErrGateway            = errors.New("payment gateway failure")

	// ErrStore marks storage failures. Callers should offer a retry rather
	// than treat it as bad input.
	ErrStore = errors.New("store unavailable")
)

// IsBusinessError reports whether err is a recoverable business-rule failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrInsufficientAmount) ||
		errors.Is(err, ErrGateway)
}
