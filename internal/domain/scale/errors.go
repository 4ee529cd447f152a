package scale

import "errors"

// Sentinel errors for scale construction.
var (
	// ErrInvalidDomain reports a date domain or day count that cannot back a scale.
	ErrInvalidDomain = errors.New("invalid scale domain")
	// ErrDegenerateScale reports a partial window that collapsed or inverted.
	ErrDegenerateScale = errors.New("degenerate scale")
)
