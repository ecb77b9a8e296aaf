package gate

import "errors"

// Sentinel errors returned by Gate.Authorize.
var (
	ErrForbidden = errors.New("forbidden")
	ErrNoProfile = errors.New("no profile resolved for driver")
)
