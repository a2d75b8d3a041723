package reading

import "errors"

var (
	ErrMissingTrackingID  = errors.New("reading: tracking id is required")
	ErrAlreadyStarted     = errors.New("reading: collector already started")
	ErrCollectorDestroyed = errors.New("reading: collector destroyed")
	ErrUnknownPolicy      = errors.New("reading: unknown policy")
)
