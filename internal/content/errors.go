package content

import "errors"

var (
	// ErrNoContainer is returned when the designated content container is absent
	ErrNoContainer = errors.New("content: container not found")
	// ErrUnsupportedType is returned for content types without a counter
	ErrUnsupportedType = errors.New("content: unsupported content type")
)
