package builder

import "errors"

// Sentinel errors for message building.
// Callers should use errors.Is() to check error types.
var (
	// ErrUnknownTopic indicates no template exists for the requested
	// topic. Building without a template is not supported.
	ErrUnknownTopic = errors.New("no template for topic")

	// ErrBuildInvalid indicates a built payload failed validation
	// against its own template. The payload is never returned.
	ErrBuildInvalid = errors.New("built payload failed validation")
)
