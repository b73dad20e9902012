package template

import "errors"

// Sentinel errors for template operations.
// Callers should use errors.Is() to check error types.
var (
	// ErrTemplateNotFound indicates no exact or wildcard template matches
	// the requested topic.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidTemplate indicates a template failed structural checks
	// (missing topic, unknown type, bad enum).
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrPatternConflict indicates two wildcard patterns of equal
	// precedence can match the same topic.
	ErrPatternConflict = errors.New("wildcard pattern conflict")

	// ErrExampleInvalid indicates a template example does not validate
	// under the template's own rules.
	ErrExampleInvalid = errors.New("template example fails own validation")

	// ErrSourceLoad indicates the template source document could not be
	// read or parsed.
	ErrSourceLoad = errors.New("template source load failed")

	// ErrInvalidPattern indicates a validation pattern is not a
	// compilable regular expression.
	ErrInvalidPattern = errors.New("invalid validation pattern")
)
