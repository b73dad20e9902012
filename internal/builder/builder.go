package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apsfactory/aps-core/internal/template"
)

// ReferenceWorkpiece is the NFC code substituted for workpiece fields
// when the caller supplies none. It is a real tag from the reference
// factory, kept so synthesized payloads pass NFC format checks.
const ReferenceWorkpiece = "040a8dca341291"

// timestampLayout renders ISO-8601 with millisecond precision and a
// trailing Z, matching the controller's own timestamps.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ValidationError carries the full finding list when a built payload
// fails its template. It wraps ErrBuildInvalid.
type ValidationError struct {
	Topic  string
	Errors []template.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("building for %s: %s", e.Topic, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrBuildInvalid }

// Builder synthesizes publishable payloads from templates.
//
// For every field the template declares, the caller's params win when
// present; otherwise a default is derived from the field spec. The
// finished payload is validated against the same template before it is
// returned, so a Builder can never hand out a payload its own template
// rejects.
type Builder struct {
	registry  *template.Registry
	validator *template.Validator

	// Injectable for deterministic tests.
	now   func() time.Time
	newID func() string
}

// New creates a Builder over the given registry. The validator checks
// are applied to every built payload.
func New(registry *template.Registry, validator *template.Validator) *Builder {
	return &Builder{
		registry:  registry,
		validator: validator,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Build synthesizes a payload for topic, overlaying params on template
// defaults. Returns ErrUnknownTopic when no template matches and a
// *ValidationError when the synthesized payload fails its template.
func (b *Builder) Build(topic string, params map[string]any) (map[string]any, error) {
	tmpl, err := b.registry.Get(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	payload := b.buildObject(tmpl.Structure, params)

	res := b.validator.ValidateAgainst(tmpl, payload)
	if !res.Valid {
		return nil, &ValidationError{Topic: topic, Errors: res.Errors}
	}

	return payload, nil
}

// buildObject fills one object level: declared fields get params or
// defaults, undeclared params pass through untouched.
func (b *Builder) buildObject(structure map[string]*template.FieldSpec, params map[string]any) map[string]any {
	out := make(map[string]any, len(structure)+len(params))

	for name, spec := range structure {
		supplied, ok := params[name]
		if !ok {
			out[name] = b.defaultValue(spec)
			continue
		}

		// Nested objects merge so a caller can override one child
		// without re-supplying the siblings.
		if childParams, isMap := supplied.(map[string]any); isMap && spec.Type == template.TypeObject && len(spec.Children) > 0 {
			out[name] = b.buildObject(spec.Children, childParams)
			continue
		}
		out[name] = supplied
	}

	for name, value := range params {
		if _, declared := structure[name]; !declared {
			out[name] = value
		}
	}

	return out
}

// defaultValue synthesizes a value for an omitted field. Enum wins
// over format, format over plain type.
func (b *Builder) defaultValue(spec *template.FieldSpec) any {
	if len(spec.Enum) > 0 {
		return spec.Enum[0]
	}

	switch spec.Format {
	case template.FormatISO8601:
		return b.now().UTC().Format(timestampLayout)
	case template.FormatUUID:
		return b.newID()
	case template.FormatNFCCode:
		return ReferenceWorkpiece
	case template.FormatModuleID, template.FormatPosition:
		return "UNKNOWN"
	case template.FormatErrorCode:
		return "NONE"
	}

	switch spec.Type {
	case template.TypeString:
		return ""
	case template.TypeInteger:
		return 0
	case template.TypeNumber:
		return 0.0
	case template.TypeBoolean:
		return false
	case template.TypeArray:
		return []any{}
	case template.TypeObject:
		return b.buildObject(spec.Children, nil)
	}
	return nil
}
