package template

import (
	"fmt"
	"math"
)

// Validation error codes. The set is closed; external consumers key
// off these strings. UNEXPECTED_FIELD is only produced in strict mode.
const (
	CodeUnknownTopic    = "UNKNOWN_TOPIC"
	CodeMissingField    = "MISSING_FIELD"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeEnumViolation   = "ENUM_VIOLATION"
	CodeFormatMismatch  = "FORMAT_MISMATCH"
	CodeRangeViolation  = "RANGE_VIOLATION"
	CodeUnexpectedField = "UNEXPECTED_FIELD"
)

// FieldError is one validation finding, tied to a field path like
// "action.metadata.priority" or "loads[2].loadType".
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// Result is the outcome of validating one payload. Validation collects
// every finding rather than stopping at the first, so a single pass
// reports all problems with a payload. Per field the checks
// short-circuit: a type mismatch suppresses the enum, format and range
// checks for that field.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Validator checks payloads against the registry's active templates.
type Validator struct {
	registry *Registry
	strict   bool
}

// NewValidator creates a validator bound to a registry. Fields present
// in a payload but absent from the template are ignored by default;
// with strict set they are rejected with UNEXPECTED_FIELD.
func NewValidator(registry *Registry, strict bool) *Validator {
	return &Validator{registry: registry, strict: strict}
}

// Validate checks a decoded payload against the template for topic.
// An unmatched topic yields a single UNKNOWN_TOPIC error.
func (v *Validator) Validate(topic string, payload map[string]any) Result {
	tmpl, err := v.registry.Get(topic)
	if err != nil {
		return Result{
			Valid: false,
			Errors: []FieldError{{
				Code:    CodeUnknownTopic,
				Message: fmt.Sprintf("no template for topic %s", topic),
			}},
		}
	}
	return v.ValidateAgainst(tmpl, payload)
}

// ValidateAgainst checks a payload against an explicit template,
// bypassing topic resolution. Used when the caller already holds the
// template, e.g. right after building a message from it.
func (v *Validator) ValidateAgainst(tmpl *Template, payload map[string]any) Result {
	findings := validatePayload(tmpl, payload, v.registry.formatsForValidation())
	if v.strict {
		findUnexpected(tmpl.Structure, payload, "", &findings)
	}
	return Result{Valid: len(findings) == 0, Errors: findings}
}

// validatePayload walks the template structure against the payload and
// returns every finding. Unknown payload fields are not reported here;
// captured traffic drifts faster than curated templates.
func validatePayload(tmpl *Template, payload map[string]any, formats *formatSet) []FieldError {
	var findings []FieldError
	validateObject(tmpl.Structure, payload, "", formats, &findings)
	return findings
}

func validateObject(structure map[string]*FieldSpec, obj map[string]any, prefix string, formats *formatSet, findings *[]FieldError) {
	for name, spec := range structure {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		value, present := obj[name]
		if !present {
			if spec.Required {
				*findings = append(*findings, FieldError{
					Code:    CodeMissingField,
					Field:   path,
					Message: "required field is missing",
				})
			}
			continue
		}

		validateValue(spec, value, path, formats, findings)
	}
}

func validateValue(spec *FieldSpec, value any, path string, formats *formatSet, findings *[]FieldError) {
	if !typeMatches(spec.Type, value) {
		*findings = append(*findings, FieldError{
			Code:    CodeTypeMismatch,
			Field:   path,
			Message: fmt.Sprintf("expected %s, got %s", spec.Type, jsonTypeName(value)),
		})
		// Remaining checks assume the declared type
		return
	}

	if len(spec.Enum) > 0 && !enumContains(spec.Enum, value) {
		*findings = append(*findings, FieldError{
			Code:    CodeEnumViolation,
			Field:   path,
			Message: fmt.Sprintf("value %v not in enum %v", value, spec.Enum),
		})
		return
	}

	if spec.Format != FormatNone {
		if s, ok := value.(string); ok && !formats.matches(spec.Format, s) {
			*findings = append(*findings, FieldError{
				Code:    CodeFormatMismatch,
				Field:   path,
				Message: fmt.Sprintf("value does not match format %s", spec.Format),
			})
			return
		}
	}

	if spec.Minimum != nil || spec.Maximum != nil {
		if n, ok := numericValue(value); ok {
			if spec.Minimum != nil && n < *spec.Minimum {
				*findings = append(*findings, FieldError{
					Code:    CodeRangeViolation,
					Field:   path,
					Message: fmt.Sprintf("value %v below minimum %v", n, *spec.Minimum),
				})
				return
			}
			if spec.Maximum != nil && n > *spec.Maximum {
				*findings = append(*findings, FieldError{
					Code:    CodeRangeViolation,
					Field:   path,
					Message: fmt.Sprintf("value %v above maximum %v", n, *spec.Maximum),
				})
				return
			}
		}
	}

	switch spec.Type {
	case TypeObject:
		if child, ok := value.(map[string]any); ok && len(spec.Children) > 0 {
			validateObject(spec.Children, child, path, formats, findings)
		}
	case TypeArray:
		if items, ok := value.([]any); ok && spec.Items != nil {
			for i, item := range items {
				validateValue(spec.Items, item, fmt.Sprintf("%s[%d]", path, i), formats, findings)
			}
		}
	}
}

// findUnexpected reports payload fields the template does not declare.
// Only objects with a declared structure are checked; an object field
// without Children accepts anything.
func findUnexpected(structure map[string]*FieldSpec, obj map[string]any, prefix string, findings *[]FieldError) {
	if len(structure) == 0 {
		return
	}

	for name, value := range obj {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		spec, declared := structure[name]
		if !declared {
			*findings = append(*findings, FieldError{
				Code:    CodeUnexpectedField,
				Field:   path,
				Message: "field not declared in template",
			})
			continue
		}

		if child, ok := value.(map[string]any); ok && spec.Type == TypeObject {
			findUnexpected(spec.Children, child, path, findings)
		}
	}
}

// typeMatches checks a JSON-decoded value against a declared type.
// Integer accepts float64 values with no fractional part, which is how
// encoding/json hands back whole numbers.
func typeMatches(t FieldType, value any) bool {
	switch t {
	case TypeUnknown:
		return true
	case TypeNull:
		return value == nil
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := numericValue(value)
		return ok
	case TypeInteger:
		n, ok := numericValue(value)
		return ok && n == math.Trunc(n)
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

// numericValue normalizes the number representations produced by
// encoding/json and yaml.v3 to float64.
func numericValue(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// enumContains compares with numeric normalization so a YAML-declared
// int enum matches a JSON-decoded float64 payload value.
func enumContains(enum []any, value any) bool {
	vn, vIsNum := numericValue(value)
	for _, e := range enum {
		if en, eIsNum := numericValue(e); eIsNum && vIsNum {
			if en == vn {
				return true
			}
			continue
		}
		if e == value {
			return true
		}
	}
	return false
}

// jsonTypeName names a decoded value's JSON type for error messages.
func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}
