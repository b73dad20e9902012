package template

import (
	"fmt"
	"regexp"
)

// Built-in validation patterns. The template source document may
// override any of these under validation_patterns.
const (
	patternISO8601 = `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`
	patternUUID    = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
	patternNFC     = `^[0-9a-fA-F]{14}$`
	patternModule  = `^[A-Z0-9]{4,16}$`
	patternPos     = `^[A-Z0-9_\-]{1,32}$`
	patternErrCode = `^[A-Z0-9_]{1,64}$`
)

// defaultPatterns maps format names to their built-in regex source.
func defaultPatterns() map[Format]string {
	return map[Format]string{
		FormatISO8601:   patternISO8601,
		FormatUUID:      patternUUID,
		FormatNFCCode:   patternNFC,
		FormatModuleID:  patternModule,
		FormatPosition:  patternPos,
		FormatErrorCode: patternErrCode,
	}
}

// formatSet holds the compiled validation patterns for one snapshot.
// Compiled once at load, read-only afterwards.
type formatSet struct {
	patterns map[Format]*regexp.Regexp
}

// newFormatSet compiles the built-in patterns merged with overrides.
// Override keys must name a known format and compile as a regex.
func newFormatSet(overrides map[string]string) (*formatSet, error) {
	sources := defaultPatterns()

	for name, src := range overrides {
		f := Format(name)
		if _, ok := sources[f]; !ok {
			return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidPattern, name)
		}
		sources[f] = src
	}

	compiled := make(map[Format]*regexp.Regexp, len(sources))
	for f, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: format %q: %v", ErrInvalidPattern, f, err)
		}
		compiled[f] = re
	}

	return &formatSet{patterns: compiled}, nil
}

// detectSet holds the built-in patterns compiled once for format
// detection over captured values.
var detectSet = func() *formatSet {
	fs, err := newFormatSet(nil)
	if err != nil {
		panic(err)
	}
	return fs
}()

// DetectFormat recognizes a string value's format using the built-in
// patterns. Only the unambiguous formats are detected; module ids,
// positions and error codes overlap too much with free text to infer.
func DetectFormat(value string) Format {
	for _, f := range []Format{FormatISO8601, FormatUUID, FormatNFCCode} {
		if detectSet.patterns[f].MatchString(value) {
			return f
		}
	}
	return FormatNone
}

// CheckExample validates a payload against a template using the
// built-in format patterns, without a registry. Used where a template
// is being authored or inferred and its examples must be proven
// self-consistent before the template is offered for loading.
func CheckExample(tmpl *Template, payload map[string]any) []FieldError {
	return validatePayload(tmpl, payload, detectSet)
}

// matches reports whether value satisfies the named format.
// Unknown formats match everything so curated templates with custom
// tags do not hard-fail validation.
func (fs *formatSet) matches(f Format, value string) bool {
	re, ok := fs.patterns[f]
	if !ok {
		return true
	}
	return re.MatchString(value)
}
