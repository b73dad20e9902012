package template

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceDocument is the YAML template source file.
//
// Layout:
//
//	validation_patterns:
//	  UUID: "^[0-9a-f]{8}-..."
//	topics:
//	  - topic: ccu/order/request
//	    category: CCU
//	    sub_category: Order
//	    template_structure:
//	      orderType: {type: string, required: true, enum: [STORAGE, PRODUCTION]}
type SourceDocument struct {
	// ValidationPatterns override built-in format regexes by name.
	ValidationPatterns map[string]string `yaml:"validation_patterns,omitempty"`

	// Topics are the curated templates.
	Topics []*Template `yaml:"topics"`
}

// LoadSource reads and parses a template source document from disk.
// Parsing alone does not activate the templates; pass the document to
// Registry.Load, which verifies it as a whole.
func LoadSource(path string) (*SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrSourceLoad, path, err)
	}

	var doc SourceDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrSourceLoad, path, err)
	}

	return &doc, nil
}

// buildSnapshot verifies a source document and produces an immutable
// snapshot from it. Verification covers per-template structure, exact
// duplicates, wildcard conflicts and example self-validation. Any
// failure rejects the whole document.
func buildSnapshot(doc *SourceDocument) (*snapshot, error) {
	formats, err := newFormatSet(doc.ValidationPatterns)
	if err != nil {
		return nil, err
	}

	next := &snapshot{
		exact:   make(map[string]*Template, len(doc.Topics)),
		formats: formats,
	}

	for _, tmpl := range doc.Topics {
		if err := verifyTemplate(tmpl); err != nil {
			return nil, err
		}

		stored := tmpl.DeepCopy()

		if strings.Contains(stored.Topic, "+") {
			segments := strings.Split(stored.Topic, "/")
			next.wildcards = append(next.wildcards, wildcardEntry{
				segments: segments,
				fixed:    fixedSegments(segments),
				tmpl:     stored,
			})
			continue
		}

		if _, dup := next.exact[stored.Topic]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %s", ErrInvalidTemplate, stored.Topic)
		}
		next.exact[stored.Topic] = stored
	}

	// Most fixed segments win; within equal precedence order is
	// irrelevant because overlaps are rejected below.
	sortWildcards(next.wildcards)

	for i := range next.wildcards {
		for j := i + 1; j < len(next.wildcards); j++ {
			a, b := next.wildcards[i], next.wildcards[j]
			if a.fixed == b.fixed && patternsOverlap(a.segments, b.segments) {
				return nil, fmt.Errorf("%w: %s and %s have equal precedence",
					ErrPatternConflict, a.tmpl.Topic, b.tmpl.Topic)
			}
		}
	}

	// Examples are the template's own contract with itself. An example
	// that fails its template is a curation error, not a runtime one.
	for _, tmpl := range doc.Topics {
		for i, example := range tmpl.Examples {
			verrs := validatePayload(tmpl, example, formats)
			if len(verrs) > 0 {
				return nil, fmt.Errorf("%w: topic %s example %d: %s",
					ErrExampleInvalid, tmpl.Topic, i, verrs[0].Error())
			}
		}
	}

	return next, nil
}

// sortWildcards orders entries by fixed segment count descending, then
// by topic for determinism.
func sortWildcards(entries []wildcardEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && lessWildcard(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func lessWildcard(a, b wildcardEntry) bool {
	if a.fixed != b.fixed {
		return a.fixed > b.fixed
	}
	return a.tmpl.Topic < b.tmpl.Topic
}

// verifyTemplate checks one template's own declaration.
func verifyTemplate(tmpl *Template) error {
	if tmpl == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if tmpl.Topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTemplate)
	}
	if strings.Contains(tmpl.Topic, "#") {
		return fmt.Errorf("%w: %s: multi-level wildcards not supported", ErrInvalidTemplate, tmpl.Topic)
	}
	if tmpl.Category == "" {
		return fmt.Errorf("%w: %s: missing category", ErrInvalidTemplate, tmpl.Topic)
	}

	for name, spec := range tmpl.Structure {
		if err := verifyFieldSpec(tmpl.Topic, name, spec); err != nil {
			return err
		}
	}
	return nil
}

// verifyFieldSpec checks one field spec recursively.
func verifyFieldSpec(topic, path string, spec *FieldSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: %s: field %s has no spec", ErrInvalidTemplate, topic, path)
	}

	if !validFieldType(spec.Type) {
		return fmt.Errorf("%w: %s: field %s: unknown type %q", ErrInvalidTemplate, topic, path, spec.Type)
	}
	if spec.Minimum != nil && spec.Maximum != nil && *spec.Minimum > *spec.Maximum {
		return fmt.Errorf("%w: %s: field %s: minimum exceeds maximum", ErrInvalidTemplate, topic, path)
	}

	for name, child := range spec.Children {
		if err := verifyFieldSpec(topic, path+"."+name, child); err != nil {
			return err
		}
	}
	if spec.Items != nil {
		if err := verifyFieldSpec(topic, path+"[]", spec.Items); err != nil {
			return err
		}
	}
	return nil
}

func validFieldType(t FieldType) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean,
		TypeArray, TypeObject, TypeNull, TypeUnknown:
		return true
	}
	return false
}
