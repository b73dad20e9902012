package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apsfactory/aps-core/internal/template"
)

// describeRules renders human-readable validation rules mirroring the
// inferred field specs, sorted by field path for stable output.
func describeRules(structure map[string]*template.FieldSpec) []string {
	var rules []string
	collectRules(structure, "", &rules)
	sort.Strings(rules)
	return rules
}

func collectRules(structure map[string]*template.FieldSpec, prefix string, rules *[]string) {
	for name, spec := range structure {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		var parts []string
		parts = append(parts, string(spec.Type))
		if spec.Required {
			parts = append(parts, "required")
		}
		if spec.Format != template.FormatNone {
			parts = append(parts, fmt.Sprintf("format=%s", spec.Format))
		}
		if len(spec.Enum) > 0 {
			values := make([]string, len(spec.Enum))
			for i, v := range spec.Enum {
				values[i] = fmt.Sprint(v)
			}
			parts = append(parts, fmt.Sprintf("enum=[%s]", strings.Join(values, ", ")))
		}
		if spec.Minimum != nil && spec.Maximum != nil {
			parts = append(parts, fmt.Sprintf("range=[%v, %v]", *spec.Minimum, *spec.Maximum))
		}

		*rules = append(*rules, fmt.Sprintf("%s: %s", path, strings.Join(parts, ", ")))

		if spec.Children != nil {
			collectRules(spec.Children, path, rules)
		}
		if spec.Items != nil {
			collectRules(map[string]*template.FieldSpec{"[]": spec.Items}, path, rules)
		}
	}
}
