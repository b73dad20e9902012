package template

// FieldType is the JSON type declared for a payload field.
// This is a closed set; values observed outside it are tagged unknown.
type FieldType string

// All field types.
const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeNull    FieldType = "null"
	TypeUnknown FieldType = "unknown"
)

// AllFieldTypes returns every valid field type.
func AllFieldTypes() []FieldType {
	return []FieldType{
		TypeString, TypeInteger, TypeNumber, TypeBoolean,
		TypeArray, TypeObject, TypeNull, TypeUnknown,
	}
}

// Format is a refinement tag for string fields.
type Format string

// All string formats.
const (
	FormatNone      Format = ""
	FormatISO8601   Format = "ISO_8601"
	FormatUUID      Format = "UUID"
	FormatNFCCode   Format = "NFC_CODE"
	FormatModuleID  Format = "MODULE_ID"
	FormatPosition  Format = "POSITION"
	FormatErrorCode Format = "ERROR_CODE"
)

// Category classifies a topic by its owning subsystem.
type Category string

// All topic categories.
const (
	CategoryCCU     Category = "CCU"
	CategoryModule  Category = "MODULE"
	CategoryTXT     Category = "TXT"
	CategoryNodeRED Category = "Node-RED"
	CategoryFTS     Category = "FTS"
	CategoryUnknown Category = "UNKNOWN"
)

// AllCategories returns every valid category.
func AllCategories() []Category {
	return []Category{
		CategoryCCU, CategoryModule, CategoryTXT,
		CategoryNodeRED, CategoryFTS, CategoryUnknown,
	}
}

// SubCategory classifies a topic's function within its category.
type SubCategory string

// All topic sub-categories.
const (
	SubCategoryConnection    SubCategory = "Connection"
	SubCategoryState         SubCategory = "State"
	SubCategoryOrder         SubCategory = "Order"
	SubCategoryFactsheet     SubCategory = "Factsheet"
	SubCategoryInstantAction SubCategory = "InstantAction"
	SubCategoryFlows         SubCategory = "Flows"
	SubCategoryDashboard     SubCategory = "Dashboard"
	SubCategoryUI            SubCategory = "UI"
	SubCategoryControl       SubCategory = "Control"
	SubCategoryResponse      SubCategory = "Response"
	SubCategoryStatus        SubCategory = "Status"
	SubCategoryGeneral       SubCategory = "General"
)

// AllSubCategories returns every valid sub-category.
func AllSubCategories() []SubCategory {
	return []SubCategory{
		SubCategoryConnection, SubCategoryState, SubCategoryOrder,
		SubCategoryFactsheet, SubCategoryInstantAction, SubCategoryFlows,
		SubCategoryDashboard, SubCategoryUI, SubCategoryControl,
		SubCategoryResponse, SubCategoryStatus, SubCategoryGeneral,
	}
}

// FieldSpec describes one payload field of a template.
type FieldSpec struct {
	// Type is the declared JSON type.
	Type FieldType `yaml:"type" json:"type"`

	// Required marks fields that must be present in every payload.
	Required bool `yaml:"required" json:"required"`

	// Format refines string fields (timestamp, UUID, NFC code, ...).
	Format Format `yaml:"format,omitempty" json:"format,omitempty"`

	// Enum restricts the field to a finite value set.
	Enum []any `yaml:"enum,omitempty" json:"enum,omitempty"`

	// Minimum/Maximum bound numeric fields (inclusive).
	Minimum *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`

	// Children describes the fields of an object-typed field.
	Children map[string]*FieldSpec `yaml:"children,omitempty" json:"children,omitempty"`

	// Items describes the element type of an array-typed field.
	Items *FieldSpec `yaml:"items,omitempty" json:"items,omitempty"`
}

// DeepCopy creates a complete independent copy of the FieldSpec.
func (f *FieldSpec) DeepCopy() *FieldSpec {
	if f == nil {
		return nil
	}

	cpy := *f

	if f.Enum != nil {
		cpy.Enum = make([]any, len(f.Enum))
		copy(cpy.Enum, f.Enum)
	}
	if f.Minimum != nil {
		v := *f.Minimum
		cpy.Minimum = &v
	}
	if f.Maximum != nil {
		v := *f.Maximum
		cpy.Maximum = &v
	}
	if f.Children != nil {
		cpy.Children = make(map[string]*FieldSpec, len(f.Children))
		for k, child := range f.Children {
			cpy.Children[k] = child.DeepCopy()
		}
	}
	cpy.Items = f.Items.DeepCopy()

	return &cpy
}

// Template is the declarative description of one topic's payload
// structure and constraints.
type Template struct {
	// Topic is an exact topic string or a single-segment wildcard pattern
	// (e.g. "module/v1/ff/+/state").
	Topic string `yaml:"topic" json:"topic"`

	// Category is the owning subsystem.
	Category Category `yaml:"category" json:"category"`

	// SubCategory is the topic's function within the category.
	SubCategory SubCategory `yaml:"sub_category" json:"sub_category"`

	// Module is the module serial when the topic belongs to one module.
	Module string `yaml:"module,omitempty" json:"module,omitempty"`

	// Description is operator-facing documentation.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Structure maps top-level field names to their specs.
	// Nested fields live in FieldSpec.Children / FieldSpec.Items.
	Structure map[string]*FieldSpec `yaml:"template_structure" json:"template_structure"`

	// Examples are representative payloads captured in the wild.
	// Every example must validate under this template's own rules.
	Examples []map[string]any `yaml:"examples,omitempty" json:"examples,omitempty"`

	// ValidationRules are derived human-readable rules.
	ValidationRules []string `yaml:"validation_rules,omitempty" json:"validation_rules,omitempty"`

	// UIConfig holds operator-facing hints consumed by external callers.
	// The core treats it opaquely.
	UIConfig map[string]any `yaml:"ui_config,omitempty" json:"ui_config,omitempty"`
}

// DeepCopy creates a complete independent copy of the Template.
// All map and slice fields are cloned so modifications to the copy
// do not affect the registry snapshot.
func (t *Template) DeepCopy() *Template {
	if t == nil {
		return nil
	}

	cpy := *t

	if t.Structure != nil {
		cpy.Structure = make(map[string]*FieldSpec, len(t.Structure))
		for k, spec := range t.Structure {
			cpy.Structure[k] = spec.DeepCopy()
		}
	}
	if t.Examples != nil {
		cpy.Examples = make([]map[string]any, len(t.Examples))
		for i, ex := range t.Examples {
			cpy.Examples[i] = deepCopyMap(ex)
		}
	}
	if t.ValidationRules != nil {
		cpy.ValidationRules = make([]string, len(t.ValidationRules))
		copy(cpy.ValidationRules, t.ValidationRules)
	}
	if t.UIConfig != nil {
		cpy.UIConfig = deepCopyMap(t.UIConfig)
	}

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue deep copies a JSON-decoded value.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, item := range val {
			cpy[i] = deepCopyValue(item)
		}
		return cpy
	default:
		// Scalars (string, float64, bool, nil) are immutable
		return v
	}
}
