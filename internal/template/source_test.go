package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	return path
}

func TestLoadSource(t *testing.T) {
	path := writeSource(t, `
validation_patterns:
  NFC_CODE: "^[0-9a-f]{14}$"
topics:
  - topic: ccu/order/request
    category: CCU
    sub_category: Order
    description: Production order intake
    template_structure:
      orderType:
        type: string
        required: true
        enum: [STORAGE, PRODUCTION]
      workpieceId:
        type: string
        format: NFC_CODE
    examples:
      - orderType: PRODUCTION
        workpieceId: "040a8dca341291"
  - topic: module/v1/ff/+/state
    category: MODULE
    sub_category: State
    template_structure:
      orderId:
        type: string
        format: UUID
`)

	doc, err := LoadSource(path)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	if len(doc.Topics) != 2 {
		t.Fatalf("len(Topics) = %d, want 2", len(doc.Topics))
	}

	r := NewRegistry(nil)
	if err := r.Load(doc); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tmpl, err := r.Get("ccu/order/request")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tmpl.Structure["orderType"] == nil || !tmpl.Structure["orderType"].Required {
		t.Error("orderType spec not carried through from YAML")
	}
	if len(tmpl.Structure["orderType"].Enum) != 2 {
		t.Errorf("orderType enum = %v, want 2 values", tmpl.Structure["orderType"].Enum)
	}
	if !r.Has("module/v1/ff/SVR4H76449/state") {
		t.Error("wildcard template not resolvable")
	}
}

func TestLoadSource_MissingFile(t *testing.T) {
	_, err := LoadSource(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrSourceLoad) {
		t.Errorf("LoadSource() error = %v, want ErrSourceLoad", err)
	}
}

func TestLoadSource_MalformedYAML(t *testing.T) {
	path := writeSource(t, "topics: [not: closed")

	_, err := LoadSource(path)
	if !errors.Is(err, ErrSourceLoad) {
		t.Errorf("LoadSource() error = %v, want ErrSourceLoad", err)
	}
}

func TestRegistryLoad_RejectsInvalidExample(t *testing.T) {
	doc := &SourceDocument{Topics: []*Template{{
		Topic:    "ccu/order/request",
		Category: CategoryCCU,
		Structure: map[string]*FieldSpec{
			"orderType": {Type: TypeString, Required: true, Enum: []any{"STORAGE"}},
		},
		Examples: []map[string]any{
			{"orderType": "PRODUCTION"},
		},
	}}}

	err := NewRegistry(nil).Load(doc)
	if !errors.Is(err, ErrExampleInvalid) {
		t.Errorf("Load() error = %v, want ErrExampleInvalid", err)
	}
}

func TestRegistryLoad_RejectsBadPatternOverride(t *testing.T) {
	tests := []struct {
		name     string
		patterns map[string]string
	}{
		{"unknown format name", map[string]string{"NOT_A_FORMAT": ".*"}},
		{"uncompilable regex", map[string]string{"UUID": "(["}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &SourceDocument{ValidationPatterns: tt.patterns}
			err := NewRegistry(nil).Load(doc)
			if !errors.Is(err, ErrInvalidPattern) {
				t.Errorf("Load() error = %v, want ErrInvalidPattern", err)
			}
		})
	}
}

func TestRegistryLoad_RejectsBadTemplates(t *testing.T) {
	tests := []struct {
		name string
		tmpl *Template
	}{
		{"empty topic", &Template{Topic: "", Category: CategoryCCU}},
		{"missing category", &Template{Topic: "a/b"}},
		{"multi-level wildcard", &Template{Topic: "ccu/#", Category: CategoryCCU}},
		{"unknown field type", &Template{
			Topic:     "a/b",
			Category:  CategoryCCU,
			Structure: map[string]*FieldSpec{"x": {Type: "float"}},
		}},
		{"inverted range", &Template{
			Topic:    "a/b",
			Category: CategoryCCU,
			Structure: map[string]*FieldSpec{
				"x": {Type: TypeNumber, Minimum: floatPtr(5), Maximum: floatPtr(1)},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry(nil).Load(&SourceDocument{Topics: []*Template{tt.tmpl}})
			if !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("Load() error = %v, want ErrInvalidTemplate", err)
			}
		})
	}
}

// The shipped source document is part of the contract: it must load
// cleanly, and an order request with a bad color must fail on the enum
// alone even when the optional timestamp is omitted.
func TestLoadSource_ShippedDocument(t *testing.T) {
	doc, err := LoadSource("../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}

	r := NewRegistry(nil)
	if err := r.Load(doc); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	res := NewValidator(r, false).Validate("ccu/order/request", map[string]any{
		"orderType":   "PRODUCTION",
		"type":        "PURPLE",
		"workpieceId": "040a8dca341291",
	})
	if res.Valid {
		t.Fatal("Valid = true, want false for out-of-enum color")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if res.Errors[0].Code != CodeEnumViolation || res.Errors[0].Field != "type" {
		t.Errorf("error = %v, want ENUM_VIOLATION on type", res.Errors[0])
	}
}
