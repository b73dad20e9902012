package builder

import (
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/apsfactory/aps-core/internal/template"
)

func floatPtr(v float64) *float64 { return &v }

func testRegistry(t *testing.T) *template.Registry {
	t.Helper()

	doc := &template.SourceDocument{Topics: []*template.Template{
		{
			Topic:       "ccu/order/request",
			Category:    template.CategoryCCU,
			SubCategory: template.SubCategoryOrder,
			Structure: map[string]*template.FieldSpec{
				"orderType": {
					Type:     template.TypeString,
					Required: true,
					Enum:     []any{"STORAGE", "PRODUCTION"},
				},
				"type": {
					Type:     template.TypeString,
					Required: true,
					Enum:     []any{"RED", "WHITE", "BLUE"},
				},
				"workpieceId": {Type: template.TypeString, Required: true, Format: template.FormatNFCCode},
				"timestamp":   {Type: template.TypeString, Required: true, Format: template.FormatISO8601},
			},
		},
		{
			Topic:       "module/v1/ff/+/order",
			Category:    template.CategoryModule,
			SubCategory: template.SubCategoryOrder,
			Structure: map[string]*template.FieldSpec{
				"serialNumber":  {Type: template.TypeString, Required: true},
				"orderId":       {Type: template.TypeString, Required: true, Format: template.FormatUUID},
				"orderUpdateId": {Type: template.TypeInteger, Required: true, Minimum: floatPtr(1)},
				"timestamp":     {Type: template.TypeString, Required: true, Format: template.FormatISO8601},
				"action": {
					Type:     template.TypeObject,
					Required: true,
					Children: map[string]*template.FieldSpec{
						"id":      {Type: template.TypeString, Required: true, Format: template.FormatUUID},
						"command": {Type: template.TypeString, Required: true, Enum: []any{"PICK", "DROP", "MILL", "DRILL", "CHECK_QUALITY", "STORE"}},
						"metadata": {
							Type: template.TypeObject,
							Children: map[string]*template.FieldSpec{
								"priority": {Type: template.TypeString, Required: true},
								"timeout":  {Type: template.TypeInteger, Required: true},
							},
						},
					},
				},
			},
		},
	}}

	r := template.NewRegistry(nil)
	if err := r.Load(doc); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return r
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()

	r := testRegistry(t)
	b := New(r, template.NewValidator(r, false))

	// Deterministic clock and id source
	b.now = func() time.Time { return time.Date(2026, 8, 29, 10, 15, 30, 0, time.UTC) }
	ids := 0
	b.newID = func() string {
		ids++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", ids)
	}
	return b
}

func TestBuilder_Build_StorageOrder(t *testing.T) {
	b := testBuilder(t)

	payload, err := b.Build("ccu/order/request", map[string]any{
		"orderType":   "STORAGE",
		"type":        "RED",
		"workpieceId": "040a8dca341291",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if payload["orderType"] != "STORAGE" {
		t.Errorf("orderType = %v, want STORAGE", payload["orderType"])
	}
	if payload["type"] != "RED" {
		t.Errorf("type = %v, want RED", payload["type"])
	}
	if payload["workpieceId"] != "040a8dca341291" {
		t.Errorf("workpieceId = %v, want 040a8dca341291", payload["workpieceId"])
	}

	ts, _ := payload["timestamp"].(string)
	iso := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)
	if !iso.MatchString(ts) {
		t.Errorf("timestamp = %q, want ISO-8601", ts)
	}
}

func TestBuilder_Build_Defaults(t *testing.T) {
	b := testBuilder(t)

	payload, err := b.Build("ccu/order/request", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// First enum value for omitted enum fields
	if payload["orderType"] != "STORAGE" {
		t.Errorf("orderType default = %v, want STORAGE", payload["orderType"])
	}
	if payload["type"] != "RED" {
		t.Errorf("type default = %v, want RED", payload["type"])
	}
	if payload["workpieceId"] != ReferenceWorkpiece {
		t.Errorf("workpieceId default = %v, want reference NFC code", payload["workpieceId"])
	}
	if payload["timestamp"] != "2026-08-29T10:15:30.000Z" {
		t.Errorf("timestamp default = %v", payload["timestamp"])
	}
}

func TestBuilder_Build_AlwaysValidates(t *testing.T) {
	b := testBuilder(t)

	// Every built payload must pass its own template
	r := testRegistry(t)
	v := template.NewValidator(r, false)

	payload, err := b.Build("ccu/order/request", map[string]any{"type": "BLUE"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res := v.Validate("ccu/order/request", payload); !res.Valid {
		t.Errorf("built payload fails validation: %v", res.Errors)
	}
}

func TestBuilder_Build_RejectsBadParams(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build("ccu/order/request", map[string]any{"type": "PURPLE"})
	if !errors.Is(err, ErrBuildInvalid) {
		t.Fatalf("Build() error = %v, want ErrBuildInvalid", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Build() error type = %T, want *ValidationError", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Code != template.CodeEnumViolation {
		t.Errorf("Errors = %v, want single ENUM_VIOLATION", verr.Errors)
	}
}

func TestBuilder_Build_UnknownTopic(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build("no/such/topic", nil)
	if !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("Build() error = %v, want ErrUnknownTopic", err)
	}
}

func TestBuilder_Build_NestedMerge(t *testing.T) {
	b := testBuilder(t)

	payload, err := b.Build("module/v1/ff/SVR4H76449/order",
		b.ModuleOrderParams("SVR4H76449", CommandDrill, 2, "RED", "040a8dca341291"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if payload["serialNumber"] != "SVR4H76449" {
		t.Errorf("serialNumber = %v", payload["serialNumber"])
	}
	if payload["orderUpdateId"] != int64(2) {
		t.Errorf("orderUpdateId = %v, want 2", payload["orderUpdateId"])
	}

	action, _ := payload["action"].(map[string]any)
	if action == nil {
		t.Fatal("action missing from payload")
	}
	if action["command"] != "DRILL" {
		t.Errorf("action.command = %v, want DRILL", action["command"])
	}

	metadata, _ := action["metadata"].(map[string]any)
	if metadata == nil {
		t.Fatal("action.metadata missing from payload")
	}
	if metadata["priority"] != DefaultPriority {
		t.Errorf("metadata.priority = %v, want %s", metadata["priority"], DefaultPriority)
	}
	if metadata["timeout"] != DefaultTimeoutS {
		t.Errorf("metadata.timeout = %v, want %d", metadata["timeout"], DefaultTimeoutS)
	}
	if metadata["type"] != "RED" {
		t.Errorf("metadata.type = %v, want RED", metadata["type"])
	}
}

func TestValidCommand(t *testing.T) {
	for _, cmd := range AllCommands() {
		if !ValidCommand(cmd) {
			t.Errorf("ValidCommand(%s) = false", cmd)
		}
	}
	if ValidCommand("WELD") {
		t.Error("ValidCommand(WELD) = true, want false")
	}
}
