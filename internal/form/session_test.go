package form

import (
	"errors"
	"testing"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/models"
)

func extinguisherOrder() *models.FormTemplate {
	return &models.FormTemplate{
		ID:   "tpl-1",
		Name: "Extinguisher service order",
		Pages: []models.TemplatePage{
			{
				PageNumber: 2,
				Fields: []models.TemplateField{
					{FieldID: "notes", Type: models.FieldTextarea, Label: "Notes"},
					{FieldID: "agree", Type: models.FieldCheckbox, Label: "Customer agrees", Required: true},
				},
			},
			{
				PageNumber: 1,
				Fields: []models.TemplateField{
					{FieldID: "total", Type: models.FieldCalculation, Label: "Total", Formula: "subtotal+vat",
						Style: models.FieldStyle{Top: 300, Left: 10}},
					{FieldID: "vat", Type: models.FieldCalculation, Label: "VAT", Formula: "subtotal*0.07",
						Style: models.FieldStyle{Top: 250, Left: 10}},
					{FieldID: "subtotal", Type: models.FieldCalculation, Label: "Subtotal", Formula: "qty*price",
						Style: models.FieldStyle{Top: 200, Left: 10}},
					{FieldID: "qty", Type: models.FieldNumber, Label: "Quantity", Required: true,
						Validation: "min=1|max=500", Style: models.FieldStyle{Top: 100, Left: 200}},
					{FieldID: "price", Type: models.FieldNumber, Label: "Unit price",
						Style: models.FieldStyle{Top: 100, Left: 10}},
					{FieldID: "customer", Type: models.FieldText, Label: "Customer", Required: true,
						Placeholder: "Company name", Style: models.FieldStyle{Top: 10, Left: 10}},
					{FieldID: "email", Type: models.FieldText, Label: "Email", Validation: "email",
						Style: models.FieldStyle{Top: 10, Left: 300}},
					{FieldID: "service_date", Type: models.FieldDate, Label: "Service date",
						Style: models.FieldStyle{Top: 50, Left: 10}},
					{FieldID: "agent", Type: models.FieldSelect, Label: "Agent", Options: []string{"CO2", "Foam", "Powder"},
						Style: models.FieldStyle{Top: 50, Left: 300, ZIndex: 2}},
					{FieldID: "size", Type: models.FieldRadio, Label: "Size", Options: []string{"2kg", "6kg"},
						Style: models.FieldStyle{Top: 50, Left: 300, ZIndex: 1}},
				},
			},
		},
	}
}

func TestNewSession_StartsReadyOnFirstPage(t *testing.T) {
	s := NewSession(extinguisherOrder(), map[string]any{"qty": "2", "price": 50})

	if s.State() != StateReady {
		t.Errorf("State() = %s, expected ready", s.State())
	}
	if s.Page() != 1 {
		t.Errorf("Page() = %d, expected 1", s.Page())
	}
	if v, _ := s.Value("total"); v != 107.0 {
		t.Errorf("total = %v, expected 107", v)
	}
	if v, _ := s.Value("agree"); v != false {
		t.Errorf("agree = %v, expected false default", v)
	}
}

func TestSetValue_RecalculatesSynchronously(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)

	if err := s.SetValue("qty", "3"); err != nil {
		t.Fatalf("SetValue(qty): %v", err)
	}
	if err := s.SetValue("price", "100"); err != nil {
		t.Fatalf("SetValue(price): %v", err)
	}

	if v, _ := s.Value("subtotal"); v != 300.0 {
		t.Errorf("subtotal = %v, expected 300", v)
	}
	if v, _ := s.Value("total"); v != 321.0 {
		t.Errorf("total = %v, expected 321 after a single edit", v)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %s, expected ready after edit", s.State())
	}
}

func TestSetValue_NumberParseFailureIsZero(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)

	if err := s.SetValue("qty", "lots"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if v, _ := s.Value("qty"); v != 0.0 {
		t.Errorf("qty = %v, expected 0", v)
	}
}

func TestSetValue_RejectsCalculationField(t *testing.T) {
	s := NewSession(extinguisherOrder(), map[string]any{"qty": 1, "price": 10})

	err := s.SetValue("total", 999)
	if !errors.Is(err, ErrReadOnlyField) {
		t.Fatalf("SetValue(total) error = %v, expected ErrReadOnlyField", err)
	}
	if v, _ := s.Value("total"); v != 10.7 {
		t.Errorf("total = %v, expected unchanged 10.7", v)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %s, expected ready", s.State())
	}
}

func TestSetValue_UnknownField(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)

	if err := s.SetValue("nope", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("SetValue(nope) error = %v, expected ErrUnknownField", err)
	}
}

func TestSetValue_CoercesByWidgetType(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)

	tests := []struct {
		field    string
		raw      any
		expected any
	}{
		{"agree", "on", true},
		{"agree", false, false},
		{"customer", 42.0, "42"},
		{"notes", nil, ""},
		{"agent", "Foam", "Foam"},
		{"price", 12, 12.0},
	}
	for _, tt := range tests {
		if err := s.SetValue(tt.field, tt.raw); err != nil {
			t.Fatalf("SetValue(%s): %v", tt.field, err)
		}
		if v, _ := s.Value(tt.field); v != tt.expected {
			t.Errorf("SetValue(%s, %#v) stored %#v, expected %#v", tt.field, tt.raw, v, tt.expected)
		}
	}
}

func TestSetValue_BadFormulaKeepsPreviousValue(t *testing.T) {
	tpl := &models.FormTemplate{ID: "tpl-2", Pages: []models.TemplatePage{{
		PageNumber: 1,
		Fields: []models.TemplateField{
			{FieldID: "a", Type: models.FieldNumber},
			{FieldID: "b", Type: models.FieldNumber},
			{FieldID: "ratio", Type: models.FieldCalculation, Formula: "a/b"},
			{FieldID: "evil", Type: models.FieldCalculation, Formula: "process.exit(1)"},
		},
	}}}
	s := NewSession(tpl, map[string]any{"a": 6, "b": 3, "evil": 5})

	if v, _ := s.Value("ratio"); v != 2.0 {
		t.Fatalf("ratio = %v, expected 2", v)
	}
	if err := s.SetValue("b", 0); err != nil {
		t.Fatalf("SetValue(b): %v", err)
	}
	if v, _ := s.Value("ratio"); v != 2.0 {
		t.Errorf("ratio = %v, expected previous value 2 after division by zero", v)
	}
	if v, _ := s.Value("evil"); v != 5.0 {
		t.Errorf("evil = %v, expected untouched 5", v)
	}
}

func TestNewSession_DropsUndeclaredValues(t *testing.T) {
	tpl := &models.FormTemplate{ID: "tpl-3", Pages: []models.TemplatePage{{
		PageNumber: 1,
		Fields: []models.TemplateField{
			{FieldID: "a", Type: models.FieldNumber},
			{FieldID: "total", Type: models.FieldCalculation, Formula: "a+c"},
		},
	}}}
	s := NewSession(tpl, map[string]any{"a": 2, "c": 5, "injected": "<script>"})

	if v, _ := s.Value("total"); v != 2.0 {
		t.Errorf("total = %v, expected 2", v)
	}
	values := s.Values()
	if len(values) != 2 {
		t.Errorf("values = %v, expected only a and total", values)
	}
	if _, ok := s.Value("injected"); ok {
		t.Error("undeclared key kept in the value map")
	}
}

func TestGoToPage_KeepsValues(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)
	if err := s.SetValue("customer", "Acme Fire Co"); err != nil {
		t.Fatal(err)
	}

	if err := s.GoToPage(2); err != nil {
		t.Fatalf("GoToPage(2): %v", err)
	}
	if err := s.SetValue("notes", "annual check"); err != nil {
		t.Fatal(err)
	}
	if err := s.GoToPage(1); err != nil {
		t.Fatalf("GoToPage(1): %v", err)
	}

	if v, _ := s.Value("customer"); v != "Acme Fire Co" {
		t.Errorf("customer = %v after page navigation", v)
	}
	if v, _ := s.Value("notes"); v != "annual check" {
		t.Errorf("notes = %v after page navigation", v)
	}
	if err := s.GoToPage(9); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("GoToPage(9) error = %v, expected ErrUnknownPage", err)
	}
}

func TestValidate_DraftAlwaysPasses(t *testing.T) {
	s := NewSession(extinguisherOrder(), map[string]any{"email": "not-an-email"})

	if err := s.Validate(models.StatusDraft); err != nil {
		t.Errorf("Validate(draft) = %v, expected nil", err)
	}
}

func TestValidate_SubmittedReportsEachField(t *testing.T) {
	s := NewSession(extinguisherOrder(), map[string]any{
		"qty":          "900",
		"email":        "not-an-email",
		"service_date": "12/05/2026",
		"agent":        "Water",
	})

	err := s.Validate(models.StatusSubmitted)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate(submitted) error = %v, expected *apperr.ValidationError", err)
	}

	expected := []string{"customer", "agree", "qty", "email", "service_date", "agent"}
	for _, id := range expected {
		if _, ok := ve.Fields[id]; !ok {
			t.Errorf("expected a problem for %q, got %v", id, ve.Fields)
		}
	}
	if len(ve.Fields) != len(expected) {
		t.Errorf("got %d problems, expected %d: %v", len(ve.Fields), len(expected), ve.Fields)
	}
}

func TestValidate_SubmittedPasses(t *testing.T) {
	s := NewSession(extinguisherOrder(), map[string]any{
		"qty":          2,
		"price":        10,
		"customer":     "Acme Fire Co",
		"email":        "ops@acme.example",
		"service_date": "2026-05-12",
		"agent":        "CO2",
		"size":         "6kg",
		"agree":        true,
	})

	if err := s.Validate(models.StatusSubmitted); err != nil {
		t.Errorf("Validate(submitted) = %v, expected nil", err)
	}
}

func TestSaveLifecycle(t *testing.T) {
	s := NewSession(extinguisherOrder(), nil)

	if err := s.BeginSave(models.StatusSubmitted); err == nil {
		t.Fatal("BeginSave(submitted) with missing required fields expected error")
	}
	if s.State() != StateReady {
		t.Fatalf("State() = %s, expected ready after blocked submit", s.State())
	}

	if err := s.BeginSave(models.StatusDraft); err != nil {
		t.Fatalf("BeginSave(draft): %v", err)
	}
	if s.State() != StateSaving {
		t.Fatalf("State() = %s, expected saving", s.State())
	}
	if err := s.SetValue("customer", "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SetValue while saving error = %v, expected ErrInvalidTransition", err)
	}

	saveErr := errors.New("store unreachable")
	if err := s.SaveFailed(saveErr); err != nil {
		t.Fatalf("SaveFailed: %v", err)
	}
	if s.State() != StateReady || s.LastError() != saveErr {
		t.Fatalf("after SaveFailed state=%s lastErr=%v", s.State(), s.LastError())
	}

	if err := s.BeginSave(models.StatusDraft); err != nil {
		t.Fatalf("BeginSave retry: %v", err)
	}
	if err := s.SaveSucceeded(); err != nil {
		t.Fatalf("SaveSucceeded: %v", err)
	}
	if s.State() != StateSaved {
		t.Fatalf("State() = %s, expected saved", s.State())
	}

	// Editing continues after a draft save.
	if err := s.SetValue("customer", "Acme"); err != nil {
		t.Errorf("SetValue after save: %v", err)
	}
	if err := s.SaveSucceeded(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SaveSucceeded from ready error = %v, expected ErrInvalidTransition", err)
	}
}
