package form

import (
	"fmt"
	"sort"

	"FS-FORMS/internal/models"
)

type Control string

const (
	ControlInput      Control = "input"
	ControlTextarea   Control = "textarea"
	ControlCheckbox   Control = "checkbox"
	ControlSelect     Control = "select"
	ControlRadioGroup Control = "radio-group"
)

// Widget is everything a client needs to draw one field.
type Widget struct {
	FieldID     string            `json:"fieldId"`
	Type        models.FieldType  `json:"type"`
	Control     Control           `json:"control"`
	InputType   string            `json:"inputType,omitempty"`
	Label       string            `json:"label"`
	Placeholder string            `json:"placeholder,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
	Value       any               `json:"value"`
	Choices     []Choice          `json:"choices,omitempty"`
	Style       models.FieldStyle `json:"style"`
}

// Choice is one option of a select or one control of a radio group. Radio
// controls of the same field share Name.
type Choice struct {
	Name     string `json:"name,omitempty"`
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Render builds the widgets of a page, ordered by position then stacking.
func (s *Session) Render(pageNumber int) ([]Widget, error) {
	page, ok := s.template.Page(pageNumber)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPage, pageNumber)
	}

	widgets := make([]Widget, 0, len(page.Fields))
	for _, f := range page.Fields {
		widgets = append(widgets, s.widget(f))
	}
	sort.SliceStable(widgets, func(i, j int) bool {
		a, b := widgets[i].Style, widgets[j].Style
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.ZIndex < b.ZIndex
	})
	return widgets, nil
}

// RenderCurrent renders the page the session is on.
func (s *Session) RenderCurrent() ([]Widget, error) {
	return s.Render(s.page)
}

func (s *Session) widget(f models.TemplateField) Widget {
	w := Widget{
		FieldID:     f.FieldID,
		Type:        f.Type,
		Label:       f.Label,
		Placeholder: f.Placeholder,
		Required:    f.Required,
		Value:       s.values[f.FieldID],
		Style:       f.Style,
	}

	switch f.Type {
	case models.FieldTextarea:
		w.Control = ControlTextarea
		w.Value = stringValue(w.Value)
	case models.FieldNumber:
		w.Control = ControlInput
		w.InputType = "number"
		w.Value = toFloat(w.Value)
	case models.FieldCalculation:
		w.Control = ControlInput
		w.InputType = "number"
		w.Disabled = true
		w.Value = toFloat(w.Value)
	case models.FieldDate:
		w.Control = ControlInput
		w.InputType = "date"
		w.Value = stringValue(w.Value)
	case models.FieldCheckbox:
		w.Control = ControlCheckbox
		w.Value = toBool(w.Value)
	case models.FieldSelect:
		w.Control = ControlSelect
		current := stringValue(w.Value)
		w.Value = current
		w.Choices = append(w.Choices, Choice{Value: "", Label: "", Selected: current == ""})
		for _, opt := range f.Options {
			w.Choices = append(w.Choices, Choice{Value: opt, Label: opt, Selected: current == opt})
		}
	case models.FieldRadio:
		w.Control = ControlRadioGroup
		current := stringValue(w.Value)
		w.Value = current
		for _, opt := range f.Options {
			w.Choices = append(w.Choices, Choice{Name: f.FieldID, Value: opt, Label: opt, Selected: current == opt})
		}
	default:
		w.Control = ControlInput
		w.InputType = "text"
		w.Value = stringValue(w.Value)
	}
	return w
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
