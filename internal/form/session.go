// Package form drives one editing session over a form template: it holds the
// shared value map, applies user edits, keeps calculation fields current and
// renders widget descriptors for a page.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"FS-FORMS/internal/config"
	"FS-FORMS/internal/formula"
	"FS-FORMS/internal/models"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateEditing    State = "editing"
	StateSaving     State = "saving"
	StateSaved      State = "saved"
	StateSaveFailed State = "save_failed"
)

var transitions = map[State][]State{
	StateLoading:    {StateReady},
	StateReady:      {StateEditing, StateSaving},
	StateEditing:    {StateReady},
	StateSaving:     {StateSaved, StateSaveFailed},
	StateSaved:      {StateEditing, StateSaving},
	StateSaveFailed: {StateReady},
}

var (
	ErrReadOnlyField     = errors.New("calculation fields cannot be edited")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownPage       = errors.New("unknown page")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

type Session struct {
	template *models.FormTemplate
	fields   map[string]models.TemplateField
	calcs    []formula.Definition
	values   map[string]any
	page     int
	state    State
	lastErr  error
	log      logrus.FieldLogger
}

// NewSession loads tpl with initial values and runs the first
// recalculation. The session starts on the lowest page number, in Ready.
func NewSession(tpl *models.FormTemplate, initial map[string]any) *Session {
	s := &Session{
		template: tpl,
		fields:   make(map[string]models.TemplateField),
		values:   make(map[string]any),
		state:    StateLoading,
		log:      config.GetLogger().WithField("template_id", tpl.ID),
	}

	for _, p := range tpl.Pages {
		if s.page == 0 || p.PageNumber < s.page {
			s.page = p.PageNumber
		}
		for _, f := range p.Fields {
			s.fields[f.FieldID] = f
			if f.Type == models.FieldCalculation {
				s.calcs = append(s.calcs, formula.Definition{FieldID: f.FieldID, Formula: f.Formula})
			}
			if f.Type.IsChoice() && len(f.Options) == 0 {
				s.log.WithField("field_id", f.FieldID).Warn("choice field has no options")
			}
		}
	}

	for k, v := range initial {
		f, ok := s.fields[k]
		if !ok {
			s.log.WithField("key", k).Warn("dropping value for a field the template does not define")
			continue
		}
		s.values[k] = coerce(f.Type, v)
	}
	for id, f := range s.fields {
		if _, ok := s.values[id]; !ok && f.Type == models.FieldCheckbox {
			s.values[id] = false
		}
	}

	s.recalculate()
	s.state = StateReady
	return s
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Page() int {
	return s.page
}

// LastError is the error recorded by the most recent SaveFailed.
func (s *Session) LastError() error {
	return s.lastErr
}

// Values returns a copy of the current value map.
func (s *Session) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Session) Value(fieldID string) (any, bool) {
	v, ok := s.values[fieldID]
	return v, ok
}

func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}

// SetValue is the user-edit entry point. The value is coerced to the
// widget's type, then every calculation field is recomputed before it
// returns. Calculation fields are rejected.
func (s *Session) SetValue(fieldID string, raw any) error {
	f, ok := s.fields[fieldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}
	if !f.Type.IsEditable() {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, fieldID)
	}
	if err := s.transition(StateEditing); err != nil {
		return err
	}
	s.values[fieldID] = coerce(f.Type, raw)
	s.recalculate()
	return s.transition(StateReady)
}

// GoToPage switches the visible page. Values are shared by all pages and
// are left untouched.
func (s *Session) GoToPage(number int) error {
	if _, ok := s.template.Page(number); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPage, number)
	}
	s.page = number
	return nil
}

func (s *Session) recalculate() {
	if len(s.calcs) == 0 {
		return
	}
	res := formula.Recalculate(s.calcs, s.values)
	for _, f := range res.Failures {
		s.log.WithFields(logrus.Fields{
			"field_id": f.FieldID,
			"error":    f.Err.Error(),
		}).Warn("formula evaluation failed, keeping previous value")
	}
	if len(res.Cyclic) > 0 {
		s.log.WithField("field_ids", res.Cyclic).Warn("calculation fields reference each other in a cycle")
	}
}

// BeginSave validates for status and moves the session to Saving. A draft
// always passes validation.
func (s *Session) BeginSave(status models.SubmissionStatus) error {
	if err := s.Validate(status); err != nil {
		return err
	}
	return s.transition(StateSaving)
}

func (s *Session) SaveSucceeded() error {
	s.lastErr = nil
	return s.transition(StateSaved)
}

// SaveFailed records err and returns the session to Ready.
func (s *Session) SaveFailed(err error) error {
	if terr := s.transition(StateSaveFailed); terr != nil {
		return terr
	}
	s.lastErr = err
	return s.transition(StateReady)
}

// coerce converts a raw edit into the value type of a widget.
func coerce(t models.FieldType, raw any) any {
	switch t {
	case models.FieldNumber, models.FieldCalculation:
		return toFloat(raw)
	case models.FieldCheckbox:
		return toBool(raw)
	default:
		switch v := raw.(type) {
		case nil:
			return ""
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}
}

func toFloat(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}
