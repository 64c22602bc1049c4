package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/form"
	"FS-FORMS/internal/formula"
	"FS-FORMS/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const MaxTemplateNameLength = 150

// Field ids are referenced by name inside formulas, so they must be plain
// identifiers.
var fieldIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TemplateInput is the designer payload for create and update. Version is
// only read on update: a non-zero value must match the stored version.
type TemplateInput struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CreatedBy   string      `json:"createdBy"`
	Version     int         `json:"version"`
	Pages       []PageInput `json:"pages"`
}

type PageInput struct {
	PageNumber      int          `json:"pageNumber"`
	BackgroundImage string       `json:"backgroundImage"`
	Fields          []FieldInput `json:"fields"`
}

type FieldInput struct {
	FieldID     string            `json:"fieldId"`
	Type        models.FieldType  `json:"type"`
	Label       string            `json:"label"`
	Placeholder string            `json:"placeholder"`
	Required    bool              `json:"required"`
	Validation  string            `json:"validation"`
	Formula     string            `json:"formula"`
	Options     []string          `json:"options"`
	Style       models.FieldStyle `json:"style"`
}

func (in *TemplateInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	for i := range in.Pages {
		for j := range in.Pages[i].Fields {
			f := &in.Pages[i].Fields[j]
			f.FieldID = strings.TrimSpace(f.FieldID)
			f.Formula = strings.TrimSpace(f.Formula)
			f.Validation = strings.TrimSpace(f.Validation)
		}
	}
}

// Validate checks the whole page/field graph and reports every problem at
// once, keyed by its location in the payload.
func (in *TemplateInput) Validate() error {
	problems := make(map[string]string)

	collectProblems(problems, "", validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxTemplateNameLength)),
		validation.Field(&in.Pages, validation.Required.Error("a template needs at least one page")),
	))

	pageNumbers := make(map[int]bool)
	fieldIDs := make(map[string]string)
	for i := range in.Pages {
		p := &in.Pages[i]
		prefix := fmt.Sprintf("pages[%d]", i)

		collectProblems(problems, prefix, validation.ValidateStruct(p,
			validation.Field(&p.PageNumber, validation.Required, validation.Min(1)),
		))
		if p.PageNumber > 0 {
			if pageNumbers[p.PageNumber] {
				problems[prefix+".pageNumber"] = fmt.Sprintf("page %d appears more than once", p.PageNumber)
			}
			pageNumbers[p.PageNumber] = true
		}

		for j := range p.Fields {
			f := &p.Fields[j]
			fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)

			collectProblems(problems, fieldPrefix, validation.ValidateStruct(f,
				validation.Field(&f.FieldID,
					validation.Required,
					validation.Match(fieldIDPattern).Error("must start with a letter or underscore and contain only letters, digits and underscores"),
				),
				validation.Field(&f.Type, validation.Required, validation.By(validFieldType)),
				validation.Field(&f.Formula,
					validation.When(f.Type == models.FieldCalculation, validation.Required, validation.By(validFormula)),
					validation.When(f.Type != models.FieldCalculation, validation.Empty.Error("only calculation fields take a formula")),
				),
			))

			if f.FieldID != "" {
				if first, dup := fieldIDs[f.FieldID]; dup {
					problems[fieldPrefix+".fieldId"] = fmt.Sprintf("%q is already used by %s", f.FieldID, first)
				} else {
					fieldIDs[f.FieldID] = fieldPrefix
				}
			}
			warnUnknownRules(f)
		}
	}

	if len(problems) > 0 {
		return &apperr.ValidationError{Message: "invalid template", Fields: problems}
	}
	return nil
}

func validFieldType(value any) error {
	t, _ := value.(models.FieldType)
	if !t.IsValid() {
		return fmt.Errorf("unknown field type %q", t)
	}
	return nil
}

// validFormula rejects formulas that cannot even be tokenized. Formulas that
// only fail at evaluation time (division by zero) are accepted.
func validFormula(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := formula.Evaluate(s, nil); err != nil {
		var ferr *formula.Error
		if errors.As(err, &ferr) && ferr.Msg == formula.MsgDivisionByZero {
			return nil
		}
		return err
	}
	return nil
}

func warnUnknownRules(f *FieldInput) {
	for _, r := range form.ParseRules(f.Validation) {
		if !form.KnownRule(r.Name) {
			config.LogWarn(config.GetLogger(), "services", "TemplateInput.Validate",
				"unknown validation rule is ignored", map[string]string{"field_id": f.FieldID, "rule": r.Name})
		}
	}
	if f.Type.IsChoice() && len(f.Options) == 0 {
		config.LogWarn(config.GetLogger(), "services", "TemplateInput.Validate",
			"choice field has no options", map[string]string{"field_id": f.FieldID})
	}
}

func collectProblems(problems map[string]string, prefix string, err error) {
	if err == nil {
		return
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		problems[strings.TrimPrefix(prefix, ".")] = err.Error()
		return
	}
	for key, e := range errs {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		collectProblems(problems, name, e)
	}
}

// buildPages turns the input graph into rows with fresh ids.
func (in *TemplateInput) buildPages(templateID string) []models.TemplatePage {
	pages := make([]models.TemplatePage, 0, len(in.Pages))
	for _, p := range in.Pages {
		page := models.TemplatePage{
			ID:              uuid.New().String(),
			TemplateID:      templateID,
			PageNumber:      p.PageNumber,
			BackgroundImage: p.BackgroundImage,
		}
		for i, f := range p.Fields {
			options := f.Options
			if options == nil {
				options = []string{}
			}
			page.Fields = append(page.Fields, models.TemplateField{
				ID:          uuid.New().String(),
				TemplateID:  templateID,
				PageID:      page.ID,
				FieldID:     f.FieldID,
				Type:        f.Type,
				Label:       f.Label,
				Placeholder: f.Placeholder,
				Required:    f.Required,
				Validation:  f.Validation,
				Formula:     f.Formula,
				Options:     options,
				Style:       f.Style,
				SortOrder:   i,
			})
		}
		pages = append(pages, page)
	}
	return pages
}

// InputFromTemplate converts a stored template back into a designer payload.
func InputFromTemplate(tpl *models.FormTemplate) *TemplateInput {
	in := &TemplateInput{
		Name:        tpl.Name,
		Description: tpl.Description,
		CreatedBy:   tpl.CreatedBy,
		Version:     tpl.Version,
	}
	for _, p := range tpl.Pages {
		page := PageInput{PageNumber: p.PageNumber, BackgroundImage: p.BackgroundImage}
		for _, f := range p.Fields {
			page.Fields = append(page.Fields, FieldInput{
				FieldID:     f.FieldID,
				Type:        f.Type,
				Label:       f.Label,
				Placeholder: f.Placeholder,
				Required:    f.Required,
				Validation:  f.Validation,
				Formula:     f.Formula,
				Options:     append([]string(nil), f.Options...),
				Style:       f.Style,
			})
		}
		in.Pages = append(in.Pages, page)
	}
	return in
}
