package models

import (
	"time"
)

// FieldType is the widget variant of a template field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldCalculation FieldType = "calculation"
	FieldDate        FieldType = "date"
	FieldCheckbox    FieldType = "checkbox"
	FieldSelect      FieldType = "select"
	FieldRadio       FieldType = "radio"
)

var FieldTypes = []FieldType{
	FieldText, FieldTextarea, FieldNumber, FieldCalculation,
	FieldDate, FieldCheckbox, FieldSelect, FieldRadio,
}

func (t FieldType) IsValid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// IsChoice reports whether the widget draws its values from Options.
func (t FieldType) IsChoice() bool {
	return t == FieldSelect || t == FieldRadio
}

// IsEditable is false only for calculation fields, whose value is always derived.
func (t FieldType) IsEditable() bool {
	return t != FieldCalculation
}

type FormTemplate struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(150);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedBy   string    `gorm:"type:varchar(100)" json:"createdBy,omitempty"`
	UsageCount  int       `gorm:"not null;default:0" json:"usageCount"`
	Version     int       `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `gorm:"index" json:"updatedAt"`

	Pages []TemplatePage `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"pages,omitempty"`
}

func (FormTemplate) TableName() string {
	return "form_templates"
}

// Fields returns every field of the template across all pages.
func (t *FormTemplate) Fields() []TemplateField {
	var fields []TemplateField
	for _, p := range t.Pages {
		fields = append(fields, p.Fields...)
	}
	return fields
}

// Page returns the page with the given 1-based number.
func (t *FormTemplate) Page(number int) (*TemplatePage, bool) {
	for i := range t.Pages {
		if t.Pages[i].PageNumber == number {
			return &t.Pages[i], true
		}
	}
	return nil, false
}

type TemplatePage struct {
	ID              string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID      string `gorm:"type:varchar(36);not null;uniqueIndex:idx_template_page_number" json:"-"`
	PageNumber      int    `gorm:"not null;uniqueIndex:idx_template_page_number" json:"pageNumber"`
	BackgroundImage string `gorm:"type:text" json:"backgroundImage,omitempty"`

	Fields []TemplateField `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE" json:"fields"`
}

func (TemplatePage) TableName() string {
	return "template_pages"
}

type TemplateField struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID  string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_template_field_id" json:"-"`
	PageID      string     `gorm:"type:varchar(36);not null;index" json:"-"`
	FieldID     string     `gorm:"column:field_id;type:varchar(100);not null;uniqueIndex:idx_template_field_id" json:"fieldId"`
	Type        FieldType  `gorm:"type:varchar(20);not null" json:"type"`
	Label       string     `gorm:"type:varchar(255)" json:"label"`
	Placeholder string     `gorm:"type:varchar(255)" json:"placeholder,omitempty"`
	Required    bool       `gorm:"not null;default:false" json:"required,omitempty"`
	Validation  string     `gorm:"type:varchar(255)" json:"validation,omitempty"`
	Formula     string     `gorm:"type:text" json:"formula,omitempty"`
	Options     []string   `gorm:"type:text;serializer:json" json:"options,omitempty"`
	Style       FieldStyle `gorm:"embedded;embeddedPrefix:style_" json:"style"`
	// SortOrder keeps declaration order within a page.
	SortOrder int `gorm:"not null;default:0" json:"-"`
}

func (TemplateField) TableName() string {
	return "template_fields"
}

// FieldStyle is the absolute layout of a field on its page background.
type FieldStyle struct {
	Left            float64 `json:"left"`
	Top             float64 `json:"top"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	FontSize        float64 `json:"fontSize"`
	BackgroundColor string  `gorm:"type:varchar(32)" json:"backgroundColor"`
	Color           string  `gorm:"type:varchar(32)" json:"color"`
	ZIndex          int     `json:"zIndex"`
	BorderColor     string  `gorm:"type:varchar(32)" json:"borderColor,omitempty"`
	FontWeight      string  `gorm:"type:varchar(16)" json:"fontWeight,omitempty"`
}
