package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
)

func (s SubmissionStatus) IsValid() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// FormSubmission is one save of a filled form. Saves are append-only: a
// draft followed by a submit produces two rows.
type FormSubmission struct {
	ID          string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID  string           `gorm:"type:varchar(36);not null;index" json:"templateId"`
	OrderID     string           `gorm:"type:varchar(64);index" json:"orderId,omitempty"`
	CustomerID  string           `gorm:"type:varchar(64);index" json:"customerId,omitempty"`
	DataJSON    string           `gorm:"column:data_json;type:json" json:"dataJson"`
	Status      SubmissionStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	SubmittedBy string           `gorm:"type:varchar(100)" json:"submittedBy,omitempty"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	CreatedAt   time.Time        `gorm:"index" json:"createdAt"`
}

func (FormSubmission) TableName() string {
	return "form_submissions"
}

// Values decodes the stored value map.
func (s *FormSubmission) Values() (map[string]any, error) {
	values := make(map[string]any)
	if s.DataJSON == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(s.DataJSON), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission data: %w", err)
	}
	return values, nil
}
