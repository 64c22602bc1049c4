package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/form"
	"FS-FORMS/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SubmissionService struct {
	db              *gorm.DB
	templateService *TemplateService
	logger          *logrus.Logger
}

func NewSubmissionService(db *gorm.DB, templateService *TemplateService) *SubmissionService {
	return &SubmissionService{
		db:              db,
		templateService: templateService,
		logger:          config.GetLogger(),
	}
}

type SubmissionInput struct {
	TemplateID  string                  `json:"templateId" binding:"required"`
	OrderID     string                  `json:"orderId"`
	CustomerID  string                  `json:"customerId"`
	Values      map[string]any          `json:"values"`
	Status      models.SubmissionStatus `json:"status"`
	SubmittedBy string                  `json:"submittedBy"`
}

type SubmissionFilter struct {
	TemplateID string
	Status     models.SubmissionStatus
	Limit      int
	Offset     int
}

// RecordSubmission stores one save of a filled form. Calculation fields are
// recomputed from the submitted values before the row is written. A
// submitted form also bumps the template's usage count; that step is
// best-effort and only logged when it fails.
func (s *SubmissionService) RecordSubmission(ctx context.Context, in *SubmissionInput) (*models.FormSubmission, error) {
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if !in.Status.IsValid() {
		return nil, &apperr.ValidationError{
			Message: "invalid submission",
			Fields:  map[string]string{"status": fmt.Sprintf("must be %q or %q", models.StatusDraft, models.StatusSubmitted)},
		}
	}

	template, err := s.templateService.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}

	session := form.NewSession(template, in.Values)
	if err := session.BeginSave(in.Status); err != nil {
		return nil, mergeSubmitterProblem(err, in)
	}
	if in.Status == models.StatusSubmitted && strings.TrimSpace(in.SubmittedBy) == "" {
		_ = session.SaveFailed(errors.New("missing submitter"))
		return nil, mergeSubmitterProblem(nil, in)
	}

	dataJSON, err := json.Marshal(session.Values())
	if err != nil {
		_ = session.SaveFailed(err)
		return nil, fmt.Errorf("failed to marshal form values: %w", err)
	}

	submission := &models.FormSubmission{
		ID:         uuid.New().String(),
		TemplateID: template.ID,
		OrderID:    strings.TrimSpace(in.OrderID),
		CustomerID: strings.TrimSpace(in.CustomerID),
		DataJSON:   string(dataJSON),
		Status:     in.Status,
	}
	if in.Status == models.StatusSubmitted {
		now := time.Now()
		submission.SubmittedBy = strings.TrimSpace(in.SubmittedBy)
		submission.SubmittedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		_ = session.SaveFailed(err)
		return nil, apperr.Persistence("record submission", err)
	}
	_ = session.SaveSucceeded()

	if submission.Status == models.StatusSubmitted {
		if err := s.templateService.IncrementUsage(ctx, template.ID); err != nil {
			config.LogError(s.logger, "services", "RecordSubmission", "increment usage count",
				logrus.Fields{"template_id": template.ID, "submission_id": submission.ID}, err)
		}
	}

	return submission, nil
}

// mergeSubmitterProblem adds the missing-submitter message to the form's
// own validation problems so the caller sees everything at once.
func mergeSubmitterProblem(err error, in *SubmissionInput) error {
	missing := in.Status == models.StatusSubmitted && strings.TrimSpace(in.SubmittedBy) == ""

	var ve *apperr.ValidationError
	if err != nil && !errors.As(err, &ve) {
		return err
	}
	if ve == nil {
		ve = &apperr.ValidationError{Message: "form has invalid fields", Fields: map[string]string{}}
	}
	if missing {
		ve.Fields["submittedBy"] = "is required when submitting"
	}
	return ve
}

func (s *SubmissionService) GetSubmission(ctx context.Context, submissionID string) (*models.FormSubmission, error) {
	var submission models.FormSubmission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("submission", submissionID)
		}
		return nil, apperr.Persistence("get submission", err)
	}
	return &submission, nil
}

// ListSubmissions returns submissions newest first together with the total
// count for the filter.
func (s *SubmissionService) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]models.FormSubmission, int64, error) {
	var submissions []models.FormSubmission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.FormSubmission{})
	if filter.TemplateID != "" {
		query = query.Where("template_id = ?", filter.TemplateID)
	}
	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, 0, &apperr.ValidationError{
				Message: "invalid filter",
				Fields:  map[string]string{"status": fmt.Sprintf("must be %q or %q", models.StatusDraft, models.StatusSubmitted)},
			}
		}
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence("count submissions", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, 0, apperr.Persistence("list submissions", err)
	}

	return submissions, total, nil
}
