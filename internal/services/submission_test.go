package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/models"

	"gorm.io/gorm"
)

func validSubmission(templateID string) *SubmissionInput {
	return &SubmissionInput{
		TemplateID:  templateID,
		OrderID:     "SO-1001",
		CustomerID:  "C-42",
		Status:      models.StatusSubmitted,
		SubmittedBy: "tech-7",
		Values: map[string]any{
			"qty":      "4",
			"price":    25.0,
			"customer": "Acme Fire Co",
			"agent":    "CO2",
		},
	}
}

func usageCount(t *testing.T, templates *TemplateService, id string) int {
	t.Helper()
	tpl, err := templates.GetTemplate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	return tpl.UsageCount
}

func TestRecordSubmission_DraftSkipsValidation(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	sub, err := submissions.RecordSubmission(ctx, &SubmissionInput{
		TemplateID: tpl.ID,
		Values:     map[string]any{"qty": "-3"},
	})
	if err != nil {
		t.Fatalf("RecordSubmission(draft): %v", err)
	}
	if sub.Status != models.StatusDraft || sub.SubmittedAt != nil {
		t.Errorf("draft = status %s submittedAt %v", sub.Status, sub.SubmittedAt)
	}
	if n := usageCount(t, templates, tpl.ID); n != 0 {
		t.Errorf("usage count = %d after a draft, expected 0", n)
	}
}

func TestRecordSubmission_SubmittedIncrementsUsage(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		sub, err := submissions.RecordSubmission(ctx, validSubmission(tpl.ID))
		if err != nil {
			t.Fatalf("RecordSubmission #%d: %v", i, err)
		}
		if sub.SubmittedAt == nil || sub.SubmittedBy != "tech-7" {
			t.Errorf("submission #%d = submittedAt %v by %q", i, sub.SubmittedAt, sub.SubmittedBy)
		}
		if n := usageCount(t, templates, tpl.ID); n != i {
			t.Errorf("usage count = %d after %d submissions", n, i)
		}
	}
}

func TestRecordSubmission_RecalculatesServerSide(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validSubmission(tpl.ID)
	in.Values["total"] = 999999
	sub, err := submissions.RecordSubmission(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	values, err := sub.Values()
	if err != nil {
		t.Fatal(err)
	}
	if values["subtotal"] != 100.0 || values["vat"] != 7.0 || values["total"] != 107.0 {
		t.Errorf("stored calculations = subtotal %v vat %v total %v", values["subtotal"], values["vat"], values["total"])
	}
	if values["qty"] != 4.0 {
		t.Errorf("qty stored as %#v, expected coerced 4", values["qty"])
	}
}

func TestRecordSubmission_SubmittedReportsAllProblems(t *testing.T) {
	ctx := context.Background()
	db, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	_, err = submissions.RecordSubmission(ctx, &SubmissionInput{
		TemplateID: tpl.ID,
		Status:     models.StatusSubmitted,
		Values:     map[string]any{"qty": 0, "agent": "Water"},
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("RecordSubmission error = %v, expected validation error", err)
	}
	for _, key := range []string{"customer", "qty", "agent", "submittedBy"} {
		if _, ok := ve.Fields[key]; !ok {
			t.Errorf("missing problem for %s in %v", key, ve.Fields)
		}
	}

	var stored int64
	db.Model(&models.FormSubmission{}).Count(&stored)
	if stored != 0 {
		t.Errorf("%d submissions stored after rejection", stored)
	}
	if n := usageCount(t, templates, tpl.ID); n != 0 {
		t.Errorf("usage count = %d after rejection", n)
	}
}

func TestRecordSubmission_MissingSubmitterOnly(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validSubmission(tpl.ID)
	in.SubmittedBy = " "
	_, err = submissions.RecordSubmission(ctx, in)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields["submittedBy"] == "" {
		t.Errorf("RecordSubmission error = %v, expected only submittedBy", err)
	}
}

func TestRecordSubmission_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := submissions.RecordSubmission(ctx, &SubmissionInput{TemplateID: "missing"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown template error = %v, expected not found", err)
	}
	if _, err := submissions.RecordSubmission(ctx, &SubmissionInput{TemplateID: tpl.ID, Status: "archived"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad status error = %v, expected validation error", err)
	}
}

func TestRecordSubmission_EverySaveAppends(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	draft := validSubmission(tpl.ID)
	draft.Status = models.StatusDraft
	first, err := submissions.RecordSubmission(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}
	second, err := submissions.RecordSubmission(ctx, validSubmission(tpl.ID))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("second save reused the first row")
	}
	if first.SubmittedBy != "" || first.SubmittedAt != nil {
		t.Errorf("draft carries submitter %q at %v", first.SubmittedBy, first.SubmittedAt)
	}
	stored, err := submissions.GetSubmission(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.SubmittedBy != "" {
		t.Errorf("stored draft submittedBy = %q, expected empty", stored.SubmittedBy)
	}

	list, total, err := submissions.ListSubmissions(ctx, SubmissionFilter{TemplateID: tpl.ID})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("ListSubmissions = %d rows, total %d, expected 2", len(list), total)
	}
}

func TestRecordSubmission_DropsUndeclaredValues(t *testing.T) {
	ctx := context.Background()
	_, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, &TemplateInput{
		Name: "Sum check",
		Pages: []PageInput{{
			PageNumber: 1,
			Fields: []FieldInput{
				{FieldID: "a", Type: models.FieldNumber, Label: "A"},
				{FieldID: "total", Type: models.FieldCalculation, Label: "Total", Formula: "a+c"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	sub, err := submissions.RecordSubmission(ctx, &SubmissionInput{
		TemplateID:  tpl.ID,
		Status:      models.StatusSubmitted,
		SubmittedBy: "tech-7",
		Values:      map[string]any{"a": 2, "c": 5, "injected": "<script>"},
	})
	if err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}

	values, err := sub.Values()
	if err != nil {
		t.Fatal(err)
	}
	if values["total"] != 2.0 {
		t.Errorf("total = %v, expected 2 with c undefined", values["total"])
	}
	for _, key := range []string{"c", "injected"} {
		if _, ok := values[key]; ok {
			t.Errorf("undeclared key %q stored in %s", key, sub.DataJSON)
		}
	}
}

func TestRecordSubmission_CounterFailureStillSaves(t *testing.T) {
	ctx := context.Background()
	db, templates, submissions := newTestServices(t)
	tpl, err := templates.CreateTemplate(ctx, serviceOrderInput())
	if err != nil {
		t.Fatal(err)
	}

	err = db.Callback().Update().Before("gorm:update").Register("test:fail_usage", func(tx *gorm.DB) {
		if tx.Statement.Table == "form_templates" {
			tx.AddError(errors.New("counter store unavailable"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	sub, err := submissions.RecordSubmission(ctx, validSubmission(tpl.ID))
	if err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	if _, err := submissions.GetSubmission(ctx, sub.ID); err != nil {
		t.Errorf("submission not stored: %v", err)
	}
	if n := usageCount(t, templates, tpl.ID); n != 0 {
		t.Errorf("usage count = %d, expected the failed increment to leave 0", n)
	}
}

func TestListSubmissions_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	db, _, submissions := newTestServices(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := models.StatusDraft
		if i%2 == 0 {
			status = models.StatusSubmitted
		}
		row := &models.FormSubmission{
			ID:         fmt.Sprintf("sub-%d", i),
			TemplateID: "tpl-a",
			DataJSON:   "{}",
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.Create(row).Error; err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Create(&models.FormSubmission{ID: "other", TemplateID: "tpl-b", DataJSON: "{}", Status: models.StatusSubmitted, CreatedAt: base.Add(-time.Hour)}).Error; err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filter   SubmissionFilter
		expected []string
		total    int64
	}{
		{"all for template", SubmissionFilter{TemplateID: "tpl-a"}, []string{"sub-4", "sub-3", "sub-2", "sub-1", "sub-0"}, 5},
		{"submitted only", SubmissionFilter{TemplateID: "tpl-a", Status: models.StatusSubmitted}, []string{"sub-4", "sub-2", "sub-0"}, 3},
		{"second page", SubmissionFilter{TemplateID: "tpl-a", Limit: 2, Offset: 2}, []string{"sub-2", "sub-1"}, 5},
		{"every template", SubmissionFilter{Status: models.StatusSubmitted}, []string{"sub-4", "sub-2", "sub-0", "other"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := submissions.ListSubmissions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListSubmissions: %v", err)
			}
			if total != tt.total {
				t.Errorf("total = %d, expected %d", total, tt.total)
			}
			var ids []string
			for _, s := range list {
				ids = append(ids, s.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.expected) {
				t.Errorf("ids = %v, expected %v", ids, tt.expected)
			}
		})
	}

	if _, _, err := submissions.ListSubmissions(ctx, SubmissionFilter{Status: "archived"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad status filter error = %v", err)
	}
}

func TestGetSubmission_NotFound(t *testing.T) {
	_, _, submissions := newTestServices(t)

	if _, err := submissions.GetSubmission(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetSubmission error = %v, expected not found", err)
	}
}
