package services

import (
	"testing"
	"time"

	"FS-FORMS/internal"
	"FS-FORMS/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Every connection to :memory: is its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := internal.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestServices(t *testing.T) (*gorm.DB, *TemplateService, *SubmissionService) {
	t.Helper()
	db := newTestDB(t)
	templates := NewTemplateService(db, time.Minute)
	return db, templates, NewSubmissionService(db, templates)
}

// serviceOrderInput is a two-page work order, declared with page 2 first.
func serviceOrderInput() *TemplateInput {
	return &TemplateInput{
		Name:        "  Extinguisher service order ",
		Description: "Annual inspection",
		CreatedBy:   "admin",
		Pages: []PageInput{
			{
				PageNumber: 2,
				Fields: []FieldInput{
					{FieldID: "customer", Type: models.FieldText, Label: "Customer", Required: true},
					{FieldID: "agent", Type: models.FieldSelect, Label: "Agent", Options: []string{"CO2", "Foam"}},
				},
			},
			{
				PageNumber: 1,
				Fields: []FieldInput{
					{FieldID: "total", Type: models.FieldCalculation, Label: "Total", Formula: "subtotal + vat"},
					{FieldID: "vat", Type: models.FieldCalculation, Label: "VAT", Formula: "subtotal * 0.07"},
					{FieldID: "subtotal", Type: models.FieldCalculation, Label: "Subtotal", Formula: "qty * price"},
					{FieldID: "qty", Type: models.FieldNumber, Label: "Quantity", Required: true, Validation: "min=1"},
					{FieldID: "price", Type: models.FieldNumber, Label: "Unit price"},
				},
			},
		},
	}
}

func fieldIDs(tpl *models.FormTemplate) [][]string {
	var out [][]string
	for _, p := range tpl.Pages {
		var ids []string
		for _, f := range p.Fields {
			ids = append(ids, f.FieldID)
		}
		out = append(out, ids)
	}
	return out
}
