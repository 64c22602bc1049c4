package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/models"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	templateCachePrefix = "template:"
	templateLockPrefix  = "lock:template:"
	templateLockTTL     = 30 * time.Second
)

type TemplateService struct {
	db       *gorm.DB
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewTemplateService(db *gorm.DB, cacheTTL time.Duration) *TemplateService {
	return &TemplateService{
		db:       db,
		cacheTTL: cacheTTL,
		logger:   config.GetLogger(),
	}
}

func (s *TemplateService) CreateTemplate(ctx context.Context, in *TemplateInput) (*models.FormTemplate, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	template := &models.FormTemplate{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
		Version:     1,
	}
	template.Pages = in.buildPages(template.ID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(template).Error; err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
		return createPages(tx, template.Pages)
	})
	if err != nil {
		return nil, apperr.Persistence("create template", err)
	}

	sortTemplate(template)
	return template, nil
}

// GetTemplate returns the full page/field graph, reading through the Redis
// cache when it is configured.
func (s *TemplateService) GetTemplate(ctx context.Context, templateID string) (*models.FormTemplate, error) {
	var cached models.FormTemplate
	hit, err := config.GetRedisObject(ctx, templateCachePrefix+templateID, &cached)
	if err != nil {
		config.LogError(s.logger, "services", "GetTemplate", "read template cache", templateID, err)
	}
	if hit {
		restoreKeys(&cached)
		return &cached, nil
	}

	template, err := s.loadTemplate(s.db.WithContext(ctx), templateID)
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisObject(ctx, templateCachePrefix+templateID, template, s.cacheTTL); err != nil {
		config.LogError(s.logger, "services", "GetTemplate", "write template cache", templateID, err)
	}
	return template, nil
}

func (s *TemplateService) loadTemplate(db *gorm.DB, templateID string) (*models.FormTemplate, error) {
	var template models.FormTemplate
	err := db.
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("page_number ASC") }).
		Preload("Pages.Fields", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&template, "id = ?", templateID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("template", templateID)
		}
		return nil, apperr.Persistence("get template", err)
	}
	return &template, nil
}

// UpdateTemplate replaces the whole page/field graph in one transaction.
// Every page and field gets a new id. A non-zero in.Version must match the
// stored version, otherwise the update is rejected as stale.
func (s *TemplateService) UpdateTemplate(ctx context.Context, templateID string, in *TemplateInput) (*models.FormTemplate, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	lock, err := config.ObtainLock(ctx, templateLockPrefix+templateID, templateLockTTL)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, apperr.Conflict("template %s is being updated by another request", templateID)
		}
		return nil, apperr.Persistence("lock template", err)
	}
	defer config.ReleaseLock(ctx, lock)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.FormTemplate
		if err := tx.First(&current, "id = ?", templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("template", templateID)
			}
			return fmt.Errorf("failed to load template: %w", err)
		}
		if in.Version != 0 && in.Version != current.Version {
			return apperr.Conflict("template %s is at version %d, update was based on version %d",
				templateID, current.Version, in.Version)
		}

		result := tx.Model(&models.FormTemplate{}).
			Where("id = ? AND version = ?", templateID, current.Version).
			Updates(map[string]any{
				"name":        in.Name,
				"description": in.Description,
				"version":     current.Version + 1,
				"updated_at":  time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update template: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Conflict("template %s was modified concurrently", templateID)
		}

		if err := deleteGraph(tx, templateID); err != nil {
			return err
		}
		return createPages(tx, in.buildPages(templateID))
	})
	if err != nil {
		return nil, wrapPersistence("update template", err)
	}

	s.invalidate(ctx, templateID)
	return s.loadTemplate(s.db.WithContext(ctx), templateID)
}

// DeleteTemplate removes the template with its pages and fields. Templates
// that already have submissions are only deleted with force, which removes
// the submissions too.
func (s *TemplateService) DeleteTemplate(ctx context.Context, templateID string, force bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.FormTemplate
		if err := tx.First(&template, "id = ?", templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("template", templateID)
			}
			return fmt.Errorf("failed to load template: %w", err)
		}

		var submissions int64
		if err := tx.Model(&models.FormSubmission{}).Where("template_id = ?", templateID).Count(&submissions).Error; err != nil {
			return fmt.Errorf("failed to count submissions: %w", err)
		}
		if submissions > 0 {
			if !force {
				return apperr.Conflict("template %s has %d submissions; delete with force to remove them as well",
					templateID, submissions)
			}
			if err := tx.Where("template_id = ?", templateID).Delete(&models.FormSubmission{}).Error; err != nil {
				return fmt.Errorf("failed to delete submissions: %w", err)
			}
		}

		if err := deleteGraph(tx, templateID); err != nil {
			return err
		}
		if err := tx.Delete(&template).Error; err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		return nil
	})
	if err != nil {
		return wrapPersistence("delete template", err)
	}

	s.invalidate(ctx, templateID)
	return nil
}

// ListTemplates returns template summaries (without pages), most recently
// updated first.
func (s *TemplateService) ListTemplates(ctx context.Context) ([]models.FormTemplate, error) {
	var templates []models.FormTemplate
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&templates).Error; err != nil {
		return nil, apperr.Persistence("list templates", err)
	}
	return templates, nil
}

// DuplicateTemplate deep-copies a template under a new id. An empty name
// becomes "<source name> (copy)".
func (s *TemplateService) DuplicateTemplate(ctx context.Context, templateID, name string) (*models.FormTemplate, error) {
	source, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	in := InputFromTemplate(source)
	in.Version = 0
	in.Name = strings.TrimSpace(name)
	if in.Name == "" {
		in.Name = copyName(source.Name)
	}
	return s.CreateTemplate(ctx, in)
}

// SetPageBackground points a page at an uploaded background image.
func (s *TemplateService) SetPageBackground(ctx context.Context, templateID string, pageNumber int, ref string) error {
	result := s.db.WithContext(ctx).Model(&models.TemplatePage{}).
		Where("template_id = ? AND page_number = ?", templateID, pageNumber).
		Update("background_image", ref)
	if result.Error != nil {
		return apperr.Persistence("set page background", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("page", fmt.Sprintf("%s/%d", templateID, pageNumber))
	}
	s.invalidate(ctx, templateID)
	return nil
}

// BackgroundRefs lists every background reference still used by a page.
func (s *TemplateService) BackgroundRefs(ctx context.Context) (map[string]bool, error) {
	var refs []string
	err := s.db.WithContext(ctx).Model(&models.TemplatePage{}).
		Where("background_image IS NOT NULL AND background_image <> ''").
		Pluck("background_image", &refs).Error
	if err != nil {
		return nil, apperr.Persistence("list page backgrounds", err)
	}
	used := make(map[string]bool, len(refs))
	for _, r := range refs {
		used[r] = true
	}
	return used, nil
}

// IncrementUsage bumps usage_count atomically. updated_at is left alone so a
// submission does not reorder the template list.
func (s *TemplateService) IncrementUsage(ctx context.Context, templateID string) error {
	err := s.db.WithContext(ctx).Model(&models.FormTemplate{}).
		Where("id = ?", templateID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to increment usage count: %w", err)
	}
	s.invalidate(ctx, templateID)
	return nil
}

func (s *TemplateService) invalidate(ctx context.Context, templateID string) {
	if err := config.RemoveRedisKey(ctx, templateCachePrefix+templateID); err != nil {
		config.LogError(s.logger, "services", "invalidate", "remove template cache", templateID, err)
	}
}

func createPages(tx *gorm.DB, pages []models.TemplatePage) error {
	for i := range pages {
		if err := tx.Omit(clause.Associations).Create(&pages[i]).Error; err != nil {
			return fmt.Errorf("failed to save page %d: %w", pages[i].PageNumber, err)
		}
		if len(pages[i].Fields) == 0 {
			continue
		}
		if err := tx.Create(&pages[i].Fields).Error; err != nil {
			return fmt.Errorf("failed to save fields of page %d: %w", pages[i].PageNumber, err)
		}
	}
	return nil
}

func deleteGraph(tx *gorm.DB, templateID string) error {
	if err := tx.Where("template_id = ?", templateID).Delete(&models.TemplateField{}).Error; err != nil {
		return fmt.Errorf("failed to delete fields: %w", err)
	}
	if err := tx.Where("template_id = ?", templateID).Delete(&models.TemplatePage{}).Error; err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	return nil
}

// wrapPersistence leaves typed errors alone and marks anything else as a
// store failure.
func wrapPersistence(op string, err error) error {
	var httpErr apperr.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	return apperr.Persistence(op, err)
}

func sortTemplate(t *models.FormTemplate) {
	sort.SliceStable(t.Pages, func(i, j int) bool {
		return t.Pages[i].PageNumber < t.Pages[j].PageNumber
	})
}

// restoreKeys fills the foreign keys that are not part of the JSON shape.
func restoreKeys(t *models.FormTemplate) {
	for i := range t.Pages {
		p := &t.Pages[i]
		p.TemplateID = t.ID
		for j := range p.Fields {
			p.Fields[j].TemplateID = t.ID
			p.Fields[j].PageID = p.ID
			p.Fields[j].SortOrder = j
		}
	}
}

func copyName(name string) string {
	const suffix = " (copy)"
	runes := []rune(name)
	if limit := MaxTemplateNameLength - len(suffix); len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes) + suffix
}
