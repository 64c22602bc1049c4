package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/storage"

	"github.com/sirupsen/logrus"
)

const backgroundURLExpiry = 15 * time.Minute

var backgroundContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
}

type BackgroundService struct {
	store           storage.ObjectStore
	templateService *TemplateService
	logger          *logrus.Logger
}

func NewBackgroundService(store storage.ObjectStore, templateService *TemplateService) *BackgroundService {
	return &BackgroundService{
		store:           store,
		templateService: templateService,
		logger:          config.GetLogger(),
	}
}

type BackgroundUpload struct {
	TemplateID string `json:"templateId"`
	PageNumber int    `json:"pageNumber"`
	ObjectName string `json:"objectName"`
	URL        string `json:"url"`
	Size       int64  `json:"size"`
}

// UploadBackground stores an image and sets it as the background of the
// given page. The object is removed again if the page cannot be updated.
func (s *BackgroundService) UploadBackground(ctx context.Context, templateID string, pageNumber int, file io.Reader, filename string) (*BackgroundUpload, error) {
	contentType, ok := backgroundContentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, &apperr.ValidationError{
			Message: "unsupported background image",
			Fields:  map[string]string{"image": "only .png, .jpg, .jpeg and .svg files are supported"},
		}
	}

	template, err := s.templateService.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if _, ok := template.Page(pageNumber); !ok {
		return nil, apperr.NotFound("page", fmt.Sprintf("%s/%d", templateID, pageNumber))
	}

	objectName := storage.GenerateBackgroundObjectName(templateID, pageNumber, filename)
	result, err := s.store.UploadFile(ctx, file, objectName, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload background: %w", err)
	}

	if err := s.templateService.SetPageBackground(ctx, templateID, pageNumber, objectName); err != nil {
		if derr := s.store.DeleteFile(ctx, objectName); derr != nil {
			config.LogError(s.logger, "services", "UploadBackground", "remove orphaned background", objectName, derr)
		}
		return nil, err
	}

	url, err := s.BackgroundURL(ctx, objectName)
	if err != nil {
		url = result.PublicURL
	}

	return &BackgroundUpload{
		TemplateID: templateID,
		PageNumber: pageNumber,
		ObjectName: objectName,
		URL:        url,
		Size:       result.Size,
	}, nil
}

// BackgroundURL resolves a page's background reference to something a
// browser can load. Absolute URLs are passed through unchanged.
func (s *BackgroundService) BackgroundURL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	url, err := s.store.GetSignedURL(ref, backgroundURLExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign background url: %w", err)
	}
	return url, nil
}
