package handlers

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"FS-FORMS/internal/config"

	"github.com/sirupsen/logrus"
)

// ReferenceLister returns the object names that must be kept.
type ReferenceLister func(ctx context.Context) (map[string]bool, error)

// FileCleanupService removes local uploads that are older than maxAge and
// no longer used as a page background.
type FileCleanupService struct {
	uploadDir  string
	maxAge     time.Duration
	interval   time.Duration
	referenced ReferenceLister
	ticker     *time.Ticker
	done       chan bool
	logger     *logrus.Logger
}

func NewFileCleanupService(uploadDir string, maxAge time.Duration, referenced ReferenceLister) *FileCleanupService {
	return &FileCleanupService{
		uploadDir:  uploadDir,
		maxAge:     maxAge,
		interval:   time.Hour,
		referenced: referenced,
		done:       make(chan bool),
		logger:     config.GetLogger(),
	}
}

func (fcs *FileCleanupService) Start() {
	fcs.ticker = time.NewTicker(fcs.interval)
	go func() {
		for {
			select {
			case <-fcs.done:
				return
			case <-fcs.ticker.C:
				fcs.CleanupOldFiles(context.Background())
			}
		}
	}()
	fcs.logger.WithField("dir", fcs.uploadDir).Info("File cleanup service started")
}

func (fcs *FileCleanupService) Stop() {
	if fcs.ticker != nil {
		fcs.ticker.Stop()
	}
	fcs.done <- true
	fcs.logger.Info("File cleanup service stopped")
}

// CleanupOldFiles runs one pass and returns how many files were removed.
// Nothing is removed when the reference list cannot be loaded.
func (fcs *FileCleanupService) CleanupOldFiles(ctx context.Context) int {
	if _, err := os.Stat(fcs.uploadDir); os.IsNotExist(err) {
		return 0
	}

	keep := map[string]bool{}
	if fcs.referenced != nil {
		refs, err := fcs.referenced(ctx)
		if err != nil {
			config.LogError(fcs.logger, "handlers", "CleanupOldFiles", "load referenced uploads", fcs.uploadDir, err)
			return 0
		}
		keep = refs
	}

	removed := 0
	err := filepath.Walk(fcs.uploadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || time.Since(info.ModTime()) <= fcs.maxAge {
			return nil
		}

		rel, err := filepath.Rel(fcs.uploadDir, path)
		if err != nil {
			return err
		}
		if keep[filepath.ToSlash(rel)] {
			return nil
		}

		fcs.logger.WithField("path", path).Info("Cleaning up old file")
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		config.LogError(fcs.logger, "handlers", "CleanupOldFiles", "walk upload directory", fcs.uploadDir, err)
	}
	return removed
}
