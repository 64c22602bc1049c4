package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps objects on disk under dir. URLs point at urlPrefix, which
// the server mounts as a static directory.
type LocalStore struct {
	dir       string
	urlPrefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (l *LocalStore) Dir() string {
	return l.dir
}

func (l *LocalStore) path(objectName string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectName))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid object name %q", objectName)
	}
	return filepath.Join(l.dir, clean), nil
}

func (l *LocalStore) UploadFile(ctx context.Context, reader io.Reader, objectName, contentType string) (*UploadResult, error) {
	dest, err := l.path(objectName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, reader)
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &UploadResult{
		ObjectName: objectName,
		PublicURL:  l.urlPrefix + "/" + path.Clean(objectName),
		Size:       size,
	}, nil
}

func (l *LocalStore) DeleteFile(ctx context.Context, objectName string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetSignedURL returns the static path; local files are not signed.
func (l *LocalStore) GetSignedURL(objectName string, expiry time.Duration) (string, error) {
	if _, err := l.path(objectName); err != nil {
		return "", err
	}
	return l.urlPrefix + "/" + path.Clean(objectName), nil
}
