package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ObjectStore holds page background images. GCSClient is used in
// deployment; LocalStore when no bucket is configured.
type ObjectStore interface {
	UploadFile(ctx context.Context, reader io.Reader, objectName, contentType string) (*UploadResult, error)
	DeleteFile(ctx context.Context, objectName string) error
	GetSignedURL(objectName string, expiry time.Duration) (string, error)
}

type UploadResult struct {
	ObjectName string `json:"objectName"`
	PublicURL  string `json:"publicUrl"`
	Size       int64  `json:"size"`
}

type GCSClient struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func NewGCSClient(ctx context.Context, bucketName, projectID, credentialsPath string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client for project %q: %w", projectID, err)
	}

	return &GCSClient{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
	}, nil
}

// UploadFile writes reader to objectName. An empty contentType is derived
// from the object's extension.
func (g *GCSClient) UploadFile(ctx context.Context, reader io.Reader, objectName, contentType string) (*UploadResult, error) {
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(path.Ext(objectName)))
	}

	w := g.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=3600"

	size, err := io.Copy(w, reader)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize %s: %w", objectName, err)
	}

	return &UploadResult{
		ObjectName: objectName,
		PublicURL:  fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.name, objectName),
		Size:       size,
	}, nil
}

// DeleteFile treats an object that is already gone as deleted.
func (g *GCSClient) DeleteFile(ctx context.Context, objectName string) error {
	err := g.bucket.Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", objectName, err)
	}
	return nil
}

func (g *GCSClient) GetSignedURL(objectName string, expiry time.Duration) (string, error) {
	return g.bucket.SignedURL(objectName, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}

// GenerateBackgroundObjectName places a page background under its template.
func GenerateBackgroundObjectName(templateID string, pageNumber int, filename string) string {
	name := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("templates/%s/backgrounds/%d_%d_%s", templateID, pageNumber, time.Now().Unix(), name)
}
