// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/berginj/glovebrand/internal/branding"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore writes job artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data to the bucket, overwriting any object at the path so
// workflow replays stay idempotent. Returns the gs:// location.
func (s *BlobStore) Put(ctx context.Context, path string, contentType string, data []byte) (branding.ArtifactLocation, error) {
	if strings.TrimSpace(path) == "" {
		return branding.ArtifactLocation{}, fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return branding.ArtifactLocation{}, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return branding.ArtifactLocation{}, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return branding.ArtifactLocation{}, fmt.Errorf("close writer: %w", err)
	}
	return branding.ArtifactLocation{
		Path: path,
		URL:  fmt.Sprintf("gs://%s/%s", s.bucket, path),
	}, nil
}

// Get reads an object back; the wizard uses this to download the stored
// logo before uploading it into the third-party form.
func (s *BlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", path, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", path, err)
	}
	return data, nil
}
