// Package gcs uploads run artifacts to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Config captures the bucket and the object prefix artifacts land under.
type Config struct {
	Bucket string `mapstructure:"gcs_bucket"`
	Prefix string `mapstructure:"gcs_prefix"`
}

// Uploader writes artifacts to a configured GCS bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates an Uploader. Authentication follows Application Default Credentials
// on the provided client.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// PutObject uploads data under the configured prefix and returns a gs:// URI.
func (u *Uploader) PutObject(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("object name is required")
	}
	object := name
	if u.prefix != "" {
		object = path.Join(u.prefix, name)
	}
	writer := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", u.bucket, object)
	u.logger.Info("artifact uploaded", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

// Close releases the underlying client.
func (u *Uploader) Close() error {
	return u.client.Close()
}
