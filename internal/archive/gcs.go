package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCSConfig captures the parameters for the GCS snapshot archive.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCS writes snapshots to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
	now    func() time.Time
}

// NewGCS creates a GCS-backed archiver.
func NewGCS(client *storage.Client, cfg GCSConfig) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, cfg: cfg, now: time.Now}, nil
}

// Save uploads the snapshot and returns its gs:// URI.
func (a *GCS) Save(ctx context.Context, target, sourceURL string, body []byte) (string, error) {
	path := objectName(a.cfg.Prefix, target, sourceURL, a.now())
	writer := a.client.Bucket(a.cfg.Bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "text/html; charset=utf-8"
	if _, err := writer.Write(body); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write snapshot: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close snapshot writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.cfg.Bucket, path), nil
}
