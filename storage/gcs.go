package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"mediajob/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS is a Backend using the native Cloud Storage client.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a client from a service account key file.
func NewGCS(ctx context.Context, credentialsFile string) (*GCS, error) {
	client, err := storage.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Download(ctx context.Context, bucket, key, localPath string) error {
	rc, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, rc)
	if err != nil {
		return fmt.Errorf("io.Copy: %w", err)
	}
	logger.Infof("Downloaded object '%s' from bucket '%s' (%d bytes)", key, bucket, n)
	return nil
}

func (g *GCS) Upload(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	wc := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err = io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	// the object is only committed on Close
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
