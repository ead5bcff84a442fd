package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mediajob/logger"
)

// Local is a Backend over a directory tree: bucket and key map to
// root/bucket/key. Used for file:// URIs and for tests.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) path(bucket, key string) (string, error) {
	full := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object %s/%s escapes storage root", bucket, key)
	}
	return full, nil
}

func (l *Local) Download(ctx context.Context, bucket, key, localPath string) error {
	src, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := copyFile(ctx, src, localPath); err != nil {
		return fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	logger.Infof("Copied '%s' to '%s'", src, localPath)
	return nil
}

func (l *Local) Upload(ctx context.Context, localPath, bucket, key string) error {
	dst, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := copyFile(ctx, localPath, dst); err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	logger.Infof("Successfully saved file '%s' to '%s'", localPath, dst)
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
