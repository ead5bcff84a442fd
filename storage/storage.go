// Package storage moves job assets between object storage and the local
// workspace. Backends are constructed once at startup and shared by every
// job; none of them retry on their own.
package storage

import (
	"context"
	"errors"
	"fmt"

	"mediajob/config"
	"mediajob/locator"
	"mediajob/logger"
)

var ErrNoBackend = errors.New("no storage backend for scheme")

// Backend downloads and uploads whole objects by bucket and key.
type Backend interface {
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, localPath, bucket, key string) error
}

// Router picks a Backend by URI scheme. Default serves ENCODING jobs, which
// address assets by bucket and key only.
type Router struct {
	Default  Backend
	backends map[string]Backend
	closers  []func() error
}

// NewRouter returns a router whose default backend also serves s3://.
func NewRouter(def Backend) *Router {
	r := &Router{Default: def, backends: map[string]Backend{}}
	if def != nil {
		r.backends["s3"] = def
	}
	return r
}

// Register binds scheme to b, replacing any previous binding.
func (r *Router) Register(scheme string, b Backend) {
	r.backends[scheme] = b
	if c, ok := b.(interface{ Close() error }); ok {
		r.closers = append(r.closers, c.Close)
	}
}

// For returns the backend serving scheme. gs:// falls back to the default
// backend, which talks to the S3-compatible interop endpoint.
func (r *Router) For(scheme string) (Backend, error) {
	if b, ok := r.backends[scheme]; ok {
		return b, nil
	}
	if scheme == "gs" && r.Default != nil {
		return r.Default, nil
	}
	return nil, fmt.Errorf("%w %q", ErrNoBackend, scheme)
}

// Download fetches bucket/key through the default backend.
func (r *Router) Download(ctx context.Context, bucket, key, localPath string) error {
	if r.Default == nil {
		return fmt.Errorf("%w %q", ErrNoBackend, "default")
	}
	return r.Default.Download(ctx, bucket, key, localPath)
}

// Upload stores localPath at bucket/key through the default backend.
func (r *Router) Upload(ctx context.Context, localPath, bucket, key string) error {
	if r.Default == nil {
		return fmt.Errorf("%w %q", ErrNoBackend, "default")
	}
	return r.Default.Upload(ctx, localPath, bucket, key)
}

// DownloadURI fetches a parsed object into localPath.
func (r *Router) DownloadURI(ctx context.Context, obj locator.Object, localPath string) error {
	b, err := r.For(obj.Scheme)
	if err != nil {
		return err
	}
	return b.Download(ctx, obj.Bucket, obj.Key, localPath)
}

// UploadURI stores localPath at a parsed object location.
func (r *Router) UploadURI(ctx context.Context, localPath string, obj locator.Object) error {
	b, err := r.For(obj.Scheme)
	if err != nil {
		return err
	}
	return b.Upload(ctx, localPath, obj.Bucket, obj.Key)
}

// Close releases registered backends holding connections.
func (r *Router) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds the router for the process: the S3-compatible default
// plus whichever optional backends are configured.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Router, error) {
	s3b := NewS3(S3Options{
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		PathStyle: cfg.StoragePathStyle,
	})
	r := NewRouter(s3b)
	logger.Infof("storage: s3-compatible endpoint %s (region %s)", cfg.StorageEndpoint, cfg.StorageRegion)

	if cfg.GCSCredentialsFile != "" {
		gcs, err := NewGCS(ctx, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		r.Register("gs", gcs)
		logger.Info("storage: native GCS client enabled for gs://")
	}

	if cfg.SFTP.Enabled() {
		sb, err := NewSFTP(cfg.SFTP)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.Register("sftp", sb)
		logger.Infof("storage: sftp://%s enabled", cfg.SFTP.Host)
	}

	if cfg.LocalStorageRoot != "" {
		r.Register("file", NewLocal(cfg.LocalStorageRoot))
		logger.Infof("storage: file:// rooted at %s", cfg.LocalStorageRoot)
	}
	return r, nil
}
