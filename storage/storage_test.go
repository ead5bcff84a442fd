package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediajob/locator"
)

func TestLocalRoundTrip(t *testing.T) {
	root := t.TempDir()
	work := t.TempDir()
	b := NewLocal(root)
	ctx := context.Background()

	src := filepath.Join(work, "out.mp4")
	if err := os.WriteFile(src, []byte("encoded"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := b.Upload(ctx, src, "media", "p/1/out.mp4"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "media", "p", "1", "out.mp4")); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}

	dst := filepath.Join(work, "back.mp4")
	if err := b.Download(ctx, "media", "p/1/out.mp4", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "encoded" {
		t.Fatalf("downloaded %q, %v", data, err)
	}
}

func TestLocalMissingObject(t *testing.T) {
	b := NewLocal(t.TempDir())
	err := b.Download(context.Background(), "media", "nope.mp4", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLocalRejectsEscape(t *testing.T) {
	b := NewLocal(t.TempDir())
	if err := b.Upload(context.Background(), "/dev/null", "..", "x"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestLocalCancelledContext(t *testing.T) {
	root := t.TempDir()
	b := NewLocal(root)
	src := filepath.Join(t.TempDir(), "f")
	os.WriteFile(src, []byte("x"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Upload(ctx, src, "b", "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type recordingBackend struct {
	name  string
	calls []string
}

func (r *recordingBackend) Download(_ context.Context, bucket, key, _ string) error {
	r.calls = append(r.calls, "get "+bucket+"/"+key)
	return nil
}

func (r *recordingBackend) Upload(_ context.Context, _, bucket, key string) error {
	r.calls = append(r.calls, "put "+bucket+"/"+key)
	return nil
}

func TestRouter(t *testing.T) {
	def := &recordingBackend{name: "s3"}
	local := &recordingBackend{name: "file"}
	r := NewRouter(def)
	r.Register("file", local)
	ctx := context.Background()

	for _, uri := range []string{"s3://a/x.mp4", "gs://a/y.mp4"} {
		obj, err := locator.ParseURI(uri)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.DownloadURI(ctx, obj, "/tmp/z"); err != nil {
			t.Fatalf("%s: %v", uri, err)
		}
	}
	if len(def.calls) != 2 {
		t.Errorf("default backend calls = %v", def.calls)
	}

	obj, _ := locator.ParseURI("file://bucket/out.mp4")
	if err := r.UploadURI(ctx, "/tmp/z", obj); err != nil {
		t.Fatal(err)
	}
	if len(local.calls) != 1 || local.calls[0] != "put bucket/out.mp4" {
		t.Errorf("local backend calls = %v", local.calls)
	}

	obj, _ = locator.ParseURI("sftp://host/k.mp4")
	if _, err := r.For(obj.Scheme); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend for unregistered sftp, got %v", err)
	}
}

func TestRouterNativeGCSOverridesFallback(t *testing.T) {
	def := &recordingBackend{}
	gcs := &recordingBackend{}
	r := NewRouter(def)
	r.Register("gs", gcs)

	b, err := r.For("gs")
	if err != nil {
		t.Fatal(err)
	}
	if b != Backend(gcs) {
		t.Error("gs:// should use the registered native backend")
	}
}
