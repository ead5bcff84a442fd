package locator

import (
	"fmt"
	"path"
	"strings"
)

// Object is a parsed storage URI.
type Object struct {
	Scheme string
	Bucket string
	Key    string
}

// Filename returns the last path element of the key.
func (o Object) Filename() string {
	return path.Base(o.Key)
}

func (o Object) String() string {
	return o.Scheme + "://" + o.Bucket + "/" + o.Key
}

// ParseURI splits scheme://bucket/key. A bare bucket/key is treated as s3.
func ParseURI(uri string) (Object, error) {
	uri = strings.TrimSpace(uri)
	scheme := "s3"
	rest := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme = strings.ToLower(uri[:i])
		rest = uri[i+3:]
	}

	switch scheme {
	case "s3", "gs", "sftp", "file":
	default:
		return Object{}, fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidLocation, scheme, uri)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Object{}, fmt.Errorf("%w: %q is not scheme://bucket/key", ErrInvalidLocation, uri)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return Object{}, fmt.Errorf("%w: %q escapes its bucket", ErrInvalidLocation, uri)
		}
	}
	return Object{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
