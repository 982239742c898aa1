package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSMirror stores final recordings in a private bucket, optionally below a
// key prefix shared with other deployments.
type GCSMirror struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSMirror(ctx context.Context, bucket, prefix string) (*GCSMirror, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSMirror{client: c, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (m *GCSMirror) Close() error { return m.client.Close() }

func (m *GCSMirror) key(object string) string {
	if m.prefix == "" {
		return object
	}
	return m.prefix + "/" + object
}

func (m *GCSMirror) Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	name := m.key(object)
	w := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"
	w.Metadata = map[string]string{"source": "veriview"}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, name), nil
}

// DeletePrefix removes every object under prefix. Objects deleted
// concurrently by someone else are not errors.
func (m *GCSMirror) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	bkt := m.client.Bucket(m.bucket)
	it := bkt.Objects(ctx, &gcs.Query{Prefix: m.key(prefix)})
	n := 0
	var errs []error
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			errs = append(errs, err)
			break
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil {
			if !errors.Is(err, gcs.ErrObjectNotExist) {
				errs = append(errs, fmt.Errorf("delete %s: %w", attrs.Name, err))
			}
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
