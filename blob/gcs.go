package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCS is a Bucket backed by a Cloud Storage bucket and object prefix.
type GCS struct {
	client *storage.Client
	owned  bool
	bucket string
	prefix string
}

// OpenGCS connects with application default credentials.
func OpenGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("blob: gs:// location has no bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	g := NewGCS(client, bucket, prefix)
	g.owned = true
	return g, nil
}

// NewGCS wraps an existing client. Close does not close client.
func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: prefix}
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, name))
}

func (g *GCS) NewWriter(ctx context.Context, name string) (Writer, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &gcsWriter{Writer: g.object(name).NewWriter(ctx), cancel: cancel}, nil
}

// gcsWriter aborts the upload by cancelling its context; a cancelled
// upload never finalizes the object.
type gcsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}

func (w *gcsWriter) Discard() {
	w.cancel()
	_ = w.Writer.Close()
}

func (g *GCS) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := g.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, g.URI(name))
	}
	return r, err
}

func (g *GCS) Exists(ctx context.Context, name string) (bool, error) {
	_, err := g.object(name).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (g *GCS) URI(name string) string {
	return gcsScheme + path.Join(g.bucket, g.prefix, name)
}

func (g *GCS) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}
