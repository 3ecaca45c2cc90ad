// Package blob stores named files in a local directory or a Cloud Storage
// bucket behind one interface.
//
// Locations are either filesystem paths ("out/splits") or gs:// URIs
// ("gs://my-bucket/essays/splits"). Open picks the backend from the form.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotExist is returned by NewReader when the named object is missing.
var ErrNotExist = errors.New("blob: object does not exist")

// Writer writes one object. Close publishes it; Discard abandons it and
// leaves any previous object under the same name untouched.
type Writer interface {
	io.WriteCloser
	Discard()
}

// Bucket is a flat namespace of objects.
type Bucket interface {
	// NewWriter creates or replaces name. The object becomes visible when the
	// writer is closed without error.
	NewWriter(ctx context.Context, name string) (Writer, error)

	// NewReader opens name for reading.
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// URI returns a human-readable location for name.
	URI(name string) string

	Close() error
}

const gcsScheme = "gs://"

// Open returns the Bucket for location.
func Open(ctx context.Context, location string) (Bucket, error) {
	if rest, ok := strings.CutPrefix(location, gcsScheme); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		return OpenGCS(ctx, bucket, prefix)
	}
	return NewDir(location), nil
}

// WriteAll writes data to name in one call.
func WriteAll(ctx context.Context, b Bucket, name string, data []byte) error {
	w, err := b.NewWriter(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return err
	}
	return w.Close()
}

// ReadAll reads the whole of name.
func ReadAll(ctx context.Context, b Bucket, name string) ([]byte, error) {
	r, err := b.NewReader(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
