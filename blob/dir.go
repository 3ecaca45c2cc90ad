package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir is a Bucket backed by a local directory. The directory is created on
// the first write.
type Dir struct {
	root string
}

// NewDir returns a Bucket rooted at path.
func NewDir(path string) *Dir {
	return &Dir{root: path}
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

// NewWriter writes to a temporary file that is renamed into place on Close.
func (d *Dir) NewWriter(_ context.Context, name string) (Writer, error) {
	dst := d.path(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, dst: dst}, nil
}

func (d *Dir) NewReader(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, d.URI(name))
	}
	return f, err
}

func (d *Dir) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(d.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (d *Dir) URI(name string) string {
	return d.path(name)
}

func (d *Dir) Close() error { return nil }

type atomicFile struct {
	*os.File
	dst string
}

// Discard removes the temporary file.
func (f *atomicFile) Discard() {
	_ = f.File.Close()
	_ = os.Remove(f.Name())
}

func (f *atomicFile) Close() error {
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), f.dst); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return nil
}
