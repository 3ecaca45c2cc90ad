package inference

import (
	"io"
	"sync"
)

// Handle is a lazily opened, reference-counted resource. The first Acquire
// opens it; the Release that drops the count to zero closes it. A later
// Acquire opens it again.
//
// Handles replace process-wide model caches: whoever needs the model holds a
// Handle and acquires it for as long as it serves requests.
type Handle[T io.Closer] struct {
	open func() (T, error)

	mu    sync.Mutex
	value T
	refs  int
}

// NewHandle returns a Handle that calls open on first use.
func NewHandle[T io.Closer](open func() (T, error)) *Handle[T] {
	return &Handle[T]{open: open}
}

// NewPoolHandle returns a Handle over a session pool for modelPath.
func NewPoolHandle(modelPath string, size int, opts ...SessionOption) *Handle[*Pool] {
	return NewHandle(func() (*Pool, error) {
		return NewPool(modelPath, size, opts...)
	})
}

// Acquire returns the resource, opening it if no one holds it. Each
// successful Acquire must be paired with Release.
func (h *Handle[T]) Acquire() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		v, err := h.open()
		if err != nil {
			var zero T
			return zero, err
		}
		h.value = v
	}
	h.refs++
	return h.value, nil
}

// Release drops one reference and closes the resource when none remain.
func (h *Handle[T]) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}

	v := h.value
	var zero T
	h.value = zero
	return v.Close()
}

// Refs returns the current reference count.
func (h *Handle[T]) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}
