// Package store saves feedback records as timestamp-named JSON objects in a
// blob.Bucket and optionally indexes them in the history database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/blob"
	"github.com/jamesainslie/go-writecoach/internal/history"
)

const (
	filePrefix = "feedback_"
	fileExt    = ".json"
	timeLayout = "2006-01-02_15-04-05"
)

// FileName returns the object name for a record generated at t.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format(timeLayout) + fileExt
}

type sourceRefKey struct{}

// WithSourceRef tags records saved under ctx with the input they came from,
// such as an inbox file name.
func WithSourceRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, sourceRefKey{}, ref)
}

func sourceRef(ctx context.Context) string {
	ref, _ := ctx.Value(sourceRefKey{}).(string)
	return ref
}

// Store writes records to a bucket. It is safe for concurrent use.
type Store struct {
	bucket  blob.Bucket
	history *sql.DB
	source  string

	// mu serializes name selection so concurrent saves in the same second
	// get distinct suffixes.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithHistory indexes every saved record in db, tagged with source.
func WithHistory(db *sql.DB, source string) Option {
	return func(s *Store) {
		s.history = db
		s.source = source
	}
}

// New returns a store writing to bucket.
func New(bucket blob.Bucket, opts ...Option) *Store {
	s := &Store{bucket: bucket, source: history.SourceCLI}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes rec as indented JSON and returns its URI. A record generated
// in the same second as an existing one gets a _2, _3, ... suffix.
func (s *Store) Save(ctx context.Context, rec coach.Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	s.mu.Lock()
	name, err := s.freeName(ctx, rec.GeneratedAt)
	if err == nil {
		err = blob.WriteAll(ctx, s.bucket, name, data)
	}
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("saving record: %w", err)
	}

	uri := s.bucket.URI(name)
	if s.history != nil {
		status := coach.StatusComplete
		if !rec.FeedbackAvailable {
			status = coach.StatusPartial
		}
		entry := history.NewEntry(&coach.Assessment{Record: rec, Status: status, Location: uri}, s.source, sourceRef(ctx))
		if err := history.Insert(s.history, entry); err != nil {
			// The record itself is saved; a missing index entry only
			// affects listings and inbox dedupe.
			clog.FromContext(ctx).With("record", rec.ID).
				With("error", err.Error()).
				Warn("Could not index record")
		}
	}
	return uri, nil
}

func (s *Store) freeName(ctx context.Context, t time.Time) (string, error) {
	base := strings.TrimSuffix(FileName(t), fileExt)
	name := base + fileExt
	for n := 2; ; n++ {
		exists, err := s.bucket.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d%s", base, n, fileExt)
	}
}

// Load reads the record stored under name.
func (s *Store) Load(ctx context.Context, name string) (coach.Record, error) {
	data, err := blob.ReadAll(ctx, s.bucket, name)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return coach.Record{}, fmt.Errorf("record %s: %w", name, err)
		}
		return coach.Record{}, err
	}
	var rec coach.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return coach.Record{}, fmt.Errorf("decoding record %s: %w", name, err)
	}
	return rec, nil
}
