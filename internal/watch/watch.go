// Package watch grades essays dropped into an inbox directory on a cron
// schedule. Graded files are moved to a processed directory; a file whose
// name and content are already recorded in the history database is not
// graded twice.
package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/store"
)

// Ext is the extension of essay files picked up from the inbox.
const Ext = ".txt"

// Assessor grades one essay. *coach.Coach implements it.
type Assessor interface {
	Assess(ctx context.Context, essay string) (*coach.Assessment, error)
}

// Result is the outcome for one inbox file.
type Result struct {
	Path       string
	Assessment *coach.Assessment
	// Skipped is set when the file was already in the history database.
	Skipped bool
	Err     error
}

// Watcher scans an inbox directory.
type Watcher struct {
	assessor    Assessor
	inbox       string
	processed   string
	history     *sql.DB
	concurrency int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithHistory skips files whose path and content are already recorded in
// db.
func WithHistory(db *sql.DB) Option {
	return func(w *Watcher) { w.history = db }
}

// WithConcurrency bounds the number of files graded at once (default 2).
func WithConcurrency(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// New returns a watcher that reads inbox and moves graded files to
// processed.
func New(a Assessor, inbox, processed string, opts ...Option) *Watcher {
	w := &Watcher{
		assessor:    a,
		inbox:       inbox,
		processed:   processed,
		concurrency: 2,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ParseSchedule parses a 5-field cron expression or a descriptor such as
// "@hourly" or "@every 5m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Run scans the inbox once, then again at every tick of schedule until ctx
// is done. Scan errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, schedule string) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	log := clog.FromContext(ctx).With("inbox", w.inbox)
	log.With("schedule", schedule).Info("Watching inbox")

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			log.With("error", err.Error()).Error("Inbox scan failed")
		}

		now := time.Now()
		next := sched.Next(now)
		log.With("next", next.Format(time.DateTime)).Debug("Waiting for next scan")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Pending lists the essay files currently in the inbox, sorted by name.
func (w *Watcher) Pending() ([]string, error) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		paths = append(paths, filepath.Join(w.inbox, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// RunOnce grades every pending file. Files that graded, had no text, or
// were already recorded are moved to the processed directory; files whose
// scoring failed stay in the inbox for the next scan.
func (w *Watcher) RunOnce(ctx context.Context) ([]Result, error) {
	paths, err := w.Pending()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(w.processed, 0o755); err != nil {
		return nil, fmt.Errorf("creating processed directory: %w", err)
	}

	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = w.process(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	var graded, partial, failed, skipped int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Err != nil:
			failed++
		case r.Assessment.Status == coach.StatusPartial:
			partial++
		default:
			graded++
		}
	}
	clog.FromContext(ctx).With("inbox", w.inbox).
		With("graded", graded).
		With("partial", partial).
		With("failed", failed).
		With("skipped", skipped).
		Info("Inbox scan complete")

	return results, nil
}

func (w *Watcher) process(ctx context.Context, path string) Result {
	log := clog.FromContext(ctx).With("file", path)
	res := Result{Path: path}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("reading essay: %w", err)
		return res
	}
	essay := string(data)

	if w.history != nil {
		seen, err := history.Graded(w.history, path, history.Digest(essay))
		if err != nil {
			res.Err = fmt.Errorf("checking history: %w", err)
			return res
		}
		if seen {
			log.Info("Already graded, moving to processed")
			res.Skipped = true
			res.Err = w.move(path)
			return res
		}
	}

	res.Assessment, res.Err = w.assessor.Assess(store.WithSourceRef(ctx, path), essay)
	switch {
	case errors.Is(res.Err, coach.ErrNoInput):
		log.Warn("Empty essay, moving to processed")
	case res.Err != nil:
		log.With("error", res.Err.Error()).Error("Grading failed, leaving file in inbox")
		return res
	}

	if err := w.move(path); err != nil {
		log.With("error", err.Error()).Error("Could not move graded file")
		if res.Err == nil {
			res.Err = err
		}
	}
	return res
}

// move renames path into the processed directory. An existing file there
// is kept; the newcomer gets a _2, _3, ... suffix.
func (w *Watcher) move(path string) error {
	dst, err := w.freeName(filepath.Base(path))
	if err != nil {
		return err
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("moving %s: %w", path, err)
	}
	return nil
}

func (w *Watcher) freeName(base string) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		dst := filepath.Join(w.processed, name)
		_, err := os.Lstat(dst)
		if errors.Is(err, os.ErrNotExist) {
			return dst, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", dst, err)
		}
	}
}
