package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/feedback"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Scorer predicts rubric scores. Blank text must score zero.
type Scorer interface {
	PredictScores(ctx context.Context, text string) (scoring.Scores, error)
}

// FeedbackGenerator writes narrative feedback. Failures are reported as a
// string starting with feedback.ErrorPrefix, never as an error.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, essay string, scores scoring.Scores) string
}

// LevelEstimator estimates an overall proficiency level.
type LevelEstimator interface {
	Estimate(ctx context.Context, text string) (scoring.Level, error)
}

// RecordStore persists records and returns where each was written.
type RecordStore interface {
	Save(ctx context.Context, rec Record) (string, error)
}

// Coach grades essays: it normalizes, scores, asks for feedback and saves
// the resulting record. It is safe for concurrent use.
type Coach struct {
	scorer      Scorer
	feedback    FeedbackGenerator
	level       LevelEstimator
	store       RecordStore
	concurrency int
	now         func() time.Time
}

// New creates a Coach.
func New(scorer Scorer, gen FeedbackGenerator, opts ...Option) (*Coach, error) {
	if scorer == nil {
		return nil, errors.New("coach: scorer is required")
	}
	if gen == nil {
		return nil, errors.New("coach: feedback generator is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Coach{
		scorer:      scorer,
		feedback:    gen,
		level:       cfg.level,
		store:       cfg.store,
		concurrency: cfg.concurrency,
		now:         cfg.now,
	}, nil
}

// Assess grades one essay.
//
// A blank essay, or one with nothing left after normalization, returns
// ErrNoInput. A scorer failure returns an error wrapping ErrScoringFailed.
// Missing feedback is not an error: the assessment has StatusPartial and
// the record carries no feedback. Save failures are reported in
// Assessment.SaveErr.
func (c *Coach) Assess(ctx context.Context, essay string) (*Assessment, error) {
	if strings.TrimSpace(essay) == "" {
		return nil, ErrNoInput
	}
	normalized := dataset.Normalize(essay)
	if normalized == "" {
		return nil, ErrNoInput
	}

	id := uuid.NewString()
	log := clog.FromContext(ctx).With("record", id)

	start := time.Now()
	scores, err := c.scorer.PredictScores(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	log.With("duration", time.Since(start)).Info("Scored essay")

	a := &Assessment{
		Status: StatusComplete,
		Record: Record{
			ID:          id,
			GeneratedAt: c.now().UTC(),
			Essay:       essay,
			Scores:      scores,
		},
	}

	text := c.feedback.GenerateFeedback(ctx, essay, scores)
	if feedback.IsError(text) {
		log.With("reason", text).Warn("Feedback unavailable, returning scores only")
		a.Status = StatusPartial
		a.FeedbackError = text
	} else {
		a.Record.Feedback = text
		a.Record.FeedbackAvailable = true
	}

	if c.level != nil {
		lvl, err := c.level.Estimate(ctx, normalized)
		if err != nil {
			log.With("error", err.Error()).Warn("Level estimation failed")
		} else {
			score := lvl.Score
			a.Record.EstimatedLevel = &score
		}
	}

	if c.store != nil {
		a.Location, a.SaveErr = c.store.Save(ctx, a.Record)
		if a.SaveErr != nil {
			log.With("error", a.SaveErr.Error()).Error("Could not save record")
		} else {
			log.With("location", a.Location).Info("Saved record")
		}
	}

	return a, nil
}

// AssessBatch grades essays concurrently, at most WithConcurrency at a
// time. Results are in input order; each carries its own error.
func (c *Coach) AssessBatch(ctx context.Context, essays []string) []BatchResult {
	results := make([]BatchResult, len(essays))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, essay := range essays {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = BatchResult{Index: i, Err: err}
				return nil
			}
			a, err := c.Assess(ctx, essay)
			results[i] = BatchResult{Index: i, Assessment: a, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
