package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/blob"
	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/feedback"
	"github.com/jamesainslie/go-writecoach/inference"
	"github.com/jamesainslie/go-writecoach/internal/config"
	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/store"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// app holds the collaborators shared by the grading commands.
type app struct {
	cfg      *config.Config
	scale    scoring.Scale
	scorer   coach.Scorer
	feedback *feedback.Client
	history  *sql.DB
	coach    *coach.Coach

	closers []io.Closer
}

// newApp validates cfg and builds the grading pipeline. source tags
// records in the history database.
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, source string, opts ...coach.Option) (*app, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	log := clog.FromContext(ctx)
	a := &app{cfg: cfg, scale: cfg.Scoring.Scale.Scale()}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if cfg.Scoring.ONNXLibrary != "" {
		inference.SetLibraryPath(cfg.Scoring.ONNXLibrary)
	}

	switch cfg.Scoring.Backend {
	case config.ScorerRemote:
		log.With("url", cfg.Scoring.BackendURL).Info("Using remote scorer")
		a.scorer = scoring.NewRemoteScorer(cfg.Scoring.BackendURL, cfg.Scoring.Timeout, cfg.Scoring.Retry)
	default:
		log.With("model", cfg.Scoring.ModelPath).Info("Loading scoring model")
		s, err := scoring.NewONNXScorer(cfg.Scoring.ModelPath, cfg.Scoring.TokenizerPath,
			scoring.WithScale(a.scale),
			scoring.WithPoolSize(cfg.Scoring.PoolSize),
			scoring.WithMaxTokens(cfg.Scoring.MaxTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("loading scorer: %w", err)
		}
		a.scorer = s
		a.closers = append(a.closers, s)
	}

	if cfg.Level.Enabled() {
		lvl, err := openLevel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, lvl)
		opts = append(opts, coach.WithLevelEstimator(lvl))
	}

	key, variable := cfg.Feedback.APIKey()
	if feedback.NeedsAPIKey(cfg.Feedback.Provider) {
		log.With("provider", cfg.Feedback.Provider).
			With(variable, config.MaskKey(key)).
			Info("Feedback API key loaded")
	}
	gen, err := feedback.NewClient(ctx, cfg.Feedback.ClientConfig(a.scale))
	if err != nil {
		return nil, fmt.Errorf("creating feedback client: %w", err)
	}
	a.feedback = gen

	bucket, err := blob.Open(ctx, cfg.Output.Location)
	if err != nil {
		return nil, fmt.Errorf("opening output location: %w", err)
	}
	a.closers = append(a.closers, bucket)

	var storeOpts []store.Option
	if cfg.Output.HistoryDB != "" {
		db, err := history.Open(cfg.Output.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.history = db
		a.closers = append(a.closers, db)
		storeOpts = append(storeOpts, store.WithHistory(db, source))
	}
	opts = append(opts, coach.WithStore(store.New(bucket, storeOpts...)))

	a.coach, err = coach.New(a.scorer, a.feedback, opts...)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func openLevel(ctx context.Context, cfg *config.Config) (*scoring.LevelEstimator, error) {
	bucket, err := blob.Open(ctx, cfg.Level.LabelsDir)
	if err != nil {
		return nil, fmt.Errorf("opening label directory: %w", err)
	}
	defer bucket.Close()

	labels, err := dataset.LoadLabels(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("loading label map: %w", err)
	}
	clog.FromContext(ctx).With("model", cfg.Level.ModelPath).
		With("labels", labels.Len()).
		Info("Loading level model")

	lvl, err := scoring.NewLevelEstimator(cfg.Level.ModelPath, cfg.Level.VocabPath, labels,
		scoring.WithPoolSize(cfg.Scoring.PoolSize),
		scoring.WithMaxTokens(cfg.Scoring.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("loading level model: %w", err)
	}
	return lvl, nil
}

// Close releases models, the output bucket and the history database.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
