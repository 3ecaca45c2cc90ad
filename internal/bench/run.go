package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Config selects what Run evaluates. A nil Level or Scorer skips that part.
type Config struct {
	Level  coach.LevelEstimator
	Scorer coach.Scorer
	Scale  scoring.Scale
	// Limit caps the number of samples evaluated; zero means all.
	Limit int
}

// Result is the outcome of one evaluation run.
type Result struct {
	Samples  int
	Level    *LevelMetrics
	Rubric   []ItemError
	Duration time.Duration
}

// Run evaluates the configured models over samples.
func Run(ctx context.Context, samples []Sample, labels *dataset.LabelMap, cfg Config) (*Result, error) {
	if cfg.Level == nil && cfg.Scorer == nil {
		return nil, errors.New("nothing to evaluate: no level estimator or scorer")
	}
	if cfg.Limit > 0 && len(samples) > cfg.Limit {
		samples = samples[:cfg.Limit]
	}
	if cfg.Scale == (scoring.Scale{}) {
		cfg.Scale = scoring.DefaultScale
	}
	log := clog.FromContext(ctx)
	start := time.Now()
	res := &Result{Samples: len(samples)}

	if cfg.Level != nil {
		if labels == nil {
			return nil, errors.New("level evaluation needs a label map")
		}
		predicted := make([]int, len(samples))
		truth := make([]int, len(samples))
		for i, s := range samples {
			lvl, err := cfg.Level.Estimate(ctx, s.Text)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", s.Row, err)
			}
			predicted[i] = lvl.LabelID
			truth[i] = s.Label
			if (i+1)%100 == 0 {
				log.With("done", i+1).With("total", len(samples)).Info("Level progress")
			}
		}
		lm, err := EvaluateLevels(predicted, truth, labels.Scores())
		if err != nil {
			return nil, err
		}
		res.Level = &lm
	}

	if cfg.Scorer != nil {
		var predicted []scoring.Scores
		var gold []map[scoring.Item]float64
		for _, s := range samples {
			if !s.HasGold() {
				continue
			}
			scores, err := cfg.Scorer.PredictScores(ctx, s.Text)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", s.Row, err)
			}
			predicted = append(predicted, scores)
			gold = append(gold, s.Gold)
		}
		if len(gold) == 0 {
			log.Warn("Split has no rubric columns, skipping rubric evaluation")
		}
		rubric, err := EvaluateRubric(predicted, gold, cfg.Scale)
		if err != nil {
			return nil, err
		}
		res.Rubric = rubric
	}

	res.Duration = time.Since(start)
	return res, nil
}
