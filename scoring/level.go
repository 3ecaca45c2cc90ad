package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jamesainslie/go-writecoach/dataset"
)

// Level is an estimated overall proficiency score.
type Level struct {
	Score      float64 `json:"score"`
	LabelID    int     `json:"label_id"`
	Confidence float64 `json:"confidence"`
}

// LevelEstimator predicts the overall score with a sequence classifier
// trained on label ids from a persisted LabelMap.
type LevelEstimator struct {
	model  *model
	labels *dataset.LabelMap
}

// NewLevelEstimator loads a classifier whose class ids follow labels.
func NewLevelEstimator(modelPath, tokenizerPath string, labels *dataset.LabelMap, opts ...Option) (*LevelEstimator, error) {
	if labels == nil || labels.Len() == 0 {
		return nil, fmt.Errorf("level estimator needs a label map")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := openModel(modelPath, tokenizerPath, cfg)
	if err != nil {
		return nil, err
	}
	return &LevelEstimator{model: m, labels: labels}, nil
}

// Estimate classifies text and decodes the winning class through the label
// map. A class id the map does not know is a *dataset.UnknownLabelIDError.
func (e *LevelEstimator) Estimate(ctx context.Context, text string) (Level, error) {
	if strings.TrimSpace(text) == "" {
		return Level{}, ErrEmptyText
	}

	logits, err := e.model.logits(ctx, text)
	if err != nil {
		return Level{}, fmt.Errorf("estimating level: %w", err)
	}
	return decodeLevel(logits, e.labels)
}

// Close releases the estimator's model reference.
func (e *LevelEstimator) Close() error {
	return e.model.Close()
}

func decodeLevel(logits []float32, labels *dataset.LabelMap) (Level, error) {
	if len(logits) == 0 {
		return Level{}, fmt.Errorf("%w: no logits", ErrUnexpectedOutput)
	}

	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	score, err := labels.Decode(best)
	if err != nil {
		return Level{}, err
	}

	// Softmax probability of the winning class.
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - logits[best]))
	}

	return Level{Score: score, LabelID: best, Confidence: 1 / sum}, nil
}
