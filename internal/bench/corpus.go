// Package bench evaluates the level estimator and rubric scorer against a
// materialized split.
package bench

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamesainslie/go-writecoach/blob"
	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Sample is one held-out essay with its reference annotations.
type Sample struct {
	Row   int
	Text  string // normalized essay text
	Label int
	// Gold holds per-item reference scores on the raw (model) scale, for
	// the rubric columns the split carries.
	Gold map[scoring.Item]float64
}

// HasGold reports whether the sample carries any rubric reference score.
func (s Sample) HasGold() bool {
	return len(s.Gold) > 0
}

// ParseGold extracts rubric reference scores from a record's source
// columns. Column names match rubric items ignoring case; blank or
// non-numeric cells are skipped.
func ParseGold(fields map[string]string) map[scoring.Item]float64 {
	var gold map[scoring.Item]float64
	for col, v := range fields {
		item, ok := scoring.ParseItem(strings.TrimSpace(col))
		if !ok {
			continue
		}
		score, err := dataset.ParseScore(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		if gold == nil {
			gold = make(map[scoring.Item]float64, scoring.NumItems)
		}
		gold[item] = score
	}
	return gold
}

// Samples converts split records to samples. Records without normalized
// text are normalized here.
func Samples(records []dataset.Record) []Sample {
	out := make([]Sample, 0, len(records))
	for _, r := range records {
		text := r.NormalizedText
		if text == "" {
			text = dataset.Normalize(r.RawText)
		}
		out = append(out, Sample{
			Row:   r.Row,
			Text:  text,
			Label: r.Label,
			Gold:  ParseGold(r.Fields),
		})
	}
	return out
}

// LoadSplit reads a materialized split and the label map written with it.
func LoadSplit(ctx context.Context, bucket blob.Bucket, split string) ([]Sample, *dataset.LabelMap, error) {
	labels, err := dataset.LoadLabels(ctx, bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("loading labels: %w", err)
	}
	records, err := dataset.LoadSplit(ctx, bucket, split)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s split: %w", split, err)
	}
	for _, r := range records {
		if _, err := labels.Decode(r.Label); err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", split, r.Row, err)
		}
	}
	return Samples(records), labels, nil
}
