package bench

import (
	"fmt"
	"math"

	"github.com/jamesainslie/go-writecoach/scoring"
)

// Metrics holds one-vs-rest counts and rates for a class.
type Metrics struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64
}

func newMetrics(tp, fp, fn int) Metrics {
	m := Metrics{
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// LabelMetrics is the per-class breakdown of a level evaluation.
type LabelMetrics struct {
	LabelID int
	Score   float64
	Support int // reference samples with this label
	Metrics
}

// LevelMetrics summarizes level classification over a split.
type LevelMetrics struct {
	Total    int
	Correct  int
	Accuracy float64
	MacroF1  float64
	Labels   []LabelMetrics
	// Confusion[truth][predicted] counts samples.
	Confusion [][]int
}

// EvaluateLevels compares predicted label ids against truth. scores maps
// each label id to its score, so len(scores) is the number of classes.
func EvaluateLevels(predicted, truth []int, scores []float64) (LevelMetrics, error) {
	if len(predicted) != len(truth) {
		return LevelMetrics{}, fmt.Errorf("have %d predictions for %d references", len(predicted), len(truth))
	}
	k := len(scores)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}

	lm := LevelMetrics{Total: len(truth), Confusion: confusion}
	for i, want := range truth {
		got := predicted[i]
		if want < 0 || want >= k {
			return LevelMetrics{}, fmt.Errorf("reference %d: label id %d out of range [0,%d)", i, want, k)
		}
		if got < 0 || got >= k {
			return LevelMetrics{}, fmt.Errorf("prediction %d: label id %d out of range [0,%d)", i, got, k)
		}
		confusion[want][got]++
		if got == want {
			lm.Correct++
		}
	}
	if lm.Total > 0 {
		lm.Accuracy = float64(lm.Correct) / float64(lm.Total)
	}

	var f1Sum float64
	var present int
	for id := range k {
		tp := confusion[id][id]
		var fp, fn, support int
		for other := range k {
			support += confusion[id][other]
			if other == id {
				continue
			}
			fp += confusion[other][id]
			fn += confusion[id][other]
		}
		m := newMetrics(tp, fp, fn)
		lm.Labels = append(lm.Labels, LabelMetrics{LabelID: id, Score: scores[id], Support: support, Metrics: m})
		// Classes absent from both sides do not count toward the macro average.
		if support > 0 || fp > 0 {
			f1Sum += m.F1
			present++
		}
	}
	if present > 0 {
		lm.MacroF1 = f1Sum / float64(present)
	}
	return lm, nil
}

// ItemError is the scoring error for one rubric item.
type ItemError struct {
	Item scoring.Item
	N    int
	MAE  float64
	// Exact is the share of predictions equal to the scaled reference.
	Exact float64
	// Within1 is the share within one point of it.
	Within1 float64
}

// EvaluateRubric compares predicted display scores against raw reference
// scores, mapped through scale first. Items no sample has a reference for
// are omitted.
func EvaluateRubric(predicted []scoring.Scores, gold []map[scoring.Item]float64, scale scoring.Scale) ([]ItemError, error) {
	if len(predicted) != len(gold) {
		return nil, fmt.Errorf("have %d predictions for %d references", len(predicted), len(gold))
	}

	var out []ItemError
	for _, item := range scoring.Items {
		var sum float64
		var n, exact, within int
		for i, g := range gold {
			ref, ok := g[item]
			if !ok {
				continue
			}
			diff := math.Abs(predicted[i].Get(item) - scale.Apply(ref))
			sum += diff
			n++
			if diff == 0 {
				exact++
			}
			if diff <= 1 {
				within++
			}
		}
		if n == 0 {
			continue
		}
		out = append(out, ItemError{
			Item:    item,
			N:       n,
			MAE:     sum / float64(n),
			Exact:   float64(exact) / float64(n),
			Within1: float64(within) / float64(n),
		})
	}
	return out, nil
}
