package dataset

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// LabelMap is the bijection between distinct overall scores and contiguous
// label ids. Scores are ordered ascending and each id is the score's rank, so
// the mapping is a function of the set of scores alone. A LabelMap is
// immutable once built.
type LabelMap struct {
	scores []float64
	ids    map[float64]int
}

// BuildLabelMap derives the mapping from every score in the corpus.
// It must see the whole corpus, not a single split, so ids agree everywhere.
func BuildLabelMap(scores []float64) (*LabelMap, error) {
	if len(scores) == 0 {
		return nil, invalid("scores", "no scores to encode")
	}

	distinct := make([]float64, 0, 16)
	seen := make(map[float64]struct{}, 16)
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, invalid("scores", "score %d is not a finite number", i)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		distinct = append(distinct, s)
	}
	slices.Sort(distinct)

	return newLabelMap(distinct), nil
}

func newLabelMap(sorted []float64) *LabelMap {
	ids := make(map[float64]int, len(sorted))
	for i, s := range sorted {
		ids[s] = i
	}
	return &LabelMap{scores: sorted, ids: ids}
}

// Len returns the number of labels.
func (m *LabelMap) Len() int {
	return len(m.scores)
}

// Scores returns the distinct scores in id order.
func (m *LabelMap) Scores() []float64 {
	return slices.Clone(m.scores)
}

// Encode returns the label id for score.
func (m *LabelMap) Encode(score float64) (int, error) {
	id, ok := m.ids[score]
	if !ok {
		return 0, &UnknownLabelError{Score: score}
	}
	return id, nil
}

// Decode returns the score for label id.
func (m *LabelMap) Decode(id int) (float64, error) {
	if id < 0 || id >= len(m.scores) {
		return 0, &UnknownLabelIDError{ID: id}
	}
	return m.scores[id], nil
}

// Apply sets Label on every record from its Overall score.
func (m *LabelMap) Apply(records []Record) error {
	for i := range records {
		id, err := m.Encode(records[i].Overall)
		if err != nil {
			return err
		}
		records[i].Label = id
	}
	return nil
}

// FormatScore renders a score the way label files and split CSVs store it:
// shortest exact form, with a trailing ".0" for whole numbers ("3.0", "3.5").
func FormatScore(score float64) string {
	s := strconv.FormatFloat(score, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// ParseScore parses a score written by FormatScore or by hand ("3", "3.0").
func ParseScore(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
