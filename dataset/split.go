package dataset

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// Split names, also used as file stems by the Materializer.
const (
	SplitTrain      = "train"
	SplitValidation = "val"
	SplitTest       = "test"
)

// ratioTolerance is how far the sum of Ratios may drift from 1.
const ratioTolerance = 1e-9

// Ratios are the fractions of the corpus assigned to each split.
type Ratios struct {
	Train      float64 `yaml:"train" json:"train"`
	Validation float64 `yaml:"validation" json:"validation"`
	Test       float64 `yaml:"test" json:"test"`
}

// DefaultRatios holds out 20% for test and 10% of the remainder for
// validation.
var DefaultRatios = Ratios{Train: 0.72, Validation: 0.08, Test: 0.20}

// Validate checks that the ratios are usable.
func (r Ratios) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"train", r.Train}, {"validation", r.Validation}, {"test", r.Test}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return invalid("ratios", "%s ratio %v is outside [0, 1]", f.name, f.v)
		}
	}
	if r.Train == 0 {
		return invalid("ratios", "train ratio must be positive")
	}
	if sum := r.Train + r.Validation + r.Test; math.Abs(sum-1) > ratioTolerance {
		return invalid("ratios", "ratios sum to %v, want 1", sum)
	}
	return nil
}

// partitions counts the splits that are expected to be non-empty.
func (r Ratios) partitions() int {
	n := 1
	if r.Validation > 0 {
		n++
	}
	if r.Test > 0 {
		n++
	}
	return n
}

// Splits is the disjoint partition of a corpus. Records in each split are
// ordered by Row.
type Splits struct {
	Train      []Record
	Validation []Record
	Test       []Record
}

// Partition is a named split.
type Partition struct {
	Name    string
	Records []Record
}

// Partitions returns the splits in train, val, test order.
func (s *Splits) Partitions() []Partition {
	return []Partition{
		{Name: SplitTrain, Records: s.Train},
		{Name: SplitValidation, Records: s.Validation},
		{Name: SplitTest, Records: s.Test},
	}
}

// Split partitions labeled records into train, validation and test sets.
//
// The split runs in two stages: the test set is held out of the full corpus,
// then the validation set is held out of the remainder. Each stage is
// stratified by Label, giving every label the floor or ceiling of its
// proportional share. The same records, ratios and seed always produce the
// same partition.
//
// Labels with fewer members than there are non-empty splits are not
// shuffled; their held-out members come from the highest rows so the
// lowest-numbered records stay in train.
func Split(records []Record, ratios Ratios, seed uint64) (*Splits, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, invalid("records", "corpus is empty")
	}
	for _, r := range records {
		if r.Label < 0 {
			return nil, invalid("records", "row %d has no label", r.Row)
		}
	}

	pool := slices.Clone(records)
	slices.SortStableFunc(pool, byRow)

	sparse := ratios.partitions()

	nTest := roundCount(len(pool), ratios.Test)
	test, rest := holdOut(pool, nTest, newStageRand(seed, 1), sparse)

	valShare := ratios.Validation / (ratios.Train + ratios.Validation)
	nVal := roundCount(len(rest), valShare)
	val, train := holdOut(rest, nVal, newStageRand(seed, 2), sparse)

	switch {
	case len(train) == 0:
		return nil, invalid("ratios", "train split would be empty for %d records", len(records))
	case ratios.Validation > 0 && len(val) == 0:
		return nil, invalid("ratios", "validation split would be empty for %d records", len(records))
	case ratios.Test > 0 && len(test) == 0:
		return nil, invalid("ratios", "test split would be empty for %d records", len(records))
	}

	return &Splits{Train: train, Validation: val, Test: test}, nil
}

func newStageRand(seed, stage uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stage))
}

func roundCount(n int, frac float64) int {
	return int(math.Round(float64(n) * frac))
}

func byRow(a, b Record) int {
	return cmp.Compare(a.Row, b.Row)
}

type stratum struct {
	label   int
	members []Record
	take    int
	rem     int // numerator of the fractional part of the quota, over len(pool)
}

// holdOut removes draws records from pool, stratified by label, and returns
// the held-out records and the rest, both ordered by Row. pool must be
// ordered by Row.
func holdOut(pool []Record, draws int, rng *rand.Rand, sparseBelow int) (held, kept []Record) {
	if draws <= 0 {
		return nil, slices.Clone(pool)
	}

	byLabel := make(map[int]*stratum)
	for _, r := range pool {
		s, ok := byLabel[r.Label]
		if !ok {
			s = &stratum{label: r.Label}
			byLabel[r.Label] = s
		}
		s.members = append(s.members, r)
	}

	strata := make([]*stratum, 0, len(byLabel))
	for _, s := range byLabel {
		strata = append(strata, s)
	}
	slices.SortFunc(strata, func(a, b *stratum) int { return cmp.Compare(a.label, b.label) })

	// Largest remainder allocation in exact integer arithmetic.
	n := len(pool)
	remaining := draws
	for _, s := range strata {
		q := len(s.members) * draws
		s.take = q / n
		s.rem = q % n
		remaining -= s.take
	}

	candidates := make([]*stratum, 0, len(strata))
	for _, s := range strata {
		if s.rem > 0 {
			candidates = append(candidates, s)
		}
	}
	slices.SortStableFunc(candidates, func(a, b *stratum) int {
		if as, bs := len(a.members) < sparseBelow, len(b.members) < sparseBelow; as != bs {
			if as {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.rem, a.rem); c != 0 {
			return c
		}
		if c := cmp.Compare(len(b.members), len(a.members)); c != 0 {
			return c
		}
		return cmp.Compare(a.label, b.label)
	})
	for _, s := range candidates {
		if remaining == 0 {
			break
		}
		s.take++
		remaining--
	}

	for _, s := range strata {
		members := s.members
		if len(members) >= sparseBelow {
			rng.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
			held = append(held, members[:s.take]...)
			kept = append(kept, members[s.take:]...)
			continue
		}
		cut := len(members) - s.take
		kept = append(kept, members[:cut]...)
		held = append(held, members[cut:]...)
	}

	slices.SortFunc(held, byRow)
	slices.SortFunc(kept, byRow)
	return held, kept
}

// CountLabels returns the number of records per label.
func CountLabels(records []Record) map[int]int {
	counts := make(map[int]int)
	for _, r := range records {
		counts[r.Label]++
	}
	return counts
}
