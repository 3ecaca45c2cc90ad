package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
)

// Prepared is a normalized, encoded and split corpus ready to materialize.
type Prepared struct {
	Header []string
	Labels *LabelMap
	Splits *Splits
	Ratios Ratios
	Seed   uint64

	// CorpusDigest fingerprints the input rows so a later run can tell
	// whether it is re-splitting the same data.
	CorpusDigest string
}

// Prepare runs the offline pipeline over corpus: normalize every record,
// build the label map from all scores, encode, then split. Labels are built
// before splitting so every split shares one mapping.
func Prepare(corpus *Corpus, ratios Ratios, seed uint64) (*Prepared, error) {
	if corpus == nil || len(corpus.Records) == 0 {
		return nil, invalid("corpus", "no records")
	}
	if err := ratios.Validate(); err != nil {
		return nil, err
	}

	records := slices.Clone(corpus.Records)
	for i := range records {
		records[i].NormalizedText = Normalize(records[i].RawText)
	}

	labels, err := BuildLabelMap(corpus.Scores())
	if err != nil {
		return nil, err
	}
	if err := labels.Apply(records); err != nil {
		return nil, err
	}

	splits, err := Split(records, ratios, seed)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Header:       slices.Clone(corpus.Header),
		Labels:       labels,
		Splits:       splits,
		Ratios:       ratios,
		Seed:         seed,
		CorpusDigest: digestRecords(records),
	}, nil
}

func digestRecords(records []Record) string {
	h := sha256.New()
	var buf []byte
	for _, r := range records {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(r.Row), 10)
		buf = append(buf, 0)
		buf = append(buf, r.RawText...)
		buf = append(buf, 0)
		buf = strconv.AppendFloat(buf, r.Overall, 'g', -1, 64)
		buf = append(buf, '\n')
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
