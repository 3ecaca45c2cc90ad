package dataset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/jamesainslie/go-writecoach/blob"
)

// File names written by the Materializer.
const (
	Label2IDFile = "label2id.json"
	ID2LabelFile = "id2label.json"
	ManifestFile = "manifest.json"
)

// ErrManifestMismatch is returned by PersistAll when the destination already
// holds splits made from different inputs.
var ErrManifestMismatch = errors.New("dataset: existing splits were produced with different inputs")

// Materializer writes splits and label maps to a bucket.
type Materializer struct {
	bucket blob.Bucket
	header []string
	force  bool
}

// NewMaterializer returns a Materializer that writes CSV files with the
// given source header followed by the cleaned_text and label columns.
func NewMaterializer(bucket blob.Bucket, header []string) *Materializer {
	return &Materializer{bucket: bucket, header: outputHeader(header)}
}

// Force lets PersistAll replace splits produced from different inputs.
func (m *Materializer) Force(force bool) *Materializer {
	m.force = force
	return m
}

// SplitFile returns the object name of a split.
func SplitFile(name string) string {
	return name + ".csv"
}

// Persist writes records as <name>.csv and returns its location.
func (m *Materializer) Persist(ctx context.Context, name string, records []Record) (string, error) {
	if _, err := m.persist(ctx, name, records); err != nil {
		return "", err
	}
	return m.bucket.URI(SplitFile(name)), nil
}

func (m *Materializer) persist(ctx context.Context, name string, records []Record) (string, error) {
	w, err := m.bucket.NewWriter(ctx, SplitFile(name))
	if err != nil {
		return "", fmt.Errorf("creating %s split: %w", name, err)
	}

	h := sha256.New()
	cw := csv.NewWriter(io.MultiWriter(w, h))
	if err := cw.Write(m.header); err != nil {
		w.Discard()
		return "", err
	}
	row := make([]string, len(m.header))
	for _, r := range records {
		for i, col := range m.header {
			row[i] = columnValue(r, col)
		}
		if err := cw.Write(row); err != nil {
			w.Discard()
			return "", fmt.Errorf("writing %s split: %w", name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		w.Discard()
		return "", fmt.Errorf("writing %s split: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing %s split: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PersistLabels writes label2id.json and id2label.json.
func (m *Materializer) PersistLabels(ctx context.Context, labels *LabelMap) error {
	l2i, i2l := encodeLabelFiles(labels)
	if err := blob.WriteAll(ctx, m.bucket, Label2IDFile, l2i); err != nil {
		return fmt.Errorf("writing %s: %w", Label2IDFile, err)
	}
	if err := blob.WriteAll(ctx, m.bucket, ID2LabelFile, i2l); err != nil {
		return fmt.Errorf("writing %s: %w", ID2LabelFile, err)
	}
	return nil
}

// PersistAll writes every split, both label files and the manifest. It
// refuses to overwrite splits made from a different corpus, seed or ratios
// unless Force was set.
func (m *Materializer) PersistAll(ctx context.Context, p *Prepared) (*Manifest, error) {
	log := clog.FromContext(ctx)

	if !m.force {
		prev, err := ReadManifest(ctx, m.bucket)
		switch {
		case errors.Is(err, blob.ErrNotExist):
		case err != nil:
			return nil, err
		case !prev.Matches(p):
			return nil, fmt.Errorf("%w: %s", ErrManifestMismatch, m.bucket.URI(ManifestFile))
		default:
			log.Info("Existing splits match inputs, rewriting", "location", m.bucket.URI(ManifestFile))
		}
	}

	manifest := &Manifest{
		Seed:         p.Seed,
		Ratios:       p.Ratios,
		CorpusDigest: p.CorpusDigest,
		CreatedAt:    time.Now().UTC(),
	}
	for _, s := range p.Labels.Scores() {
		manifest.Labels = append(manifest.Labels, FormatScore(s))
	}

	for _, part := range p.Splits.Partitions() {
		digest, err := m.persist(ctx, part.Name, part.Records)
		if err != nil {
			return nil, err
		}
		manifest.Splits = append(manifest.Splits, ManifestSplit{
			Name:   part.Name,
			File:   SplitFile(part.Name),
			Size:   len(part.Records),
			Counts: CountLabels(part.Records),
			SHA256: digest,
		})
		log.Info("Wrote split", "split", part.Name, "records", len(part.Records), "location", m.bucket.URI(SplitFile(part.Name)))
	}

	if err := m.PersistLabels(ctx, p.Labels); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := blob.WriteAll(ctx, m.bucket, ManifestFile, data); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ManifestFile, err)
	}
	return manifest, nil
}

// LoadSplit reads a split written by Persist. Row is the source corpus row;
// files without a source_row column number records by file position.
func LoadSplit(ctx context.Context, bucket blob.Bucket, name string) ([]Record, error) {
	r, err := bucket.NewReader(ctx, SplitFile(name))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", name, err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, col := range []string{ColumnText, ColumnOverall, ColumnNormalized, ColumnLabel} {
		if _, ok := idx[col]; !ok {
			return nil, invalid(name, "missing column %q", col)
		}
	}

	var records []Record
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s row %d: %w", name, row, err)
		}
		score, err := ParseScore(fields[idx[ColumnOverall]])
		if err != nil {
			return nil, invalid(name, "row %d: bad %s %q", row, ColumnOverall, fields[idx[ColumnOverall]])
		}
		label, err := strconv.Atoi(fields[idx[ColumnLabel]])
		if err != nil {
			return nil, invalid(name, "row %d: bad %s %q", row, ColumnLabel, fields[idx[ColumnLabel]])
		}
		source := row
		if i, ok := idx[ColumnRow]; ok {
			if source, err = strconv.Atoi(fields[i]); err != nil || source < 0 {
				return nil, invalid(name, "row %d: bad %s %q", row, ColumnRow, fields[i])
			}
		}
		byName := make(map[string]string, len(header))
		for i, col := range header {
			if derivedColumn(col) {
				continue
			}
			byName[col] = fields[i]
		}
		records = append(records, Record{
			Row:            source,
			RawText:        fields[idx[ColumnText]],
			NormalizedText: fields[idx[ColumnNormalized]],
			Overall:        score,
			Label:          label,
			Fields:         byName,
		})
	}
	return records, nil
}

// LoadLabels reads label2id.json and id2label.json and checks that they
// describe the same ascending bijection.
func LoadLabels(ctx context.Context, bucket blob.Bucket) (*LabelMap, error) {
	l2iData, err := blob.ReadAll(ctx, bucket, Label2IDFile)
	if err != nil {
		return nil, err
	}
	i2lData, err := blob.ReadAll(ctx, bucket, ID2LabelFile)
	if err != nil {
		return nil, err
	}
	return decodeLabelFiles(l2iData, i2lData)
}

func decodeLabelFiles(l2iData, i2lData []byte) (*LabelMap, error) {
	var l2i map[string]int
	if err := json.Unmarshal(l2iData, &l2i); err != nil {
		return nil, invalid(Label2IDFile, "%v", err)
	}
	var i2l map[string]string
	if err := json.Unmarshal(i2lData, &i2l); err != nil {
		return nil, invalid(ID2LabelFile, "%v", err)
	}
	if len(l2i) != len(i2l) {
		return nil, invalid("label files", "%s has %d entries, %s has %d", Label2IDFile, len(l2i), ID2LabelFile, len(i2l))
	}
	if len(i2l) == 0 {
		return nil, invalid("label files", "no labels")
	}

	byID := make(map[int]float64, len(l2i))
	for key, id := range l2i {
		s, err := ParseScore(key)
		if err != nil {
			return nil, invalid(Label2IDFile, "key %q is not a score", key)
		}
		if _, dup := byID[id]; dup {
			return nil, invalid(Label2IDFile, "id %d assigned twice", id)
		}
		byID[id] = s
	}

	scores := make([]float64, len(i2l))
	for i := range scores {
		v, ok := i2l[strconv.Itoa(i)]
		if !ok {
			return nil, invalid(ID2LabelFile, "ids are not contiguous: %d missing", i)
		}
		s, err := ParseScore(v)
		if err != nil {
			return nil, invalid(ID2LabelFile, "value %q for id %d is not a score", v, i)
		}
		if fwd, ok := byID[i]; !ok || fwd != s {
			return nil, invalid("label files", "id %d maps to %s in %s but not back", i, v, ID2LabelFile)
		}
		if i > 0 && scores[i-1] >= s {
			return nil, invalid(ID2LabelFile, "scores are not in ascending id order")
		}
		scores[i] = s
	}
	return newLabelMap(scores), nil
}

func encodeLabelFiles(labels *LabelMap) (label2id, id2label []byte) {
	var l2i, i2l bytes.Buffer
	l2i.WriteString("{\n")
	i2l.WriteString("{\n")
	for id, s := range labels.scores {
		sep := ",\n"
		if id == len(labels.scores)-1 {
			sep = "\n"
		}
		score := strconv.Quote(FormatScore(s))
		fmt.Fprintf(&l2i, "  %s: %d%s", score, id, sep)
		fmt.Fprintf(&i2l, "  %q: %s%s", strconv.Itoa(id), score, sep)
	}
	l2i.WriteString("}\n")
	i2l.WriteString("}\n")
	return l2i.Bytes(), i2l.Bytes()
}

func outputHeader(src []string) []string {
	out := make([]string, 0, len(src)+3)
	for _, col := range src {
		if derivedColumn(col) {
			continue
		}
		out = append(out, col)
	}
	if !slices.Contains(out, ColumnText) {
		out = append(out, ColumnText)
	}
	if !slices.Contains(out, ColumnOverall) {
		out = append(out, ColumnOverall)
	}
	return append(out, ColumnNormalized, ColumnLabel, ColumnRow)
}

// derivedColumn reports whether col is written by the materializer rather
// than copied from the corpus.
func derivedColumn(col string) bool {
	return col == ColumnNormalized || col == ColumnLabel || col == ColumnRow
}

func columnValue(r Record, col string) string {
	switch col {
	case ColumnNormalized:
		return r.NormalizedText
	case ColumnLabel:
		return strconv.Itoa(r.Label)
	case ColumnRow:
		return strconv.Itoa(r.Row)
	}
	if v, ok := r.Fields[col]; ok {
		return v
	}
	switch col {
	case ColumnText:
		return r.RawText
	case ColumnOverall:
		return FormatScore(r.Overall)
	}
	return ""
}
