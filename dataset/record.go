package dataset

// Corpus column names.
const (
	ColumnText       = "full_text"
	ColumnOverall    = "Overall"
	ColumnNormalized = "cleaned_text"
	ColumnLabel      = "label"
	ColumnRow        = "source_row"
)

// Unlabeled marks a record whose Label has not been assigned yet.
const Unlabeled = -1

// Record is one essay from the labeled corpus.
type Record struct {
	// Row is the 0-based data row in the source corpus. It identifies the
	// record across splits.
	Row int

	RawText        string
	NormalizedText string
	Overall        float64
	Label          int

	// Fields holds every source column by name, including full_text and
	// Overall, so materialized files keep the original columns.
	Fields map[string]string
}

// Corpus is a parsed corpus file.
type Corpus struct {
	// Header is the source column order.
	Header  []string
	Records []Record

	// Skipped counts rows dropped for a missing score when
	// CorpusOptions.SkipIncomplete is set.
	Skipped int
}

// Scores returns the Overall score of every record.
func (c *Corpus) Scores() []float64 {
	out := make([]float64, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Overall
	}
	return out
}
