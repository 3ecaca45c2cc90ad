package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CorpusOptions controls corpus parsing.
type CorpusOptions struct {
	// SkipIncomplete drops rows with a blank Overall score instead of
	// failing. The number dropped is reported in Corpus.Skipped.
	SkipIncomplete bool
}

// maxReportedRows bounds how many offending rows a ValidationError lists.
const maxReportedRows = 10

// LoadCorpus reads a corpus CSV from path.
func LoadCorpus(path string, opts CorpusOptions) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	return ReadCorpus(f, opts)
}

// ReadCorpus parses a labeled corpus. The header must contain full_text and
// Overall; every other column is carried through untouched.
func ReadCorpus(r io.Reader, opts CorpusOptions) (*Corpus, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("corpus", "file is empty")
		}
		return nil, fmt.Errorf("reading corpus header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	textCol, overallCol := -1, -1
	for i, name := range header {
		switch name {
		case ColumnText:
			textCol = i
		case ColumnOverall:
			overallCol = i
		}
	}
	if textCol < 0 {
		return nil, invalid("corpus", "missing required column %q", ColumnText)
	}
	if overallCol < 0 {
		return nil, invalid("corpus", "missing required column %q", ColumnOverall)
	}

	corpus := &Corpus{Header: header}
	var missing []int

	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading corpus row %d: %w", row, err)
		}

		rawScore := strings.TrimSpace(fields[overallCol])
		if isBlankScore(rawScore) {
			if opts.SkipIncomplete {
				corpus.Skipped++
				continue
			}
			missing = append(missing, row)
			continue
		}
		score, err := ParseScore(rawScore)
		if err != nil {
			return nil, invalid(ColumnOverall, "row %d: %q is not a number", row, rawScore)
		}

		byName := make(map[string]string, len(header))
		for i, name := range header {
			byName[name] = fields[i]
		}

		corpus.Records = append(corpus.Records, Record{
			Row:     row,
			RawText: fields[textCol],
			Overall: score,
			Label:   Unlabeled,
			Fields:  byName,
		})
	}

	if len(missing) > 0 {
		shown := missing
		if len(shown) > maxReportedRows {
			shown = shown[:maxReportedRows]
		}
		return nil, invalid(ColumnOverall, "%d rows have no score (rows %v)", len(missing), shown)
	}
	if len(corpus.Records) == 0 {
		return nil, invalid("corpus", "no labeled rows")
	}

	return corpus, nil
}

func isBlankScore(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return true
	}
	return false
}
