// Package report renders scores, split distributions, evaluation results
// and assessment history as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/internal/bench"
	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// newTable returns a markdown-style table writing to w.
func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func render(t *tablewriter.Table, rows [][]string) error {
	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return err
		}
	}
	return t.Render()
}

// ItemName is the display name of a rubric item, e.g. "Cohesion".
func ItemName(item scoring.Item) string {
	return cases.Title(language.English).String(item.String())
}

// Scores writes one row per rubric item with the score against the scale
// maximum ("7.5/10.0").
func Scores(w io.Writer, scores scoring.Scores, scale scoring.Scale) error {
	rows := make([][]string, 0, scoring.NumItems)
	for _, item := range scoring.Items {
		rows = append(rows, []string{ItemName(item), scale.Format(scores.Get(item))})
	}
	return render(newTable(w, "Rubric", "Score"), rows)
}

// PlainScores writes scores as "name: 7.5" lines under a title, the
// format of predicted_scores.txt.
func PlainScores(w io.Writer, scores scoring.Scores) error {
	var b strings.Builder
	b.WriteString("--- Predicted Scores ---\n")
	for _, item := range scoring.Items {
		fmt.Fprintf(&b, "%s: %.1f\n", item, scores.Get(item))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Distribution writes the per-label record counts of each split.
func Distribution(w io.Writer, p *dataset.Prepared) error {
	parts := p.Splits.Partitions()
	counts := make([]map[int]int, len(parts))
	headers := []string{"Label", "Overall"}
	for i, part := range parts {
		counts[i] = dataset.CountLabels(part.Records)
		headers = append(headers, part.Name)
	}
	headers = append(headers, "total")

	var rows [][]string
	totals := make([]int, len(parts))
	for id, score := range p.Labels.Scores() {
		row := []string{strconv.Itoa(id), dataset.FormatScore(score)}
		var sum int
		for i := range parts {
			n := counts[i][id]
			totals[i] += n
			sum += n
			row = append(row, strconv.Itoa(n))
		}
		rows = append(rows, append(row, strconv.Itoa(sum)))
	}

	footer := []string{"all", ""}
	var grand int
	for _, n := range totals {
		grand += n
		footer = append(footer, strconv.Itoa(n))
	}
	rows = append(rows, append(footer, strconv.Itoa(grand)))
	return render(newTable(w, headers...), rows)
}

// Examples writes the first n records of records with their raw and
// normalized text, truncated to width runes.
func Examples(w io.Writer, records []dataset.Record, n, width int) error {
	var rows [][]string
	for _, r := range records[:min(n, len(records))] {
		rows = append(rows, []string{
			strconv.Itoa(r.Row),
			truncate(r.RawText, width),
			truncate(r.NormalizedText, width),
			strconv.Itoa(r.Label),
		})
	}
	return render(newTable(w, "Row", "Essay", "Cleaned", "Label"), rows)
}

// Levels writes accuracy and the per-label breakdown of a level evaluation.
func Levels(w io.Writer, m bench.LevelMetrics) error {
	if _, err := fmt.Fprintf(w, "Accuracy: %.3f (%d/%d)  Macro F1: %.3f\n\n",
		m.Accuracy, m.Correct, m.Total, m.MacroF1); err != nil {
		return err
	}
	var rows [][]string
	for _, l := range m.Labels {
		rows = append(rows, []string{
			strconv.Itoa(l.LabelID),
			dataset.FormatScore(l.Score),
			strconv.Itoa(l.Support),
			fmt.Sprintf("%.3f", l.Precision),
			fmt.Sprintf("%.3f", l.Recall),
			fmt.Sprintf("%.3f", l.F1),
		})
	}
	return render(newTable(w, "Label", "Overall", "Support", "Precision", "Recall", "F1"), rows)
}

// Confusion writes the confusion matrix, truth by row.
func Confusion(w io.Writer, m bench.LevelMetrics, scores []float64) error {
	headers := []string{"truth \\ pred"}
	for _, s := range scores {
		headers = append(headers, dataset.FormatScore(s))
	}
	var rows [][]string
	for i, counts := range m.Confusion {
		row := []string{dataset.FormatScore(scores[i])}
		for _, n := range counts {
			row = append(row, strconv.Itoa(n))
		}
		rows = append(rows, row)
	}
	return render(newTable(w, headers...), rows)
}

// Rubric writes the per-item scoring error.
func Rubric(w io.Writer, errs []bench.ItemError) error {
	var rows [][]string
	for _, e := range errs {
		rows = append(rows, []string{
			ItemName(e.Item),
			strconv.Itoa(e.N),
			fmt.Sprintf("%.3f", e.MAE),
			fmt.Sprintf("%.1f%%", e.Exact*100),
			fmt.Sprintf("%.1f%%", e.Within1*100),
		})
	}
	return render(newTable(w, "Rubric", "N", "MAE", "Exact", "Within 1"), rows)
}

// History writes past assessments, one per row, followed by the per-item
// average.
func History(w io.Writer, entries []history.Entry) error {
	headers := []string{"Generated", "Source", "Status"}
	for _, item := range scoring.Items {
		headers = append(headers, ItemName(item))
	}
	headers = append(headers, "Level")

	var rows [][]string
	for _, e := range entries {
		row := []string{e.GeneratedAt.Local().Format(time.DateTime), e.Source, string(e.Status)}
		row = appendScores(row, e.Scores)
		level := "-"
		if e.Level.Valid {
			level = dataset.FormatScore(e.Level.Float64)
		}
		rows = append(rows, append(row, level))
	}
	if len(entries) > 1 {
		row := appendScores([]string{"average", "", ""}, history.Averages(entries))
		rows = append(rows, append(row, ""))
	}
	return render(newTable(w, headers...), rows)
}

func appendScores(row []string, s scoring.Scores) []string {
	for _, v := range s {
		row = append(row, strconv.FormatFloat(v, 'f', 1, 64))
	}
	return row
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
