package coach

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamesainslie/go-writecoach/scoring"
)

var (
	fixedTime  = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	fakeScores = scoring.Scores{3.5, 3, 4, 3, 2.5, 3}
)

type fakeScorer struct {
	err  error
	seen atomic.Value
}

func (f *fakeScorer) PredictScores(_ context.Context, text string) (scoring.Scores, error) {
	f.seen.Store(text)
	if f.err != nil {
		return scoring.Scores{}, f.err
	}
	if strings.TrimSpace(text) == "" {
		return scoring.Scores{}, nil
	}
	return fakeScores, nil
}

type fakeFeedback struct {
	reply string
	calls atomic.Int32
	essay atomic.Value
}

func (f *fakeFeedback) GenerateFeedback(_ context.Context, essay string, _ scoring.Scores) string {
	f.calls.Add(1)
	f.essay.Store(essay)
	return f.reply
}

type fakeLevel struct {
	score float64
	err   error
}

func (f fakeLevel) Estimate(context.Context, string) (scoring.Level, error) {
	return scoring.Level{Score: f.score}, f.err
}

type memStore struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (m *memStore) Save(_ context.Context, rec Record) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return "mem://" + rec.ID, nil
}

func newTestCoach(t *testing.T, s Scorer, g FeedbackGenerator, opts ...Option) *Coach {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	c, err := New(s, g, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, &fakeFeedback{}); err == nil {
		t.Error("expected error for nil scorer")
	}
	if _, err := New(&fakeScorer{}, nil); err == nil {
		t.Error("expected error for nil feedback generator")
	}
}

func TestAssess(t *testing.T) {
	scorer := &fakeScorer{}
	gen := &fakeFeedback{reply: "### Strengths\nGood structure."}
	store := &memStore{}
	c := newTestCoach(t, scorer, gen, WithStore(store))

	essay := "Phones   in school\tare “useful”.\n\nThey help 😀 students."
	a, err := c.Assess(context.Background(), essay)
	if err != nil {
		t.Fatalf("Assess() failed: %v", err)
	}

	if a.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", a.Status, StatusComplete)
	}
	if got := scorer.seen.Load().(string); got != "phones in school are useful. they help students." {
		t.Errorf("scorer saw %q, want normalized text", got)
	}
	if got := gen.essay.Load().(string); got != essay {
		t.Errorf("feedback saw %q, want the original essay", got)
	}

	rec := a.Record
	if rec.Scores != fakeScores {
		t.Errorf("Scores = %v, want %v", rec.Scores, fakeScores)
	}
	if !rec.FeedbackAvailable || rec.Feedback != gen.reply {
		t.Errorf("Feedback = %q (available %v)", rec.Feedback, rec.FeedbackAvailable)
	}
	if !rec.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", rec.GeneratedAt, fixedTime)
	}
	if rec.ID == "" {
		t.Error("expected a record id")
	}
	if rec.EstimatedLevel != nil {
		t.Error("expected no level without an estimator")
	}

	if len(store.records) != 1 || a.Location != "mem://"+rec.ID || a.SaveErr != nil {
		t.Errorf("save: records=%d location=%q err=%v", len(store.records), a.Location, a.SaveErr)
	}
}

func TestAssess_NoInput(t *testing.T) {
	scorer := &fakeScorer{}
	gen := &fakeFeedback{reply: "x"}
	c := newTestCoach(t, scorer, gen)

	for _, essay := range []string{"", "   \n\t", "😀😀"} {
		_, err := c.Assess(context.Background(), essay)
		if !errors.Is(err, ErrNoInput) {
			t.Errorf("Assess(%q) error = %v, want ErrNoInput", essay, err)
		}
	}
	if gen.calls.Load() != 0 {
		t.Error("feedback must not be requested for blank input")
	}
}

func TestAssess_ScoringFailed(t *testing.T) {
	cause := errors.New("model unavailable")
	gen := &fakeFeedback{reply: "x"}
	store := &memStore{}
	c := newTestCoach(t, &fakeScorer{err: cause}, gen, WithStore(store))

	a, err := c.Assess(context.Background(), "An essay.")
	if !errors.Is(err, ErrScoringFailed) || !errors.Is(err, cause) {
		t.Fatalf("error = %v, want ErrScoringFailed wrapping the cause", err)
	}
	if a != nil {
		t.Error("expected no assessment")
	}
	if gen.calls.Load() != 0 || len(store.records) != 0 {
		t.Error("a scoring failure must halt the pipeline")
	}
}

func TestAssess_FeedbackUnavailable(t *testing.T) {
	store := &memStore{}
	gen := &fakeFeedback{reply: "Error: rate limited"}
	c := newTestCoach(t, &fakeScorer{}, gen, WithStore(store))

	a, err := c.Assess(context.Background(), "An essay.")
	if err != nil {
		t.Fatalf("Assess() failed: %v", err)
	}
	if a.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", a.Status, StatusPartial)
	}
	if a.Record.FeedbackAvailable || a.Record.Feedback != "" {
		t.Errorf("record must not carry failure text as feedback: %q", a.Record.Feedback)
	}
	if a.FeedbackError != gen.reply {
		t.Errorf("FeedbackError = %q", a.FeedbackError)
	}
	if a.Record.Scores != fakeScores {
		t.Error("scores must survive a feedback failure")
	}
	if len(store.records) != 1 {
		t.Error("partial records are still saved")
	}

	data, err := json.Marshal(a.Record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"qualitative_feedback":null`) {
		t.Errorf("expected null feedback in %s", data)
	}
}

func TestAssess_SaveErrorIsNotFatal(t *testing.T) {
	c := newTestCoach(t, &fakeScorer{}, &fakeFeedback{reply: "ok"}, WithStore(&memStore{err: errors.New("disk full")}))

	a, err := c.Assess(context.Background(), "An essay.")
	if err != nil {
		t.Fatalf("Assess() failed: %v", err)
	}
	if a.SaveErr == nil || a.Location != "" {
		t.Errorf("SaveErr = %v, Location = %q", a.SaveErr, a.Location)
	}
	if a.Status != StatusComplete {
		t.Errorf("Status = %q", a.Status)
	}
}

func TestAssess_Level(t *testing.T) {
	c := newTestCoach(t, &fakeScorer{}, &fakeFeedback{reply: "ok"}, WithLevelEstimator(fakeLevel{score: 3.5}))
	a, err := c.Assess(context.Background(), "An essay.")
	if err != nil {
		t.Fatalf("Assess() failed: %v", err)
	}
	if a.Record.EstimatedLevel == nil || *a.Record.EstimatedLevel != 3.5 {
		t.Errorf("EstimatedLevel = %v, want 3.5", a.Record.EstimatedLevel)
	}

	c = newTestCoach(t, &fakeScorer{}, &fakeFeedback{reply: "ok"}, WithLevelEstimator(fakeLevel{err: errors.New("no model")}))
	a, err = c.Assess(context.Background(), "An essay.")
	if err != nil {
		t.Fatalf("level failures must not fail Assess: %v", err)
	}
	if a.Record.EstimatedLevel != nil {
		t.Error("expected no level after an estimator failure")
	}
}

func TestAssessBatch(t *testing.T) {
	store := &memStore{}
	c := newTestCoach(t, &fakeScorer{}, &fakeFeedback{reply: "ok"}, WithStore(store), WithConcurrency(2))

	essays := []string{"First essay.", "", "Third essay.", "Fourth essay."}
	results := c.AssessBatch(context.Background(), essays)

	if len(results) != len(essays) {
		t.Fatalf("got %d results, want %d", len(results), len(essays))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
		if i == 1 {
			if !errors.Is(r.Err, ErrNoInput) {
				t.Errorf("results[1].Err = %v, want ErrNoInput", r.Err)
			}
			continue
		}
		if r.Err != nil || r.Assessment == nil {
			t.Errorf("results[%d] = %+v", i, r)
			continue
		}
		if r.Assessment.Record.Essay != essays[i] {
			t.Errorf("results[%d] essay = %q", i, r.Assessment.Record.Essay)
		}
	}
	if len(store.records) != 3 {
		t.Errorf("saved %d records, want 3", len(store.records))
	}
}

func TestRecordJSON(t *testing.T) {
	level := 3.5
	rec := Record{
		ID:                "id-1",
		GeneratedAt:       fixedTime,
		Essay:             "An essay.",
		Scores:            fakeScores,
		Feedback:          "Nice.",
		FeedbackAvailable: true,
		EstimatedLevel:    &level,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{
		`"generation_timestamp":"2026-03-14T09:26:53Z"`,
		`"student_essay":"An essay."`,
		`"quantitative_scores":{"cohesion":3.5,`,
		`"qualitative_feedback":"Nice."`,
		`"estimated_level":3.5`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON %s missing %s", data, want)
		}
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.ID != rec.ID || back.Feedback != rec.Feedback || !back.FeedbackAvailable || *back.EstimatedLevel != level {
		t.Errorf("round trip = %+v", back)
	}
}
