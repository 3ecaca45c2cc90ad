package coach

import (
	"encoding/json"
	"time"

	"github.com/jamesainslie/go-writecoach/scoring"
)

// Status is the outcome of a successful assessment.
type Status string

const (
	// StatusComplete means scores and feedback were produced.
	StatusComplete Status = "complete"
	// StatusPartial means scores were produced but feedback was not.
	StatusPartial Status = "partial"
)

// Record is one graded submission. It is built once by Assess and never
// modified.
type Record struct {
	ID                string
	GeneratedAt       time.Time
	Essay             string
	Scores            scoring.Scores
	Feedback          string
	FeedbackAvailable bool
	EstimatedLevel    *float64
}

type recordJSON struct {
	ID             string         `json:"id"`
	GeneratedAt    time.Time      `json:"generation_timestamp"`
	Essay          string         `json:"student_essay"`
	Scores         scoring.Scores `json:"quantitative_scores"`
	Feedback       *string        `json:"qualitative_feedback"`
	EstimatedLevel *float64       `json:"estimated_level,omitempty"`
}

// MarshalJSON writes unavailable feedback as null.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:             r.ID,
		GeneratedAt:    r.GeneratedAt.UTC(),
		Essay:          r.Essay,
		Scores:         r.Scores,
		EstimatedLevel: r.EstimatedLevel,
	}
	if r.FeedbackAvailable {
		fb := r.Feedback
		out.Feedback = &fb
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads records written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record{
		ID:             in.ID,
		GeneratedAt:    in.GeneratedAt,
		Essay:          in.Essay,
		Scores:         in.Scores,
		EstimatedLevel: in.EstimatedLevel,
	}
	if in.Feedback != nil {
		r.Feedback = *in.Feedback
		r.FeedbackAvailable = true
	}
	return nil
}

// Assessment is the result of grading one essay.
type Assessment struct {
	Record Record
	Status Status
	// FeedbackError is the provider's failure text when Status is
	// StatusPartial.
	FeedbackError string
	// Location is where the record was saved, if a store is configured.
	Location string
	// SaveErr is set when saving failed. The assessment is still valid.
	SaveErr error
}

// BatchResult is the outcome of one essay in AssessBatch.
type BatchResult struct {
	Index      int
	Assessment *Assessment
	Err        error
}
