// Package coach grades student essays with an analytic rubric and
// personalised feedback.
//
// # Quick Start
//
//	scorer, err := scoring.NewONNXScorer("scorer.onnx", "tokenizer.model")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scorer.Close()
//
//	gen, err := feedback.NewClient(ctx, feedback.Config{APIKey: os.Getenv("OPENAI_API_KEY")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := coach.New(scorer, gen)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := c.Assess(ctx, essay)
//
// # Outcomes
//
// Assess distinguishes three cases. A blank essay returns ErrNoInput. A
// scorer failure returns ErrScoringFailed and no record. When feedback
// cannot be generated the assessment still succeeds with StatusPartial and
// the record's feedback is null in its JSON form.
//
// # Thread Safety
//
// Coach is safe for concurrent use. AssessBatch grades several essays at
// once, bounded by WithConcurrency.
//
// # Data Preparation
//
// Training data for the scorer and the level classifier is prepared by the
// dataset package: normalization, label encoding, stratified splitting and
// materialization to train/val/test files.
package coach
