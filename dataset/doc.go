// Package dataset turns a labeled essay corpus into stratified train,
// validation and test splits with a stable score-to-label encoding.
//
// The offline pipeline is
//
//	corpus, _ := dataset.LoadCorpus("ellipse.csv", dataset.CorpusOptions{})
//	prepared, _ := dataset.Prepare(corpus, dataset.DefaultRatios, 42)
//	_, _ = dataset.NewMaterializer(bucket, corpus.Header).PersistAll(ctx, prepared)
//
// Inference code loads the persisted mapping with LoadLabels and never
// rebuilds it, so label ids agree between training and serving.
//
// Every refusal to process input is a *ValidationError; data is never
// dropped or repaired silently.
package dataset
