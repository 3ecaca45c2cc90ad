// Package scoring predicts analytic rubric scores and overall proficiency
// levels for essays.
//
// Scores are produced by a local ONNX regression model (ONNXScorer) or by a
// grading backend over HTTP (RemoteScorer). Both return a Scores vector
// quantized by a Scale; blank text always scores zero.
//
// LevelEstimator runs an overall-score classifier and decodes its class id
// through the dataset.LabelMap persisted at data preparation time.
package scoring
