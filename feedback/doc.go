// Package feedback generates qualitative essay feedback with a language
// model.
//
// A Client renders a tutor prompt from the essay and its rubric scores and
// sends it through a Provider (OpenAI, Anthropic, Gemini, or a remote
// grading backend). Transient vendor failures are retried with backoff and
// requests can be rate limited.
//
// GenerateFeedback never returns a Go error. When no feedback can be
// produced it returns a string starting with ErrorPrefix; callers test it
// with IsError.
package feedback
