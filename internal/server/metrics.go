package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_http_requests_total",
			Help: "HTTP requests served, by route and status code",
		},
		[]string{"route", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coach_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	assessmentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_assessments_total",
			Help: "Essays assessed, by outcome",
		},
		[]string{"outcome"},
	)

	feedbackFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coach_feedback_failures_total",
			Help: "Feedback requests that returned no feedback",
		},
	)
)
