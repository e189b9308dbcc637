package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// EventMutations counts create/update/delete calls by outcome.
	EventMutations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_mutations_total",
			Help:      "Event mutations by operation and result",
		},
		[]string{"op", "result"}, // op: create|update|delete, result: success|not_found|forbidden|invalid|error
	)

	EventRegistrations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_registrations_total",
			Help:      "Attendee registrations by result",
		},
		[]string{"result"}, // success|duplicate|not_found|error
	)

	AuthAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Register and login attempts by result",
		},
		[]string{"op", "result"},
	)

	MediaUploads = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Banner uploads by result",
		},
		[]string{"result"}, // stored|unsupported_type|too_large|error
	)

	MediaUploadBytes = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_upload_bytes",
			Help:      "Size of stored banner uploads in bytes",
			// 1KB .. 5MB
			Buckets: []float64{1 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20, 2 << 20, 5 << 20},
		},
	)
)
