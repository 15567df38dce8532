package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	namespace = "biogy"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	PostsCreatedTotal       prometheus.Counter
	PostTransitionsTotal    *prometheus.CounterVec
	TopicsCreatedTotal      prometheus.Counter
	DiscussionsCreatedTotal prometheus.Counter
	DeletionsTotal          *prometheus.CounterVec
	LikesToggledTotal       *prometheus.CounterVec

	logger *zap.Logger
}

// New creates and registers all metrics with the default registry
func New(logger *zap.Logger) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates and registers all metrics with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	factory := promauto.With(registerer)

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),

		PostsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_created_total",
				Help:      "Total number of posts submitted for moderation",
			},
		),
		PostTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "post_transitions_total",
				Help:      "Total number of moderation transitions by target status",
			},
			[]string{"status"},
		),
		TopicsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topics_created_total",
				Help:      "Total number of topics created",
			},
		),
		DiscussionsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discussions_created_total",
				Help:      "Total number of replies created",
			},
		),
		DeletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletions_total",
				Help:      "Total number of content deletions by entity and mode",
			},
			[]string{"entity", "mode"},
		),
		LikesToggledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "likes_toggled_total",
				Help:      "Total number of like toggles by reference type and direction",
			},
			[]string{"reference_type", "direction"},
		),

		logger: logger,
	}
}

// ShouldSkipEndpoint reports whether path is excluded from HTTP metrics.
func ShouldSkipEndpoint(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasSuffix(path, "/ws")
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unmatched"
	}
	m.safeExecute("RecordHTTPRequest", func() {
		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}

func (m *Metrics) IncrementPostCreated() {
	if m == nil {
		return
	}
	m.safeExecute("IncrementPostCreated", func() {
		m.PostsCreatedTotal.Inc()
	})
}

func (m *Metrics) IncrementPostTransition(status string) {
	if m == nil {
		return
	}
	m.safeExecute("IncrementPostTransition", func() {
		m.PostTransitionsTotal.WithLabelValues(status).Inc()
	})
}

func (m *Metrics) IncrementTopicCreated() {
	if m == nil {
		return
	}
	m.safeExecute("IncrementTopicCreated", func() {
		m.TopicsCreatedTotal.Inc()
	})
}

func (m *Metrics) IncrementDiscussionCreated() {
	if m == nil {
		return
	}
	m.safeExecute("IncrementDiscussionCreated", func() {
		m.DiscussionsCreatedTotal.Inc()
	})
}

// IncrementDeletion counts a deletion. mode is "soft" or "hard".
func (m *Metrics) IncrementDeletion(entity, mode string) {
	if m == nil {
		return
	}
	m.safeExecute("IncrementDeletion", func() {
		m.DeletionsTotal.WithLabelValues(entity, mode).Inc()
	})
}

func (m *Metrics) IncrementLikeToggled(refType string, liked bool) {
	if m == nil {
		return
	}
	direction := "unlike"
	if liked {
		direction = "like"
	}
	m.safeExecute("IncrementLikeToggled", func() {
		m.LikesToggledTotal.WithLabelValues(refType, direction).Inc()
	})
}

// safeExecute wraps metric operations with panic recovery
func (m *Metrics) safeExecute(operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in metrics operation",
				zap.String("operation", operation),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
