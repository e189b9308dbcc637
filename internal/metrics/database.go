package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBConnections reports pool sizes by driver and state
	// (open, in_use, idle, max).
	DBConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database connection pool size by state",
		},
		[]string{"driver", "state"},
	)

	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Repository operations that returned an error",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolStats is a point-in-time view of a connection pool.
type PoolStats struct {
	Open  int
	InUse int
	Idle  int
	Max   int
}

// PoolStatter is implemented by both storage backends.
type PoolStatter interface {
	PoolStats() PoolStats
}

// DBCollector samples a PoolStatter on an interval until stopped.
type DBCollector struct {
	driver   string
	source   PoolStatter
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewDBCollector(driver string, source PoolStatter) *DBCollector {
	return &DBCollector{
		driver:   driver,
		source:   source,
		stopChan: make(chan struct{}),
	}
}

// Start blocks, collecting immediately and then every interval, until ctx
// is done or Stop is called.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop is safe to call more than once.
func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *DBCollector) collect() {
	if c.source == nil {
		return
	}
	stats := c.source.PoolStats()
	DBConnections.WithLabelValues(c.driver, "open").Set(float64(stats.Open))
	DBConnections.WithLabelValues(c.driver, "in_use").Set(float64(stats.InUse))
	DBConnections.WithLabelValues(c.driver, "idle").Set(float64(stats.Idle))
	DBConnections.WithLabelValues(c.driver, "max").Set(float64(stats.Max))
}

// RecordQuery observes one repository call. Use it from a deferred closure
// over a named error result:
//
//	start := time.Now()
//	defer func() { metrics.RecordQuery("events_list", start, err) }()
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DBErrors.WithLabelValues(operation, errorType(err)).Inc()
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "query_error"
	}
}
