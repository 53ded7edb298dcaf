package database

import (
	"context"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	_ sqlhooks.Hooks     = &QueryHooks{}
	_ sqlhooks.OnErrorer = &QueryHooks{}
)

var (
	queryMetrics    = NewQueryHooks()
	queryNameRegexp = regexp.MustCompile(`^-- name: (\w+)`)
)

type startedKey struct{}

// QueryHooks records the duration and errors of every query, labelled with
// the query name from its "-- name:" header.
type QueryHooks struct {
	durations *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

func (h *QueryHooks) Before(ctx context.Context, _ string, _ ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, startedKey{}, time.Now()), nil
}

func (h *QueryHooks) After(ctx context.Context, query string, _ ...interface{}) (context.Context, error) {
	started, ok := ctx.Value(startedKey{}).(time.Time)
	if ok {
		h.durations.WithLabelValues(QueryName(query)).Observe(time.Since(started).Seconds())
	}

	return ctx, nil
}

func (h *QueryHooks) OnError(_ context.Context, err error, query string, _ ...interface{}) error {
	h.errors.WithLabelValues(QueryName(query)).Inc()

	return err
}

func (h *QueryHooks) Collectors() []prometheus.Collector {
	return []prometheus.Collector{h.durations, h.errors}
}

// QueryName extracts the name from a query, or "unnamed" if it has none.
func QueryName(query string) string {
	m := queryNameRegexp.FindStringSubmatch(query)
	if m == nil {
		return "unnamed"
	}

	return m[1]
}

func NewQueryHooks() *QueryHooks {
	return &QueryHooks{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nada_socrata",
			Subsystem: "postgres",
			Name:      "query_duration_seconds",
			Help:      "Duration of queries against the control plane database.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nada_socrata",
			Subsystem: "postgres",
			Name:      "query_errors_total",
			Help:      "Number of failed queries against the control plane database.",
		}, []string{"query"}),
	}
}
