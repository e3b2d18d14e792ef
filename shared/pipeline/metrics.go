package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsBehavior counts requests by name and outcome and observes how long
// the rest of the pipeline took.
type MetricsBehavior struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetricsBehavior(reg prometheus.Registerer) (*MetricsBehavior, error) {
	b := &MetricsBehavior{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Requests handled by the command pipeline.",
		}, []string{"request", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_request_duration_seconds",
			Help:    "Time spent handling a pipeline request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"request"}),
	}
	for _, c := range []prometheus.Collector{b.requests, b.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *MetricsBehavior) Handle(ctx context.Context, req any, next Next) (any, error) {
	name := RequestName(req)
	start := time.Now()
	resp, err := next(ctx)
	b.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	b.requests.WithLabelValues(name, outcome).Inc()
	return resp, err
}
