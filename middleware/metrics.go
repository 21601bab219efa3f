package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/blnkoff/sensei"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records Prometheus metrics for outgoing calls. It is safe for
// concurrent use.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensei_requests_total",
				Help: "Total number of API calls made",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sensei_request_duration_seconds",
				Help:    "Duration of API calls in seconds, rate-limit waits excluded",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sensei_requests_in_flight",
				Help: "Number of API calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
	}
}

// Interceptor returns the interceptor feeding m. The endpoint label is the
// path template, so it stays bounded.
func (m *Metrics) Interceptor() sensei.Interceptor {
	return func(ctx context.Context, call *sensei.Call, next sensei.Invoker) (*sensei.Response, error) {
		inFlight := m.requestsInFlight.WithLabelValues(call.Method, call.Path)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		resp, err := next(ctx, call)

		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode())
		}
		m.requestsTotal.WithLabelValues(call.Method, call.Path, status).Inc()
		m.requestDuration.WithLabelValues(call.Method, call.Path, status).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
