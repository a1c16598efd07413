// Package promsink exposes monitor records and events as Prometheus metrics.
//
// Metrics:
//   - axiosly_request_duration_seconds{method, status_class} (Histogram)
//   - axiosly_records_total{outcome} (Counter): completed records by outcome
//   - axiosly_events_total{event} (Counter): monitor events by name
package promsink

import (
	"strconv"
	"time"

	"github.com/jkbrsn/axiosly"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "axiosly"

// Sink is an axiosly.MetricsSink backed by Prometheus collectors.
type Sink struct {
	duration *prometheus.HistogramVec
	records  *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// New creates a Sink and registers its collectors with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of monitored HTTP requests that received a response",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status_class"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Completed request records by outcome",
			},
			[]string{"outcome"}, // outcome: response, error
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Monitor events by name",
			},
			[]string{"event"},
		),
	}

	for _, c := range []prometheus.Collector{s.duration, s.records, s.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ObserveRecord implements axiosly.MetricsSink.
func (s *Sink) ObserveRecord(rec axiosly.MetricsRecord) {
	s.records.WithLabelValues(rec.Outcome()).Inc()
	if rec.Response == nil {
		return
	}
	elapsed := time.Duration(rec.Response.Duration) * time.Millisecond
	s.duration.
		WithLabelValues(rec.Request.Method, StatusClass(rec.Response.Status)).
		Observe(elapsed.Seconds())
}

// ObserveEvent implements axiosly.MetricsSink.
func (s *Sink) ObserveEvent(name string, _ map[string]any) {
	s.events.WithLabelValues(name).Inc()
}

// StatusClass maps an HTTP status code to "1xx" through "5xx", or "other".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
