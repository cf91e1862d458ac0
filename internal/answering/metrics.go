package answering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	cacheLookups      *prometheus.CounterVec
	inferenceRequests *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
}

// NewMetrics registers the answering collectors on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formfill_answer_cache_lookups_total",
			Help: "Answer cache lookups by result (hit or miss).",
		}, []string{"result"}),
		inferenceRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formfill_inference_requests_total",
			Help: "Inference requests by outcome (success or error).",
		}, []string{"outcome"}),
		inferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formfill_inference_duration_seconds",
			Help:    "Latency of inference requests.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) observeInference(seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.inferenceRequests.WithLabelValues(outcome).Inc()
	m.inferenceDuration.Observe(seconds)
}
