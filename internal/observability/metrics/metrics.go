package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the lead-capture chat pipeline.
type ChatMetrics struct {
	completionsTotal  *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	leadMutations     *prometheus.CounterVec
	extractionHits    *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agency",
			Subsystem: "chat",
			Name:      "completions_total",
			Help:      "Total completion calls to the LLM provider",
		}, []string{"provider", "status"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agency",
			Subsystem: "chat",
			Name:      "completion_latency_seconds",
			Help:      "Latency of LLM completion calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		leadMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agency",
			Subsystem: "leads",
			Name:      "mutations_total",
			Help:      "Total lead record store mutations",
		}, []string{"op", "status"}),
		extractionHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agency",
			Subsystem: "leads",
			Name:      "extraction_hits_total",
			Help:      "Entities detected in user messages",
		}, []string{"entity"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.completionsTotal, m.completionLatency, m.leadMutations, m.extractionHits)
	return m
}

func (m *ChatMetrics) ObserveCompletion(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(provider, status).Inc()
	m.completionLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *ChatMetrics) ObserveLeadMutation(op, status string) {
	if m == nil {
		return
	}
	m.leadMutations.WithLabelValues(op, status).Inc()
}

func (m *ChatMetrics) ObserveExtractionHit(entity string) {
	if m == nil {
		return
	}
	m.extractionHits.WithLabelValues(entity).Inc()
}
