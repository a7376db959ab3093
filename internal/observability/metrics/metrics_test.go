package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMetricsRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)

	m.ObserveCompletion("gemini", "ok", 0.42)
	m.ObserveCompletion("gemini", "error", 1.1)
	m.ObserveLeadMutation("insert", "ok")
	m.ObserveExtractionHit("phone")
	m.ObserveExtractionHit("email")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["agency_chat_completions_total"])
	assert.True(t, names["agency_chat_completion_latency_seconds"])
	assert.True(t, names["agency_leads_mutations_total"])
	assert.True(t, names["agency_leads_extraction_hits_total"])
}

func TestNilChatMetricsIsSafe(t *testing.T) {
	var m *ChatMetrics
	assert.NotPanics(t, func() {
		m.ObserveCompletion("gemini", "ok", 0.1)
		m.ObserveLeadMutation("update", "error")
		m.ObserveExtractionHit("service")
	})
}
