package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolutionCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordResolution("direct", true)
	m.RecordResolution("direct", true)
	m.RecordResolution("email_hash", true)
	m.RecordResolution("none", false)

	counts := m.ResolutionCounts()
	assert.Equal(t, int64(2), counts["resolve|direct|hit"])
	assert.Equal(t, int64(1), counts["resolve|email_hash|hit"])
	assert.Equal(t, int64(1), counts["resolve|none|miss"])

	// The snapshot is a copy, not a live view.
	counts["resolve|direct|hit"] = 99
	assert.Equal(t, int64(2), m.ResolutionCounts()["resolve|direct|hit"])
}

func TestMetricsNilSafety(t *testing.T) {
	var missing *Metrics
	missing.RecordResolution("direct", true)
	missing.RecordError("/identity/resolve", "POST", "NOT_FOUND")
	assert.Nil(t, missing.ResolutionCounts())
}
