package telemetry_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"joddb/internal/telemetry"
)

func TestCollectorExposesCounters(t *testing.T) {
	c := telemetry.NewCollector()
	c.RecordClaim()
	c.RecordCompletion(540)
	c.RecordDecision("qa", "accepted")
	c.RecordDecision("qa", "rejected")
	c.RecordConflict()
	c.RecordResume()
	c.RecordClose()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "joddb_tasks_claimed_total 1")
	assert.Contains(t, out, "joddb_tasks_completed_total 1")
	assert.Contains(t, out, `joddb_review_decisions_total{decision="accepted",stage="qa"} 1`)
	assert.Contains(t, out, `joddb_review_decisions_total{decision="rejected",stage="qa"} 1`)
	assert.Contains(t, out, "joddb_transition_conflicts_total 1")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *telemetry.Collector
	assert.NotPanics(t, func() {
		c.RecordClaim()
		c.RecordCompletion(1)
		c.RecordDecision("qa", "accepted")
		c.RecordResume()
		c.RecordClose()
		c.RecordConflict()
	})
}

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	require.NotPanics(t, func() {
		telemetry.NewCollector()
		telemetry.NewCollector()
	})
}
