package watch

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hmr/internal/hmr"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestMetrics_ObserveCycle(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveCycle(&hmr.Result{
		Outcome:  hmr.OutcomeApplied,
		Updated:  []hmr.ModuleID{"a", "b"},
		Failed:   []*hmr.ExecError{{ID: "a", Phase: "execute", Err: errors.New("boom")}},
		Passes:   2,
		Duration: 3 * time.Millisecond,
	})
	m.ObserveCycle(&hmr.Result{Outcome: hmr.OutcomeReload, Passes: 1})
	m.ObserveCycle(&hmr.Result{Outcome: hmr.OutcomeNoop})
	m.ObserveBuildError()

	body := scrape(t, m)
	assert.Contains(t, body, `hmr_update_cycles_total{outcome="applied"} 1`)
	assert.Contains(t, body, `hmr_update_cycles_total{outcome="reload"} 1`)
	assert.Contains(t, body, `hmr_update_cycles_total{outcome="noop"} 1`)
	assert.Contains(t, body, "hmr_modules_updated_total 2")
	assert.Contains(t, body, "hmr_execution_failures_total 1")
	assert.Contains(t, body, "hmr_build_errors_total 1")
	// The noop cycle ran no propagation.
	assert.Contains(t, body, "hmr_propagation_passes_count 2")
	assert.Contains(t, body, "hmr_update_cycle_duration_seconds_count 3")
	assert.NotContains(t, body, "hmr_connected_clients")
}

func TestMetrics_ConnectedClients(t *testing.T) {
	m := NewMetrics(func() float64 { return 3 })

	assert.Contains(t, scrape(t, m), "hmr_connected_clients 3")
	assert.NotNil(t, m.Registry())
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		NewMetrics(nil)
	})
}
