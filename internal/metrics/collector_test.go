package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
)

func TestRegistry_Record(t *testing.T) {
	r := NewRegistry()

	r.RecordTransition("apply", "applied")
	r.RecordTransition("apply", "applied")
	r.RecordTransition("revert", "busy")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Transitions.WithLabelValues("apply", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Transitions.WithLabelValues("revert", "busy")))

	r.SetOverrideActive(true, 1749945900)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OverrideActive))
	assert.Equal(t, 1749945900.0, testutil.ToFloat64(r.ExpiresAt))
	r.SetOverrideActive(false, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.OverrideActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ExpiresAt))

	r.RecordConfigReload(nil)
	r.RecordConfigReload(errors.New("bad"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("failure")))

	r.RecordAPIRequest("/api/message", 200, 0.01)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.APIRequests.WithLabelValues("/api/message", "200")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.RecordSweep("idle")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `holdover_sweeps_total{result="idle"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestCollector_FromHub(t *testing.T) {
	hub := events.NewHub()
	r := NewRegistry()
	clk := clock.NewMockClock(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	c := NewCollector(r, hub, logging.New(logging.DefaultConfig()), time.Hour, clk)
	c.Start()

	active := true
	hub.EmitTransition(events.TransitionData{Op: "apply", Outcome: "applied", Active: &active, ExpiresAt: 1749945900})
	hub.EmitSweep("expired", 0)
	hub.Publish(events.Event{Type: events.EventConfigReload, Data: events.ConfigReloadData{Error: "parse"}})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(r.Transitions.WithLabelValues("apply", "applied")) == 1 &&
			testutil.ToFloat64(r.Sweeps.WithLabelValues("expired")) == 1 &&
			testutil.ToFloat64(r.ConfigReload.WithLabelValues("failure")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OverrideActive))
	assert.Equal(t, 1749945900.0, testutil.ToFloat64(r.ExpiresAt))

	c.Stop()

	published, _ := hub.Stats()
	assert.Equal(t, float64(published), testutil.ToFloat64(r.EventsPublished))
}

func TestCollector_Uptime(t *testing.T) {
	start := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(start)
	r := NewRegistry()
	c := NewCollector(r, events.NewHub(), logging.New(logging.DefaultConfig()), time.Minute, clk)

	clk.Advance(90 * time.Second)
	c.updateUptime()
	assert.Equal(t, 90.0, testutil.ToFloat64(r.Uptime))
}
