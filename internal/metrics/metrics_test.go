package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/robinavatar/internal/bus"
)

// value sums every sample of the named family whose labels include want.
func value(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, fam := range families {
		if fam.GetName() != namespace+"_"+name {
			continue
		}
	samples:
		for _, metric := range fam.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue samples
				}
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestAttachCountsSessionEvents(t *testing.T) {
	m := New()
	b := bus.NewEventBus()
	detach := m.Attach(b)

	b.PublishSync(bus.Event{Type: bus.EventTypeChatFailed, Data: map[string]any{"error": "refused"}})
	b.PublishSync(bus.Event{Type: bus.EventTypeSpeechCompleted, Data: map[string]any{"bytes": 1200, "latency": 300 * time.Millisecond}})
	b.PublishSync(bus.Event{Type: bus.EventTypeRevealTransition, Data: map[string]any{"to": "settling", "reason": "timeout"}})
	b.PublishSync(bus.Event{Type: bus.EventTypeRevealTransition, Data: map[string]any{"to": "settling", "reason": "ended"}})
	b.PublishSync(bus.Event{Type: bus.EventTypeClientConnected, Data: map[string]any{"clients": 2}})
	b.PublishSync(bus.Event{Type: bus.EventTypeExpressionChanged, Data: map[string]any{"expression": "happy"}})

	assert.Equal(t, 1.0, value(t, m, "conversation_failures_total", map[string]string{"stage": "chat"}))
	assert.Equal(t, 1200.0, value(t, m, "speech_bytes_total", nil))
	assert.Equal(t, 1.0, value(t, m, "speech_latency_seconds", nil))
	assert.Equal(t, 1.0, value(t, m, "reveal_force_finalize_total", map[string]string{"reason": "timeout"}))
	assert.Equal(t, 0.0, value(t, m, "reveal_force_finalize_total", map[string]string{"reason": "ended"}))
	assert.Equal(t, 2.0, value(t, m, "reveal_transitions_total", map[string]string{"to": "settling"}))
	assert.Equal(t, 2.0, value(t, m, "stage_clients", nil))
	assert.Equal(t, 1.0, value(t, m, "avatar_expressions_total", map[string]string{"expression": "happy"}))

	detach()
	b.PublishSync(bus.Event{Type: bus.EventTypeChatFailed})
	assert.Equal(t, 1.0, value(t, m, "conversation_failures_total", map[string]string{"stage": "chat"}))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	h := m.Middleware("/api/chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1.0, value(t, m, "http_requests_total", map[string]string{
		"method": "POST", "endpoint": "/api/chat", "status": "400",
	}))

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "robinavatar_http_requests_total"))
}
