// Package metrics exposes Prometheus collectors for the proxy and the
// avatar session. Session metrics are fed from the event bus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/robinavatar/internal/bus"
)

const namespace = "robinavatar"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ChatLatency    prometheus.Histogram
	SpeechLatency  prometheus.Histogram
	Failures       *prometheus.CounterVec
	SpeechBytes    prometheus.Counter
	Transitions    *prometheus.CounterVec
	ForceFinalized *prometheus.CounterVec
	Clients        prometheus.Gauge
	TrackEvents    *prometheus.CounterVec
	Expressions    *prometheus.CounterVec
	PhonemeChanges prometheus.Counter
	ConfigReloads  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "endpoint"},
		),

		ChatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_seconds",
			Help:      "Time from submit to chat reply",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		SpeechLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_latency_seconds",
			Help:      "Time to synthesize a reply",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_failures_total",
			Help:      "Conversation requests that failed, by stage",
		}, []string{"stage"}),
		SpeechBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_bytes_total",
			Help:      "Audio bytes received from the speech endpoint",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveal_transitions_total",
			Help:      "Revealer state transitions",
		}, []string{"to", "reason"}),
		ForceFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveal_force_finalize_total",
			Help:      "Reveal cycles finalized without reaching the end of playback",
		}, []string{"reason"}),
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_clients",
			Help:      "Connected renderers",
		}),
		TrackEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_track_events_total",
			Help:      "Playback reports from renderers",
		}, []string{"event"}),
		Expressions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatar_expressions_total",
			Help:      "Expressions applied to the avatar",
		}, []string{"expression"}),
		PhonemeChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatar_phoneme_changes_total",
			Help:      "Lip-sync vowel changes",
		}),
		ConfigReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Attach subscribes to session events. The returned func unsubscribes.
func (m *Metrics) Attach(b *bus.EventBus) func() {
	return b.SubscribeMultiple([]bus.EventType{
		bus.EventTypeChatCompleted,
		bus.EventTypeChatFailed,
		bus.EventTypeSpeechCompleted,
		bus.EventTypeSpeechFailed,
		bus.EventTypeRevealTransition,
		bus.EventTypeClientConnected,
		bus.EventTypeClientDisconnected,
		bus.EventTypeTrackEvent,
		bus.EventTypeExpressionChanged,
		bus.EventTypePhonemeChanged,
		bus.EventTypeConfigReloaded,
	}, m.observe)
}

func (m *Metrics) observe(e bus.Event) {
	switch e.Type {
	case bus.EventTypeChatCompleted:
		if d, ok := e.Data["latency"].(time.Duration); ok {
			m.ChatLatency.Observe(d.Seconds())
		}
	case bus.EventTypeChatFailed:
		m.Failures.WithLabelValues("chat").Inc()
	case bus.EventTypeSpeechCompleted:
		if d, ok := e.Data["latency"].(time.Duration); ok {
			m.SpeechLatency.Observe(d.Seconds())
		}
		if n, ok := e.Data["bytes"].(int); ok {
			m.SpeechBytes.Add(float64(n))
		}
	case bus.EventTypeSpeechFailed:
		m.Failures.WithLabelValues("speech").Inc()
	case bus.EventTypeRevealTransition:
		to, _ := e.Data["to"].(string)
		reason, _ := e.Data["reason"].(string)
		m.Transitions.WithLabelValues(to, reason).Inc()
		if forced(reason) {
			m.ForceFinalized.WithLabelValues(reason).Inc()
		}
	case bus.EventTypeClientConnected, bus.EventTypeClientDisconnected:
		if n, ok := e.Data["clients"].(int); ok {
			m.Clients.Set(float64(n))
		}
	case bus.EventTypeTrackEvent:
		ev, _ := e.Data["event"].(string)
		m.TrackEvents.WithLabelValues(ev).Inc()
	case bus.EventTypeExpressionChanged:
		expr, _ := e.Data["expression"].(string)
		m.Expressions.WithLabelValues(expr).Inc()
	case bus.EventTypePhonemeChanged:
		m.PhonemeChanges.Inc()
	case bus.EventTypeConfigReloaded:
		m.ConfigReloads.Inc()
	}
}

// forced reports whether a transition reason means the reveal was cut
// short rather than following playback to the end.
func forced(reason string) bool {
	switch reason {
	case "timeout", "unknown_duration", "error":
		return true
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request count and duration under endpoint.
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
