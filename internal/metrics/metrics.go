// Package metrics holds the prometheus collectors for the voice session.
// Collectors live on a private registry so tests can create as many as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wingman"

// Tool call kinds.
const (
	ToolCallHUD       = "hud"
	ToolCallFinal     = "final"
	ToolCallUnknown   = "unknown"
	ToolCallDuplicate = "duplicate"
)

// Metrics groups every collector the controller and pipelines update.
type Metrics struct {
	registry *prometheus.Registry

	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	PlaybackUnits  prometheus.Counter
	DecodeErrors   prometheus.Counter
	Interruptions  prometheus.Counter
	Heartbeats     prometheus.Counter
	Reconnects     prometheus.Counter
	SessionsOpened prometheus.Counter
	ToolCalls      *prometheus.CounterVec
	State          *prometheus.GaugeVec
	PlaybackLive   prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Microphone frames handed to the transport.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Microphone frames dropped because the session was not sendable or the queue was full.",
		}),
		PlaybackUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_units_total",
			Help:      "Audio payloads scheduled for playback.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_decode_errors_total",
			Help:      "Inbound audio payloads rejected by the codec.",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in events reported by the agent.",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Keep-alive messages sent on the transport.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts scheduled.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Transport sessions that completed setup.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls received, by classification.",
		}, []string{"kind"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current controller state, 0 otherwise.",
		}, []string{"state"}),
		PlaybackLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_live_units",
			Help:      "Playback units currently queued or playing.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesSent,
		m.FramesDropped,
		m.PlaybackUnits,
		m.DecodeErrors,
		m.Interruptions,
		m.Heartbeats,
		m.Reconnects,
		m.SessionsOpened,
		m.ToolCalls,
		m.State,
		m.PlaybackLive,
	)
	return m
}

// SetState marks state as the only active one among states.
func (m *Metrics) SetState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
