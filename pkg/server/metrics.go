package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the session engine.
type Metrics struct {
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	sessionsAuthed       prometheus.Counter

	messagesBroadcast prometheus.Counter
	messagesDelivered prometheus.Counter
	broadcastFanout   prometheus.Histogram

	voiceFramesRelayed prometheus.Counter
}

// NewMetrics registers the server metrics on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "norichat_active_sessions",
			Help: "Current number of live WebSocket sessions",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		sessionsDisconnected: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_sessions_disconnected_total",
			Help: "Total number of sessions disconnected",
		}),
		sessionsAuthed: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_sessions_authed_total",
			Help: "Total number of sessions that completed authentication",
		}),
		messagesBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_messages_broadcast_total",
			Help: "Total number of unique text events broadcast",
		}),
		messagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_messages_delivered_total",
			Help: "Total number of text events enqueued for delivery",
		}),
		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "norichat_broadcast_fanout",
			Help:    "Number of sessions that received each text broadcast",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		voiceFramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "norichat_voice_frames_relayed_total",
			Help: "Total number of voice frames relayed",
		}),
	}
}

// RecordSessionCreated updates the session gauges after an attach.
func (m *Metrics) RecordSessionCreated(active int) {
	m.sessionsCreated.Inc()
	m.activeSessions.Set(float64(active))
}

// RecordSessionDisconnected updates the session gauges after a removal.
func (m *Metrics) RecordSessionDisconnected(active int) {
	m.sessionsDisconnected.Inc()
	m.activeSessions.Set(float64(active))
}

// RecordSessionAuthed counts a completed authentication.
func (m *Metrics) RecordSessionAuthed() {
	m.sessionsAuthed.Inc()
}

// RecordBroadcast records one text broadcast and its fanout.
func (m *Metrics) RecordBroadcast(fanout int) {
	m.messagesBroadcast.Inc()
	m.messagesDelivered.Add(float64(fanout))
	m.broadcastFanout.Observe(float64(fanout))
}

// RecordVoiceFrame counts one relayed voice frame.
func (m *Metrics) RecordVoiceFrame() {
	m.voiceFramesRelayed.Inc()
}
