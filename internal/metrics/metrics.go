// Package metrics exposes Prometheus instruments for the reconciliation
// core: push channel health, progress event matching, snapshot refreshes
// and outbound message sends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Push channel metrics
	ChannelConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relaydeck_channel_connected",
			Help: "Whether the push channel has a live connection (1 = connected, 0 = not)",
		},
	)

	ChannelReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relaydeck_channel_reconnect_attempts_total",
			Help: "Total number of push channel dial attempts after the first",
		},
	)

	ChannelReconnectExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relaydeck_channel_reconnect_exhausted_total",
			Help: "Total number of times the reconnect ceiling was reached",
		},
	)

	// Progress metrics
	ProgressEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaydeck_progress_events_total",
			Help: "Total number of progress push events by outcome (matched, unmatched, malformed)",
		},
		[]string{"outcome"},
	)

	SnapshotRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaydeck_snapshot_refresh_total",
			Help: "Total number of job list refreshes by result (ok, auth, error)",
		},
		[]string{"result"},
	)

	JobsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relaydeck_jobs_tracked",
			Help: "Number of job records in the reconciled view",
		},
	)

	// Conversation metrics
	MessageFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaydeck_message_fetch_total",
			Help: "Total number of conversation message fetches by result (ok, error)",
		},
		[]string{"result"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaydeck_messages_sent_total",
			Help: "Total number of outbound messages by result (confirmed, failed)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ChannelConnected)
	prometheus.MustRegister(ChannelReconnectAttempts)
	prometheus.MustRegister(ChannelReconnectExhausted)
	prometheus.MustRegister(ProgressEventsTotal)
	prometheus.MustRegister(SnapshotRefreshTotal)
	prometheus.MustRegister(JobsTracked)
	prometheus.MustRegister(MessageFetchTotal)
	prometheus.MustRegister(MessagesSentTotal)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
