// Package metrics provides Prometheus metrics for the sweeper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	ChatsWalked      prometheus.Counter
	MessagesScanned  prometheus.Counter
	MessagesDeleted  prometheus.Counter
	MessagesSkipped  *prometheus.CounterVec
	FloodWaitsTotal  prometheus.Counter
	FloodWaitSeconds prometheus.Counter
	BatchDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ChatsWalked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_chats_walked_total",
			Help: "Chats walked to exhaustion.",
		}),
		MessagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_messages_scanned_total",
			Help: "Messages fetched and evaluated against retention rules.",
		}),
		MessagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_messages_deleted_total",
			Help: "Messages confirmed deleted.",
		}),
		MessagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeper_messages_skipped_total",
			Help: "Messages skipped by reason.",
		}, []string{"reason"}),
		FloodWaitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_flood_waits_total",
			Help: "Flood-wait responses received on the delete path.",
		}),
		FloodWaitSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_flood_wait_seconds_total",
			Help: "Total seconds spent in flood-wait cool-downs.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweeper_delete_batch_duration_seconds",
			Help:    "Duration of delete batch attempts, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}

	reg.MustRegister(m.ChatsWalked)
	reg.MustRegister(m.MessagesScanned)
	reg.MustRegister(m.MessagesDeleted)
	reg.MustRegister(m.MessagesSkipped)
	reg.MustRegister(m.FloodWaitsTotal)
	reg.MustRegister(m.FloodWaitSeconds)
	reg.MustRegister(m.BatchDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
