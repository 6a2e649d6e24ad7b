// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	ChatRequests  *prometheus.CounterVec
	ChatDuration  prometheus.Histogram
	ContextSource *prometheus.CounterVec
	Uploads       *prometheus.CounterVec
	SweptSessions prometheus.Counter
	SweptFiles    prometheus.Counter
	LiveSessions  prometheus.GaugeFunc
}

// New registers all collectors on the given registerer. sessionCount feeds
// the live-sessions gauge on scrape.
func New(reg prometheus.Registerer, sessionCount func() float64) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrchat",
			Name:      "chat_requests_total",
			Help:      "Chat turns handled, by outcome.",
		}, []string{"status"}),
		ChatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hrchat",
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat turn latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ContextSource: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrchat",
			Name:      "context_source_total",
			Help:      "Grounding source chosen per turn.",
		}, []string{"source"}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrchat",
			Name:      "uploads_total",
			Help:      "File uploads, by outcome.",
		}, []string{"status"}),
		SweptSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hrchat",
			Name:      "swept_sessions_total",
			Help:      "Sessions removed by the periodic sweep.",
		}),
		SweptFiles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hrchat",
			Name:      "swept_files_total",
			Help:      "Files removed by the periodic sweep.",
		}),
		LiveSessions: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hrchat",
			Name:      "live_sessions",
			Help:      "Sessions currently held in memory.",
		}, sessionCount),
	}
}
