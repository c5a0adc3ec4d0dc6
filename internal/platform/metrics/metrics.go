// Package metrics exposes the hub's Prometheus counters and gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BuildsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_hub_builds_started_total",
		Help: "Number of snapshot build attempts started.",
	}, []string{"project_id"})

	BuildsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_hub_builds_failed_total",
		Help: "Number of snapshot build attempts that failed.",
	}, []string{"project_id"})

	BuildsCacheHitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_hub_builds_cache_hit_total",
		Help: "Number of snapshot builds skipped because the tag already existed.",
	}, []string{"project_id"})

	BuildsInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_hub_builds_inflight",
		Help: "Number of snapshot builds currently running.",
	})

	ChatsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_hub_chats_running",
		Help: "Number of chats currently in the running state.",
	})

	ChatStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_hub_chat_starts_total",
		Help: "Number of chat start attempts.",
	}, []string{"outcome"})

	EventQueueDropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_hub_event_queue_drops_total",
		Help: "Number of events dropped from a subscriber queue due to overflow.",
	}, []string{"topic"})
)

// Registry is the process-wide collector registry; it is exported so the
// facade can mount it at GET /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		BuildsStartedTotal,
		BuildsFailedTotal,
		BuildsCacheHitTotal,
		BuildsInflight,
		ChatsRunning,
		ChatStartsTotal,
		EventQueueDropsTotal,
	)
}
