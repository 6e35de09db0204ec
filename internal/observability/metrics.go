package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_connection_state",
			Help: "Current push-channel state (0=disconnected, 1=connecting, 2=connected).",
		},
	)
	pushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_push_events_total",
			Help: "Total number of push-channel events by direction and type.",
		},
		[]string{"direction", "type"},
	)
	timelineMergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_timeline_merges_total",
			Help: "Inbound message merges by outcome.",
		},
		[]string{"outcome"},
	)
	selfHealTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_self_heal_total",
			Help: "Membership self-heal attempts by outcome.",
		},
		[]string{"outcome"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_api_requests_total",
			Help: "Collaborator REST requests by method and status.",
		},
		[]string{"method", "status"},
	)
	typingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_typing_active",
			Help: "Number of users currently typing in the active room.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectionState,
		pushEventsTotal,
		timelineMergesTotal,
		selfHealTotal,
		apiRequestsTotal,
		typingActive,
	)
}

// Merge outcomes recorded by the timeline.
const (
	MergeAppended  = "appended"
	MergeDuplicate = "duplicate"
	MergeDropped   = "dropped"
)

// Self-heal outcomes.
const (
	HealRecovered = "recovered"
	HealAbandoned = "abandoned"
)

func SetConnectionState(state int) {
	connectionState.Set(float64(state))
}

func IncPushEvent(direction, eventType string) {
	pushEventsTotal.WithLabelValues(direction, eventType).Inc()
}

func IncTimelineMerge(outcome string) {
	timelineMergesTotal.WithLabelValues(outcome).Inc()
}

func IncSelfHeal(outcome string) {
	selfHealTotal.WithLabelValues(outcome).Inc()
}

func IncAPIRequest(method, status string) {
	apiRequestsTotal.WithLabelValues(method, status).Inc()
}

func SetTypingActive(n int) {
	typingActive.Set(float64(n))
}
