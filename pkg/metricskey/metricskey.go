package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsFeedbackDelivered is base for counter metric for feedback events accepted by the server
	StatsFeedbackDelivered = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_feedback_delivered",
		Help:         "stats_feedback_delivered provides total feedback events delivered",
		RequiredTags: []string{"path"},
	}

	StatsFeedbackFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_feedback_failed",
		Help:         "stats_feedback_failed provides total feedback events logged instead of delivered",
		RequiredTags: []string{"path"},
	}

	StatsFeedbackRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_feedback_retried",
		Help:         "stats_feedback_retried provides total feedback delivery retries",
		RequiredTags: []string{"path"},
	}

	StatsHeartbeatSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_heartbeat_sent",
		Help:         "stats_heartbeat_sent provides total heartbeats accepted by the server",
		RequiredTags: []string{"server"},
	}

	StatsHeartbeatFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_heartbeat_failed",
		Help:         "stats_heartbeat_failed provides total heartbeats failed",
		RequiredTags: []string{"server"},
	}
)

// Perf
var (
	PerfFeedbackDelivery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_feedback_delivery",
		Help:         "perf_feedback_delivery provides duration of feedback delivery, including retries",
		RequiredTags: []string{"path"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfFeedbackDelivery,
	&StatsFeedbackDelivered,
	&StatsFeedbackFailed,
	&StatsFeedbackRetried,
	&StatsHeartbeatFailed,
	&StatsHeartbeatSent,
}
