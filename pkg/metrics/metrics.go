package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_dispatch_total",
		Help: "Dispatch attempts by outcome (sent, skipped, failed, retry).",
	}, []string{"outcome"})

	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_tokens_total",
		Help: "Per-token delivery results reported by the push provider.",
	}, []string{"result"})

	TimelineIntentsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_intents_emitted_total",
		Help: "Notification intents created from request timeline steps.",
	}, []string{"role"})

	WatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watch_errors_total",
		Help: "Change subscription failures by collection.",
	}, []string{"collection"})

	FCMSendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fcm_send_duration_seconds",
		Help:    "Latency of multicast sends to the push provider.",
		Buckets: prometheus.DefBuckets,
	})
)

const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeRetry   = "retry"
)

func RecordDispatch(outcome string) {
	DispatchTotal.WithLabelValues(outcome).Inc()
}

func RecordTokens(success, failure int) {
	TokensTotal.WithLabelValues("success").Add(float64(success))
	TokensTotal.WithLabelValues("failure").Add(float64(failure))
}

func StartSendTimer() *prometheus.Timer {
	return prometheus.NewTimer(FCMSendDuration)
}
