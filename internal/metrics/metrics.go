package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optin_subscriptions_total",
			Help: "Subscription lifecycle counter by stage",
		},
		// received|rejected|queued|email_sent|email_failed|confirmed|replayed
		[]string{"stage"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		SubscriptionsTotal,
	)
}
