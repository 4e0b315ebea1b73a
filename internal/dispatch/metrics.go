package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletcore_requests_total",
		Help: "Inbound cross-context requests by kind and admission outcome.",
	}, []string{"kind", "outcome"})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletcore_responses_total",
		Help: "Responses relayed to originating tabs by kind and outcome.",
	}, []string{"kind", "outcome"})
)
