package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("plugbot.dispatch")

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugbot_dispatch_messages_total",
			Help: "Dispatched messages by route",
		},
		[]string{"route"},
	)

	handlerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugbot_dispatch_handler_runs_total",
			Help: "Handler invocations by handler and result",
		},
		[]string{"handler", "result"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plugbot_dispatch_duration_seconds",
			Help:    "Time from poll result to the last handler commit",
			Buckets: prometheus.DefBuckets,
		},
	)
)

const (
	routeCommand = "command"
	routeChain   = "chain"
	routeIgnored = "ignored"
	routeUnknown = "unknown_command"
	routeDenied  = "denied"
)
