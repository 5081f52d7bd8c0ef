package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Live ticks received from the feed"},
		[]string{"market"},
	)
	TicksForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_forwarded_total", Help: "Ticks that passed the per-market gate"},
		[]string{"market"},
	)
	CandlesSealed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_sealed_total", Help: "Candles sealed by the builder"},
		[]string{"market", "pattern"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "state_transitions_total", Help: "Trading state machine transitions"},
		[]string{"market", "to"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"market", "side", "result"},
	)
	HistoryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "history_requests_total", Help: "Historical data requests by outcome"},
		[]string{"market", "outcome"},
	)
	DroppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dropped_messages_total", Help: "Messages dropped by actors"},
		[]string{"actor", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksForwarded,
		CandlesSealed,
		Transitions,
		OrdersTotal,
		HistoryRequests,
		DroppedMessages,
	)
}
