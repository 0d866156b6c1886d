// Package telemetry holds the Prometheus collectors for the engine and
// its shell. HTTP request metrics live in internal/middleware.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Order flow metrics
	OrdersSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_orders_submitted_total",
			Help: "Total number of orders the engine accepted",
		},
	)

	OrdersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Total number of refused submissions and modifies by reason code",
		},
		[]string{"reason"}, // duplicate_order_id, invalid_order, unfillable_fak, ...
	)

	OrdersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_orders_cancelled_total",
			Help: "Total number of orders cancelled through the cancel operation",
		},
	)

	// Matching metrics
	TradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Total number of trades executed",
		},
	)

	TradedVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_traded_volume_total",
			Help: "Total quantity traded",
		},
	)

	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_match_duration_seconds",
			Help:    "Time to run one submit or modify through the matcher",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// Book state gauges, refreshed after every mutating command
	RestingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_resting_orders",
			Help: "Orders currently resting in the book",
		},
	)

	PendingStops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_pending_stops",
			Help: "Untriggered stop orders held by the stop manager",
		},
	)

	BestBid = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_best_bid",
			Help: "Best bid price, 0 when the bid side is empty",
		},
	)

	BestAsk = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_best_ask",
			Help: "Best ask price, 0 when the ask side is empty",
		},
	)

	// Event pipeline metrics
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_dropped_total",
			Help: "Events discarded because a consumer channel was full",
		},
		[]string{"stream"}, // trade, book
	)

	JournalAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_journal_appends_total",
			Help: "Commands appended to the journal",
		},
	)

	FeedPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_feed_publishes_total",
			Help: "Kafka publish attempts by path and result",
		},
		[]string{"path", "result"}, // live|retry, ok|error
	)
)
