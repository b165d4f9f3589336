// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketsPrinted counts tickets printed through the increment endpoint.
	TicketsPrinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ever_greater_tickets_printed_total",
		Help: "Tickets printed by direct user requests.",
	})

	// AggregationTicks counts completed aggregation passes.
	AggregationTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ever_greater_aggregation_ticks_total",
		Help: "Aggregation ticks that completed without error.",
	})

	// AggregationProduced counts tickets produced by autoprinters.
	AggregationProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ever_greater_aggregation_produced_total",
		Help: "Tickets produced by autoprinters across all ticks.",
	})

	// OpenConnections tracks live websocket channels.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ever_greater_ws_connections",
		Help: "Currently open websocket push channels.",
	})

	// CountBroadcasts counts global-count fan-outs.
	CountBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ever_greater_count_broadcasts_total",
		Help: "Global count broadcasts sent to all channels.",
	})
)
