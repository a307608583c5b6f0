// Package metrics exposes the bot's Prometheus instrumentation:
//   - twsbot_requests_total{kind,outcome} – gateway requests by kind and outcome
//   - twsbot_gateway_errors_total{class}  – gateway error messages by class
//   - twsbot_reconnects_total             – supervisor reconnect attempts
//   - twsbot_connection_up                – 1 while the session is connected
//   - twsbot_orders_total{side}           – orders placed
//   - twsbot_equity_usd                   – last extracted account equity
//
// All collectors are registered in init() and served by the HTTP handler
// the run command mounts at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twsbot_requests_total",
			Help: "Gateway requests by kind and outcome (ok|timeout|error)",
		},
		[]string{"kind", "outcome"},
	)

	GatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twsbot_gateway_errors_total",
			Help: "Gateway error messages by classification",
		},
		[]string{"class"},
	)

	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "twsbot_reconnects_total",
			Help: "Reconnect attempts made by the connection supervisor",
		},
	)

	ConnectionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "twsbot_connection_up",
			Help: "1 while the gateway session is connected",
		},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twsbot_orders_total",
			Help: "Orders placed",
		},
		[]string{"side"}, // BUY|SELL
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "twsbot_equity_usd",
			Help: "Last account equity extracted from the account summary",
		},
	)
)

func init() {
	prometheus.MustRegister(Requests, GatewayErrors)
	prometheus.MustRegister(Reconnects, ConnectionUp)
	prometheus.MustRegister(Orders, Equity)
}

// Handler serves the registered collectors in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
