// Package metrics exposes Prometheus instruments for the bar loop, orders and the feed.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	barsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breakout_bars_total",
		Help: "Confirmed base-timeframe bars processed.",
	})
	signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breakout_signals_total",
		Help: "Entry signals emitted by side.",
	}, []string{"side"})
	ordersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breakout_orders_total",
		Help: "Order submissions by side and result.",
	}, []string{"side", "result"})
	exitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breakout_exits_total",
		Help: "Trailing-stop exits by side and reason.",
	}, []string{"side", "reason"})
	feedReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breakout_feed_reconnects_total",
		Help: "Market feed reconnect attempts.",
	})
	balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "breakout_balance",
		Help: "Last observed quote balance.",
	})
	drawdownStopped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "breakout_drawdown_stopped",
		Help: "1 while the drawdown kill-switch blocks new entries.",
	})
	cooldownBars = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "breakout_cooldown_bars",
		Help: "Bars left in the consecutive-loss cooldown.",
	})
)

func init() {
	prometheus.MustRegister(barsTotal, signalsTotal, ordersTotal, exitsTotal,
		feedReconnects, balance, drawdownStopped, cooldownBars)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncBar()                      { barsTotal.Inc() }
func IncSignal(side string)        { signalsTotal.WithLabelValues(side).Inc() }
func IncOrder(side, result string) { ordersTotal.WithLabelValues(side, result).Inc() }
func IncExit(side, reason string)  { exitsTotal.WithLabelValues(side, reason).Inc() }
func IncFeedReconnect()            { feedReconnects.Inc() }
func SetBalance(v float64)         { balance.Set(v) }
func SetCooldown(bars int)         { cooldownBars.Set(float64(bars)) }

func SetDrawdownStopped(stopped bool) {
	if stopped {
		drawdownStopped.Set(1)
		return
	}
	drawdownStopped.Set(0)
}
