// Package metrics exposes Prometheus counters for the swap watcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "swapwatch"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LogsReceived   *prometheus.CounterVec
	SwapsEmitted   *prometheus.CounterVec
	DecodeMisses   prometheus.Counter
	Duplicates     prometheus.Counter
	WindowFailures prometheus.Counter
	Alarms         prometheus.Counter

	Watermark prometheus.Gauge
	QuoteUSD  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		LogsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "logs_received_total",
			Help:      "Pool logs received, by channel",
		}, []string{"channel"}),
		SwapsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swaps_emitted_total",
			Help:      "Normalized swaps emitted, by decode mode",
		}, []string{"mode"}),
		DecodeMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decode_misses_total",
			Help:      "Logs that matched no swap layout",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "duplicates_total",
			Help:      "Swaps suppressed as already seen",
		}),
		WindowFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "window_failures_total",
			Help:      "Block windows skipped after a failed log query",
		}),
		Alarms: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "alarms_total",
			Help:      "Large trade alarms raised",
		}),
		Watermark: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "watermark_block",
			Help:      "Highest block fully scanned by the poller",
		}),
		QuoteUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "quote_usd",
			Help:      "Current USD price of the quote asset",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) LogReceived(channel string) {
	if m == nil {
		return
	}
	m.LogsReceived.WithLabelValues(channel).Inc()
}

func (m *Metrics) SwapEmitted(mode string) {
	if m == nil {
		return
	}
	m.SwapsEmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) DecodeMiss() {
	if m == nil {
		return
	}
	m.DecodeMisses.Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.Duplicates.Inc()
}

func (m *Metrics) WindowFailed() {
	if m == nil {
		return
	}
	m.WindowFailures.Inc()
}

func (m *Metrics) Alarm() {
	if m == nil {
		return
	}
	m.Alarms.Inc()
}

func (m *Metrics) SetWatermark(block uint64) {
	if m == nil {
		return
	}
	m.Watermark.Set(float64(block))
}

func (m *Metrics) SetQuoteUSD(price decimal.Decimal) {
	if m == nil {
		return
	}
	m.QuoteUSD.Set(price.InexactFloat64())
}
