package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server. Each instance has its own
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Connections     prometheus.Gauge
	Ticks           prometheus.Counter
	TickDuration    prometheus.Histogram
	Delivered       prometheus.Counter
	SendFailures    prometheus.Counter
	InboundMessages *prometheus.CounterVec
	AlertsTriggered prometheus.Counter
	SinkErrors      *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_ws_connections",
			Help: "Number of open price feed connections",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_ticks_total",
			Help: "Price simulator ticks broadcast",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_tick_duration_seconds",
			Help:    "Time spent simulating and broadcasting one tick",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_ws_messages_delivered_total",
			Help: "Frames handed to open connections",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_ws_send_failures_total",
			Help: "Sends that failed and dropped the connection",
		}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_ws_inbound_messages_total",
			Help: "Client frames received, by parse result",
		}, []string{"result"}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_alerts_triggered_total",
			Help: "alert_triggered broadcasts emitted",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_sink_errors_total",
			Help: "Tick sink publish failures",
		}, []string{"sink"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "papertrade_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Ticks,
		m.TickDuration,
		m.Delivered,
		m.SendFailures,
		m.InboundMessages,
		m.AlertsTriggered,
		m.SinkErrors,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
