package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the notification engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Ingested     *prometheus.CounterVec
	Deduplicated prometheus.Counter
	Patched      prometheus.Counter
	Unread       prometheus.Gauge
	Events       *prometheus.CounterVec
	Connects     *prometheus.CounterVec
	Connected    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ggcraft_notifications_ingested_total",
			Help: "Notifications stored in the registry, by kind",
		}, []string{"kind"}),
		Deduplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "ggcraft_notifications_deduplicated_total",
			Help: "Inbound notifications suppressed as duplicates",
		}),
		Patched: f.NewCounter(prometheus.CounterOpts{
			Name: "ggcraft_notifications_patched_total",
			Help: "Stored notifications whose status was updated",
		}),
		Unread: f.NewGauge(prometheus.GaugeOpts{
			Name: "ggcraft_notifications_unread",
			Help: "Current number of unread notifications",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ggcraft_channel_events_total",
			Help: "Events received on the user channel, by event name",
		}, []string{"event"}),
		Connects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ggcraft_channel_connects_total",
			Help: "Channel connection attempts, by result",
		}, []string{"result"}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "ggcraft_channel_connected",
			Help: "1 while the user channel is subscribed",
		}),
		gatherer: reg,
	}
}

// ObserveIngested counts a stored notification.
func (m *Metrics) ObserveIngested(kind string) {
	if m == nil {
		return
	}
	m.Ingested.WithLabelValues(kind).Inc()
}

// ObserveDeduplicated counts a suppressed duplicate.
func (m *Metrics) ObserveDeduplicated() {
	if m == nil {
		return
	}
	m.Deduplicated.Inc()
}

// ObservePatched counts n status-patched notifications.
func (m *Metrics) ObservePatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Patched.Add(float64(n))
}

// SetUnread records the current unread count.
func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.Unread.Set(float64(n))
}

// ObserveEvent counts an inbound channel event.
func (m *Metrics) ObserveEvent(event string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(event).Inc()
}

// ObserveConnect counts a connection attempt and updates the connected gauge.
func (m *Metrics) ObserveConnect(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Connects.WithLabelValues("error").Inc()
		return
	}
	m.Connects.WithLabelValues("ok").Inc()
	m.Connected.Set(1)
}

// ObserveDisconnect marks the channel as down.
func (m *Metrics) ObserveDisconnect() {
	if m == nil {
		return
	}
	m.Connected.Set(0)
}

// Handler returns an HTTP handler exposing /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewServer builds an HTTP server for the metrics handler.
func (m *Metrics) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
