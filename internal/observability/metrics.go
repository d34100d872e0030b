package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/shopbot/internal/order"
)

const namespace = "shopbot"

// Metrics owns a private registry with the bot's collectors. It implements
// order.Recorder and the telegram middleware metrics sink.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated  prometheus.Counter
	ordersDecided  *prometheus.CounterVec
	proofs         prometheus.Counter
	notifyFailures *prometheus.CounterVec
	updates        *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
	messagesSent   prometheus.Counter
}

var _ order.Recorder = (*Metrics)(nil)

// NewMetrics registers all collectors, including Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders recorded as pending.",
		}),
		ordersDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_decided_total",
			Help: "Orders approved or rejected.",
		}, []string{"decision"}),
		proofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_proofs_forwarded_total",
			Help: "Proofs of payment forwarded to the administrator.",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_failed_total",
			Help: "Outbound notifications that failed or timed out.",
		}, []string{"purpose"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "telegram_updates_total",
			Help: "Telegram updates handled.",
		}, []string{"kind", "status"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "telegram_update_duration_seconds",
			Help:    "Time spent handling a Telegram update.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "telegram_messages_sent_total",
			Help: "Messages sent or edited in reply to updates.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersCreated,
		m.ordersDecided,
		m.proofs,
		m.notifyFailures,
		m.updates,
		m.updateDuration,
		m.messagesSent,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) OrderCreated() { m.ordersCreated.Inc() }

func (m *Metrics) OrderDecided(d order.Decision) {
	m.ordersDecided.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) ProofForwarded() { m.proofs.Inc() }

func (m *Metrics) NotificationFailed(purpose string) {
	m.notifyFailures.WithLabelValues(purpose).Inc()
}

// ObserveUpdate records one handled Telegram update.
func (m *Metrics) ObserveUpdate(kind string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	m.updates.WithLabelValues(kind, status).Inc()
	m.updateDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// MessageSent counts one outgoing message.
func (m *Metrics) MessageSent() { m.messagesSent.Inc() }
