// metrics — Prometheus-метрики сервиса.
// Все методы безопасны для вызова на nil *Metrics (метрики отключены).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "identity"

type Metrics struct {
	tokensIssued   *prometheus.CounterVec
	operations     *prometheus.CounterVec
	blacklistHits  *prometheus.CounterVec
	mailDispatched *prometheus.CounterVec
	mailQueueDepth prometheus.Gauge
	purged         *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Issued tokens by kind.",
		}, []string{"kind"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_operations_total",
			Help:      "Lifecycle operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		blacklistHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_hits_total",
			Help:      "Revoked access tokens presented, by lookup source.",
		}, []string{"source"}),
		mailDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_dispatched_total",
			Help:      "Notification e-mails by template and result.",
		}, []string{"template", "result"}),
		mailQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mail_queue_depth",
			Help:      "Notification jobs waiting in the queue.",
		}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_purged_total",
			Help:      "Rows removed by the janitor, by target.",
		}, []string{"target"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.tokensIssued,
		m.operations,
		m.blacklistHits,
		m.mailDispatched,
		m.mailQueueDepth,
		m.purged,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

// Operation фиксирует исход операции: "ok" или код ошибки.
func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

// BlacklistHit — source: "cache" или "db".
func (m *Metrics) BlacklistHit(source string) {
	if m == nil {
		return
	}
	m.blacklistHits.WithLabelValues(source).Inc()
}

// MailDispatched — result: "sent", "failed", "dropped".
func (m *Metrics) MailDispatched(template, result string) {
	if m == nil {
		return
	}
	m.mailDispatched.WithLabelValues(template, result).Inc()
}

func (m *Metrics) MailQueueDepth(n int) {
	if m == nil {
		return
	}
	m.mailQueueDepth.Set(float64(n))
}

func (m *Metrics) Purged(target string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.WithLabelValues(target).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(dur.Seconds())
}
