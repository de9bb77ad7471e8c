package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the saga and provider collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OrdersTotal          *prometheus.CounterVec
	CreditsDebitedTotal  prometheus.Counter
	CreditsRefundedTotal prometheus.Counter
	CompensationFailures prometheus.Counter
	OrdersCanceledTotal  prometheus.Counter
	ProviderDuration     *prometheus.HistogramVec
	CatalogCacheTotal    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smm_orders_total",
			Help: "Order creations by terminal outcome.",
		}, []string{"outcome"}),
		CreditsDebitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "smm_credits_debited_total",
			Help: "Credits debited from wallets for orders.",
		}),
		CreditsRefundedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "smm_credits_refunded_total",
			Help: "Credits refunded after failed provider submissions.",
		}),
		CompensationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "smm_compensation_failures_total",
			Help: "Refunds that failed after a successful debit.",
		}),
		OrdersCanceledTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "smm_orders_canceled_total",
			Help: "Local orders marked canceled.",
		}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smm_provider_request_duration_seconds",
			Help:    "Provider API call latency by action and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"action", "result"}),
		CatalogCacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smm_catalog_cache_total",
			Help: "Service catalog cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) OrderOutcome(outcome string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Debited(amount float64) {
	if m == nil {
		return
	}
	m.CreditsDebitedTotal.Add(amount)
}

func (m *Metrics) Refunded(amount float64) {
	if m == nil {
		return
	}
	m.CreditsRefundedTotal.Add(amount)
}

func (m *Metrics) CompensationFailed() {
	if m == nil {
		return
	}
	m.CompensationFailures.Inc()
}

func (m *Metrics) Canceled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrdersCanceledTotal.Add(float64(n))
}

func (m *Metrics) ProviderCall(action, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(action, result).Observe(d.Seconds())
}

func (m *Metrics) CatalogCache(result string) {
	if m == nil {
		return
	}
	m.CatalogCacheTotal.WithLabelValues(result).Inc()
}
