// Package metrics содержит Prometheus-метрики координатора мутаций и реестра сессий.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engagement"

// Исходы мутации
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeGone       = "subject_gone"
)

// Metrics содержит все метрики сервиса
type Metrics struct {
	MutationsTotal          *prometheus.CounterVec
	CoalescedTotal          *prometheus.CounterVec
	StaleConfirmationsTotal *prometheus.CounterVec
	MutationDuration        *prometheus.HistogramVec
	RefreshesTotal          *prometheus.CounterVec
	ActiveSessions          prometheus.Gauge
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Settled optimistic mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CoalescedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_coalesced_total",
			Help:      "Duplicate mutations ignored while an identical one was applying.",
		}, []string{"kind"}),
		StaleConfirmationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_confirmations_total",
			Help:      "Backend confirmations discarded because a newer revision exists.",
		}, []string{"kind"}),
		MutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Backend round trip of a mutation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_refreshes_total",
			Help:      "Post snapshots pulled from the backend by result.",
		}, []string{"result"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Engagement sessions held in memory.",
		}),
	}
}

// ObserveMutation учитывает завершенную мутацию
func (m *Metrics) ObserveMutation(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(kind, outcome).Inc()
	m.MutationDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// Coalesced учитывает проигнорированный дубль
func (m *Metrics) Coalesced(kind string) {
	if m == nil {
		return
	}
	m.CoalescedTotal.WithLabelValues(kind).Inc()
}

// StaleConfirmation учитывает отброшенное подтверждение
func (m *Metrics) StaleConfirmation(kind string) {
	if m == nil {
		return
	}
	m.StaleConfirmationsTotal.WithLabelValues(kind).Inc()
}

// Refresh учитывает загрузку снимка поста
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions обновляет число сессий
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
