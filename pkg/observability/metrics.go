package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/tsw/pkg/domain"
)

const namespace = "tsw"

// Metrics holds the collectors of one supervisor process.
type Metrics struct {
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	transitions    *prometheus.CounterVec
	outputBytes    *prometheus.CounterVec
	hubDrops       prometheus.Counter
	notifierDrops  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// It panics if a collector is already registered, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Applied actions by action and outcome.",
		}, []string{"action", "outcome"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of applied actions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions_in_flight",
			Help:      "Actions currently being applied.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Observed instance state transitions.",
		}, []string{"from", "to"}),
		outputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes read from instance output files.",
		}, []string{"instance_id"}),
		hubDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_total",
			Help:      "Snapshots dropped because a subscriber queue was full.",
		}),
		notifierDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_dropped_total",
			Help:      "Notifications dropped because the relay queue was full.",
		}),
	}
	reg.MustRegister(m.actions, m.actionDuration, m.inFlight, m.transitions, m.outputBytes, m.hubDrops, m.notifierDrops)
	return m
}

// HubDropped counts a dropped hub delivery. It fits hub.WithDropHook.
func (m *Metrics) HubDropped() {
	m.hubDrops.Inc()
}

// NotifierDropped counts a dropped notification. It fits redis.WithDropHook.
func (m *Metrics) NotifierDropped() {
	m.notifierDrops.Inc()
}

// ForgetInstance removes the per-instance series of a deleted instance.
func (m *Metrics) ForgetInstance(id string) {
	m.outputBytes.DeleteLabelValues(id)
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(string(e.From), string(e.To)).Inc()
		},
		OnActionStart: func(context.Context, *domain.ActionEvent) {
			m.inFlight.Inc()
		},
		OnActionFinish: func(_ context.Context, e *domain.ActionEvent) {
			m.inFlight.Dec()
			m.actions.WithLabelValues(string(e.Action), e.Outcome).Inc()
			m.actionDuration.WithLabelValues(string(e.Action)).Observe(e.Duration.Seconds())
			if e.Action == domain.ActionDelete && e.Err == nil {
				m.ForgetInstance(e.InstanceID)
			}
		},
		OnOutput: func(_ context.Context, id string, n int) {
			m.outputBytes.WithLabelValues(id).Add(float64(n))
		},
	}
}
