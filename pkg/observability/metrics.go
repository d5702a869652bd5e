package observability

import (
	"context"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clara"

// Metrics holds the engine collectors.
type Metrics struct {
	stageDuration   *prometheus.HistogramVec
	stagesTotal     *prometheus.CounterVec
	abilityDuration *prometheus.HistogramVec
	abilitiesTotal  *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	decisionScore   prometheus.Histogram
	failuresTotal   *prometheus.CounterVec
	suspended       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage executions in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Completed stage executions",
			},
			[]string{"stage", "status"}, // status: ok, degraded, suspended
		),
		abilityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ability_duration_seconds",
				Help:      "Duration of ability calls in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "ability"},
		),
		abilitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ability_calls_total",
				Help:      "Ability calls by outcome",
			},
			[]string{"provider", "ability", "status"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Escalation decisions by outcome",
			},
			[]string{"outcome"},
		),
		decisionScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_score",
				Help:      "Distribution of solution scores at DECIDE",
				Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 89, 90, 95, 100},
			},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_failures_total",
				Help:      "Failed workflows by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		suspended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "human_suspensions_total",
				Help:      "Workflows suspended waiting for a human answer",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.stageDuration, m.stagesTotal,
		m.abilityDuration, m.abilitiesTotal,
		m.decisionsTotal, m.decisionScore,
		m.failuresTotal, m.suspended,
	}
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageExit: func(_ context.Context, e *domain.StageEvent) {
			status := "ok"
			switch {
			case e.Suspended:
				status = "suspended"
				m.suspended.Inc()
			case e.Degraded:
				status = "degraded"
			}
			m.stagesTotal.WithLabelValues(string(e.Stage), status).Inc()
			m.stageDuration.WithLabelValues(string(e.Stage)).Observe(e.Duration.Seconds())
		},
		OnAbilityCall: func(_ context.Context, e *domain.AbilityEvent) {
			status := "success"
			if !e.Success {
				status = string(e.Kind)
			}
			provider, ability := string(e.Ability.Provider), e.Ability.Name
			m.abilitiesTotal.WithLabelValues(provider, ability, status).Inc()
			m.abilityDuration.WithLabelValues(provider, ability).Observe(e.Duration.Seconds())
		},
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			m.decisionsTotal.WithLabelValues(string(e.Record.Outcome)).Inc()
			m.decisionScore.Observe(float64(e.Record.Score))
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			m.failuresTotal.WithLabelValues(string(e.Stage), string(e.Kind)).Inc()
		},
	}
}
