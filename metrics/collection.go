package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	moves             *prometheus.CounterVec
	moveElapsed       *prometheus.HistogramVec
	turnConflicts     prometheus.Counter
	takeovers         prometheus.Counter
	matchesCreated    prometheus.Counter
	matchesFinished   *prometheus.CounterVec
	consistencyErrors *prometheus.CounterVec
	queueSize         prometheus.Gauge
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	return prometheusMetrics{
		moves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_match_moves_total",
				Help: "Submitted moves by result",
			}, []string{"result"}),
		//nolint:promlinter
		moveElapsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_match_move_elapsed_time_ms",
				Help:    "Time from turn claim to commit in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}, []string{"result"}),
		turnConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "memory_match_turn_conflicts_total",
				Help: "Moves rejected because another move held the turn lock",
			}),
		takeovers: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "memory_match_takeovers_total",
				Help: "Turns seized after the opponent's deadline lapsed",
			}),
		matchesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "memory_match_matches_created_total",
				Help: "Matches created from the queue",
			}),
		matchesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_match_matches_finished_total",
				Help: "Finished matches by outcome",
			}, []string{"outcome"}),
		consistencyErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_match_consistency_errors_total",
				Help: "Corrupt match states detected at request time",
			}, []string{"code"}),
		queueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_match_queue_size",
				Help: "Live matchmaking queue entries",
			}),
	}
}

func (m prometheusMetrics) AddMove(result string, elapsed time.Duration) {
	m.moves.With(prometheus.Labels{"result": result}).Inc()
	m.moveElapsed.With(prometheus.Labels{"result": result}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) AddTurnConflict() {
	m.turnConflicts.Inc()
}

func (m prometheusMetrics) AddTakeover() {
	m.takeovers.Inc()
}

func (m prometheusMetrics) AddMatchCreated() {
	m.matchesCreated.Inc()
}

func (m prometheusMetrics) AddMatchFinished(outcome string) {
	m.matchesFinished.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m prometheusMetrics) AddConsistencyError(code string) {
	m.consistencyErrors.With(prometheus.Labels{"code": code}).Inc()
}

func (m prometheusMetrics) SetQueueSize(n int) {
	m.queueSize.Set(float64(n))
}
