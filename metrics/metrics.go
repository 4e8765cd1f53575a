package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GameMetrics records the health of the move pipeline and the queue.
type GameMetrics interface {
	AddMove(result string, elapsed time.Duration)
	AddTurnConflict()
	AddTakeover()
	AddMatchCreated()
	AddMatchFinished(outcome string)
	AddConsistencyError(code string)
	SetQueueSize(n int)
}

func NewMetrics(registry *prometheus.Registry) GameMetrics {
	return setupPrometheusMetrics(registry)
}

// Noop discards everything. Used by tests and when no registry is wired.
type Noop struct{}

func (Noop) AddMove(string, time.Duration) {}
func (Noop) AddTurnConflict()              {}
func (Noop) AddTakeover()                  {}
func (Noop) AddMatchCreated()              {}
func (Noop) AddMatchFinished(string)       {}
func (Noop) AddConsistencyError(string)    {}
func (Noop) SetQueueSize(int)              {}
