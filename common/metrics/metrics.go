// Package metrics exposes Prometheus collectors for engine execution,
// fed from the event emitter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lyzr/flowengine/flow/events"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	nodesStarted   *prometheus.CounterVec
	nodesCompleted *prometheus.CounterVec
	nodesFailed    *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	workflowsTotal *prometheus.CounterVec
	activeRunners  *prometheus.GaugeVec
}

// New registers the engine collectors with the given registry; nil uses
// the default registerer
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		nodesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "nodes_started_total",
			Help:      "Node executions started",
		}, []string{"workflow_id", "node_type"}),
		nodesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "nodes_completed_total",
			Help:      "Node executions completed",
		}, []string{"workflow_id", "node_type"}),
		nodesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "nodes_failed_total",
			Help:      "Node executions failed",
		}, []string{"workflow_id", "node_type"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"workflow_id", "node_type"}),
		workflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "workflows_total",
			Help:      "Workflows finished, by terminal status",
		}, []string{"workflow_id", "status"}),
		activeRunners: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Name:      "active_runners",
			Help:      "Currently running producer loops",
		}, []string{"workflow_id"}),
	}
}

// Attach subscribes the collectors to an engine's event bus. The
// tracker supplies durations and runner counts on completion events.
func (m *Metrics) Attach(emitter *events.Emitter, tracker *events.StateTracker) {
	emitter.On(events.NodeStarted, func(_ string, p events.Payload) {
		m.nodesStarted.WithLabelValues(str(p["workflow_id"]), str(p["node_type"])).Inc()
	})
	emitter.On(events.NodeCompleted, func(_ string, p events.Payload) {
		wf, nt := str(p["workflow_id"]), str(p["node_type"])
		m.nodesCompleted.WithLabelValues(wf, nt).Inc()

		state := tracker.FullState()
		m.activeRunners.WithLabelValues(wf).Set(float64(state.ActiveRunners))
		if n := len(state.CompletedNodes); n > 0 {
			m.nodeDuration.WithLabelValues(wf, nt).Observe(state.CompletedNodes[n-1].DurationSeconds)
		}
	})
	emitter.On(events.NodeFailed, func(_ string, p events.Payload) {
		m.nodesFailed.WithLabelValues(str(p["workflow_id"]), str(p["node_type"])).Inc()
	})
	emitter.On(events.WorkflowCompleted, func(_ string, p events.Payload) {
		m.workflowsTotal.WithLabelValues(str(p["workflow_id"]), events.StatusCompleted).Inc()
	})
	emitter.On(events.WorkflowFailed, func(_ string, p events.Payload) {
		m.workflowsTotal.WithLabelValues(str(p["workflow_id"]), events.StatusFailed).Inc()
	})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
