package queen

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the coordinator's tick-level counters, registered on an
// injected registry rather than the global default so tests can assert
// on an isolated instance (spec §4.7).
type Metrics struct {
	TasksAssigned      prometheus.Counter
	TasksCompleted     prometheus.Counter
	TasksFailed        prometheus.Counter
	WorkersTimedOut    prometheus.Counter
	RollbacksPerformed prometheus.Counter
}

// NewMetrics builds and registers the counter set on registry. Passing
// nil skips registration; the counters are still usable standalone.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TasksAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskqueen_tasks_assigned_total",
			Help: "Tasks assigned to a worker by the queen tick.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskqueen_tasks_completed_total",
			Help: "Tasks that reached status passed.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskqueen_tasks_failed_total",
			Help: "Tasks that transitioned to test_failed.",
		}),
		WorkersTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskqueen_workers_timed_out_total",
			Help: "Workers forcibly failed by the timeout sweep.",
		}),
		RollbacksPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskqueen_rollbacks_performed_total",
			Help: "Checkpoint rollbacks performed.",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.TasksAssigned, m.TasksCompleted, m.TasksFailed, m.WorkersTimedOut, m.RollbacksPerformed)
	}
	return m
}
