package queen

import (
	"fmt"

	"github.com/c360studio/taskqueen/model"
)

// CreateGlobalCheckpoint snapshots the whole task tree under the
// queen's control, a pass-through to the underlying tasktree.Manager.
func (q *Coordinator) CreateGlobalCheckpoint(name, description string) *model.Checkpoint {
	return q.trees.CreateGlobalCheckpoint(name, description)
}

// Timeline returns every event emitted against this queen's task tree,
// a pass-through to the underlying tasktree.Manager.
func (q *Coordinator) Timeline() []model.TimelineEvent {
	return q.trees.Timeline()
}

// Rollback restores the task tree to checkpointID, records the rollback
// as a decision, and bumps the rollback counter. The timeline event
// itself is emitted by the underlying tasktree.Manager so a rollback
// performed outside a running coordinator (e.g. the CLI, against a
// persisted tree) still leaves the same trail.
func (q *Coordinator) Rollback(checkpointID string) error {
	if err := q.trees.Rollback(checkpointID); err != nil {
		return fmt.Errorf("rollback to checkpoint %s: %w", checkpointID, err)
	}
	q.metrics.RollbacksPerformed.Inc()
	q.recordDecision(model.DecisionRollback, "", fmt.Sprintf("rolled back to checkpoint %s", checkpointID), "operator-requested rollback")
	return nil
}
