package queen

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/taskqueen/model"
)

// recordDecision appends an entry to the queen's append-only decision
// log and emits a queen:decision event, per spec §4.7.
func (q *Coordinator) recordDecision(dtype model.DecisionType, taskID, description, reasoning string) model.Decision {
	d := model.Decision{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Type:        dtype,
		Description: description,
		Reasoning:   reasoning,
		TaskID:      taskID,
	}

	q.mu.Lock()
	q.agent.Decisions = append(q.agent.Decisions, d)
	q.mu.Unlock()

	q.emit(model.EventQueenDecision, description, d)
	return d
}
