package queen

import (
	"time"

	"github.com/c360studio/taskqueen/model"
)

// Event is the typed payload delivered to Observers, per spec §9's
// preference for explicit observers over a string-topic pub/sub bus.
// Type carries the same names as the tasktree timeline
// (model.TimelineEventType), so subscribers never parse a topic string.
type Event struct {
	Type    model.TimelineEventType
	Payload any
	At      time.Time
}

// Observer is notified of every event the coordinator emits, in emission
// order, registered at construction time.
type Observer func(Event)

// emit records typ on the task-tree timeline and notifies every
// registered observer.
func (q *Coordinator) emit(typ model.TimelineEventType, description string, payload any) {
	ev := q.trees.Emit(typ, description, payload)
	for _, obs := range q.observers {
		obs(Event{Type: ev.Type, Payload: ev.Payload, At: ev.Timestamp})
	}
}
