package model

import "time"

// QueenAgent is the single coordinator bound to one blueprint and task
// tree.
type QueenAgent struct {
	ID            string      `json:"id"`
	BlueprintID   string      `json:"blueprintId"`
	TaskTreeID    string      `json:"taskTreeId"`
	Status        QueenStatus `json:"status"`
	WorkerIDs     []string    `json:"workerIds,omitempty"`
	GlobalContext string      `json:"globalContext,omitempty"`
	Decisions     []Decision  `json:"decisions,omitempty"`
}

// Decision is one append-only entry in the queen's decision log.
type Decision struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Type      DecisionType `json:"type"`
	Description string     `json:"description"`
	Reasoning string       `json:"reasoning,omitempty"`
	TaskID    string       `json:"taskId,omitempty"`
}

// TDDCycle mirrors a WorkerAgent's view of its current TDD loop.
type TDDCycle struct {
	Phase         TddPhase `json:"phase"`
	Iteration     int      `json:"iteration"`
	MaxIterations int      `json:"maxIterations"`
	TestWritten   bool     `json:"testWritten"`
	TestPassed    bool     `json:"testPassed"`
	CodeWritten   bool     `json:"codeWritten"`
}

// WorkerAgent is a concurrent per-task agent supervised by the queen.
type WorkerAgent struct {
	ID       string       `json:"id"`
	QueenID  string       `json:"queenId"`
	TaskID   string       `json:"taskId,omitempty"`
	Status   WorkerStatus `json:"status"`
	Cycle    TDDCycle     `json:"cycle"`
	Actions  []Action     `json:"actions,omitempty"`

	// LastActivity is not persisted to JSON as part of the public schema;
	// it drives the queen tick's timeout sweep.
	LastActivity time.Time `json:"-"`
}

// Action is one append-only entry in a WorkerAgent's action log.
type Action struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Phase       TddPhase  `json:"phase,omitempty"`
}
