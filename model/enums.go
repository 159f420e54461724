package model

// BlueprintStatus is the lifecycle status of a Blueprint.
type BlueprintStatus string

const (
	BlueprintDraft      BlueprintStatus = "draft"
	BlueprintReview     BlueprintStatus = "review"
	BlueprintApproved   BlueprintStatus = "approved"
	BlueprintExecuting  BlueprintStatus = "executing"
	BlueprintPaused     BlueprintStatus = "paused"
	BlueprintModified   BlueprintStatus = "modified"
	BlueprintCompleted  BlueprintStatus = "completed"
	BlueprintRejected   BlueprintStatus = "rejected"
)

// IsValid reports whether s is one of the known blueprint statuses.
func (s BlueprintStatus) IsValid() bool {
	switch s {
	case BlueprintDraft, BlueprintReview, BlueprintApproved, BlueprintExecuting,
		BlueprintPaused, BlueprintModified, BlueprintCompleted, BlueprintRejected:
		return true
	default:
		return false
	}
}

// ModuleType classifies a blueprint Module.
type ModuleType string

const (
	ModuleFrontend      ModuleType = "frontend"
	ModuleBackend       ModuleType = "backend"
	ModuleDatabase      ModuleType = "database"
	ModuleService       ModuleType = "service"
	ModuleInfrastructure ModuleType = "infrastructure"
	ModuleOther         ModuleType = "other"
)

// IsValid reports whether t is one of the known module types.
func (t ModuleType) IsValid() bool {
	switch t {
	case ModuleFrontend, ModuleBackend, ModuleDatabase, ModuleService, ModuleInfrastructure, ModuleOther:
		return true
	default:
		return false
	}
}

// NFRPriority is the priority of a non-functional requirement.
type NFRPriority string

const (
	NFRMust   NFRPriority = "must"
	NFRShould NFRPriority = "should"
	NFRCould  NFRPriority = "could"
)

// IsValid reports whether p is one of the known NFR priorities.
func (p NFRPriority) IsValid() bool {
	switch p {
	case NFRMust, NFRShould, NFRCould:
		return true
	default:
		return false
	}
}

// TaskStatus is the lifecycle status of a TaskNode.
type TaskStatus string

const (
	TaskPending      TaskStatus = "pending"
	TaskReady        TaskStatus = "ready"
	TaskTestWriting  TaskStatus = "test_writing"
	TaskTesting      TaskStatus = "testing"
	TaskCoding       TaskStatus = "coding"
	TaskRefactoring  TaskStatus = "refactoring"
	TaskPassed       TaskStatus = "passed"
	TaskTestFailed   TaskStatus = "test_failed"
	TaskBlocked      TaskStatus = "blocked"
	TaskSkipped      TaskStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskPassed || s == TaskSkipped
}

// IsValid reports whether s is one of the known task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskReady, TaskTestWriting, TaskTesting, TaskCoding,
		TaskRefactoring, TaskPassed, TaskTestFailed, TaskBlocked, TaskSkipped:
		return true
	default:
		return false
	}
}

// ChangeType classifies a CodeArtifact mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// IsValid reports whether c is one of the known artifact change types.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeCreate, ChangeModify, ChangeDelete:
		return true
	default:
		return false
	}
}

// TddPhase is a phase of the six-phase TDD state machine.
type TddPhase string

const (
	PhaseWriteTest     TddPhase = "write_test"
	PhaseRunTestRed    TddPhase = "run_test_red"
	PhaseWriteCode     TddPhase = "write_code"
	PhaseRunTestGreen  TddPhase = "run_test_green"
	PhaseRefactor      TddPhase = "refactor"
	PhaseDone          TddPhase = "done"
)

// IsValid reports whether p is one of the six TDD phases.
func (p TddPhase) IsValid() bool {
	switch p {
	case PhaseWriteTest, PhaseRunTestRed, PhaseWriteCode, PhaseRunTestGreen, PhaseRefactor, PhaseDone:
		return true
	default:
		return false
	}
}

// WorkerStatus is the lifecycle status of a WorkerAgent.
type WorkerStatus string

const (
	WorkerIdle        WorkerStatus = "idle"
	WorkerTestWriting WorkerStatus = "test_writing"
	WorkerTesting     WorkerStatus = "testing"
	WorkerCoding      WorkerStatus = "coding"
	WorkerReporting   WorkerStatus = "reporting"
)

// IsValid reports whether s is one of the known worker statuses.
func (s WorkerStatus) IsValid() bool {
	switch s {
	case WorkerIdle, WorkerTestWriting, WorkerTesting, WorkerCoding, WorkerReporting:
		return true
	default:
		return false
	}
}

// QueenStatus is the lifecycle status of a QueenAgent.
type QueenStatus string

const (
	QueenIdle         QueenStatus = "idle"
	QueenCoordinating QueenStatus = "coordinating"
	QueenPaused       QueenStatus = "paused"
)

// IsValid reports whether s is one of the known queen statuses.
func (s QueenStatus) IsValid() bool {
	switch s {
	case QueenIdle, QueenCoordinating, QueenPaused:
		return true
	default:
		return false
	}
}

// TimelineEventType names the events emitted per spec §6.
type TimelineEventType string

const (
	EventQueenInitialized        TimelineEventType = "queen:initialized"
	EventQueenLoopStarted        TimelineEventType = "queen:loop-started"
	EventQueenLoopStopped        TimelineEventType = "queen:loop-stopped"
	EventQueenDecision           TimelineEventType = "queen:decision"
	EventWorkerCreated           TimelineEventType = "worker:created"
	EventWorkerAction            TimelineEventType = "worker:action"
	EventWorkerTaskCompleted     TimelineEventType = "worker:task-completed"
	EventWorkerTaskFailed        TimelineEventType = "worker:task-failed"
	EventWorkerTimeout           TimelineEventType = "worker:timeout"
	EventTaskAssigned            TimelineEventType = "task:assigned"
	EventCheckpointRollback      TimelineEventType = "checkpoint:rollback"
	EventWorkerSubmitting        TimelineEventType = "worker_submitting"
	EventWorkerSubmissionBlocked TimelineEventType = "worker_submission_blocked"
	EventWorkerSubmissionApproved TimelineEventType = "worker_submission_approved"
	EventTimelineEvent           TimelineEventType = "timeline:event"
)

// IsValid reports whether t is one of the known timeline event types.
func (t TimelineEventType) IsValid() bool {
	switch t {
	case EventQueenInitialized, EventQueenLoopStarted, EventQueenLoopStopped, EventQueenDecision,
		EventWorkerCreated, EventWorkerAction, EventWorkerTaskCompleted, EventWorkerTaskFailed,
		EventWorkerTimeout, EventTaskAssigned, EventCheckpointRollback, EventWorkerSubmitting,
		EventWorkerSubmissionBlocked, EventWorkerSubmissionApproved, EventTimelineEvent:
		return true
	default:
		return false
	}
}

// DecisionType classifies an entry in the queen's decision log.
type DecisionType string

const (
	DecisionAssign    DecisionType = "assign"
	DecisionRollback  DecisionType = "rollback"
	DecisionRetry     DecisionType = "retry"
	DecisionEscalate  DecisionType = "escalate"
)

// IsValid reports whether t is one of the known decision types.
func (t DecisionType) IsValid() bool {
	switch t {
	case DecisionAssign, DecisionRollback, DecisionRetry, DecisionEscalate:
		return true
	default:
		return false
	}
}
