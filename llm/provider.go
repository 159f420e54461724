// Package llm declares the phase-executor collaborator the queen
// coordinator drives through each task's TDD loop. Generating test and
// implementation code from a model is out of scope here; this package
// only defines the boundary and a deterministic test double.
package llm

import (
	"context"

	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/tdd"
)

// PhaseRequest carries everything a PhaseExecutor needs to act on one
// phase of one task's TDD loop.
type PhaseRequest struct {
	Task     *model.TaskNode
	State    *tdd.State
	Guidance *tdd.Guidance
	Model    string
}

// PhaseResponse is the executor's output for the requested phase. Only
// the fields relevant to State.Phase are read by the coordinator.
type PhaseResponse struct {
	TestCode           string
	TestFilePath       string
	TestCommand        string
	AcceptanceCriteria []string

	Artifacts []*model.CodeArtifact

	UnitRedResult   tdd.Result
	UnitGreenResult tdd.Result

	AcceptanceRedResults   map[string]tdd.Result
	AcceptanceGreenResults map[string]tdd.Result
}

// PhaseExecutor drives a single TDD phase for a task. Production wiring
// calls a real model behind this interface; tests inject StubExecutor.
type PhaseExecutor interface {
	ExecutePhase(ctx context.Context, req PhaseRequest) (*PhaseResponse, error)
}
