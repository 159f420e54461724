package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/tdd"
)

// StubExecutor is a deterministic PhaseExecutor test double. It always
// writes a failing-then-passing test/implementation pair; green-phase
// behavior per task can be scripted to fail a fixed number of times, or
// forever, to drive the step-ceiling and retry seed scenarios.
type StubExecutor struct {
	mu                sync.Mutex
	greenFailuresLeft map[string]int
	alwaysFailGreen   map[string]bool
}

// NewStubExecutor constructs a StubExecutor with no scripted failures:
// every task goes green on the first attempt.
func NewStubExecutor() *StubExecutor {
	return &StubExecutor{
		greenFailuresLeft: make(map[string]int),
		alwaysFailGreen:   make(map[string]bool),
	}
}

// FailGreenNTimes scripts taskID's green phase to fail n times before
// passing.
func (s *StubExecutor) FailGreenNTimes(taskID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greenFailuresLeft[taskID] = n
}

// AlwaysFailGreen scripts taskID's green phase to never pass, driving the
// task to the step ceiling.
func (s *StubExecutor) AlwaysFailGreen(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysFailGreen[taskID] = true
}

// ExecutePhase implements PhaseExecutor.
func (s *StubExecutor) ExecutePhase(_ context.Context, req PhaseRequest) (*PhaseResponse, error) {
	switch req.State.Phase {
	case model.PhaseWriteTest:
		return &PhaseResponse{
			TestCode:           fmt.Sprintf("test for %s", req.Task.Name),
			TestFilePath:       req.Task.ID + "_test.go",
			TestCommand:        "go test ./...",
			AcceptanceCriteria: criteriaFor(req.Task),
		}, nil

	case model.PhaseRunTestRed:
		reds := make(map[string]tdd.Result, len(req.Task.AcceptanceTests))
		for _, at := range req.Task.AcceptanceTests {
			reds[at.ID] = tdd.Result{Passed: false, Message: "not yet implemented"}
		}
		return &PhaseResponse{
			UnitRedResult:        tdd.Result{Passed: false, Message: "not yet implemented"},
			AcceptanceRedResults: reds,
		}, nil

	case model.PhaseWriteCode:
		return &PhaseResponse{
			Artifacts: []*model.CodeArtifact{{
				Type:       "file",
				FilePath:   req.Task.ID + ".go",
				ChangeType: model.ChangeCreate,
				Content:    fmt.Sprintf("package generated\n\n// implements %s\n", req.Task.Name),
			}},
		}, nil

	case model.PhaseRunTestGreen:
		s.mu.Lock()
		fail := s.alwaysFailGreen[req.Task.ID]
		if !fail && s.greenFailuresLeft[req.Task.ID] > 0 {
			s.greenFailuresLeft[req.Task.ID]--
			fail = true
		}
		s.mu.Unlock()

		greens := make(map[string]tdd.Result, len(req.Task.AcceptanceTests))
		for _, at := range req.Task.AcceptanceTests {
			greens[at.ID] = tdd.Result{Passed: !fail}
		}
		return &PhaseResponse{
			UnitGreenResult:        tdd.Result{Passed: !fail},
			AcceptanceGreenResults: greens,
		}, nil

	case model.PhaseRefactor:
		return &PhaseResponse{}, nil

	default:
		return &PhaseResponse{}, nil
	}
}

func criteriaFor(task *model.TaskNode) []string {
	criteria := make([]string, 0, len(task.AcceptanceTests))
	for _, at := range task.AcceptanceTests {
		criteria = append(criteria, at.Name)
	}
	return criteria
}
