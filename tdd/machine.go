// Package tdd implements the six-phase per-task TDD state machine:
// write_test -> run_test_red -> write_code -> run_test_green -> refactor -> done,
// with re-entry into write_code on a failing green phase and a
// step-ceiling guard against infinite loops.
package tdd

import (
	"fmt"
	"sync"

	"github.com/c360studio/taskqueen/model"
)

// DefaultMaxIterations is the default green-phase retry budget per task.
const DefaultMaxIterations = 10

// StepCeilingReason is State.FailedReason's value when a task is failed
// because the loop gave up, either by using up its green-phase iteration
// budget (MaxIterations) or by hitting the step ceiling, rather than
// because of a single bad test run. It
// is the unrecoverable infinite-loop guard: callers should treat it as
// terminal regardless of the task's own retry budget.
const StepCeilingReason = "tdd step ceiling exceeded"

// Result is the outcome of running one test.
type Result struct {
	Passed  bool
	Message string
}

// State is the TDD loop state for a single task.
type State struct {
	TaskID        string
	Phase         model.TddPhase
	Iteration     int
	MaxIterations int
	StepCeiling   int
	Steps         int

	TestSpec        *model.TestSpec
	AcceptanceTests []*model.AcceptanceTest

	UnitRedResult    *Result
	UnitGreenResult  *Result
	AcceptanceRed    map[string]Result
	AcceptanceGreen  map[string]Result

	CodeWritten bool
	LastError   string

	// Failed is set when the iteration budget or the step ceiling is used
	// up; the loop is then terminal even though Phase never reaches done.
	Failed       bool
	FailedReason string
}

// Guidance is the textual prompt surface handed to the phase executor.
type Guidance struct {
	Phase        model.TddPhase
	Instructions string
	NextActions  []string
}

// Machine holds the TDD loop state for every task currently in flight.
type Machine struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewMachine constructs an empty Machine.
func NewMachine() *Machine {
	return &Machine{states: make(map[string]*State)}
}

func stepCeiling(maxIterations int) int {
	ceiling := maxIterations * 10
	if ceiling < 20 {
		ceiling = 20
	}
	return ceiling
}

// StartLoop initializes the TDD loop for a task at phase write_test,
// iteration 0.
func (m *Machine) StartLoop(taskID string, acceptanceTests []*model.AcceptanceTest, maxIterations int) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	state := &State{
		TaskID:          taskID,
		Phase:           model.PhaseWriteTest,
		Iteration:       0,
		MaxIterations:   maxIterations,
		StepCeiling:     stepCeiling(maxIterations),
		AcceptanceTests: acceptanceTests,
		AcceptanceRed:   make(map[string]Result),
		AcceptanceGreen: make(map[string]Result),
	}
	m.states[taskID] = state
	return cloneState(state), nil
}

// GetLoopState returns the current state for taskID.
func (m *Machine) GetLoopState(taskID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[taskID]
	if !ok {
		return nil, false
	}
	return cloneState(s), true
}

// IsInLoop reports whether taskID has an active (non-terminal) loop.
func (m *Machine) IsInLoop(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[taskID]
	if !ok {
		return false
	}
	return s.Phase != model.PhaseDone && !s.Failed
}

// Discard removes the loop state for taskID, e.g. after a PhaseTimeout or
// once the task has been archived.
func (m *Machine) Discard(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, taskID)
}

func (m *Machine) get(taskID string) (*State, error) {
	s, ok := m.states[taskID]
	if !ok {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("no active TDD loop for task %s", taskID))
	}
	return s, nil
}

func (m *Machine) requirePhase(s *State, phase model.TddPhase) error {
	if s.Phase != phase {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("task %s: expected phase %s, got %s", s.TaskID, phase, s.Phase))
	}
	return nil
}

// incrementSteps bumps the overall step counter and flips Failed once the
// step ceiling is exceeded (the infinite-loop guard independent of the
// per-green-phase iteration budget).
func (s *State) incrementSteps() {
	s.Steps++
	if s.Steps >= s.StepCeiling {
		s.Failed = true
		s.FailedReason = StepCeilingReason
	}
}

// SubmitTestCode attaches the worker-private unit test and advances
// write_test -> run_test_red.
func (m *Machine) SubmitTestCode(taskID, code, filePath, command string, acceptanceCriteria []string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseWriteTest); err != nil {
		return nil, err
	}
	s.TestSpec = &model.TestSpec{TestCode: code, FilePath: filePath, Command: command, AcceptanceCriteria: acceptanceCriteria}
	s.Phase = model.PhaseRunTestRed
	s.incrementSteps()
	return cloneState(s), nil
}

// SubmitAcceptanceTestRedResult records the red-phase result for one
// declared acceptance test, addressed by id.
func (m *Machine) SubmitAcceptanceTestRedResult(taskID, testID string, result Result) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRunTestRed); err != nil {
		return nil, err
	}
	if !s.hasAcceptanceTest(testID) {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("unknown acceptance test %s", testID))
	}
	s.AcceptanceRed[testID] = result
	return cloneState(s), nil
}

// SubmitRedTestResult records the red-phase result for the worker-private
// unit test and attempts the run_test_red -> write_code transition. A
// passing result here (on the unit test, or on any acceptance test)
// signals a bogus test: the loop returns to write_test with lastError set,
// never to write_code (the no-passing-red invariant).
func (m *Machine) SubmitRedTestResult(taskID string, result Result) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRunTestRed); err != nil {
		return nil, err
	}
	s.UnitRedResult = &result

	if result.Passed {
		return m.rejectRed(s, "unit test passed during red phase; expected a failure"), nil
	}
	if missing := s.missingAcceptanceResults(s.AcceptanceRed); len(missing) > 0 {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("missing red results for acceptance tests: %v", missing))
	}
	for id, r := range s.AcceptanceRed {
		if r.Passed {
			_ = id
			return m.rejectRed(s, "an acceptance test passed during red phase; expected all to fail"), nil
		}
	}

	s.Phase = model.PhaseWriteCode
	s.incrementSteps()
	return cloneState(s), nil
}

func (m *Machine) rejectRed(s *State, reason string) *State {
	s.Phase = model.PhaseWriteTest
	s.LastError = reason
	s.incrementSteps()
	return cloneState(s)
}

func (s *State) hasAcceptanceTest(id string) bool {
	for _, at := range s.AcceptanceTests {
		if at.ID == id {
			return true
		}
	}
	return false
}

// missingAcceptanceResults returns the ids of declared acceptance tests
// with no entry in results, in declaration order (spec: "exactly one
// result per declared acceptance test, indexed positionally").
func (s *State) missingAcceptanceResults(results map[string]Result) []string {
	var missing []string
	for _, at := range s.AcceptanceTests {
		if _, ok := results[at.ID]; !ok {
			missing = append(missing, at.ID)
		}
	}
	return missing
}

// SubmitImplementationCode attaches implementation artifacts and advances
// write_code -> run_test_green.
func (m *Machine) SubmitImplementationCode(taskID string, artifacts []*model.CodeArtifact) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseWriteCode); err != nil {
		return nil, err
	}
	s.CodeWritten = true
	s.Phase = model.PhaseRunTestGreen
	s.incrementSteps()
	_ = artifacts // artifacts flow to the task tree via the coordinator, not stored here
	return cloneState(s), nil
}

// SubmitAcceptanceTestGreenResult records the green-phase result for one
// declared acceptance test.
func (m *Machine) SubmitAcceptanceTestGreenResult(taskID, testID string, result Result) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRunTestGreen); err != nil {
		return nil, err
	}
	if !s.hasAcceptanceTest(testID) {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("unknown acceptance test %s", testID))
	}
	s.AcceptanceGreen[testID] = result
	return cloneState(s), nil
}

// SubmitGreenTestResult records the green-phase unit-test result and
// attempts run_test_green -> refactor. If any declared test still fails,
// the loop re-enters write_code with lastError set and iteration++; once
// iteration reaches maxIterations (or the overall step ceiling is hit) the
// task is terminally failed and the caller must transition the owning
// TaskNode to test_failed.
func (m *Machine) SubmitGreenTestResult(taskID string, result Result) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRunTestGreen); err != nil {
		return nil, err
	}
	s.UnitGreenResult = &result

	if missing := s.missingAcceptanceResults(s.AcceptanceGreen); len(missing) > 0 {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("missing green results for acceptance tests: %v", missing))
	}

	allPassed := result.Passed
	for _, r := range s.AcceptanceGreen {
		if !r.Passed {
			allPassed = false
		}
	}

	if allPassed {
		s.Phase = model.PhaseRefactor
		s.incrementSteps()
		return cloneState(s), nil
	}

	s.LastError = "green phase did not pass all declared tests"
	s.Iteration++
	s.Phase = model.PhaseWriteCode
	s.CodeWritten = false
	s.AcceptanceGreen = make(map[string]Result)
	s.incrementSteps()

	if s.Iteration >= s.MaxIterations || s.Steps >= s.StepCeiling {
		s.Failed = true
		if s.FailedReason == "" {
			s.FailedReason = StepCeilingReason
		}
	}
	return cloneState(s), nil
}

// CompleteRefactoring transitions refactor -> done. The artifacts argument
// is accepted but not stored by the machine; a nil/empty slice is a no-op
// refactor pass.
func (m *Machine) CompleteRefactoring(taskID string, artifacts []*model.CodeArtifact) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRefactor); err != nil {
		return nil, err
	}
	s.Phase = model.PhaseDone
	s.incrementSteps()
	_ = artifacts
	return cloneState(s), nil
}

// RetryRefactor keeps the loop in refactor after a failed refactor pass
// (refactor "is retried" per spec §4.3), recording the failure reason.
func (m *Machine) RetryRefactor(taskID, reason string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.requirePhase(s, model.PhaseRefactor); err != nil {
		return nil, err
	}
	s.LastError = reason
	s.incrementSteps()
	if s.Steps >= s.StepCeiling {
		s.Failed = true
		s.FailedReason = StepCeilingReason
	}
	return cloneState(s), nil
}

// GetPhaseGuidance returns the textual prompt surface for the current
// phase, used by the (out-of-scope) phase executor.
func (m *Machine) GetPhaseGuidance(taskID string) (*Guidance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(taskID)
	if err != nil {
		return nil, err
	}
	return guidanceFor(s), nil
}

func guidanceFor(s *State) *Guidance {
	switch s.Phase {
	case model.PhaseWriteTest:
		return &Guidance{
			Phase:        s.Phase,
			Instructions: "Write a failing unit test for this task before any implementation code exists.",
			NextActions:  []string{"submitTestCode"},
		}
	case model.PhaseRunTestRed:
		return &Guidance{
			Phase:        s.Phase,
			Instructions: "Run the unit test and every declared acceptance test; all must fail.",
			NextActions:  []string{"submitAcceptanceTestRedResult", "submitRedTestResult"},
		}
	case model.PhaseWriteCode:
		instructions := "Write the minimal implementation to make the failing tests pass."
		if s.LastError != "" {
			instructions = "Previous attempt failed: " + s.LastError + ". Revise the implementation."
		}
		return &Guidance{Phase: s.Phase, Instructions: instructions, NextActions: []string{"submitImplementationCode"}}
	case model.PhaseRunTestGreen:
		return &Guidance{
			Phase:        s.Phase,
			Instructions: "Run the unit test and every declared acceptance test; all must pass.",
			NextActions:  []string{"submitAcceptanceTestGreenResult", "submitGreenTestResult"},
		}
	case model.PhaseRefactor:
		return &Guidance{
			Phase:        s.Phase,
			Instructions: "Refactor the implementation while keeping every test passing.",
			NextActions:  []string{"completeRefactoring"},
		}
	default:
		return &Guidance{Phase: s.Phase, Instructions: "Task is done.", NextActions: nil}
	}
}

func cloneState(s *State) *State {
	clone := *s
	clone.AcceptanceTests = append([]*model.AcceptanceTest(nil), s.AcceptanceTests...)
	clone.AcceptanceRed = make(map[string]Result, len(s.AcceptanceRed))
	for k, v := range s.AcceptanceRed {
		clone.AcceptanceRed[k] = v
	}
	clone.AcceptanceGreen = make(map[string]Result, len(s.AcceptanceGreen))
	for k, v := range s.AcceptanceGreen {
		clone.AcceptanceGreen[k] = v
	}
	return &clone
}
