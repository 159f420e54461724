package queen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/c360studio/taskqueen/llm"
	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/regression"
	"github.com/c360studio/taskqueen/sandbox"
	"github.com/c360studio/taskqueen/tdd"
)

// phaseStatus maps the active TDD phase to the TaskStatus the owning
// TaskNode should carry while that phase is in flight.
func phaseStatus(phase model.TddPhase) model.TaskStatus {
	switch phase {
	case model.PhaseWriteTest:
		return model.TaskTestWriting
	case model.PhaseRunTestRed:
		return model.TaskTesting
	case model.PhaseWriteCode, model.PhaseRunTestGreen:
		// run_test_green still belongs to the coding stage until it
		// passes: the valid status graph has no testing -> refactoring
		// edge, so a green phase mapped to testing could not move on to
		// refactor.
		return model.TaskCoding
	case model.PhaseRefactor:
		return model.TaskRefactoring
	default:
		return model.TaskCoding
	}
}

// runWorker drives a single task's full TDD loop to completion (passed,
// or test_failed, including on a regression rejection), then frees the
// worker for reuse. It never returns an error directly; failures are
// recorded as decisions/events and reflected in the task's status.
func (q *Coordinator) runWorker(ctx context.Context, worker *model.WorkerAgent, task *model.TaskNode) {
	taskID := task.ID
	defer q.releaseWorker(worker, taskID)

	box := sandbox.New(q.config.ProjectRoot, worker.ID, taskID, q.locks, q.logger)
	if err := box.Setup(); err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("sandbox setup failed: %v", err))
		return
	}
	defer box.Cleanup()

	baseline, err := regression.CaptureBaseline(ctx, q.config.ProjectRoot)
	if err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("capture baseline failed: %v", err))
		return
	}

	if _, err := q.machine.StartLoop(taskID, task.AcceptanceTests, tdd.DefaultMaxIterations); err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("start tdd loop failed: %v", err))
		return
	}

	var accumulated []*model.CodeArtifact
	var newTestFiles []string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		state, ok := q.machine.GetLoopState(taskID)
		if !ok {
			q.failTask(taskID, worker, "tdd loop state disappeared mid-run")
			return
		}

		q.setTaskStatus(taskID, phaseStatus(state.Phase))
		q.setWorkerStatus(worker, phaseToWorkerStatus(state.Phase))

		guidance, err := q.machine.GetPhaseGuidance(taskID)
		if err != nil {
			q.failTask(taskID, worker, err.Error())
			return
		}

		resp, err := q.executor.ExecutePhase(ctx, llm.PhaseRequest{
			Task:     task,
			State:    state,
			Guidance: guidance,
			Model:    q.config.DefaultWorkerModel,
		})
		if err != nil {
			q.failTask(taskID, worker, fmt.Sprintf("phase executor error in %s: %v", state.Phase, err))
			return
		}

		var next *tdd.State
		switch state.Phase {
		case model.PhaseWriteTest:
			next, err = q.machine.SubmitTestCode(taskID, resp.TestCode, resp.TestFilePath, resp.TestCommand, resp.AcceptanceCriteria)
			if resp.TestFilePath != "" {
				newTestFiles = append(newTestFiles, resp.TestFilePath)
			}
			if err == nil {
				if werr := q.writeSandboxFile(box, resp.TestFilePath, resp.TestCode); werr != nil {
					q.failTask(taskID, worker, werr.Error())
					return
				}
			}

		case model.PhaseRunTestRed:
			for testID, result := range resp.AcceptanceRedResults {
				if _, err = q.machine.SubmitAcceptanceTestRedResult(taskID, testID, result); err != nil {
					break
				}
			}
			if err == nil {
				next, err = q.machine.SubmitRedTestResult(taskID, resp.UnitRedResult)
			}

		case model.PhaseWriteCode:
			accumulated = append(accumulated, resp.Artifacts...)
			next, err = q.machine.SubmitImplementationCode(taskID, resp.Artifacts)
			if err == nil {
				werr := q.stageArtifacts(box, resp.Artifacts)
				if werr != nil {
					q.failTask(taskID, worker, werr.Error())
					return
				}
			}

		case model.PhaseRunTestGreen:
			for testID, result := range resp.AcceptanceGreenResults {
				if _, err = q.machine.SubmitAcceptanceTestGreenResult(taskID, testID, result); err != nil {
					break
				}
			}
			if err == nil {
				next, err = q.machine.SubmitGreenTestResult(taskID, resp.UnitGreenResult)
			}

		case model.PhaseRefactor:
			accumulated = append(accumulated, resp.Artifacts...)
			if len(resp.Artifacts) > 0 {
				if werr := q.stageArtifacts(box, resp.Artifacts); werr != nil {
					q.failTask(taskID, worker, werr.Error())
					return
				}
			}
			next, err = q.machine.CompleteRefactoring(taskID, resp.Artifacts)

		default:
			q.failTask(taskID, worker, fmt.Sprintf("unexpected phase %s", state.Phase))
			return
		}

		if err != nil {
			q.failTask(taskID, worker, err.Error())
			return
		}

		q.recordAction(worker, fmt.Sprintf("completed phase %s", state.Phase), state.Phase)

		if next.Failed {
			q.machine.Discard(taskID)
			q.finishFailed(taskID, worker, next.FailedReason, accumulated)
			return
		}
		if next.Phase == model.PhaseDone {
			q.completeTask(ctx, worker, task, box, baseline, accumulated, newTestFiles)
			return
		}
	}
}

func phaseToWorkerStatus(phase model.TddPhase) model.WorkerStatus {
	switch phase {
	case model.PhaseWriteTest:
		return model.WorkerTestWriting
	case model.PhaseRunTestRed, model.PhaseRunTestGreen:
		return model.WorkerTesting
	case model.PhaseWriteCode, model.PhaseRefactor:
		return model.WorkerCoding
	default:
		return model.WorkerReporting
	}
}

// stageArtifacts records artifacts on the task tree and writes each one
// into the worker's sandbox directory so it is present for sync-back.
func (q *Coordinator) stageArtifacts(box *sandbox.Sandbox, artifacts []*model.CodeArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	if err := q.trees.AppendCodeArtifacts(box.TaskID, artifacts); err != nil {
		return fmt.Errorf("append code artifacts: %w", err)
	}
	for _, a := range artifacts {
		if a.ChangeType == model.ChangeDelete {
			continue
		}
		if err := q.writeSandboxFile(box, a.FilePath, a.Content); err != nil {
			return err
		}
	}
	return nil
}

func (q *Coordinator) writeSandboxFile(box *sandbox.Sandbox, relPath, content string) error {
	if relPath == "" {
		return nil
	}
	dst := filepath.Join(box.Dir(), relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare sandbox path %s: %w", relPath, err)
	}
	if err := renameio.WriteFile(dst, []byte(content), 0o644); err != nil {
		return fmt.Errorf("stage %s in sandbox: %w", relPath, err)
	}
	return nil
}

// syncArtifacts writes accumulated artifacts from the sandbox into the
// shared workspace. Files that already existed in the base dir route
// through the sandbox's lock-and-hash conflict detection; brand-new
// files have nothing to conflict with and are locked and written
// directly, since the sandbox's copy-in step requires a base-dir file
// to exist.
func (q *Coordinator) syncArtifacts(box *sandbox.Sandbox, workerID string, artifacts []*model.CodeArtifact) (*sandbox.SyncResult, error) {
	var existing []string
	var created []*model.CodeArtifact

	for _, a := range artifacts {
		if a.ChangeType == model.ChangeDelete {
			continue
		}
		base := filepath.Join(q.config.ProjectRoot, a.FilePath)
		if _, err := os.Stat(base); err == nil {
			existing = append(existing, a.FilePath)
		} else {
			created = append(created, a)
		}
	}

	result := &sandbox.SyncResult{}
	if len(existing) > 0 {
		if err := box.CopyToSandbox(existing); err != nil {
			return nil, fmt.Errorf("lock existing files for sync: %w", err)
		}
		synced, err := box.SyncBack()
		if err != nil {
			return nil, err
		}
		result.Success = append(result.Success, synced.Success...)
		result.Failed = append(result.Failed, synced.Failed...)
		result.Conflicts = append(result.Conflicts, synced.Conflicts...)
	}

	for _, a := range created {
		if !q.locks.AcquireLock(a.FilePath, workerID, 0) {
			result.Conflicts = append(result.Conflicts, a.FilePath)
			continue
		}
		dst := filepath.Join(q.config.ProjectRoot, a.FilePath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			result.Failed = append(result.Failed, a.FilePath)
			q.locks.ReleaseLock(a.FilePath, workerID)
			continue
		}
		if err := renameio.WriteFile(dst, []byte(a.Content), 0o644); err != nil {
			result.Failed = append(result.Failed, a.FilePath)
			q.locks.ReleaseLock(a.FilePath, workerID)
			continue
		}
		result.Success = append(result.Success, a.FilePath)
		q.locks.ReleaseLock(a.FilePath, workerID)
	}

	return result, nil
}

// completeTask runs sync-back and the regression gate once a task's TDD
// loop reaches done, finalizing it as passed or bouncing it back to
// test_failed on rejection.
func (q *Coordinator) completeTask(ctx context.Context, worker *model.WorkerAgent, task *model.TaskNode, box *sandbox.Sandbox, baseline *regression.Baseline, artifacts []*model.CodeArtifact, newTestFiles []string) {
	taskID := task.ID

	q.emit(model.EventWorkerSubmitting, fmt.Sprintf("worker %s submitting task %s", worker.ID, taskID), taskID)

	syncResult, err := q.syncArtifacts(box, worker.ID, artifacts)
	if err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("sync artifacts failed: %v", err))
		return
	}
	if len(syncResult.Conflicts) > 0 || len(syncResult.Failed) > 0 {
		q.failTask(taskID, worker, fmt.Sprintf("sync-back conflicts=%v failed=%v", syncResult.Conflicts, syncResult.Failed))
		return
	}

	scope := q.trees.RegressionScopeFor(taskID)
	submission, err := regression.BuildSubmission(ctx, baseline, worker.ID, taskID, task.Name, newTestFiles, scope, artifacts)
	if err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("build regression submission failed: %v", err))
		return
	}

	result, err := q.gate.Evaluate(*submission)
	if err != nil {
		q.failTask(taskID, worker, fmt.Sprintf("regression gate error: %v", err))
		return
	}
	if !result.Passed {
		q.emit(model.EventWorkerSubmissionBlocked, fmt.Sprintf("task %s blocked by regression gate", taskID), result.Reasons)
		q.finishFailed(taskID, worker, fmt.Sprintf("regression gate rejected: %v", result.Reasons), artifacts)
		return
	}

	q.emit(model.EventWorkerSubmissionApproved, fmt.Sprintf("task %s approved by regression gate", taskID), nil)

	q.setTaskStatus(taskID, model.TaskPassed)
	q.metrics.TasksCompleted.Inc()
	q.emit(model.EventWorkerTaskCompleted, fmt.Sprintf("worker %s completed task %s", worker.ID, taskID), taskID)
}

func (q *Coordinator) finishFailed(taskID string, worker *model.WorkerAgent, reason string, artifacts []*model.CodeArtifact) {
	if len(artifacts) > 0 {
		_ = q.trees.AppendCodeArtifacts(taskID, artifacts)
	}
	retries, retriable := q.trees.IncrementRetry(taskID)

	q.setTaskStatus(taskID, model.TaskTestFailed)
	// The step ceiling is the infinite-loop guard, not an ordinary failed
	// attempt: it escalates immediately regardless of retries remaining.
	switch {
	case reason == tdd.StepCeilingReason:
		q.recordDecision(model.DecisionEscalate, taskID, fmt.Sprintf("task %s hit the tdd step ceiling", taskID), reason)
	case retriable:
		q.recordDecision(model.DecisionRetry, taskID, fmt.Sprintf("task %s will be retried (attempt %d)", taskID, retries), reason)
	default:
		q.recordDecision(model.DecisionEscalate, taskID, fmt.Sprintf("task %s exhausted retries", taskID), reason)
	}

	q.metrics.TasksFailed.Inc()
	q.emit(model.EventWorkerTaskFailed, fmt.Sprintf("worker %s failed task %s: %s", worker.ID, taskID, reason), reason)
}

func (q *Coordinator) failTask(taskID string, worker *model.WorkerAgent, reason string) {
	q.logger.Warn("task failed", "task_id", taskID, "worker_id", worker.ID, "reason", reason)
	q.machine.Discard(taskID)
	q.finishFailed(taskID, worker, reason, nil)
}

func (q *Coordinator) releaseWorker(worker *model.WorkerAgent, taskID string) {
	q.locks.ReleaseAll(worker.ID)

	q.mu.Lock()
	delete(q.assignedTask, taskID)
	worker.TaskID = ""
	worker.Status = model.WorkerIdle
	worker.LastActivity = time.Now()
	q.mu.Unlock()
}
