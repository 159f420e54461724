// Package queen implements the Queen Coordinator: the single-threaded
// cooperative main loop that assigns executable tasks to concurrent
// Worker agents, sweeps timed-out workers, and finalizes the run once
// every task has passed.
package queen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/c360studio/taskqueen/blueprint"
	"github.com/c360studio/taskqueen/llm"
	"github.com/c360studio/taskqueen/lock"
	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/regression"
	"github.com/c360studio/taskqueen/tasktree"
	"github.com/c360studio/taskqueen/tdd"
)

// Coordinator is the queen: one per blueprint/task-tree pair.
type Coordinator struct {
	logger     *slog.Logger
	config     Config
	blueprints *blueprint.Manager
	locks      *lock.Manager
	gate       *regression.Gate
	executor   llm.PhaseExecutor
	metrics    *Metrics
	observers  []Observer

	machine *tdd.Machine
	trees   *tasktree.Manager

	mu           sync.Mutex
	agent        *model.QueenAgent
	workers      map[string]*model.WorkerAgent
	assignedTask map[string]string // taskID -> workerID
	workerSeq    int
	running      bool
	cancel       context.CancelFunc
	finalized    bool

	sem *semaphore.Weighted
	eg  errgroup.Group
}

// NewCoordinator wires a Coordinator from its collaborators. executor
// drives the TDD loop's phases; registry, if non-nil, receives the
// coordinator's Prometheus counters.
func NewCoordinator(
	cfg Config,
	blueprints *blueprint.Manager,
	locks *lock.Manager,
	gate *regression.Gate,
	executor llm.PhaseExecutor,
	registry *prometheus.Registry,
	logger *slog.Logger,
	observers ...Observer,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithDefaults()
	return &Coordinator{
		logger:       logger,
		config:       cfg,
		blueprints:   blueprints,
		locks:        locks,
		gate:         gate,
		executor:     executor,
		metrics:      NewMetrics(registry),
		observers:    observers,
		machine:      tdd.NewMachine(),
		workers:      make(map[string]*model.WorkerAgent),
		assignedTask: make(map[string]string),
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrentWorkers)),
	}
}

// InitializeQueen binds the coordinator to an approved (or already
// executing) blueprint and derives a fresh task tree from it.
func (q *Coordinator) InitializeQueen(ctx context.Context, blueprintID string, genTests tasktree.AcceptanceTestGenerator) error {
	bp, err := q.blueprints.Get(q.config.ProjectRoot, blueprintID)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	if bp.Status != model.BlueprintApproved && bp.Status != model.BlueprintExecuting {
		return model.NewError(model.ErrDependencyUnmet, fmt.Sprintf("blueprint %s must be approved or executing, got %s", blueprintID, bp.Status))
	}

	trees, err := tasktree.GenerateFromBlueprint(bp, genTests)
	if err != nil {
		return fmt.Errorf("generate task tree: %w", err)
	}
	treeID := trees.Tree().ID

	if bp.Status == model.BlueprintApproved {
		if err := q.blueprints.StartExecution(bp, treeID); err != nil {
			return fmt.Errorf("start execution: %w", err)
		}
	}

	q.mu.Lock()
	q.trees = trees
	q.agent = &model.QueenAgent{
		ID:          uuid.NewString(),
		BlueprintID: bp.ID,
		TaskTreeID:  treeID,
		Status:      model.QueenIdle,
	}
	q.workers = make(map[string]*model.WorkerAgent)
	q.assignedTask = make(map[string]string)
	q.finalized = false
	q.mu.Unlock()

	q.logger.Info("queen initialized", "blueprint_id", bp.ID, "task_tree_id", treeID)
	q.emit(model.EventQueenInitialized, fmt.Sprintf("queen bound to blueprint %s", bp.ID), treeID)
	return nil
}

// Agent returns a copy of the queen's current agent record.
func (q *Coordinator) Agent() model.QueenAgent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.agent
}

// Tree returns a deep-cloned snapshot of the bound task tree.
func (q *Coordinator) Tree() *model.TaskTree {
	return q.trees.Tree()
}

// Workers returns a snapshot of every worker the queen has ever spawned
// for this run, idle or busy.
func (q *Coordinator) Workers() []model.WorkerAgent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.WorkerAgent, 0, len(q.workers))
	for _, w := range q.workers {
		out = append(out, *w)
	}
	return out
}

// StartMainLoop begins ticking every MainLoopInterval until StopMainLoop
// is called or ctx is cancelled.
func (q *Coordinator) StartMainLoop(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return model.NewError(model.ErrInvalidTransition, "main loop already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.agent.Status = model.QueenCoordinating
	q.mu.Unlock()

	q.emit(model.EventQueenLoopStarted, "main loop started", nil)

	go q.runLoop(loopCtx)
	return nil
}

func (q *Coordinator) runLoop(ctx context.Context) {
	ticker := time.NewTicker(q.config.MainLoopInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Tick(ctx); err != nil {
				q.logger.Warn("tick failed", "error", err)
			}
			q.mu.Lock()
			done := q.finalized
			q.mu.Unlock()
			if done {
				return
			}
		}
	}
}

// StopMainLoop halts further ticks; in-flight worker calls are allowed to
// complete.
func (q *Coordinator) StopMainLoop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	cancel := q.cancel
	q.agent.Status = model.QueenPaused
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.emit(model.EventQueenLoopStopped, "main loop stopped", nil)
	return nil
}

// Wait blocks until every worker goroutine dispatched so far has
// returned. Tests use this to drive deterministic tick/assign/wait
// sequences instead of racing a live ticker.
func (q *Coordinator) Wait() error {
	return q.eg.Wait()
}

// Tick runs one iteration of the queen's main-loop algorithm (spec
// §4.7): finalize (and return) once every task has passed; otherwise
// sweep timed-out workers, assign executable tasks when AutoAssignTasks is
// set, and rebuild the global context. There is no separate worker-status
// sync step. Exported so tests can drive the loop deterministically.
func (q *Coordinator) Tick(ctx context.Context) error {
	if q.trees.AllPassed() {
		q.finalize()
		return nil
	}

	q.sweepTimeouts()

	if q.config.AutoAssignTasks {
		q.assignReadyTasks(ctx)
	}

	q.rebuildGlobalContext()
	return nil
}

func (q *Coordinator) finalize() {
	q.mu.Lock()
	if q.finalized {
		q.mu.Unlock()
		return
	}
	q.finalized = true
	q.agent.Status = model.QueenIdle
	q.mu.Unlock()

	q.trees.CreateGlobalCheckpoint("completion", "all tasks passed")
	q.logger.Info("all tasks passed, run complete", "queen_id", q.agent.ID)
}

// assignReadyTasks pairs executable tasks with idle (reused) or freshly
// spawned workers, up to MaxConcurrentWorkers, skipping tasks already
// assigned to a worker.
func (q *Coordinator) assignReadyTasks(ctx context.Context) {
	executable := q.trees.GetExecutableTasks()

	q.mu.Lock()
	var idle []*model.WorkerAgent
	for _, w := range q.workers {
		if w.Status == model.WorkerIdle {
			idle = append(idle, w)
		}
	}
	activeCount := len(q.workers) - len(idle)
	q.mu.Unlock()

	idx := 0
	busy := activeCount
	for _, task := range executable {
		q.mu.Lock()
		_, alreadyAssigned := q.assignedTask[task.ID]
		q.mu.Unlock()
		if alreadyAssigned {
			continue
		}

		var worker *model.WorkerAgent
		if idx < len(idle) {
			worker = idle[idx]
			idx++
		} else if busy < q.config.MaxConcurrentWorkers {
			worker = q.spawnWorker()
		} else {
			continue
		}
		busy++

		q.mu.Lock()
		worker.TaskID = task.ID
		worker.Status = model.WorkerTestWriting
		worker.LastActivity = time.Now()
		q.assignedTask[task.ID] = worker.ID
		q.mu.Unlock()

		q.metrics.TasksAssigned.Inc()
		q.recordDecision(model.DecisionAssign, task.ID, fmt.Sprintf("assigned task %s to worker %s", task.ID, worker.ID), "")
		q.emit(model.EventTaskAssigned, fmt.Sprintf("task %s assigned to worker %s", task.ID, worker.ID), map[string]string{"taskId": task.ID, "workerId": worker.ID})

		taskCopy := task
		workerRef := worker
		q.eg.Go(func() error {
			if err := q.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer q.sem.Release(1)
			q.runWorker(ctx, workerRef, taskCopy)
			return nil
		})
	}
}

func (q *Coordinator) spawnWorker() *model.WorkerAgent {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workerSeq++
	w := &model.WorkerAgent{
		ID:           fmt.Sprintf("worker-%d", q.workerSeq),
		QueenID:      q.agent.ID,
		Status:       model.WorkerIdle,
		LastActivity: time.Now(),
	}
	q.workers[w.ID] = w
	q.emit(model.EventWorkerCreated, fmt.Sprintf("worker %s created", w.ID), w.ID)
	return w
}

// sweepTimeouts forcibly fails any busy worker whose last recorded
// action exceeds WorkerTimeout, freeing it for reuse.
func (q *Coordinator) sweepTimeouts() {
	now := time.Now()
	var timedOut []*model.WorkerAgent
	q.mu.Lock()
	for _, w := range q.workers {
		if w.Status == model.WorkerIdle || w.TaskID == "" {
			continue
		}
		if now.Sub(w.LastActivity) > q.config.WorkerTimeout() {
			timedOut = append(timedOut, w)
		}
	}
	q.mu.Unlock()

	for _, w := range timedOut {
		q.failWorkerOnTimeout(w)
	}
}

func (q *Coordinator) failWorkerOnTimeout(w *model.WorkerAgent) {
	q.mu.Lock()
	taskID := w.TaskID
	delete(q.assignedTask, taskID)
	w.TaskID = ""
	w.Status = model.WorkerIdle
	q.mu.Unlock()

	q.machine.Discard(taskID)
	q.locks.ReleaseAll(w.ID)

	if err := q.trees.UpdateTaskStatus(taskID, model.TaskTestFailed); err != nil {
		q.logger.Warn("failed to mark timed-out task test_failed", "task_id", taskID, "error", err)
	}
	q.metrics.WorkersTimedOut.Inc()
	q.recordDecision(model.DecisionEscalate, taskID, fmt.Sprintf("worker %s timed out", w.ID), "last action exceeded workerTimeoutMs")
	q.emit(model.EventWorkerTimeout, fmt.Sprintf("worker %s timed out on task %s", w.ID, taskID), taskID)
}

func (q *Coordinator) rebuildGlobalContext() {
	stats := q.trees.Stats()
	q.mu.Lock()
	q.agent.GlobalContext = fmt.Sprintf("progress: %d/%d tasks passed (%.1f%%)", stats.Passed, stats.Total, stats.ProgressPct)
	q.mu.Unlock()
}

// setTaskStatus is a small convenience wrapper shared with worker.go.
func (q *Coordinator) setTaskStatus(taskID string, status model.TaskStatus) {
	if err := q.trees.UpdateTaskStatus(taskID, status); err != nil {
		q.logger.Warn("task status transition rejected", "task_id", taskID, "status", status, "error", err)
	}
}

func (q *Coordinator) setWorkerStatus(worker *model.WorkerAgent, status model.WorkerStatus) {
	q.mu.Lock()
	worker.Status = status
	worker.LastActivity = time.Now()
	q.mu.Unlock()
}

func (q *Coordinator) recordAction(worker *model.WorkerAgent, description string, phase model.TddPhase) {
	q.mu.Lock()
	worker.Actions = append(worker.Actions, model.Action{Timestamp: time.Now(), Description: description, Phase: phase})
	worker.LastActivity = time.Now()
	q.mu.Unlock()
	q.emit(model.EventWorkerAction, description, map[string]string{"workerId": worker.ID, "phase": string(phase)})
}
