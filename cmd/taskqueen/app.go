package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/taskqueen/blueprint"
	"github.com/c360studio/taskqueen/config"
	"github.com/c360studio/taskqueen/llm"
	"github.com/c360studio/taskqueen/lock"
	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/persistence"
	"github.com/c360studio/taskqueen/queen"
	"github.com/c360studio/taskqueen/regression"
	"github.com/c360studio/taskqueen/tasktree"
)

// App is the composition root wiring every collaborator package into one
// CLI-driven run: a NewApp constructor plus Run, with no NATS/JetStream
// bootstrap, since a taskqueen run is a single process, start to finish.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	blueprints *blueprint.Manager
	locks      *lock.Manager
	gate       *regression.Gate
	executor   llm.PhaseExecutor
	registry   *prometheus.Registry

	treeStoreFor func(projectPath string) (*persistence.Store, error)
}

// NewApp builds an App from a loaded config. The regression validator and
// phase executor are fixed here to their out-of-scope defaults (nil
// validator, stub executor); regression.NewGate and queen.NewCoordinator
// take them as parameters, so a different validator or executor is swapped
// in by changing the two fields set below.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		blueprints: blueprint.NewManager(logger, blueprintStoreFor),
		locks:      lock.NewManager(),
		gate:       regression.NewGate(nil),
		executor:   llm.NewStubExecutor(),
		registry:   prometheus.NewRegistry(),
		treeStoreFor: func(projectPath string) (*persistence.Store, error) {
			return persistence.NewStore(filepath.Join(projectPath, ".tasktree"))
		},
	}
}

func blueprintStoreFor(projectPath string) (*persistence.Store, error) {
	return persistence.NewStore(filepath.Join(projectPath, ".blueprint"))
}

// CreateBlueprint authors a fresh draft blueprint rooted at the
// configured project path.
func (a *App) CreateBlueprint(name, description string) (*model.Blueprint, error) {
	return a.blueprints.Create(name, description, a.cfg.Repo.Path)
}

// AddModule appends a module to a draft blueprint.
func (a *App) AddModule(bp *model.Blueprint, name, rootPath string, responsibilities, dependencies []string) error {
	return a.blueprints.AddModule(bp, &model.Module{
		Name:             name,
		RootPath:         rootPath,
		Responsibilities: responsibilities,
		Dependencies:     dependencies,
	})
}

// AddProcess appends a business process to a draft blueprint.
func (a *App) AddProcess(bp *model.Blueprint, name string, steps []string) error {
	return a.blueprints.AddProcess(bp, &model.BusinessProcess{Name: name, Steps: steps})
}

// SubmitAndApprove runs a blueprint through review straight to approved,
// the common case for a CLI operator who already trusts their own draft.
func (a *App) SubmitAndApprove(bp *model.Blueprint, approver string) error {
	if _, err := a.blueprints.SubmitForReview(bp); err != nil {
		return fmt.Errorf("submit for review: %w", err)
	}
	if err := a.blueprints.Approve(bp, approver); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// GetBlueprint loads a blueprint by id from the configured project.
func (a *App) GetBlueprint(blueprintID string) (*model.Blueprint, error) {
	return a.blueprints.Get(a.cfg.Repo.Path, blueprintID)
}

// defaultAcceptanceTestGenerator produces one acceptance test per leaf
// task, named after the task, when no smarter collaborator is wired in.
// Real test generation from the blueprint's business processes is an
// external-model concern kept out of this module's scope.
func defaultAcceptanceTestGenerator(bp *model.Blueprint, mod *model.Module, task *model.TaskNode) ([]*model.AcceptanceTest, error) {
	return []*model.AcceptanceTest{{
		ID:   task.ID + "-acceptance",
		Name: fmt.Sprintf("%s satisfies %s", task.Name, mod.Name),
	}}, nil
}

// RunResult is what a completed (or interrupted) run reports back to the
// CLI layer.
type RunResult struct {
	Tree     *model.TaskTree
	Workers  []model.WorkerAgent
	Finished bool
}

// Run binds a queen coordinator to blueprintID, drives its main loop until
// no task is pending or running or until ctx is cancelled, and persists the
// final task tree so `timeline`/`rollback` can inspect it in a later
// invocation. A test_failed task with retries left is not re-run once
// nothing else is pending or running. When every task passed, one last
// tick records the coordinator's "completion" checkpoint.
func (a *App) Run(ctx context.Context, blueprintID string) (*RunResult, error) {
	qc := a.cfg.Queen.ApplyTo(queen.DefaultConfig())
	qc.ProjectRoot = a.cfg.Repo.Path

	coordinator := queen.NewCoordinator(qc, a.blueprints, a.locks, a.gate, a.executor, a.registry, a.logger)
	if err := coordinator.InitializeQueen(ctx, blueprintID, defaultAcceptanceTestGenerator); err != nil {
		return nil, fmt.Errorf("initialize queen: %w", err)
	}

	if err := coordinator.StartMainLoop(ctx); err != nil {
		return nil, fmt.Errorf("start main loop: %w", err)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	finished := false
loop:
	for {
		select {
		case <-ctx.Done():
			_ = coordinator.StopMainLoop()
			break loop
		case <-ticker.C:
			tree := coordinator.Tree()
			if tree.Stats.Pending+tree.Stats.Running == 0 {
				_ = coordinator.StopMainLoop()
				finished = true
				break loop
			}
		}
	}
	_ = coordinator.Wait()

	if stats := coordinator.Tree().Stats; finished && stats.Total > 0 && stats.Passed == stats.Total {
		// The polling loop above can stop before the coordinator's own tick
		// sees every task passed; one more tick finalizes the run.
		_ = coordinator.Tick(ctx)
	}

	tree := coordinator.Tree()
	if err := a.saveTree(tree); err != nil {
		a.logger.Warn("failed to persist task tree", "error", err)
	}

	return &RunResult{Tree: tree, Workers: coordinator.Workers(), Finished: finished}, nil
}

func (a *App) saveTree(tree *model.TaskTree) error {
	store, err := a.treeStoreFor(a.cfg.Repo.Path)
	if err != nil {
		return err
	}
	return store.Save(tree.BlueprintID, tree)
}

// LoadTreeManager loads the persisted task tree for blueprintID and wraps
// it in a tasktree.Manager so timeline/rollback can reuse the package's
// own checkpoint logic instead of reimplementing it in the CLI layer.
func (a *App) LoadTreeManager(blueprintID string) (*tasktree.Manager, error) {
	store, err := a.treeStoreFor(a.cfg.Repo.Path)
	if err != nil {
		return nil, err
	}
	var tree model.TaskTree
	if err := store.Load(blueprintID, &tree); err != nil {
		return nil, fmt.Errorf("load task tree for blueprint %s: %w", blueprintID, err)
	}
	return tasktree.NewManager(&tree, defaultAcceptanceTestGenerator), nil
}

// SaveTreeManager persists a tasktree.Manager's current tree back to
// disk, used after a rollback mutates it in place.
func (a *App) SaveTreeManager(m *tasktree.Manager) error {
	return a.saveTree(m.Tree())
}
