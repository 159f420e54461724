package queen_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/blueprint"
	"github.com/c360studio/taskqueen/llm"
	"github.com/c360studio/taskqueen/lock"
	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/persistence"
	"github.com/c360studio/taskqueen/queen"
	"github.com/c360studio/taskqueen/regression"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func oneTestPerLeaf(bp *model.Blueprint, mod *model.Module, task *model.TaskNode) ([]*model.AcceptanceTest, error) {
	return []*model.AcceptanceTest{{
		ID:   task.ID + "-at1",
		Name: task.Name + " works",
	}}, nil
}

// newTestSetup builds a Coordinator wired against a fresh project
// directory and an approved blueprint with the given module names, each
// contributing exactly one leaf task. Returns the coordinator, the
// project root, and the leaf task IDs in module order.
func newTestSetup(t *testing.T, moduleNames []string, executor llm.PhaseExecutor) (*queen.Coordinator, string, []string) {
	t.Helper()
	projectRoot := t.TempDir()

	blueprintStoreDir := filepath.Join(projectRoot, ".blueprint")
	bpManager := blueprint.NewManager(testLogger(), func(path string) (*persistence.Store, error) {
		return persistence.NewStore(blueprintStoreDir)
	})

	bp, err := bpManager.Create("sample", "a sample blueprint", projectRoot)
	require.NoError(t, err)
	require.NoError(t, bpManager.AddProcess(bp, &model.BusinessProcess{Name: "onboarding", Steps: []string{"sign up"}}))
	for _, name := range moduleNames {
		require.NoError(t, bpManager.AddModule(bp, &model.Module{Name: name, RootPath: name}))
	}
	_, err = bpManager.SubmitForReview(bp)
	require.NoError(t, err)
	require.NoError(t, bpManager.Approve(bp, "reviewer"))

	cfg := queen.DefaultConfig()
	cfg.ProjectRoot = projectRoot
	cfg.MaxConcurrentWorkers = len(moduleNames)

	coordinator := queen.NewCoordinator(
		cfg,
		bpManager,
		lock.NewManager(),
		regression.NewGate(nil),
		executor,
		nil,
		testLogger(),
	)

	require.NoError(t, coordinator.InitializeQueen(context.Background(), bp.ID, oneTestPerLeaf))

	tree := coordinator.Tree()
	var leafIDs []string
	model.WalkNodes(tree.Root, func(n *model.TaskNode) {
		if len(n.Children) == 0 {
			leafIDs = append(leafIDs, n.ID)
		}
	})
	require.Len(t, leafIDs, len(moduleNames))
	return coordinator, projectRoot, leafIDs
}

func runToCompletion(t *testing.T, c *queen.Coordinator, maxTicks int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxTicks; i++ {
		require.NoError(t, c.Tick(ctx))
		require.NoError(t, c.Wait())
		stats := c.Tree().Stats
		if stats.Pending+stats.Running == 0 {
			return
		}
	}
	t.Fatalf("did not converge within %d ticks, stats=%+v", maxTicks, c.Tree().Stats)
}

func TestSingleTaskPassesOnFirstGreenAttempt(t *testing.T) {
	coordinator, projectRoot, leafIDs := newTestSetup(t, []string{"alpha"}, llm.NewStubExecutor())

	runToCompletion(t, coordinator, 5)

	stats := coordinator.Tree().Stats
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 0, stats.Failed)

	data, err := os.ReadFile(filepath.Join(projectRoot, leafIDs[0]+".go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "package generated")
}

func TestGreenPhaseFailsTwiceThenPasses(t *testing.T) {
	executor := llm.NewStubExecutor()
	coordinator, _, leafIDs := newTestSetup(t, []string{"alpha"}, executor)
	executor.FailGreenNTimes(leafIDs[0], 2)

	runToCompletion(t, coordinator, 10)

	stats := coordinator.Tree().Stats
	assert.Equal(t, 1, stats.Passed)
	decisions := coordinator.Agent().Decisions
	require.Len(t, decisions, 1, "a clean retry-to-green run records only its assignment, no retry/escalate decisions")
	assert.Equal(t, model.DecisionAssign, decisions[0].Type)
}

func TestStepCeilingEscalatesFailedTask(t *testing.T) {
	executor := llm.NewStubExecutor()
	coordinator, _, leafIDs := newTestSetup(t, []string{"alpha"}, executor)
	executor.AlwaysFailGreen(leafIDs[0])

	runToCompletion(t, coordinator, 10)

	stats := coordinator.Tree().Stats
	assert.Equal(t, 0, stats.Passed)
	assert.Equal(t, 1, stats.Failed)

	decisions := coordinator.Agent().Decisions
	require.NotEmpty(t, decisions)
	assert.Equal(t, model.DecisionEscalate, decisions[len(decisions)-1].Type)
}

func TestRollbackEmitsEventAndRecordsDecision(t *testing.T) {
	coordinator, _, leafIDs := newTestSetup(t, []string{"alpha"}, llm.NewStubExecutor())

	cp := coordinator.CreateGlobalCheckpoint("before run", "")
	runToCompletion(t, coordinator, 5)
	require.Equal(t, 1, coordinator.Tree().Stats.Passed)

	require.NoError(t, coordinator.Rollback(cp.ID))

	decisions := coordinator.Agent().Decisions
	require.NotEmpty(t, decisions)
	assert.Equal(t, model.DecisionRollback, decisions[len(decisions)-1].Type)

	// The rollback event comes first, then the queen:decision event that
	// recording the rollback decision emits.
	timeline := coordinator.Timeline()
	require.GreaterOrEqual(t, len(timeline), 2)
	assert.Equal(t, model.EventCheckpointRollback, timeline[len(timeline)-2].Type)
	assert.Equal(t, model.EventQueenDecision, timeline[len(timeline)-1].Type)

	stats := coordinator.Tree().Stats
	assert.Equal(t, 0, stats.Passed, "rollback restores the pre-run tree")

	require.Len(t, leafIDs, 1)
}

func TestTwoTasksWithDisjointFilesRunConcurrently(t *testing.T) {
	coordinator, projectRoot, leafIDs := newTestSetup(t, []string{"alpha", "beta"}, llm.NewStubExecutor())

	runToCompletion(t, coordinator, 10)

	stats := coordinator.Tree().Stats
	assert.Equal(t, 2, stats.Passed)
	require.Len(t, leafIDs, 2)

	for _, id := range leafIDs {
		_, err := os.Stat(filepath.Join(projectRoot, id+".go"))
		assert.NoError(t, err)
	}
}

func TestInitializeQueenRejectsUnapprovedBlueprint(t *testing.T) {
	projectRoot := t.TempDir()
	blueprintStoreDir := filepath.Join(projectRoot, ".blueprint")
	bpManager := blueprint.NewManager(testLogger(), func(path string) (*persistence.Store, error) {
		return persistence.NewStore(blueprintStoreDir)
	})
	bp, err := bpManager.Create("unreviewed", "", projectRoot)
	require.NoError(t, err)

	cfg := queen.DefaultConfig()
	cfg.ProjectRoot = projectRoot
	coordinator := queen.NewCoordinator(cfg, bpManager, lock.NewManager(), regression.NewGate(nil), llm.NewStubExecutor(), nil, testLogger())

	err = coordinator.InitializeQueen(context.Background(), bp.ID, oneTestPerLeaf)
	require.Error(t, err)
}
