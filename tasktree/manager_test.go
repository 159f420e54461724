package tasktree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/model"
)

func testBlueprint() *model.Blueprint {
	return &model.Blueprint{
		ID:   "bp-1",
		Name: "Demo",
		Modules: []*model.Module{
			{ID: "mod-a", Name: "A", Responsibilities: []string{"build A"}},
			{ID: "mod-b", Name: "B", Responsibilities: []string{"build B"}, Dependencies: []string{"mod-a"}},
		},
	}
}

func stubGenerator(bp *model.Blueprint, mod *model.Module, task *model.TaskNode) ([]*model.AcceptanceTest, error) {
	return []*model.AcceptanceTest{{ID: task.ID + "-at1", Name: "acceptance for " + task.Name}}, nil
}

func TestGenerateFromBlueprintDependencyWiring(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)

	tree := mgr.Tree()
	assert.Equal(t, 2, tree.Stats.Total)
	assert.Equal(t, 1, tree.Stats.Pending) // B depends on A, not ready yet

	executable := mgr.GetExecutableTasks()
	require.Len(t, executable, 1)
	assert.Equal(t, "build A", executable[0].Name)
	require.Len(t, executable[0].AcceptanceTests, 1)
}

func TestUpdateStatusUnblocksDependents(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)

	executable := mgr.GetExecutableTasks()
	require.Len(t, executable, 1)
	taskA := executable[0].ID

	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskTestWriting))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskTesting))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskCoding))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskRefactoring))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskPassed))

	executable = mgr.GetExecutableTasks()
	require.Len(t, executable, 1)
	assert.Equal(t, "build B", executable[0].Name)

	canStart, blockers := mgr.CanStartTask(executable[0].ID)
	assert.True(t, canStart)
	assert.Empty(t, blockers)
}

func TestIllegalTransitionRejected(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)
	executable := mgr.GetExecutableTasks()
	taskA := executable[0].ID

	err = mgr.UpdateTaskStatus(taskA, model.TaskPassed)
	require.Error(t, err)
	kind, ok := model.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrInvalidTransition, kind)
}

func TestAppendCodeArtifactsDedups(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)
	taskA := mgr.GetExecutableTasks()[0].ID

	artifact := &model.CodeArtifact{Type: "file", FilePath: "a.go", ChangeType: model.ChangeCreate, Content: "x"}
	require.NoError(t, mgr.AppendCodeArtifacts(taskA, []*model.CodeArtifact{artifact, artifact}))

	node, ok := mgr.Node(taskA)
	require.True(t, ok)
	assert.Len(t, node.CodeArtifacts, 1)
}

func TestCheckpointAndRollback(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)
	taskA := mgr.GetExecutableTasks()[0].ID

	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskTestWriting))
	cp := mgr.CreateGlobalCheckpoint("before coding", "")

	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskTesting))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskCoding))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskRefactoring))
	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskPassed))

	require.NoError(t, mgr.Rollback(cp.ID))

	node, ok := mgr.Node(taskA)
	require.True(t, ok)
	assert.Equal(t, model.TaskTestWriting, node.Status)

	// The checkpoint log itself survives rollback (append-only).
	view := mgr.GetTimelineView()
	assert.Len(t, view.Checkpoints, 1)

	timeline := mgr.Timeline()
	require.NotEmpty(t, timeline)
	last := timeline[len(timeline)-1]
	assert.Equal(t, model.EventCheckpointRollback, last.Type)
	assert.Contains(t, last.Description, cp.ID)
}

func TestPreviewRollbackDoesNotMutate(t *testing.T) {
	mgr, err := GenerateFromBlueprint(testBlueprint(), stubGenerator)
	require.NoError(t, err)
	taskA := mgr.GetExecutableTasks()[0].ID
	cp := mgr.CreateGlobalCheckpoint("snap", "")

	require.NoError(t, mgr.UpdateTaskStatus(taskA, model.TaskTestWriting))

	before := mgr.Tree()
	impact, err := mgr.PreviewRollback(cp.ID)
	require.NoError(t, err)
	assert.Contains(t, impact.ImpactedTasks, taskA)

	after := mgr.Tree()
	assert.Equal(t, before.Root.Children[0].Children[0].Status, after.Root.Children[0].Children[0].Status)
}
