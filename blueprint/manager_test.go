package blueprint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/persistence"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	return NewManager(nil, func(projectPath string) (*persistence.Store, error) {
		return persistence.NewStore(filepath.Join(root, ".blueprint"))
	})
}

func seedModuleAndProcess(t *testing.T, m *Manager, bp *model.Blueprint) {
	t.Helper()
	require.NoError(t, m.AddModule(bp, &model.Module{Name: "core", Type: model.ModuleBackend}))
	require.NoError(t, m.AddProcess(bp, &model.BusinessProcess{Name: "checkout", Steps: []string{"add to cart", "pay"}}))
}

func TestCreateThenInUse(t *testing.T) {
	m := newTestManager(t)
	bp, err := m.Create("Demo", "a demo project", "/proj")
	require.NoError(t, err)
	assert.Equal(t, model.BlueprintDraft, bp.Status)
	assert.Equal(t, "1.0.0", bp.Version)

	// Creating again while draft resets content instead of erroring.
	seedModuleAndProcess(t, m, bp)
	reset, err := m.Create("Demo v2", "desc", "/proj")
	require.NoError(t, err)
	assert.Equal(t, bp.ID, reset.ID)
	assert.Empty(t, reset.Modules)

	// Move past draft; a second create now fails with BlueprintInUse.
	seedModuleAndProcess(t, m, reset)
	_, err = m.SubmitForReview(reset)
	require.NoError(t, err)

	_, err = m.Create("Demo v3", "desc", "/proj")
	require.Error(t, err)
	kind, ok := model.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrBlueprintInUse, kind)
}

func TestFullLifecycle(t *testing.T) {
	m := newTestManager(t)
	bp, err := m.Create("Demo", "a demo project", "/proj")
	require.NoError(t, err)
	seedModuleAndProcess(t, m, bp)

	_, err = m.SubmitForReview(bp)
	require.NoError(t, err)
	require.NoError(t, m.Approve(bp, "alice"))
	assert.Equal(t, model.BlueprintApproved, bp.Status)
	assert.Equal(t, "alice", bp.ApprovedBy)

	require.NoError(t, m.StartExecution(bp, "tree-1"))
	assert.Equal(t, model.BlueprintExecuting, bp.Status)

	require.NoError(t, m.Pause(bp))
	require.NoError(t, m.Resume(bp))

	require.NoError(t, m.ModifyDuringExecution(bp, "scope change"))
	assert.Equal(t, model.BlueprintModified, bp.Status)
	assert.Equal(t, "1.0.1", bp.Version)

	// Re-approve the modified blueprint path isn't part of this lifecycle;
	// simulate resuming execution directly to exercise Complete.
	bp.Status = model.BlueprintExecuting
	require.NoError(t, m.Complete(bp))
	assert.Equal(t, model.BlueprintCompleted, bp.Status)

	// A brand new blueprint after completion major-bumps the version.
	next, err := m.Create("Demo", "desc", "/proj")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", next.Version)
}

func TestValidateErrorsAndWarnings(t *testing.T) {
	bp := &model.Blueprint{
		Modules: []*model.Module{
			{ID: "a", Name: "A", Dependencies: []string{"b"}},
			{ID: "b", Name: "B", Dependencies: []string{"a"}},
			{ID: "c", Name: "C", Dependencies: []string{"missing"}},
		},
	}
	result := Validate(bp)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "blueprint name is required")
	assert.Contains(t, result.Errors, "blueprint description is required")
	assert.Contains(t, result.Errors, "at least one business process is required")

	found := false
	for _, w := range result.Errors {
		if w == "module C depends on non-existent module missing" {
			found = true
		}
	}
	assert.True(t, found)
	require.NotEmpty(t, result.Warnings)
}

func TestInvalidTransitions(t *testing.T) {
	m := newTestManager(t)
	bp, err := m.Create("Demo", "desc", "/proj")
	require.NoError(t, err)

	err = m.Approve(bp, "alice")
	require.Error(t, err)
	kind, _ := model.KindOf(err)
	assert.Equal(t, model.ErrInvalidTransition, kind)
}
