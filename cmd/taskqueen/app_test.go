package main

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testApp(t *testing.T) (*App, string) {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Repo.Path = tmpDir
	cfg.Queen.MaxConcurrentWorkers = 2
	logger := testLogger()
	return NewApp(cfg, logger), tmpDir
}

func TestAppCreateApproveRun(t *testing.T) {
	app, _ := testApp(t)

	bp, err := app.CreateBlueprint("sample", "a sample blueprint")
	require.NoError(t, err)
	require.NoError(t, app.AddProcess(bp, "onboarding", []string{"sign up"}))
	require.NoError(t, app.AddModule(bp, "alpha", "alpha", nil, nil))
	require.NoError(t, app.SubmitAndApprove(bp, "reviewer"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := app.Run(ctx, bp.ID)
	require.NoError(t, err)
	assert.True(t, result.Finished)
	assert.Equal(t, 1, result.Tree.Stats.Passed)
}

func TestAppRunPersistsTreeForTimelineAndRollback(t *testing.T) {
	app, _ := testApp(t)

	bp, err := app.CreateBlueprint("sample", "a sample blueprint")
	require.NoError(t, err)
	require.NoError(t, app.AddProcess(bp, "onboarding", []string{"sign up"}))
	require.NoError(t, app.AddModule(bp, "alpha", "alpha", nil, nil))
	require.NoError(t, app.SubmitAndApprove(bp, "reviewer"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = app.Run(ctx, bp.ID)
	require.NoError(t, err)

	treeManager, err := app.LoadTreeManager(bp.ID)
	require.NoError(t, err)

	ascii := treeManager.GenerateTimelineAscii()
	assert.Contains(t, ascii, "completion")

	view := treeManager.GetTimelineView()
	require.NotEmpty(t, view.Checkpoints)
	completionID := view.Checkpoints[len(view.Checkpoints)-1].ID

	impact, err := treeManager.PreviewRollback(completionID)
	require.NoError(t, err)
	assert.NotNil(t, impact)

	require.NoError(t, treeManager.Rollback(completionID))
	require.NoError(t, app.SaveTreeManager(treeManager))
}
