package regression

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/model"
)

func runInDir(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runInDir(t, dir, "git", "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.go"), []byte("package x\n"), 0o644))
	runInDir(t, dir, "git", "add", "tracked.go")
	runInDir(t, dir, "git", "commit", "-q", "-m", "initial")
	return dir
}

func TestCaptureBaselineAndDiffDetectsChanges(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	baseline, err := CaptureBaseline(ctx, dir)
	require.NoError(t, err)
	require.True(t, baseline.IsGitRepo)
	require.NotEmpty(t, baseline.HeadSHA)
	assert.True(t, baseline.Tracked["tracked.go"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.go"), []byte("package x\n\nvar Y = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new_file.go"), []byte("package x\n"), 0o644))

	changes, err := baseline.Diff(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tracked.go"}, changes.Modified)
	assert.Equal(t, []string{"new_file.go"}, changes.Added)
	assert.Empty(t, changes.Deleted)
}

func TestCaptureBaselineNonGitFallsBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	baseline, err := CaptureBaseline(ctx, dir)
	require.NoError(t, err)
	assert.False(t, baseline.IsGitRepo)

	artifacts := []*model.CodeArtifact{
		{FilePath: "a.go", ChangeType: model.ChangeCreate},
		{FilePath: "b.go", ChangeType: model.ChangeModify},
		{FilePath: "c.go", ChangeType: model.ChangeDelete},
	}
	changes, err := baseline.Diff(ctx, artifacts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, changes.Added)
	assert.Equal(t, []string{"b.go"}, changes.Modified)
	assert.Equal(t, []string{"c.go"}, changes.Deleted)
}

func TestBuildSubmissionAndDefaultValidateScope(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	baseline, err := CaptureBaseline(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.go"), []byte("package x\n\nvar Y = 1\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other", "unrelated.go"), []byte("package other\n"), 0o644))

	scope := &model.RegressionScope{MustIncludePatterns: []string{"*.go"}, MustExcludePatterns: []string{"other/**"}}

	submission, err := BuildSubmission(ctx, baseline, "worker-1", "task-1", "build A", nil, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", submission.WorkerID)
	assert.Contains(t, submission.Changes.Modified, "tracked.go")
	assert.Contains(t, submission.Changes.Added, "other/unrelated.go")

	gate := NewGate(nil)
	result, err := gate.Evaluate(*submission)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.Len(t, result.Reasons, 1)
	assert.Contains(t, result.Reasons[0], "other/unrelated.go")
}

func TestGateWithInjectedValidator(t *testing.T) {
	called := false
	gate := NewGate(func(s WorkerSubmission) (GateResult, error) {
		called = true
		return GateResult{Passed: true}, nil
	})

	result, err := gate.Evaluate(WorkerSubmission{WorkerID: "w", TaskID: "t"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, result.Passed)
}

func TestDefaultValidateNilScopePasses(t *testing.T) {
	result := DefaultValidate(WorkerSubmission{Changes: Changes{Added: []string{"anything.go"}}})
	assert.True(t, result.Passed)
	assert.Empty(t, result.Reasons)
}
