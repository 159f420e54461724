package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/lock"
)

func writeBaseFile(t *testing.T, baseDir, rel, content string) {
	t.Helper()
	full := filepath.Join(baseDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestSetupCopySyncBackCleanup(t *testing.T) {
	baseDir := t.TempDir()
	writeBaseFile(t, baseDir, "a.go", "package a\n")

	locks := lock.NewManager()
	sb := New(baseDir, "worker-1", "task-1", locks, nil)

	require.NoError(t, sb.Setup())
	_, err := os.Stat(filepath.Join(sb.Dir(), metadataFileName))
	require.NoError(t, err)

	require.NoError(t, sb.CopyToSandbox([]string{"a.go"}))
	assert.True(t, locks.IsLocked("a.go"))

	// Edit inside the sandbox.
	sandboxFile := filepath.Join(sb.Dir(), "a.go")
	require.NoError(t, os.WriteFile(sandboxFile, []byte("package a\n\nvar X = 1\n"), 0o644))

	result, err := sb.SyncBack()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, result.Success)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Failed)
	assert.False(t, locks.IsLocked("a.go"))

	data, err := os.ReadFile(filepath.Join(baseDir, "a.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "var X = 1")

	require.NoError(t, sb.Cleanup())
	_, err = os.Stat(sb.Dir())
	assert.True(t, os.IsNotExist(err))

	// Cleanup tolerates being called again.
	require.NoError(t, sb.Cleanup())
}

func TestSyncBackConflictWhenBaseChangedConcurrently(t *testing.T) {
	baseDir := t.TempDir()
	writeBaseFile(t, baseDir, "shared.go", "v0\n")

	locks := lock.NewManager()
	sbA := New(baseDir, "worker-a", "task-a", locks, nil)
	require.NoError(t, sbA.Setup())
	require.NoError(t, sbA.CopyToSandbox([]string{"shared.go"}))

	// Simulate a second sandbox syncing first and changing the base file.
	writeBaseFile(t, baseDir, "shared.go", "changed-by-other\n")

	require.NoError(t, os.WriteFile(filepath.Join(sbA.Dir(), "shared.go"), []byte("worker-a edit\n"), 0o644))
	result, err := sbA.SyncBack()
	require.NoError(t, err)
	assert.Empty(t, result.Success)
	assert.Equal(t, []string{"shared.go"}, result.Conflicts)

	data, err := os.ReadFile(filepath.Join(baseDir, "shared.go"))
	require.NoError(t, err)
	assert.Equal(t, "changed-by-other\n", string(data))
}

func TestCopyToSandboxFailsWhenLockHeld(t *testing.T) {
	baseDir := t.TempDir()
	writeBaseFile(t, baseDir, "a.go", "x")

	locks := lock.NewManager()
	require.True(t, locks.AcquireLock("a.go", "other-worker", 0))

	sb := New(baseDir, "worker-1", "task-1", locks, nil)
	require.NoError(t, sb.Setup())

	err := sb.CopyToSandbox([]string{"a.go"})
	assert.Error(t, err)
}
