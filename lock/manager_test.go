package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRejectsOtherOwner(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireLock("a.go", "worker-1", time.Minute))
	assert.False(t, m.AcquireLock("a.go", "worker-2", time.Minute))

	locker, ok := m.GetLocker("a.go")
	require.True(t, ok)
	assert.Equal(t, "worker-1", locker)
}

func TestReentrantRenewal(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireLock("a.go", "worker-1", time.Minute))
	assert.True(t, m.AcquireLock("a.go", "worker-1", time.Minute))
}

func TestReleaseLockNoopForWrongOwner(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireLock("a.go", "worker-1", time.Minute))
	m.ReleaseLock("a.go", "worker-2")
	assert.True(t, m.IsLocked("a.go"))
	m.ReleaseLock("a.go", "worker-1")
	assert.False(t, m.IsLocked("a.go"))
}

func TestStaleLockSweep(t *testing.T) {
	m := NewManager()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }

	require.True(t, m.AcquireLock("a.go", "worker-1", time.Millisecond))
	fixed = fixed.Add(time.Second)

	assert.False(t, m.IsLocked("a.go"))
	// Expired locks don't block a new owner.
	assert.True(t, m.AcquireLock("a.go", "worker-2", time.Minute))

	require.True(t, m.AcquireLock("b.go", "worker-3", time.Millisecond))
	fixed = fixed.Add(time.Second)
	removed := m.CleanupAllStaleLocks()
	assert.Equal(t, 1, removed) // only b.go was stale; a.go was renewed by worker-2
}

func TestReleaseAll(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireLock("a.go", "w1", time.Minute))
	require.True(t, m.AcquireLock("b.go", "w1", time.Minute))
	require.True(t, m.AcquireLock("c.go", "w2", time.Minute))

	m.ReleaseAll("w1")
	assert.False(t, m.IsLocked("a.go"))
	assert.False(t, m.IsLocked("b.go"))
	assert.True(t, m.IsLocked("c.go"))
}
