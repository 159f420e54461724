// Package sandbox implements the per-worker isolated working copy: a
// private directory under <baseDir>/.sandbox/<workerId>-<taskId>/ that a
// worker reads and writes inside, synced back to the shared workspace
// through the file-lock manager.
package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/c360studio/taskqueen/lock"
	"github.com/c360studio/taskqueen/model"
)

const metadataFileName = ".sandbox-metadata.json"

// Metadata is the JSON marker written to a sandbox directory on setup.
type Metadata struct {
	WorkerID  string    `json:"workerId"`
	TaskID    string    `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
	BaseDir   string     `json:"baseDir"`
}

// SyncResult is the outcome of syncing a sandbox's modified files back to
// the shared workspace.
type SyncResult struct {
	Success   []string
	Failed    []string
	Conflicts []string
}

// Sandbox is a single worker's isolated working copy for one task.
type Sandbox struct {
	WorkerID string
	TaskID   string

	baseDir string
	dir     string
	locks   *lock.Manager
	logger  *slog.Logger
	ttl     time.Duration

	// copiedHash records the base-dir content hash observed at copy time,
	// keyed by repo-relative path, used to detect sync-back conflicts.
	copiedHash map[string]string
}

// New constructs a Sandbox for workerID/taskID rooted under baseDir. Call
// Setup before use.
func New(baseDir, workerID, taskID string, locks *lock.Manager, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{
		WorkerID:   workerID,
		TaskID:     taskID,
		baseDir:    baseDir,
		dir:        filepath.Join(baseDir, ".sandbox", workerID+"-"+taskID),
		locks:      locks,
		logger:     logger,
		ttl:        lock.DefaultTTL,
		copiedHash: make(map[string]string),
	}
}

// Dir returns the sandbox's private working directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Setup creates the sandbox directory and writes its metadata marker.
func (s *Sandbox) Setup() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create sandbox dir: %w", err)
	}
	meta := Metadata{WorkerID: s.WorkerID, TaskID: s.TaskID, CreatedAt: time.Now(), BaseDir: s.baseDir}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sandbox metadata: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, metadataFileName), data, 0o644); err != nil {
		return fmt.Errorf("write sandbox metadata: %w", err)
	}
	return nil
}

// CopyToSandbox copies each repo-relative path from the base dir into the
// sandbox, preserving relative structure. A file lock is acquired for
// each path first; if acquisition fails for any path, the whole copy
// fails and any locks it already acquired this call are released.
func (s *Sandbox) CopyToSandbox(paths []string) error {
	var acquired []string
	rollback := func() {
		for _, p := range acquired {
			s.locks.ReleaseLock(p, s.WorkerID)
		}
	}

	for _, rel := range paths {
		if !s.locks.AcquireLock(rel, s.WorkerID, s.ttl) {
			rollback()
			return model.NewError(model.ErrLockUnavailable, fmt.Sprintf("cannot lock %s for sandbox copy", rel))
		}
		acquired = append(acquired, rel)
	}

	for _, rel := range paths {
		src := filepath.Join(s.baseDir, rel)
		dst := filepath.Join(s.dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			rollback()
			return fmt.Errorf("prepare sandbox path %s: %w", rel, err)
		}
		hash, err := copyFileWithHash(src, dst)
		if err != nil {
			rollback()
			return fmt.Errorf("copy %s into sandbox: %w", rel, err)
		}
		s.copiedHash[rel] = hash
	}
	return nil
}

func copyFileWithHash(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	h := sha256.New()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SyncBack replaces each base-dir file with its sandbox copy, for every
// path previously copied in. A conflict is recorded (and the base file
// left untouched) when the base-dir content hash no longer matches the
// hash observed at copy time. Locks acquired by CopyToSandbox are
// released once sync-back completes, regardless of outcome.
func (s *Sandbox) SyncBack() (*SyncResult, error) {
	result := &SyncResult{}
	defer s.locks.ReleaseAll(s.WorkerID)

	for rel, originalHash := range s.copiedHash {
		base := filepath.Join(s.baseDir, rel)
		currentHash, err := hashFile(base)
		if err != nil {
			result.Failed = append(result.Failed, rel)
			continue
		}
		if currentHash != originalHash {
			result.Conflicts = append(result.Conflicts, rel)
			continue
		}

		sandboxPath := filepath.Join(s.dir, rel)
		data, err := os.ReadFile(sandboxPath)
		if err != nil {
			result.Failed = append(result.Failed, rel)
			continue
		}
		if err := renameio.WriteFile(base, data, 0o644); err != nil {
			result.Failed = append(result.Failed, rel)
			continue
		}
		result.Success = append(result.Success, rel)
	}
	return result, nil
}

// Cleanup releases any still-held locks and removes the sandbox
// directory, tolerating a directory that is already gone.
func (s *Sandbox) Cleanup() error {
	s.locks.ReleaseAll(s.WorkerID)
	if err := os.RemoveAll(s.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sandbox dir %s: %w", s.dir, err)
	}
	return nil
}
