package sandbox

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// BoundaryViolation describes a write observed outside every currently
// active sandbox, i.e. a direct write to the shared workspace — forbidden
// by spec §5 ("all writes outside a worker's sandbox are forbidden").
type BoundaryViolation struct {
	Path string
	Op   string
}

// Watcher enforces the sandbox-boundary policy at the filesystem level:
// it watches the shared workspace root and reports any write whose path
// does not fall under an active sandbox directory. Only the root directory
// itself is watched (fsnotify watches are not recursive), so writes inside
// its subdirectories are not reported. The original spec
// states the boundary as a policy with no enforcement mechanism; this is
// that mechanism (SPEC_FULL.md §4.4).
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
	log  *slog.Logger

	mu       sync.Mutex
	active   map[string]bool // sandbox dirs currently open, absolute paths
	onViolation func(BoundaryViolation)

	done chan struct{}
}

// NewWatcher constructs a Watcher rooted at root. onViolation is called
// (from the watcher's own goroutine) for every detected boundary
// violation; it must not block.
func NewWatcher(root string, logger *slog.Logger, onViolation func(BoundaryViolation)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		root:        root,
		fsw:         fsw,
		log:         logger,
		active:      make(map[string]bool),
		onViolation: onViolation,
		done:        make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// MarkActive registers sandboxDir as currently open; writes under it are
// not reported as violations.
func (w *Watcher) MarkActive(sandboxDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active[filepath.Clean(sandboxDir)] = true
}

// MarkInactive unregisters sandboxDir, e.g. once its sandbox is cleaned
// up.
func (w *Watcher) MarkInactive(sandboxDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, filepath.Clean(sandboxDir))
}

func (w *Watcher) isWithinActiveSandbox(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.active {
		if strings.HasPrefix(path, dir+string(filepath.Separator)) || path == dir {
			return true
		}
	}
	return false
}

// isSandboxRoot reports whether path is the shared .sandbox directory or
// anything beneath it; writes there are never violations, whether or not
// the sandbox they fall in is marked active.
func isSandboxRoot(root, path string) bool {
	return path == filepath.Join(root, ".sandbox") || strings.HasPrefix(path, filepath.Join(root, ".sandbox")+string(filepath.Separator))
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if isSandboxRoot(w.root, path) {
				continue
			}
			if w.isWithinActiveSandbox(path) {
				continue
			}
			if w.onViolation != nil {
				w.onViolation(BoundaryViolation{Path: path, Op: event.Op.String()})
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("sandbox watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
