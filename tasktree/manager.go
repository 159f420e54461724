// Package tasktree implements the Task-Tree Manager: deriving an
// execution graph from a Blueprint, tracking task status, supplying
// executable tasks, and owning checkpoints and the event timeline.
package tasktree

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/taskqueen/model"
)

// AcceptanceTestGenerator produces the acceptance tests for a leaf task at
// creation time (spec §9 open question (b): generation happens here only,
// never as an assignment-time fallback). It is an external collaborator —
// the core never inspects task content to derive tests itself.
type AcceptanceTestGenerator func(bp *model.Blueprint, mod *model.Module, task *model.TaskNode) ([]*model.AcceptanceTest, error)

// Manager owns one TaskTree's nodes, checkpoints, and event timeline. A
// single mutex serializes all tree+timeline mutation, matching spec §5's
// guidance that the tree and timeline may be protected by one serializing
// mutex.
type Manager struct {
	mu       sync.Mutex
	tree     *model.TaskTree
	timeline []model.TimelineEvent
	genTests AcceptanceTestGenerator
}

// NewManager constructs a Manager around an existing tree (e.g. loaded
// from persistence). Use GenerateFromBlueprint to build a fresh tree.
func NewManager(tree *model.TaskTree, genTests AcceptanceTestGenerator) *Manager {
	return &Manager{tree: tree, genTests: genTests}
}

// Tree returns a deep-cloned snapshot of the current tree, safe for the
// caller to inspect without locking.
func (m *Manager) Tree() *model.TaskTree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneTree(m.tree)
}

// Timeline returns a copy of every emitted event, in emission order.
func (m *Manager) Timeline() []model.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TimelineEvent, len(m.timeline))
	copy(out, m.timeline)
	return out
}

// Emit appends a TimelineEvent and returns it.
func (m *Manager) Emit(typ model.TimelineEventType, description string, payload any) model.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitLocked(typ, description, payload)
}

func (m *Manager) emitLocked(typ model.TimelineEventType, description string, payload any) model.TimelineEvent {
	ev := model.TimelineEvent{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Type:        typ,
		Description: description,
		Payload:     payload,
	}
	m.timeline = append(m.timeline, ev)
	return ev
}

// GenerateFromBlueprint derives a fresh TaskTree from an approved
// Blueprint, per spec §4.2's algorithm.
func GenerateFromBlueprint(bp *model.Blueprint, genTests AcceptanceTestGenerator) (*Manager, error) {
	now := time.Now()
	root := &model.TaskNode{
		ID:        uuid.NewString(),
		Name:      bp.Name,
		Status:    model.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	leafByModule := make(map[string][]*model.TaskNode)

	for _, mod := range bp.Modules {
		moduleNode := &model.TaskNode{
			ID:                uuid.NewString(),
			ParentID:          root.ID,
			Name:              mod.Name,
			BlueprintModuleID: mod.ID,
			Status:            model.TaskPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		responsibilities := mod.Responsibilities
		if len(responsibilities) == 0 {
			responsibilities = []string{mod.Name}
		}
		for _, resp := range responsibilities {
			leaf := &model.TaskNode{
				ID:                uuid.NewString(),
				ParentID:          moduleNode.ID,
				Name:              resp,
				BlueprintModuleID: mod.ID,
				Status:            model.TaskPending,
				MaxRetries:        3,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			moduleNode.Children = append(moduleNode.Children, leaf)
			leafByModule[mod.ID] = append(leafByModule[mod.ID], leaf)
		}
		root.Children = append(root.Children, moduleNode)
	}

	// Translate module dependencies into task dependencies: every leaf of
	// module M depends on every leaf of each module in M.dependencies.
	for _, mod := range bp.Modules {
		for _, depModID := range mod.Dependencies {
			depLeaves := leafByModule[depModID]
			for _, leaf := range leafByModule[mod.ID] {
				for _, depLeaf := range depLeaves {
					leaf.Dependencies = append(leaf.Dependencies, depLeaf.ID)
				}
			}
		}
	}

	// Generate acceptance tests for every leaf before it becomes
	// executable.
	if genTests != nil {
		moduleByID := make(map[string]*model.Module, len(bp.Modules))
		for _, mod := range bp.Modules {
			moduleByID[mod.ID] = mod
		}
		for _, leaves := range leafByModule {
			for _, leaf := range leaves {
				tests, err := genTests(bp, moduleByID[leaf.BlueprintModuleID], leaf)
				if err != nil {
					return nil, fmt.Errorf("generate acceptance tests for task %s: %w", leaf.Name, err)
				}
				leaf.AcceptanceTests = tests
			}
		}
	}

	tree := &model.TaskTree{
		ID:          uuid.NewString(),
		BlueprintID: bp.ID,
		Root:        root,
	}

	mgr := &Manager{tree: tree, genTests: genTests}
	mgr.computeInitialStatuses()
	mgr.recomputeStats()
	return mgr, nil
}

// computeInitialStatuses sets every leaf with no unmet dependency to
// ready, and every other leaf to pending.
func (m *Manager) computeInitialStatuses() {
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if len(n.Children) > 0 {
			return
		}
		if len(n.Dependencies) == 0 {
			n.Status = model.TaskReady
		}
	})
}

// CanStartTask reports whether taskId may start, and which unmet
// dependencies block it otherwise.
func (m *Manager) CanStartTask(taskID string) (bool, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canStartLocked(taskID)
}

func (m *Manager) canStartLocked(taskID string) (bool, []string) {
	node := model.FindNode(m.tree.Root, taskID)
	if node == nil {
		return false, []string{"task not found"}
	}
	if node.Status != model.TaskReady {
		if node.Status == model.TaskTestFailed && node.RetryCount < node.MaxRetries {
			// retriable
		} else {
			return false, []string{fmt.Sprintf("task status is %s", node.Status)}
		}
	}
	var blockers []string
	for _, depID := range node.Dependencies {
		dep := model.FindNode(m.tree.Root, depID)
		if dep == nil || dep.Status != model.TaskPassed {
			blockers = append(blockers, depID)
		}
	}
	return len(blockers) == 0, blockers
}

// GetExecutableTasks returns every leaf task that is ready, or
// test_failed with retries remaining, with every dependency passed,
// ordered by priority (descending) then id.
func (m *Manager) GetExecutableTasks() []*model.TaskNode {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.TaskNode
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if len(n.Children) > 0 {
			return
		}
		if n.Status != model.TaskReady && !(n.Status == model.TaskTestFailed && n.RetryCount < n.MaxRetries) {
			return
		}
		ok, _ := m.canStartLocked(n.ID)
		if ok {
			out = append(out, model.CloneNode(n))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateTaskStatus validates and applies a status transition, updates
// aggregate stats, and unblocks any dependent tasks whose dependencies
// are now all passed.
func (m *Manager) UpdateTaskStatus(taskID string, newStatus model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := model.FindNode(m.tree.Root, taskID)
	if node == nil {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("task %s not found", taskID))
	}
	if err := validateTaskTransition(node.Status, newStatus); err != nil {
		return err
	}
	node.Status = newStatus
	node.UpdatedAt = time.Now()

	if newStatus.Terminal() || newStatus == model.TaskTestFailed || newStatus == model.TaskBlocked {
		m.unblockDependents()
	}
	m.recomputeStats()
	return nil
}

// validTransitions enumerates the legal TaskStatus state graph. pending
// and ready are entry points; passed and skipped are terminal.
var validTransitions = map[model.TaskStatus]map[model.TaskStatus]bool{
	model.TaskPending:     {model.TaskReady: true, model.TaskBlocked: true, model.TaskSkipped: true},
	model.TaskReady:       {model.TaskTestWriting: true, model.TaskBlocked: true, model.TaskSkipped: true},
	model.TaskTestWriting: {model.TaskTesting: true, model.TaskTestFailed: true},
	model.TaskTesting:     {model.TaskCoding: true, model.TaskTestFailed: true},
	model.TaskCoding:      {model.TaskTesting: true, model.TaskRefactoring: true, model.TaskTestFailed: true},
	model.TaskRefactoring: {model.TaskPassed: true, model.TaskTestFailed: true},
	model.TaskTestFailed:  {model.TaskReady: true, model.TaskTestWriting: true, model.TaskBlocked: true},
	model.TaskBlocked:     {model.TaskReady: true},
	model.TaskPassed:      {},
	model.TaskSkipped:     {},
}

func validateTaskTransition(from, to model.TaskStatus) error {
	if from == to {
		return nil
	}
	if allowed, ok := validTransitions[from]; ok && allowed[to] {
		return nil
	}
	return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("task status %s -> %s is not a legal transition", from, to))
}

// unblockDependents promotes every pending leaf whose dependencies are
// now all passed to ready.
func (m *Manager) unblockDependents() {
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if len(n.Children) > 0 || n.Status != model.TaskPending {
			return
		}
		allPassed := true
		for _, depID := range n.Dependencies {
			dep := model.FindNode(m.tree.Root, depID)
			if dep == nil || dep.Status != model.TaskPassed {
				allPassed = false
				break
			}
		}
		if allPassed {
			n.Status = model.TaskReady
			n.UpdatedAt = time.Now()
		}
	})
}

func (m *Manager) recomputeStats() {
	var stats model.TreeStats
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if len(n.Children) > 0 {
			return
		}
		stats.Total++
		switch n.Status {
		case model.TaskPassed:
			stats.Passed++
		case model.TaskTestFailed, model.TaskBlocked:
			stats.Failed++
		case model.TaskTestWriting, model.TaskTesting, model.TaskCoding, model.TaskRefactoring:
			stats.Running++
		case model.TaskPending, model.TaskReady:
			stats.Pending++
		}
	})
	if stats.Total > 0 {
		stats.ProgressPct = 100 * float64(stats.Passed) / float64(stats.Total)
	}
	m.tree.Stats = stats
}

// Stats returns the current aggregate progress stats.
func (m *Manager) Stats() model.TreeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Stats
}

// AllPassed reports whether every leaf task has status passed.
func (m *Manager) AllPassed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Stats.Total > 0 && m.tree.Stats.Passed == m.tree.Stats.Total
}

// AppendCodeArtifacts appends artifacts to taskID's node, deduplicating
// by (type, changeType, filePath, content) signature.
func (m *Manager) AppendCodeArtifacts(taskID string, artifacts []*model.CodeArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := model.FindNode(m.tree.Root, taskID)
	if node == nil {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("task %s not found", taskID))
	}
	seen := make(map[string]bool, len(node.CodeArtifacts))
	for _, a := range node.CodeArtifacts {
		seen[a.Signature()] = true
	}
	for _, a := range artifacts {
		sig := a.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		node.CodeArtifacts = append(node.CodeArtifacts, a)
	}
	node.UpdatedAt = time.Now()
	return nil
}

// Node returns a deep-cloned snapshot of a single node.
func (m *Manager) Node(taskID string) (*model.TaskNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := model.FindNode(m.tree.Root, taskID)
	if n == nil {
		return nil, false
	}
	return model.CloneNode(n), true
}

// RegressionScopeFor resolves the RegressionScope hint for taskID, if any.
func (m *Manager) RegressionScopeFor(taskID string) *model.RegressionScope {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := model.FindNode(m.tree.Root, taskID)
	if n == nil {
		return nil
	}
	return n.RegressionScope
}

// IncrementRetry bumps taskID's retryCount and returns the updated count
// plus whether retries remain.
func (m *Manager) IncrementRetry(taskID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := model.FindNode(m.tree.Root, taskID)
	if n == nil {
		return 0, false
	}
	n.RetryCount++
	return n.RetryCount, n.RetryCount < n.MaxRetries
}
