package tasktree

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/taskqueen/model"
)

// CreateGlobalCheckpoint deep-clones the whole tree and appends the
// snapshot to the tree's checkpoint log.
func (m *Manager) CreateGlobalCheckpoint(name, description string) *model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := &model.Checkpoint{
		ID:          uuid.NewString(),
		TaskTreeID:  m.tree.ID,
		Name:        name,
		Description: description,
		Timestamp:   time.Now(),
		CanRestore:  true,
		Snapshot:    model.CloneNode(m.tree.Root),
	}
	m.tree.Checkpoints = append(m.tree.Checkpoints, cp)
	return model.CloneCheckpoint(cp)
}

// CreateTaskCheckpoint deep-clones the subtree rooted at taskID and
// stores the snapshot on that node's own checkpoint log.
func (m *Manager) CreateTaskCheckpoint(taskID, name, description string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := model.FindNode(m.tree.Root, taskID)
	if node == nil {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("task %s not found", taskID))
	}
	cp := &model.Checkpoint{
		ID:          uuid.NewString(),
		TaskTreeID:  m.tree.ID,
		TaskID:      taskID,
		Name:        name,
		Description: description,
		Timestamp:   time.Now(),
		CanRestore:  true,
		Snapshot:    model.CloneNode(node),
	}
	node.Checkpoints = append(node.Checkpoints, cp)
	return model.CloneCheckpoint(cp), nil
}

func (m *Manager) findCheckpointLocked(checkpointID string) (*model.Checkpoint, error) {
	for _, cp := range m.tree.Checkpoints {
		if cp.ID == checkpointID {
			return cp, nil
		}
	}
	var found *model.Checkpoint
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if found != nil {
			return
		}
		for _, cp := range n.Checkpoints {
			if cp.ID == checkpointID {
				found = cp
			}
		}
	})
	if found == nil {
		return nil, model.NewError(model.ErrCheckpointMissing, fmt.Sprintf("checkpoint %s not found", checkpointID))
	}
	return found, nil
}

// Rollback replaces the current tree (for a global checkpoint) or the
// subtree (for a per-task checkpoint) with the checkpoint's snapshot.
// Existing checkpoints are preserved: the checkpoint log is append-only.
func (m *Manager) Rollback(checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.findCheckpointLocked(checkpointID)
	if err != nil {
		return err
	}
	if !cp.CanRestore {
		return model.NewError(model.ErrCheckpointMissing, fmt.Sprintf("checkpoint %s cannot be restored", checkpointID))
	}

	restoredChecks := m.tree.Checkpoints
	nodeChecks := make(map[string][]*model.Checkpoint)
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if len(n.Checkpoints) > 0 {
			nodeChecks[n.ID] = n.Checkpoints
		}
	})

	if cp.TaskID == "" {
		m.tree.Root = model.CloneNode(cp.Snapshot)
	} else {
		if !model.ReplaceNode(m.tree.Root, cp.TaskID, model.CloneNode(cp.Snapshot)) {
			return model.NewError(model.ErrCheckpointMissing, fmt.Sprintf("task %s no longer present in tree", cp.TaskID))
		}
	}
	m.tree.Checkpoints = restoredChecks
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		if checks, ok := nodeChecks[n.ID]; ok {
			n.Checkpoints = checks
		}
	})
	m.recomputeStats()

	scope := "global"
	if cp.TaskID != "" {
		scope = cp.TaskID
	}
	m.emitLocked(model.EventCheckpointRollback, fmt.Sprintf("rolled back to checkpoint %s (%s)", cp.ID, scope), cp)
	return nil
}

// RollbackImpact is the result of previewing a rollback without mutating
// state.
type RollbackImpact struct {
	FromCheckpoint *model.Checkpoint
	ImpactedTasks  []string
	LostArtifacts  []string
}

// PreviewRollback computes the impact of rolling back to checkpointID
// without mutating any state.
func (m *Manager) PreviewRollback(checkpointID string) (*RollbackImpact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.findCheckpointLocked(checkpointID)
	if err != nil {
		return nil, err
	}

	var currentSubtree *model.TaskNode
	if cp.TaskID == "" {
		currentSubtree = m.tree.Root
	} else {
		currentSubtree = model.FindNode(m.tree.Root, cp.TaskID)
	}

	impacted := map[string]bool{}
	lost := map[string]bool{}

	snapshotByID := map[string]*model.TaskNode{}
	model.WalkNodes(cp.Snapshot, func(n *model.TaskNode) { snapshotByID[n.ID] = n })

	if currentSubtree != nil {
		model.WalkNodes(currentSubtree, func(n *model.TaskNode) {
			snap, existed := snapshotByID[n.ID]
			if !existed || snap.Status != n.Status {
				impacted[n.ID] = true
			}
			if existed {
				existingArtifacts := map[string]bool{}
				for _, a := range snap.CodeArtifacts {
					existingArtifacts[a.Signature()] = true
				}
				for _, a := range n.CodeArtifacts {
					if !existingArtifacts[a.Signature()] {
						lost[n.ID+":"+a.FilePath] = true
					}
				}
			} else {
				for _, a := range n.CodeArtifacts {
					lost[n.ID+":"+a.FilePath] = true
				}
			}
		})
	}

	impact := &RollbackImpact{FromCheckpoint: model.CloneCheckpoint(cp)}
	for id := range impacted {
		impact.ImpactedTasks = append(impact.ImpactedTasks, id)
	}
	for id := range lost {
		impact.LostArtifacts = append(impact.LostArtifacts, id)
	}
	sort.Strings(impact.ImpactedTasks)
	sort.Strings(impact.LostArtifacts)
	return impact, nil
}

// TimelineView is the checkpoint history plus its branch structure.
type TimelineView struct {
	Checkpoints []*model.Checkpoint
	// Children maps a checkpoint id to the ids of checkpoints created
	// after it for the same task (or, for global checkpoints, the whole
	// tree) — a simple append-order "branch" relationship since rollback
	// never deletes history.
	Children map[string][]string
}

// GetTimelineView returns every checkpoint (global and per-task) plus its
// append-order parent/child structure.
func (m *Manager) GetTimelineView() *TimelineView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &TimelineView{Children: make(map[string][]string)}
	all := append([]*model.Checkpoint(nil), m.tree.Checkpoints...)
	model.WalkNodes(m.tree.Root, func(n *model.TaskNode) {
		all = append(all, n.Checkpoints...)
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	view.Checkpoints = all

	byScope := map[string][]*model.Checkpoint{}
	for _, cp := range all {
		byScope[cp.TaskID] = append(byScope[cp.TaskID], cp)
	}
	for _, scoped := range byScope {
		for i := 1; i < len(scoped); i++ {
			view.Children[scoped[i-1].ID] = append(view.Children[scoped[i-1].ID], scoped[i].ID)
		}
	}
	return view
}

// GenerateTimelineAscii renders the checkpoint timeline as a simple
// terminal-friendly tree.
func (m *Manager) GenerateTimelineAscii() string {
	view := m.GetTimelineView()
	var b strings.Builder
	for i, cp := range view.Checkpoints {
		prefix := "├─ "
		if i == len(view.Checkpoints)-1 {
			prefix = "└─ "
		}
		scope := "global"
		if cp.TaskID != "" {
			scope = "task:" + cp.TaskID
		}
		fmt.Fprintf(&b, "%s%s [%s] %s (%s)\n", prefix, cp.Timestamp.Format(time.RFC3339), scope, cp.Name, cp.ID)
	}
	if b.Len() == 0 {
		return "(no checkpoints)\n"
	}
	return b.String()
}
