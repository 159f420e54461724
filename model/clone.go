package model

// CloneTree returns a structurally equal, identity-distinct deep copy of t.
// Mutating the clone must never mutate the original, per the task-tree
// round-trip law in spec §8.
func CloneTree(t *TaskTree) *TaskTree {
	if t == nil {
		return nil
	}
	clone := &TaskTree{
		ID:          t.ID,
		BlueprintID: t.BlueprintID,
		Root:        CloneNode(t.Root),
		Stats:       t.Stats,
	}
	if t.Checkpoints != nil {
		clone.Checkpoints = make([]*Checkpoint, len(t.Checkpoints))
		for i, c := range t.Checkpoints {
			clone.Checkpoints[i] = CloneCheckpoint(c)
		}
	}
	return clone
}

// CloneNode deep-clones a TaskNode subtree.
func CloneNode(n *TaskNode) *TaskNode {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Children = nil
	clone.Dependencies = append([]string(nil), n.Dependencies...)
	clone.ProcessIDs = append([]string(nil), n.ProcessIDs...)

	if n.Children != nil {
		clone.Children = make([]*TaskNode, len(n.Children))
		for i, c := range n.Children {
			clone.Children[i] = CloneNode(c)
		}
	}
	if n.TestSpec != nil {
		ts := *n.TestSpec
		ts.AcceptanceCriteria = append([]string(nil), n.TestSpec.AcceptanceCriteria...)
		clone.TestSpec = &ts
	}
	if n.AcceptanceTests != nil {
		clone.AcceptanceTests = make([]*AcceptanceTest, len(n.AcceptanceTests))
		for i, at := range n.AcceptanceTests {
			cp := *at
			cp.Criteria = append([]AcceptanceCriterion(nil), at.Criteria...)
			clone.AcceptanceTests[i] = &cp
		}
	}
	if n.CodeArtifacts != nil {
		clone.CodeArtifacts = make([]*CodeArtifact, len(n.CodeArtifacts))
		for i, a := range n.CodeArtifacts {
			cp := *a
			clone.CodeArtifacts[i] = &cp
		}
	}
	if n.Checkpoints != nil {
		clone.Checkpoints = make([]*Checkpoint, len(n.Checkpoints))
		for i, c := range n.Checkpoints {
			clone.Checkpoints[i] = CloneCheckpoint(c)
		}
	}
	if n.RegressionScope != nil {
		rs := *n.RegressionScope
		rs.Paths = append([]string(nil), n.RegressionScope.Paths...)
		rs.MustIncludePatterns = append([]string(nil), n.RegressionScope.MustIncludePatterns...)
		rs.MustExcludePatterns = append([]string(nil), n.RegressionScope.MustExcludePatterns...)
		clone.RegressionScope = &rs
	}
	return &clone
}

// CloneCheckpoint deep-clones a Checkpoint, including its snapshot subtree.
func CloneCheckpoint(c *Checkpoint) *Checkpoint {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Snapshot = CloneNode(c.Snapshot)
	return &clone
}

// FindNode returns the node with the given id within the subtree rooted at
// root, or nil if absent.
func FindNode(root *TaskNode, id string) *TaskNode {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := FindNode(child, id); found != nil {
			return found
		}
	}
	return nil
}

// WalkNodes calls fn for every node in the subtree rooted at root,
// including root itself, in pre-order.
func WalkNodes(root *TaskNode, fn func(*TaskNode)) {
	if root == nil {
		return
	}
	fn(root)
	for _, child := range root.Children {
		WalkNodes(child, fn)
	}
}

// ReplaceNode replaces the node with the given id inside the subtree
// rooted at root with replacement, preserving the replacement's own
// parent/children as given. Returns true if a replacement occurred. Only
// descendants of root are searched: root itself is never replaced, so a
// match on root.ID alone returns false.
func ReplaceNode(root *TaskNode, id string, replacement *TaskNode) bool {
	if root == nil {
		return false
	}
	for i, child := range root.Children {
		if child.ID == id {
			root.Children[i] = replacement
			return true
		}
		if ReplaceNode(child, id, replacement) {
			return true
		}
	}
	return false
}
