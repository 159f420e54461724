package model

import "time"

// TaskTree is the execution graph derived from a Blueprint.
type TaskTree struct {
	ID          string      `json:"id"`
	BlueprintID string      `json:"blueprintId"`
	Root        *TaskNode   `json:"root"`
	Stats       TreeStats   `json:"stats"`
	Checkpoints []*Checkpoint `json:"checkpoints,omitempty"`
}

// TreeStats is the aggregate task-tree progress summary.
type TreeStats struct {
	Total      int     `json:"total"`
	Pending    int     `json:"pending"`
	Running    int     `json:"running"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	ProgressPct float64 `json:"progressPercent"`
}

// RegressionScope is the optional per-task hint consumed by the regression
// gate and the external validator.
type RegressionScope struct {
	Paths               []string `json:"paths,omitempty"`
	MustIncludePatterns []string `json:"mustIncludePatterns,omitempty"`
	MustExcludePatterns []string `json:"mustExcludePatterns,omitempty"`
}

// TaskNode is one node in the TaskTree.
type TaskNode struct {
	ID          string      `json:"id"`
	ParentID    string      `json:"parentId,omitempty"`
	Children    []*TaskNode `json:"children,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`

	BlueprintModuleID string   `json:"blueprintModuleId,omitempty"`
	ProcessIDs        []string `json:"processIds,omitempty"`

	Status       TaskStatus `json:"status"`
	Priority     int        `json:"priority"`
	Dependencies []string   `json:"dependencies,omitempty"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	TestSpec        *TestSpec        `json:"testSpec,omitempty"`
	AcceptanceTests []*AcceptanceTest `json:"acceptanceTests,omitempty"`
	CodeArtifacts   []*CodeArtifact  `json:"codeArtifacts,omitempty"`
	Checkpoints     []*Checkpoint    `json:"checkpoints,omitempty"`

	RegressionScope *RegressionScope `json:"regressionScope,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AcceptanceCriterion is one checked criterion of an AcceptanceTest.
type AcceptanceCriterion struct {
	CheckType      string `json:"checkType"`
	Description    string `json:"description"`
	ExpectedResult string `json:"expectedResult"`
}

// AcceptanceTest is generated at task-creation time and treated as
// immutable by workers.
type AcceptanceTest struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	TestFile    string                `json:"testFile"`
	TestCommand string                `json:"testCommand"`
	Criteria    []AcceptanceCriterion `json:"criteria"`
	TestCode    string                `json:"testCode,omitempty"`
}

// TestSpec is a worker-private unit test.
type TestSpec struct {
	TestCode         string   `json:"testCode"`
	FilePath         string   `json:"filePath"`
	Command          string   `json:"command"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
}

// CodeArtifact is one file created, modified, or deleted by a worker.
type CodeArtifact struct {
	Type       string     `json:"type"`
	FilePath   string     `json:"filePath"`
	Content    string     `json:"content,omitempty"`
	ChangeType ChangeType `json:"changeType"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Signature returns the (type, changeType, filePath, content) dedup key
// used by artifact-append invariants.
func (a *CodeArtifact) Signature() string {
	return a.Type + "|" + string(a.ChangeType) + "|" + a.FilePath + "|" + a.Content
}

// Checkpoint is an immutable snapshot of a TaskTree or TaskNode subtree.
type Checkpoint struct {
	ID          string    `json:"id"`
	TaskTreeID  string    `json:"taskTreeId"`
	TaskID      string    `json:"taskId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	CanRestore  bool      `json:"canRestore"`

	// Snapshot holds the deep-cloned tree (when TaskID is empty) or the
	// deep-cloned subtree rooted at TaskID.
	Snapshot *TaskNode `json:"snapshot"`
}

// TimelineEvent is one entry in the orchestrator's event timeline.
type TimelineEvent struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Type        TimelineEventType `json:"type"`
	Description string            `json:"description"`
	Payload     any               `json:"payload,omitempty"`
}
