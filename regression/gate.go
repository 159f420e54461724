// Package regression implements the pre-commit regression gate: building
// a WorkerSubmission from a git baseline diff (or a CodeArtifact
// fallback), running an injected validator, and reporting pass/fail with
// reasons.
package regression

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360studio/taskqueen/model"
)

// Changes is the repo-relative set of added/modified/deleted paths,
// normalized to forward slashes.
type Changes struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// WorkerSubmission is what the queen hands to the regression gate before
// a task may be marked passed.
type WorkerSubmission struct {
	WorkerID        string                 `json:"workerId"`
	TaskID          string                 `json:"taskId"`
	TaskName        string                 `json:"taskName"`
	Changes         Changes                `json:"changes"`
	NewTestFiles    []string               `json:"newTestFiles,omitempty"`
	RegressionScope *model.RegressionScope `json:"regressionScope,omitempty"`
}

// Baseline captures the git state of a repo at task assignment time: HEAD
// SHA plus the sets of tracked and untracked paths known at that moment.
type Baseline struct {
	RepoRoot  string
	IsGitRepo bool
	HeadSHA   string
	Tracked   map[string]bool
	Untracked map[string]bool
}

// CaptureBaseline records repoRoot's current git state. If repoRoot is
// not a git repository, IsGitRepo is false and later diffing falls back
// to the union of recorded CodeArtifact paths.
func CaptureBaseline(ctx context.Context, repoRoot string) (*Baseline, error) {
	b := &Baseline{RepoRoot: repoRoot, Tracked: map[string]bool{}, Untracked: map[string]bool{}}

	if !isGitRepo(ctx, repoRoot) {
		return b, nil
	}
	b.IsGitRepo = true

	sha, err := runGit(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("capture baseline HEAD: %w", err)
	}
	b.HeadSHA = strings.TrimSpace(sha)

	tracked, err := runGit(ctx, repoRoot, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("capture tracked files: %w", err)
	}
	for _, line := range splitLines(tracked) {
		b.Tracked[normalizePath(line)] = true
	}

	untracked, err := runGit(ctx, repoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("capture untracked files: %w", err)
	}
	for _, line := range splitLines(untracked) {
		b.Untracked[normalizePath(line)] = true
	}
	return b, nil
}

func isGitRepo(ctx context.Context, repoRoot string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = repoRoot
	return cmd.Run() == nil
}

func runGit(ctx context.Context, repoRoot string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func normalizePath(p string) string {
	return filepath.ToSlash(strings.TrimSpace(p))
}

// Diff computes added/modified/deleted paths between the baseline and the
// current working tree. If the baseline is not a git repo, it falls back
// to the union of fallbackArtifacts, classified by their ChangeType.
func (b *Baseline) Diff(ctx context.Context, fallbackArtifacts []*model.CodeArtifact) (*Changes, error) {
	if !b.IsGitRepo {
		return diffFromArtifacts(fallbackArtifacts), nil
	}

	changes := &Changes{}

	diffOut, err := runGit(ctx, b.RepoRoot, "diff", "--name-status", b.HeadSHA)
	if err != nil {
		return nil, fmt.Errorf("diff against baseline: %w", err)
	}
	for _, line := range splitLines(diffOut) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		status, path := fields[0], normalizePath(fields[len(fields)-1])
		switch status[0] {
		case 'A':
			changes.Added = append(changes.Added, path)
		case 'M':
			changes.Modified = append(changes.Modified, path)
		case 'D':
			changes.Deleted = append(changes.Deleted, path)
		}
	}

	untrackedNow, err := runGit(ctx, b.RepoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("list current untracked files: %w", err)
	}
	for _, line := range splitLines(untrackedNow) {
		path := normalizePath(line)
		if !b.Untracked[path] {
			changes.Added = append(changes.Added, path)
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	return changes, nil
}

func diffFromArtifacts(artifacts []*model.CodeArtifact) *Changes {
	changes := &Changes{}
	for _, a := range artifacts {
		path := normalizePath(a.FilePath)
		switch a.ChangeType {
		case model.ChangeCreate:
			changes.Added = append(changes.Added, path)
		case model.ChangeModify:
			changes.Modified = append(changes.Modified, path)
		case model.ChangeDelete:
			changes.Deleted = append(changes.Deleted, path)
		}
	}
	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	return changes
}

// BuildSubmission assembles a WorkerSubmission from a captured baseline.
func BuildSubmission(ctx context.Context, baseline *Baseline, workerID, taskID, taskName string, newTestFiles []string, scope *model.RegressionScope, fallbackArtifacts []*model.CodeArtifact) (*WorkerSubmission, error) {
	changes, err := baseline.Diff(ctx, fallbackArtifacts)
	if err != nil {
		return nil, err
	}
	return &WorkerSubmission{
		WorkerID:        workerID,
		TaskID:          taskID,
		TaskName:        taskName,
		Changes:         *changes,
		NewTestFiles:    newTestFiles,
		RegressionScope: scope,
	}, nil
}

// GateResult is the outcome of evaluating a WorkerSubmission.
type GateResult struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Validator is the injected callback that decides whether a submission
// may be accepted. This module's CLI passes none, so its gate runs only
// the default scope check; unit tests inject a stub (spec §9).
type Validator func(WorkerSubmission) (GateResult, error)

// Gate evaluates WorkerSubmissions, optionally delegating to an injected
// Validator and otherwise falling back to scope-only matching.
type Gate struct {
	validator Validator
}

// NewGate constructs a Gate. A nil validator means "use the default
// scope-matching check only."
func NewGate(validator Validator) *Gate {
	return &Gate{validator: validator}
}

// Evaluate runs the injected validator if one was configured, otherwise
// the default scope-matching validator.
func (g *Gate) Evaluate(submission WorkerSubmission) (GateResult, error) {
	if g.validator != nil {
		return g.validator(submission)
	}
	return DefaultValidate(submission), nil
}

// DefaultValidate rejects any changed path that falls outside the
// submission's RegressionScope; it approves everything when no scope is
// set.
func DefaultValidate(submission WorkerSubmission) GateResult {
	if submission.RegressionScope == nil {
		return GateResult{Passed: true}
	}
	var reasons []string
	all := append(append(append([]string{}, submission.Changes.Added...), submission.Changes.Modified...), submission.Changes.Deleted...)
	for _, path := range all {
		if !Matches(submission.RegressionScope, path) {
			reasons = append(reasons, fmt.Sprintf("%s is outside the declared regression scope", path))
		}
	}
	return GateResult{Passed: len(reasons) == 0, Reasons: reasons}
}
