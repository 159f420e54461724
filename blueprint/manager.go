// Package blueprint implements the Blueprint Manager: authoring,
// validation, approval, and lifecycle transitions for a project Blueprint.
package blueprint

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/persistence"
)

// Manager owns the set of Blueprints for all projects it is pointed at.
// Persistence mirrors spec §6: one JSON file per blueprint under
// <project>/.blueprint/<id>.json, via an injected per-project store
// factory so tests can use a tmpdir without touching a real project tree.
type Manager struct {
	logger     *slog.Logger
	storeForProject func(projectPath string) (*persistence.Store, error)
}

// NewManager constructs a blueprint Manager. storeForProject returns (or
// creates) the persistence store backing blueprints for the given project
// path; production wiring points it at <projectPath>/.blueprint.
func NewManager(logger *slog.Logger, storeForProject func(string) (*persistence.Store, error)) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, storeForProject: storeForProject}
}

func (m *Manager) store(projectPath string) (*persistence.Store, error) {
	return m.storeForProject(projectPath)
}

// findActiveForProject returns the non-completed, non-rejected blueprint
// for projectPath, if any.
func (m *Manager) findActiveForProject(store *persistence.Store, projectPath string) (*model.Blueprint, error) {
	ids, err := store.List()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		var bp model.Blueprint
		if err := store.Load(id, &bp); err != nil {
			continue
		}
		if bp.ProjectPath != projectPath {
			continue
		}
		if bp.Status != model.BlueprintCompleted && bp.Status != model.BlueprintRejected {
			return &bp, nil
		}
	}
	return nil, nil
}

func (m *Manager) latestCompletedForProject(store *persistence.Store, projectPath string) (*model.Blueprint, error) {
	ids, err := store.List()
	if err != nil {
		return nil, err
	}
	var latest *model.Blueprint
	for _, id := range ids {
		var bp model.Blueprint
		if err := store.Load(id, &bp); err != nil {
			continue
		}
		if bp.ProjectPath != projectPath || bp.Status != model.BlueprintCompleted {
			continue
		}
		if latest == nil || bp.UpdatedAt.After(latest.UpdatedAt) {
			cp := bp
			latest = &cp
		}
	}
	return latest, nil
}

// Create authors a new Blueprint for projectPath. If the project already
// has a draft blueprint, its content is reset and returned. If the
// project's most recent blueprint is completed, a new version is created
// with a major-bumped version. Otherwise, if a non-completed blueprint
// already exists, BlueprintInUse is returned. This is the single
// authoritative creation path (spec §9 open question (a)).
func (m *Manager) Create(name, description, projectPath string) (*model.Blueprint, error) {
	store, err := m.store(projectPath)
	if err != nil {
		return nil, err
	}

	active, err := m.findActiveForProject(store, projectPath)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.Status == model.BlueprintDraft {
			active.Name = name
			active.Description = description
			active.Modules = nil
			active.BusinessProcesses = nil
			active.NFRs = nil
			active.UpdatedAt = time.Now()
			active.ChangeHistory = append(active.ChangeHistory, changeRecord("reset", "draft content reset"))
			if err := store.Save(active.ID, active); err != nil {
				return nil, err
			}
			return active, nil
		}
		return nil, model.NewError(model.ErrBlueprintInUse, fmt.Sprintf("project %s already has an active blueprint %s in status %s", projectPath, active.ID, active.Status))
	}

	version := "1.0.0"
	if completed, err := m.latestCompletedForProject(store, projectPath); err == nil && completed != nil {
		version = bumpMajor(completed.Version)
	}

	now := time.Now()
	bp := &model.Blueprint{
		ID:          uuid.NewString(),
		Version:     version,
		Name:        name,
		Description: description,
		Status:      model.BlueprintDraft,
		ProjectPath: projectPath,
		CreatedAt:   now,
		UpdatedAt:   now,
		ChangeHistory: []model.ChangeRecord{changeRecord("create", "blueprint created")},
	}
	if err := store.Save(bp.ID, bp); err != nil {
		return nil, err
	}
	m.logger.Info("blueprint created", "id", bp.ID, "project", projectPath, "version", bp.Version)
	return bp, nil
}

func changeRecord(typ, desc string) model.ChangeRecord {
	return model.ChangeRecord{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Type:        typ,
		Description: desc,
	}
}

func bumpMajor(version string) string {
	parts := strings.SplitN(version, ".", 2)
	major := 1
	fmt.Sscanf(parts[0], "%d", &major)
	return fmt.Sprintf("%d.0.0", major+1)
}

func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	var patch int
	fmt.Sscanf(parts[2], "%d", &patch)
	parts[2] = fmt.Sprintf("%d", patch+1)
	return strings.Join(parts, ".")
}

// Get loads a single blueprint by id.
func (m *Manager) Get(projectPath, id string) (*model.Blueprint, error) {
	store, err := m.store(projectPath)
	if err != nil {
		return nil, err
	}
	var bp model.Blueprint
	if err := store.Load(id, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// List returns every blueprint persisted for projectPath.
func (m *Manager) List(projectPath string) ([]*model.Blueprint, error) {
	store, err := m.store(projectPath)
	if err != nil {
		return nil, err
	}
	ids, err := store.List()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Blueprint, 0, len(ids))
	for _, id := range ids {
		var bp model.Blueprint
		if err := store.Load(id, &bp); err != nil {
			continue
		}
		if bp.ProjectPath == projectPath {
			out = append(out, &bp)
		}
	}
	return out, nil
}

func (m *Manager) save(bp *model.Blueprint) error {
	store, err := m.store(bp.ProjectPath)
	if err != nil {
		return err
	}
	bp.UpdatedAt = time.Now()
	return store.Save(bp.ID, bp)
}

// AddModule appends a Module and records a ChangeRecord.
func (m *Manager) AddModule(bp *model.Blueprint, mod *model.Module) error {
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	bp.Modules = append(bp.Modules, mod)
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("add_module", "module "+mod.Name+" added"))
	return m.save(bp)
}

// AddProcess appends a BusinessProcess and records a ChangeRecord.
func (m *Manager) AddProcess(bp *model.Blueprint, proc *model.BusinessProcess) error {
	if proc.ID == "" {
		proc.ID = uuid.NewString()
	}
	bp.BusinessProcesses = append(bp.BusinessProcesses, proc)
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("add_process", "process "+proc.Name+" added"))
	return m.save(bp)
}

// AddNFR appends an NFR and records a ChangeRecord.
func (m *Manager) AddNFR(bp *model.Blueprint, nfr *model.NFR) error {
	if nfr.ID == "" {
		nfr.ID = uuid.NewString()
	}
	bp.NFRs = append(bp.NFRs, nfr)
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("add_nfr", "nfr "+nfr.Name+" added"))
	return m.save(bp)
}

// SubmitForReview validates the blueprint and, on success, transitions it
// from draft/modified to review.
func (m *Manager) SubmitForReview(bp *model.Blueprint) (*model.ValidationResult, error) {
	if bp.Status != model.BlueprintDraft && bp.Status != model.BlueprintModified {
		return nil, model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot submit for review from status %s", bp.Status))
	}
	result := Validate(bp)
	if !result.Valid {
		return result, model.NewError(model.ErrValidationFailed, strings.Join(result.Errors, "; "))
	}
	bp.Status = model.BlueprintReview
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("submit_for_review", "submitted for review"))
	return result, m.save(bp)
}

// Approve transitions a blueprint from review to approved.
func (m *Manager) Approve(bp *model.Blueprint, approver string) error {
	if bp.Status != model.BlueprintReview {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot approve from status %s", bp.Status))
	}
	now := time.Now()
	bp.Status = model.BlueprintApproved
	bp.ApprovedAt = &now
	bp.ApprovedBy = approver
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("approve", "approved by "+approver))
	return m.save(bp)
}

// Reject transitions a blueprint from review back to draft.
func (m *Manager) Reject(bp *model.Blueprint, reason string) error {
	if bp.Status != model.BlueprintReview {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot reject from status %s", bp.Status))
	}
	bp.Status = model.BlueprintDraft
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("reject", reason))
	return m.save(bp)
}

// StartExecution binds taskTreeID and transitions an approved blueprint
// to executing.
func (m *Manager) StartExecution(bp *model.Blueprint, taskTreeID string) error {
	if bp.Status != model.BlueprintApproved {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot start execution from status %s", bp.Status))
	}
	bp.Status = model.BlueprintExecuting
	bp.TaskTreeID = taskTreeID
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("start_execution", "execution started"))
	return m.save(bp)
}

// Pause transitions an executing blueprint to paused.
func (m *Manager) Pause(bp *model.Blueprint) error {
	if bp.Status != model.BlueprintExecuting {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot pause from status %s", bp.Status))
	}
	bp.Status = model.BlueprintPaused
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("pause", "execution paused"))
	return m.save(bp)
}

// Resume transitions a paused blueprint back to executing.
func (m *Manager) Resume(bp *model.Blueprint) error {
	if bp.Status != model.BlueprintPaused {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot resume from status %s", bp.Status))
	}
	bp.Status = model.BlueprintExecuting
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("resume", "execution resumed"))
	return m.save(bp)
}

// Complete transitions an executing or paused blueprint to completed.
func (m *Manager) Complete(bp *model.Blueprint) error {
	if bp.Status != model.BlueprintExecuting && bp.Status != model.BlueprintPaused {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot complete from status %s", bp.Status))
	}
	bp.Status = model.BlueprintCompleted
	bp.ChangeHistory = append(bp.ChangeHistory, changeRecord("complete", "execution completed"))
	return m.save(bp)
}

// ModifyDuringExecution bumps the patch version and transitions an
// executing blueprint to modified, recording what changed.
func (m *Manager) ModifyDuringExecution(bp *model.Blueprint, description string) error {
	if bp.Status != model.BlueprintExecuting {
		return model.NewError(model.ErrInvalidTransition, fmt.Sprintf("cannot modify from status %s", bp.Status))
	}
	previous := bp.Version
	bp.Version = bumpPatch(bp.Version)
	bp.Status = model.BlueprintModified
	bp.ChangeHistory = append(bp.ChangeHistory, model.ChangeRecord{
		ID: uuid.NewString(), Timestamp: time.Now(), Type: "modify_during_execution",
		Description: description, PreviousVersion: previous,
	})
	return m.save(bp)
}
