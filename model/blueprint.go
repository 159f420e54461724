// Package model defines the core data model shared by every TaskQueen
// component: Blueprint, Module, TaskTree, TaskNode, Checkpoint, and the
// agents that operate on them.
package model

import "time"

// Blueprint is the approved project spec a task tree is derived from.
type Blueprint struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      BlueprintStatus `json:"status"`
	ProjectPath string          `json:"projectPath"`

	Modules           []*Module          `json:"modules"`
	BusinessProcesses []*BusinessProcess `json:"businessProcesses"`
	NFRs              []*NFR             `json:"nfrs"`
	ChangeHistory     []ChangeRecord     `json:"changeHistory"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy string     `json:"approvedBy,omitempty"`
	TaskTreeID string     `json:"taskTreeId,omitempty"`
}

// Module is a declared unit of the blueprint's architecture.
type Module struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Type              ModuleType `json:"type"`
	ArchitectureLayer string     `json:"architectureLayer,omitempty"`
	RootPath          string     `json:"rootPath"`
	TechStack         []string   `json:"techStack,omitempty"`
	Responsibilities  []string   `json:"responsibilities,omitempty"`
	Dependencies      []string   `json:"dependencies,omitempty"`
	Interfaces        []string   `json:"interfaces,omitempty"`
}

// BusinessProcess documents a user-facing workflow the blueprint must
// support. It is documentation-level and surfaced to the test generator.
type BusinessProcess struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	Actors      []string `json:"actors,omitempty"`
}

// NFR is a non-functional requirement surfaced to the test generator.
type NFR struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Priority NFRPriority `json:"priority"`
	Metric   string      `json:"metric,omitempty"`
}

// ChangeRecord is one append-only entry in a Blueprint's ChangeHistory.
type ChangeRecord struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"timestamp"`
	Type             string         `json:"type"`
	Description      string         `json:"description"`
	Author           string         `json:"author,omitempty"`
	PreviousVersion  string         `json:"previousVersion,omitempty"`
	Changes          map[string]any `json:"changes,omitempty"`
}

// ValidationResult is returned by Blueprint validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
