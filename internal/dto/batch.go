package dto

import (
	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// BuildScheduleRequest scopes one schedule build.
type BuildScheduleRequest struct {
	TermID        string   `json:"term_id" validate:"required"`
	SectionIDs    []string `json:"section_ids,omitempty"`
	Strategy      string   `json:"strategy,omitempty" validate:"omitempty,oneof=random pattern"`
	ClearExisting bool     `json:"clear_existing,omitempty"`
}

// BuildSummary aggregates the outcome of one schedule build.
type BuildSummary struct {
	TermID             string             `json:"term_id"`
	Offerings          int                `json:"offerings"`
	Scheduled          int                `json:"scheduled"`
	Skipped            int                `json:"skipped"`
	Failed             int                `json:"failed"`
	FallbackProfessors int                `json:"fallback_professors"`
	SlotsCreated       int                `json:"slots_created"`
	WorkloadHours      map[string]float64 `json:"workload_hours"`
	Events             []models.Event     `json:"events"`
}

// FreshmanQueueRequest scopes one FCFS sectioning run.
type FreshmanQueueRequest struct {
	TermID    string `json:"term_id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
}

// ResectionRequest scopes one affinity-based resectioning run for
// returning students.
type ResectionRequest struct {
	TermID    string `json:"term_id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	YearLevel int    `json:"year_level" validate:"required,min=2,max=5"`
}

// SectioningSummary aggregates the outcome of a sectioning run.
type SectioningSummary struct {
	TermID     string         `json:"term_id"`
	Candidates int            `json:"candidates"`
	Assigned   int            `json:"assigned"`
	Unassigned int            `json:"unassigned"`
	Events     []models.Event `json:"events"`
}

// RebalanceRequest scopes one rebalancing pass.
type RebalanceRequest struct {
	TermID string `json:"term_id" validate:"required"`
}

// RebalanceSummary aggregates the outcome of a rebalancing pass.
type RebalanceSummary struct {
	TermID      string         `json:"term_id"`
	Scanned     int            `json:"scanned"`
	Underfilled int            `json:"underfilled"`
	Dissolved   int            `json:"dissolved"`
	Events      []models.Event `json:"events"`
}

// CurriculumValidationSummary reports prerequisite graph checks.
type CurriculumValidationSummary struct {
	Subjects int            `json:"subjects"`
	Cycles   int            `json:"cycles"`
	Events   []models.Event `json:"events"`
}
