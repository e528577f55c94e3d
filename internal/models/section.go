package models

import "time"

// Section is a cohort of students sharing a fixed course load for a term.
// enrolled_count is never stored; capacity is re-checked on every assignment.
type Section struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	ProgramID       string    `db:"program_id" json:"program_id"`
	YearLevel       int       `db:"year_level" json:"year_level"`
	Capacity        int       `db:"capacity" json:"capacity"`
	TermID          string    `db:"term_id" json:"term_id"`
	CurriculumID    *string   `db:"curriculum_id" json:"curriculum_id,omitempty"`
	IsDissolved     bool      `db:"is_dissolved" json:"is_dissolved"`
	ParentSectionID *string   `db:"parent_section_id" json:"parent_section_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// SectionSubject is the offering of one subject to one section, unique per
// (section, subject) pair, optionally with a default professor.
type SectionSubject struct {
	ID          string    `db:"id" json:"id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	ProfessorID *string   `db:"professor_id" json:"professor_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SectionSubjectDetail enriches an offering with the fields the builder
// orders and schedules by.
type SectionSubjectDetail struct {
	SectionSubject
	SectionName  string `db:"section_name" json:"section_name"`
	SubjectCode  string `db:"subject_code" json:"subject_code"`
	SubjectUnits int    `db:"subject_units" json:"subject_units"`
	TermID       string `db:"term_id" json:"term_id"`
}
