package models

import "time"

// ProfessorRole values recognised by assignment validation.
const RoleProfessor = "PROFESSOR"

// Professor is a teaching staff member with a qualification set.
type Professor struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      string    `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfessorAssignment links a professor to a section-subject offering. It is
// the third source consulted when deciding whether a professor is busy at a
// given day and time.
type ProfessorAssignment struct {
	ID               string    `db:"id" json:"id"`
	ProfessorID      string    `db:"professor_id" json:"professor_id"`
	SectionSubjectID string    `db:"section_subject_id" json:"section_subject_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
