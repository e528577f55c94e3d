package models

import "time"

// Term models an academic term. SemesterNumber follows the catalog
// convention: 1 = first semester, 2 = second, 3 = summer.
type Term struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	AcademicYear   string    `db:"academic_year" json:"academic_year"`
	SemesterNumber int       `db:"semester_number" json:"semester_number"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
