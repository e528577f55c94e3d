package models

import "time"

// EnrollmentStatus is the lifecycle of a subject enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled EnrollmentStatus = "ENROLLED"
	EnrollmentStatusPassed   EnrollmentStatus = "PASSED"
	EnrollmentStatusDropped  EnrollmentStatus = "DROPPED"
)

// Student is a learner with an optional home section. HomeSectionID is null
// at admission and set by the sectioning engine.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	ProgramID     string    `db:"program_id" json:"program_id"`
	YearLevel     int       `db:"year_level" json:"year_level"`
	HomeSectionID *string   `db:"home_section_id" json:"home_section_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// FreshmanCandidate pairs a student with the enrollment timestamp the FCFS
// queue orders by.
type FreshmanCandidate struct {
	Student
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// SubjectEnrollment records a student taking one offering in a term.
type SubjectEnrollment struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	SectionSubjectID string           `db:"section_subject_id" json:"section_subject_id"`
	SectionID        string           `db:"section_id" json:"section_id"`
	TermID           string           `db:"term_id" json:"term_id"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// SharedHistoryPair is one symmetric cell of the affinity matrix: how many
// distinct (subject, section) pairs two students shared in recent terms.
type SharedHistoryPair struct {
	StudentA string `db:"student_a" json:"student_a"`
	StudentB string `db:"student_b" json:"student_b"`
	Shared   int    `db:"shared" json:"shared"`
}
