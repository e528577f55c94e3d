package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// EnrollmentRepository manages subject enrollments, the join between
// students and offerings that section occupancy is counted from.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CountDistinctEnrolledBySection returns, per section, the number of
// distinct students holding an ENROLLED enrollment in the term. Completed
// and dropped enrollments no longer occupy a seat. Counting distinct
// students rather than enrollment rows keeps a student enrolled in several
// offerings from inflating occupancy.
func (r *EnrollmentRepository) CountDistinctEnrolledBySection(ctx context.Context, termID string) (map[string]int, error) {
	const query = `SELECT section_id, COUNT(DISTINCT student_id) AS enrolled
FROM subject_enrollments
WHERE term_id = $1 AND status = 'ENROLLED'
GROUP BY section_id`
	rows := []struct {
		SectionID string `db:"section_id"`
		Enrolled  int    `db:"enrolled"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, termID); err != nil {
		return nil, fmt.Errorf("count enrolled by section: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.SectionID] = row.Enrolled
	}
	return counts, nil
}

// ListActiveStudentSections returns, per student, the sections they hold
// non-dropped enrollments in for the term.
func (r *EnrollmentRepository) ListActiveStudentSections(ctx context.Context, termID string) (map[string][]string, error) {
	const query = `SELECT DISTINCT student_id, section_id
FROM subject_enrollments
WHERE term_id = $1 AND status <> 'DROPPED'
ORDER BY student_id, section_id`
	rows := []struct {
		StudentID string `db:"student_id"`
		SectionID string `db:"section_id"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, termID); err != nil {
		return nil, fmt.Errorf("list student sections: %w", err)
	}
	sections := make(map[string][]string)
	for _, row := range rows {
		sections[row.StudentID] = append(sections[row.StudentID], row.SectionID)
	}
	return sections, nil
}

// CreateBatch inserts enrollments, defaulting IDs, status and timestamps.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, enrollments []models.SubjectEnrollment) error {
	if len(enrollments) == 0 {
		return nil
	}
	const query = `INSERT INTO subject_enrollments (id, student_id, section_subject_id, section_id, term_id, status, created_at)
VALUES (:id, :student_id, :section_subject_id, :section_id, :term_id, :status, :created_at)`
	for i := range enrollments {
		if enrollments[i].ID == "" {
			enrollments[i].ID = uuid.NewString()
		}
		if enrollments[i].Status == "" {
			enrollments[i].Status = models.EnrollmentStatusEnrolled
		}
		if enrollments[i].CreatedAt.IsZero() {
			enrollments[i].CreatedAt = time.Now()
		}
		if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollments[i]); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
	}
	return nil
}

// MoveSection repoints non-dropped enrollments from one section to another,
// remapping each enrollment to the target section's offering of the same
// subject where one exists. Used by the rebalancer when dissolving an
// underfilled section.
func (r *EnrollmentRepository) MoveSection(ctx context.Context, exec sqlx.ExtContext, fromSectionID, toSectionID string) error {
	const query = `UPDATE subject_enrollments e
SET section_id = $2,
    section_subject_id = COALESCE(
	(SELECT t.id FROM section_subjects t
	 JOIN section_subjects f ON f.id = e.section_subject_id
	 WHERE t.section_id = $2 AND t.subject_id = f.subject_id),
	e.section_subject_id)
WHERE e.section_id = $1 AND e.status <> 'DROPPED'`
	if _, err := r.exec(exec).ExecContext(ctx, query, fromSectionID, toSectionID); err != nil {
		return fmt.Errorf("move enrollments: %w", err)
	}
	return nil
}
