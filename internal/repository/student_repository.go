package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// StudentRepository provides student rosters and home-section writes for
// the sectioning engine.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListUnassignedFreshmen returns year-1 students of a program with no home
// section, ordered by their term enrollment creation time ascending. The
// FCFS queue depends on this ordering.
func (r *StudentRepository) ListUnassignedFreshmen(ctx context.Context, termID, programID string) ([]models.FreshmanCandidate, error) {
	const query = `SELECT s.id, s.full_name, s.program_id, s.year_level, s.home_section_id, s.active, s.created_at, s.updated_at,
       te.created_at AS enrolled_at
FROM students s
JOIN term_enrollments te ON te.student_id = s.id AND te.term_id = $1
WHERE s.program_id = $2 AND s.year_level = 1 AND s.home_section_id IS NULL AND s.active = TRUE
ORDER BY te.created_at ASC, s.id ASC`
	var candidates []models.FreshmanCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, termID, programID); err != nil {
		return nil, fmt.Errorf("list unassigned freshmen: %w", err)
	}
	return candidates, nil
}

// ListUnassignedByYear returns returning students of a program and year
// with no home section.
func (r *StudentRepository) ListUnassignedByYear(ctx context.Context, termID, programID string, yearLevel int) ([]models.Student, error) {
	const query = `SELECT s.id, s.full_name, s.program_id, s.year_level, s.home_section_id, s.active, s.created_at, s.updated_at
FROM students s
JOIN term_enrollments te ON te.student_id = s.id AND te.term_id = $1
WHERE s.program_id = $2 AND s.year_level = $3 AND s.home_section_id IS NULL AND s.active = TRUE
ORDER BY s.id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, termID, programID, yearLevel); err != nil {
		return nil, fmt.Errorf("list unassigned students: %w", err)
	}
	return students, nil
}

// ListBySection returns the students whose home section is the given one.
func (r *StudentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Student, error) {
	const query = `SELECT id, full_name, program_id, year_level, home_section_id, active, created_at, updated_at
FROM students WHERE home_section_id = $1 ORDER BY id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, sectionID); err != nil {
		return nil, fmt.Errorf("list students by section: %w", err)
	}
	return students, nil
}

// UpdateHomeSection sets (or clears) a student's home section.
func (r *StudentRepository) UpdateHomeSection(ctx context.Context, exec sqlx.ExtContext, studentID string, sectionID *string) error {
	const query = `UPDATE students SET home_section_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, studentID, sectionID); err != nil {
		return fmt.Errorf("update home section: %w", err)
	}
	return nil
}

// ListSharedHistory returns, for every pair in the candidate set, the
// number of distinct offerings both students took (ENROLLED or PASSED)
// within the lookback window of terms preceding beforeTermID. Pairs with
// no shared history are omitted.
func (r *StudentRepository) ListSharedHistory(ctx context.Context, studentIDs []string, beforeTermID string, lookbackTerms int) ([]models.SharedHistoryPair, error) {
	if len(studentIDs) < 2 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT a.student_id AS student_a, b.student_id AS student_b, COUNT(DISTINCT a.section_subject_id) AS shared
FROM subject_enrollments a
JOIN subject_enrollments b
  ON b.section_subject_id = a.section_subject_id
 AND b.term_id = a.term_id
 AND b.student_id > a.student_id
WHERE a.student_id IN (?)
  AND b.student_id IN (?)
  AND a.status IN ('ENROLLED', 'PASSED')
  AND b.status IN ('ENROLLED', 'PASSED')
  AND a.term_id IN (
	SELECT t.id FROM terms t
	WHERE t.start_date < (SELECT start_date FROM terms WHERE id = ?)
	ORDER BY t.start_date DESC
	LIMIT ?
  )
GROUP BY a.student_id, b.student_id`, studentIDs, studentIDs, beforeTermID, lookbackTerms)
	if err != nil {
		return nil, fmt.Errorf("list shared history: %w", err)
	}
	query = r.db.Rebind(query)

	var pairs []models.SharedHistoryPair
	if err := r.db.SelectContext(ctx, &pairs, query, args...); err != nil {
		return nil, fmt.Errorf("list shared history: %w", err)
	}
	return pairs, nil
}
