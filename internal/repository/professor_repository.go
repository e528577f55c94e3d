package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// ProfessorRepository provides professor rosters, qualifications, and the
// professor-assignment junction table.
type ProfessorRepository struct {
	db *sqlx.DB
}

// NewProfessorRepository creates a new professor repository.
func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

func (r *ProfessorRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const professorColumns = `id, full_name, role, active, created_at, updated_at`

// FindByID returns one professor or sql.ErrNoRows.
func (r *ProfessorRepository) FindByID(ctx context.Context, id string) (*models.Professor, error) {
	query := fmt.Sprintf(`SELECT %s FROM professors WHERE id = $1`, professorColumns)
	var professor models.Professor
	if err := r.db.GetContext(ctx, &professor, query, id); err != nil {
		return nil, err
	}
	return &professor, nil
}

// ListActive returns every active professor ordered by id for stable
// fallback selection.
func (r *ProfessorRepository) ListActive(ctx context.Context) ([]models.Professor, error) {
	query := fmt.Sprintf(`SELECT %s FROM professors WHERE active = TRUE ORDER BY id ASC`, professorColumns)
	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query); err != nil {
		return nil, fmt.Errorf("list active professors: %w", err)
	}
	return professors, nil
}

// ListQualifiedBySubject returns the professors whose assigned-subjects set
// contains the subject.
func (r *ProfessorRepository) ListQualifiedBySubject(ctx context.Context, subjectID string) ([]models.Professor, error) {
	const query = `SELECT p.id, p.full_name, p.role, p.active, p.created_at, p.updated_at
FROM professors p
WHERE EXISTS (
	SELECT 1 FROM professor_qualifications pq
	WHERE pq.professor_id = p.id AND pq.subject_id = $1
)
ORDER BY p.id ASC`
	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query, subjectID); err != nil {
		return nil, fmt.Errorf("list qualified professors: %w", err)
	}
	return professors, nil
}

// IsQualified reports whether the qualification relation holds.
func (r *ProfessorRepository) IsQualified(ctx context.Context, professorID, subjectID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM professor_qualifications WHERE professor_id = $1 AND subject_id = $2
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, professorID, subjectID); err != nil {
		return false, fmt.Errorf("check qualification: %w", err)
	}
	return exists, nil
}

// ListByTerm returns all professor-assignment junction rows for a term.
func (r *ProfessorRepository) ListByTerm(ctx context.Context, termID string) ([]models.ProfessorAssignment, error) {
	const query = `SELECT pa.id, pa.professor_id, pa.section_subject_id, pa.created_at
FROM professor_assignments pa
JOIN section_subjects ss ON ss.id = pa.section_subject_id
JOIN sections sec ON sec.id = ss.section_id
WHERE sec.term_id = $1`
	var assignments []models.ProfessorAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, termID); err != nil {
		return nil, fmt.Errorf("list professor assignments: %w", err)
	}
	return assignments, nil
}

// EnsureAssignment upserts a junction row linking a professor to an
// offering.
func (r *ProfessorRepository) EnsureAssignment(ctx context.Context, exec sqlx.ExtContext, professorID, sectionSubjectID string) error {
	const query = `INSERT INTO professor_assignments (id, professor_id, section_subject_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (professor_id, section_subject_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, uuid.NewString(), professorID, sectionSubjectID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure professor assignment: %w", err)
	}
	return nil
}
