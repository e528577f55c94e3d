package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// SectionSubjectRepository manages section-subject offerings.
type SectionSubjectRepository struct {
	db *sqlx.DB
}

// NewSectionSubjectRepository creates a new offering repository.
func NewSectionSubjectRepository(db *sqlx.DB) *SectionSubjectRepository {
	return &SectionSubjectRepository{db: db}
}

// ListByTerm returns offering details for a term, optionally narrowed to
// specific sections.
func (r *SectionSubjectRepository) ListByTerm(ctx context.Context, termID string, sectionIDs []string) ([]models.SectionSubjectDetail, error) {
	query := `SELECT ss.id, ss.section_id, ss.subject_id, ss.professor_id, ss.created_at,
       sec.name AS section_name, sub.code AS subject_code, sub.units AS subject_units, sec.term_id
FROM section_subjects ss
JOIN sections sec ON sec.id = ss.section_id
JOIN subjects sub ON sub.id = ss.subject_id
WHERE sec.term_id = ? AND sec.is_dissolved = FALSE`
	args := []interface{}{termID}

	if len(sectionIDs) > 0 {
		inClause, inArgs, err := sqlx.In(" AND ss.section_id IN (?)", sectionIDs)
		if err != nil {
			return nil, fmt.Errorf("list offerings: %w", err)
		}
		query += inClause
		args = append(args, inArgs...)
	}
	query += " ORDER BY sec.name ASC, sub.code ASC"
	query = r.db.Rebind(query)

	var offerings []models.SectionSubjectDetail
	if err := r.db.SelectContext(ctx, &offerings, query, args...); err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	return offerings, nil
}

// ListBySection returns the offerings of one section, the course load a
// home-section student is auto-enrolled into.
func (r *SectionSubjectRepository) ListBySection(ctx context.Context, sectionID string) ([]models.SectionSubject, error) {
	const query = `SELECT id, section_id, subject_id, professor_id, created_at
FROM section_subjects WHERE section_id = $1 ORDER BY created_at ASC, id ASC`
	var offerings []models.SectionSubject
	if err := r.db.SelectContext(ctx, &offerings, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section offerings: %w", err)
	}
	return offerings, nil
}

// SetProfessor updates the default professor of one offering.
func (r *SectionSubjectRepository) SetProfessor(ctx context.Context, exec sqlx.ExtContext, offeringID string, professorID *string) error {
	target := sqlx.ExtContext(r.db)
	if exec != nil {
		target = exec
	}
	const query = `UPDATE section_subjects SET professor_id = $2 WHERE id = $1`
	if _, err := target.ExecContext(ctx, query, offeringID, professorID); err != nil {
		return fmt.Errorf("set offering professor: %w", err)
	}
	return nil
}
