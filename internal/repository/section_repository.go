package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// SectionRepository provides persistence for sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository creates a new section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

func (r *SectionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const sectionColumns = `id, name, program_id, year_level, capacity, term_id, curriculum_id, is_dissolved, parent_section_id, created_at, updated_at`

// ListActiveByTerm returns all non-dissolved sections in a term. Dissolved
// sections are excluded so rebalancing stays idempotent.
func (r *SectionRepository) ListActiveByTerm(ctx context.Context, termID string) ([]models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections
WHERE term_id = $1 AND is_dissolved = FALSE
ORDER BY program_id ASC, year_level ASC, name ASC`, sectionColumns)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, termID); err != nil {
		return nil, fmt.Errorf("list sections by term: %w", err)
	}
	return sections, nil
}

// ListOpenByProgramYear returns non-dissolved sections for one program and
// year level, ordered by name for deterministic assignment scans.
func (r *SectionRepository) ListOpenByProgramYear(ctx context.Context, termID, programID string, yearLevel int) ([]models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections
WHERE term_id = $1 AND program_id = $2 AND year_level = $3 AND is_dissolved = FALSE
ORDER BY name ASC`, sectionColumns)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, termID, programID, yearLevel); err != nil {
		return nil, fmt.Errorf("list open sections: %w", err)
	}
	return sections, nil
}

// MarkDissolved flags a merged section and records the sibling that
// absorbed it.
func (r *SectionRepository) MarkDissolved(ctx context.Context, exec sqlx.ExtContext, sectionID, parentSectionID string) error {
	const query = `UPDATE sections SET is_dissolved = TRUE, parent_section_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, sectionID, parentSectionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark section dissolved: %w", err)
	}
	return nil
}
