package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// SubjectRepository provides read access to the subject catalog. Subjects
// are owned by curriculum tooling; the scheduling core never writes them.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListPrerequisitePairs returns every edge of the prerequisite graph with
// subject codes for diagnostics.
func (r *SubjectRepository) ListPrerequisitePairs(ctx context.Context) ([]models.PrerequisitePair, error) {
	const query = `SELECT sp.subject_id, s.code AS subject_code, sp.prerequisite_id, p.code AS prerequisite_code
FROM subject_prerequisites sp
JOIN subjects s ON s.id = sp.subject_id
JOIN subjects p ON p.id = sp.prerequisite_id
ORDER BY s.code ASC, p.code ASC`
	var pairs []models.PrerequisitePair
	if err := r.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("list prerequisite pairs: %w", err)
	}
	return pairs, nil
}
