package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// ScheduleSlotRepository provides persistence for schedule slots.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository creates a new slot repository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

func (r *ScheduleSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListDetailByTerm returns every slot in a term joined with its offering
// context, the working set the conflict index is built from.
func (r *ScheduleSlotRepository) ListDetailByTerm(ctx context.Context, termID string) ([]models.ScheduleSlotDetail, error) {
	const query = `SELECT sl.id, sl.section_subject_id, sl.day, sl.start_minute, sl.end_minute, sl.room, sl.professor_id, sl.created_at,
       ss.section_id, ss.subject_id, ss.professor_id AS default_professor_id
FROM schedule_slots sl
JOIN section_subjects ss ON ss.id = sl.section_subject_id
JOIN sections sec ON sec.id = ss.section_id
WHERE sec.term_id = $1
ORDER BY sl.day ASC, sl.start_minute ASC`
	var details []models.ScheduleSlotDetail
	if err := r.db.SelectContext(ctx, &details, query, termID); err != nil {
		return nil, fmt.Errorf("list slot details: %w", err)
	}
	return details, nil
}

// InsertBatch persists new slots, participating in the caller's
// transaction when one is supplied.
func (r *ScheduleSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO schedule_slots (id, section_subject_id, day, start_minute, end_minute, room, professor_id, created_at)
VALUES (:id, :section_subject_id, :day, :start_minute, :end_minute, :room, :professor_id, :created_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}
	return nil
}

// DeleteByTerm clears every slot in a term.
func (r *ScheduleSlotRepository) DeleteByTerm(ctx context.Context, exec sqlx.ExtContext, termID string) error {
	const query = `DELETE FROM schedule_slots
WHERE section_subject_id IN (
	SELECT ss.id FROM section_subjects ss
	JOIN sections sec ON sec.id = ss.section_id
	WHERE sec.term_id = $1
)`
	if _, err := r.exec(exec).ExecContext(ctx, query, termID); err != nil {
		return fmt.Errorf("delete slots by term: %w", err)
	}
	return nil
}

// DeleteBySections clears slots scoped to specific sections.
func (r *ScheduleSlotRepository) DeleteBySections(ctx context.Context, exec sqlx.ExtContext, sectionIDs []string) error {
	if len(sectionIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM schedule_slots
WHERE section_subject_id IN (SELECT id FROM section_subjects WHERE section_id IN (?))`, sectionIDs)
	if err != nil {
		return fmt.Errorf("delete slots by sections: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.exec(exec).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete slots by sections: %w", err)
	}
	return nil
}
