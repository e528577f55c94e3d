package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// RoomRepository provides read access to the room inventory.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListActive returns bookable rooms ordered by name.
func (r *RoomRepository) ListActive(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, name, capacity, type, active, created_at
FROM rooms WHERE active = TRUE ORDER BY name ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return rooms, nil
}
