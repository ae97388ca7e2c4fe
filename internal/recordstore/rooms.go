package recordstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/learnchain/course-mesh/internal/models"
)

// CreateRoom registers a new active room.
func (s *Store) CreateRoom(ctx context.Context, room models.Room) error {
	query := `INSERT INTO mesh_rooms (code, host_id, host_name, is_active)
              VALUES ($1, $2, $3, TRUE)`
	_, err := s.db.ExecContext(ctx, query, room.Code, room.HostID, room.HostName)
	return err
}

// FindActiveRoom looks up a room by code, requiring is_active. Returns
// (nil, nil) when no such room exists; an absent room is an expected
// outcome, not an error.
func (s *Store) FindActiveRoom(ctx context.Context, code string) (*models.Room, error) {
	query := `SELECT code, host_id, host_name, is_active, created_at
              FROM mesh_rooms WHERE code = $1 AND is_active = TRUE`
	room := &models.Room{}
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&room.Code, &room.HostID, &room.HostName, &room.IsActive, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// DeactivateRoom flips is_active off. Only the original host may do this;
// the host_id predicate enforces it at the store.
func (s *Store) DeactivateRoom(ctx context.Context, code, hostID string) error {
	query := `UPDATE mesh_rooms SET is_active = FALSE WHERE code = $1 AND host_id = $2`
	_, err := s.db.ExecContext(ctx, query, code, hostID)
	return err
}
