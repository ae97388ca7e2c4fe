package recordstore

import (
	"context"

	"github.com/learnchain/course-mesh/internal/models"
)

// InsertSignal appends one row to the signaling log and returns it with the
// store-assigned id and timestamp filled in.
func (s *Store) InsertSignal(ctx context.Context, msg models.SignalingMessage) (models.SignalingMessage, error) {
	query := `INSERT INTO mesh_signaling
              (room_code, peer_id, peer_name, target_peer_id, signal_type, signal_data)
              VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
              RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		msg.RoomCode, msg.PeerID, msg.PeerName, msg.TargetPeerID,
		string(msg.SignalType), []byte(msg.SignalData),
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return msg, err
	}
	return msg, nil
}

// RecentSignals returns the most recent limit rows for a room, oldest first,
// so a replay applies them in insertion order.
func (s *Store) RecentSignals(ctx context.Context, roomCode string, limit int) ([]models.SignalingMessage, error) {
	query := `SELECT id, room_code, peer_id, peer_name,
                     COALESCE(target_peer_id, ''), signal_type, signal_data, created_at
              FROM (
                  SELECT * FROM mesh_signaling
                  WHERE room_code = $1
                  ORDER BY created_at DESC, id DESC
                  LIMIT $2
              ) recent
              ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, roomCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.SignalingMessage
	for rows.Next() {
		var msg models.SignalingMessage
		var sigType string
		if err := rows.Scan(&msg.ID, &msg.RoomCode, &msg.PeerID, &msg.PeerName,
			&msg.TargetPeerID, &sigType, (*[]byte)(&msg.SignalData), &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.SignalType = models.SignalType(sigType)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// RecordOfflineOp persists a pending operation flushed from a device's
// offline queue.
func (s *Store) RecordOfflineOp(ctx context.Context, op models.PendingOp) error {
	query := `INSERT INTO offline_ops (id, op_type, op_data, created_at)
              VALUES ($1, $2, $3, $4)
              ON CONFLICT (id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, op.ID, op.Type, []byte(op.Data), op.CreatedAt)
	return err
}
