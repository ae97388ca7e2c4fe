package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps the hosted relational store the mesh subsystem coordinates
// through: rooms, the append-only signaling log, and read access to the
// course catalog.
type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AutoMigrate creates the mesh tables if they do not exist. The courses and
// chapters tables are owned by the platform; they are created here only so a
// standalone agent can run against an empty database.
func (s *Store) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mesh_rooms (
            code VARCHAR(6) PRIMARY KEY,
            host_id VARCHAR(64) NOT NULL,
            host_name VARCHAR(100) NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS mesh_signaling (
            id BIGSERIAL PRIMARY KEY,
            room_code VARCHAR(6) NOT NULL,
            peer_id VARCHAR(64) NOT NULL,
            peer_name VARCHAR(100) NOT NULL,
            target_peer_id VARCHAR(64),
            signal_type VARCHAR(20) NOT NULL,
            signal_data JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE INDEX IF NOT EXISTS idx_mesh_signaling_room
            ON mesh_signaling (room_code, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS offline_ops (
            id VARCHAR(64) PRIMARY KEY,
            op_type VARCHAR(50) NOT NULL,
            op_data JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS courses (
            id VARCHAR(64) PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category VARCHAR(50) NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS chapters (
            id VARCHAR(64) PRIMARY KEY,
            course_id VARCHAR(64) NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL,
            chapter_order INT NOT NULL DEFAULT 0
        )`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
