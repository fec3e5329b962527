package recording

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// DBStore is the Store backed by Postgres.
type DBStore struct {
	db *sqlx.DB
}

func NewDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Save(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recording_sessions
			(id, room_id, status, started_at, output_path)
		VALUES ($1, $2, $3, $4, $5)`,
		session.ID,
		session.RoomID,
		string(session.Status),
		session.StartedAt,
		session.OutputPath,
	)
	return err
}

func (s *DBStore) MarkStopped(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recording_sessions SET
			status = $1,
			stopped_at = $2,
			duration_ms = $3
		WHERE id = $4`,
		string(session.Status),
		session.StoppedAt,
		session.DurationMs,
		session.ID,
	)
	return err
}

func (s *DBStore) FindByRoom(ctx context.Context, roomID string) ([]*Session, error) {
	sessions := []*Session{}
	err := s.db.SelectContext(ctx, &sessions,
		`SELECT
			id,
			room_id,
			status,
			started_at,
			stopped_at,
			output_path,
			COALESCE(duration_ms, 0) AS duration_ms
		FROM recording_sessions
		WHERE room_id = $1
		ORDER BY started_at DESC`,
		roomID,
	)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}
