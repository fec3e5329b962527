// Package recording tracks recording-session metadata for rooms. It is
// a bookkeeping boundary only: capture itself is performed by an
// external collaborator that reacts to the lifecycle notifications.
package recording

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("recording session is not found")

type Status string

const (
	StatusRecording Status = "recording"
	StatusStopped   Status = "stopped"
)

type Session struct {
	ID         string     `db:"id" json:"id"`
	RoomID     string     `db:"room_id" json:"roomId"`
	Status     Status     `db:"status" json:"status"`
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	StoppedAt  *time.Time `db:"stopped_at" json:"stoppedAt,omitempty"`
	OutputPath string     `db:"output_path" json:"outputPath"`
	DurationMs int64      `db:"duration_ms" json:"durationMs,omitempty"`
}

// Store persists session metadata rows.
type Store interface {
	Save(ctx context.Context, session *Session) error
	MarkStopped(ctx context.Context, session *Session) error
	FindByRoom(ctx context.Context, roomID string) ([]*Session, error)
}

// Notifier tells the capture collaborator about lifecycle changes.
type Notifier interface {
	RecordingStarted(session *Session) error
	RecordingStopped(session *Session) error
}

// Tracker keeps the active sessions in memory and drives Store and
// Notifier. It never spawns a capture process itself.
type Tracker struct {
	store     Store
	notifier  Notifier
	outputDir string

	mu     sync.Mutex
	active map[string]*Session
}

func NewTracker(store Store, notifier Notifier, outputDir string) *Tracker {
	return &Tracker{
		store:     store,
		notifier:  notifier,
		outputDir: outputDir,
		active:    make(map[string]*Session),
	}
}

func (t *Tracker) Start(ctx context.Context, roomID string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Status:    StatusRecording,
		StartedAt: time.Now(),
	}
	session.OutputPath = filepath.Join(t.outputDir, roomID+"_"+session.ID+".mp4")

	if err := t.store.Save(ctx, session); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.active[session.ID] = session
	t.mu.Unlock()

	if err := t.notifier.RecordingStarted(session); err != nil {
		log.Error().Err(err).Str("service", "recording").Str("sessionID", session.ID).Msg("notify start")
	}

	log.Info().Str("service", "recording").Str("sessionID", session.ID).
		Str("roomID", roomID).Msg("recording session started")

	return session, nil
}

func (t *Tracker) Stop(ctx context.Context, sessionID string) (*Session, error) {
	t.mu.Lock()
	session, ok := t.active[sessionID]
	if ok {
		delete(t.active, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	now := time.Now()
	session.Status = StatusStopped
	session.StoppedAt = &now
	session.DurationMs = now.Sub(session.StartedAt).Milliseconds()

	if err := t.store.MarkStopped(ctx, session); err != nil {
		return nil, err
	}

	if err := t.notifier.RecordingStopped(session); err != nil {
		log.Error().Err(err).Str("service", "recording").Str("sessionID", session.ID).Msg("notify stop")
	}

	log.Info().Str("service", "recording").Str("sessionID", session.ID).Msg("recording session stopped")

	return session, nil
}

// Get returns an active session.
func (t *Tracker) Get(sessionID string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ForRoom lists all sessions of a room, finished ones included.
func (t *Tracker) ForRoom(ctx context.Context, roomID string) ([]*Session, error) {
	return t.store.FindByRoom(ctx, roomID)
}

// StopAllForRoom ends every active session of a room, used when the
// room is deleted.
func (t *Tracker) StopAllForRoom(ctx context.Context, roomID string) {
	t.mu.Lock()
	var ids []string
	for id, session := range t.active {
		if session.RoomID == roomID {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		if _, err := t.Stop(ctx, id); err != nil && err != ErrSessionNotFound {
			log.Error().Err(err).Str("service", "recording").Str("sessionID", id).Msg("stop on room close")
		}
	}
}
