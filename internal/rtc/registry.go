package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/telemetry"
)

// Registry is the process-wide worker→room mapping. Its lock guards only
// room registration; everything inside a room is serialized by the room
// itself.
type Registry struct {
	pool     *WorkerPool
	maxPeers int

	mu sync.RWMutex
}

func NewRegistry(pool *WorkerPool, maxPeers int) *Registry {
	return &Registry{
		pool:     pool,
		maxPeers: maxPeers,
	}
}

// CreateRoom registers an empty room on the next worker. Creation is not
// idempotent: a duplicate id fails with ErrRoomExists and leaves the
// existing room untouched.
func (reg *Registry) CreateRoom(id string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.findLocked(id) != nil {
		return nil, ErrRoomExists
	}

	worker, err := reg.pool.Assign()
	if err != nil {
		return nil, err
	}

	room := newRoom(id, worker, reg.maxPeers)
	worker.rooms[id] = room
	reg.pool.roomAdded()
	telemetry.RoomStarted()

	log.Info().Str("service", "rtc").Str("roomID", id).Int("workerID", worker.ID).Msg("room created")

	return room, nil
}

// FindRoom looks the room up across all workers.
func (reg *Registry) FindRoom(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room := reg.findLocked(id)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetOrCreateRoom returns the existing room or registers a new one.
// Used by the signaling gateway, which creates rooms on demand.
func (reg *Registry) GetOrCreateRoom(id string) (*Room, error) {
	room, err := reg.FindRoom(id)
	if err == nil {
		return room, nil
	}

	room, err = reg.CreateRoom(id)
	if err == ErrRoomExists {
		// Lost the race to a concurrent join.
		return reg.FindRoom(id)
	}
	return room, err
}

// DeleteRoom tears the room down and frees its id for reuse.
func (reg *Registry) DeleteRoom(ctx context.Context, id string) error {
	reg.mu.Lock()
	room := reg.findLocked(id)
	if room == nil {
		reg.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(room.worker.rooms, id)
	reg.mu.Unlock()

	reg.pool.roomRemoved()

	room.close(ctx)
	telemetry.RoomClosed()

	log.Info().Str("service", "rtc").Str("roomID", id).Msg("room deleted")

	return nil
}

// Stats returns the room's topology counters.
func (reg *Registry) Stats(id string) (RoomStats, error) {
	room, err := reg.FindRoom(id)
	if err != nil {
		return RoomStats{}, err
	}
	return room.Stats(), nil
}

// StartJanitor closes rooms that stayed empty longer than idleTimeout.
// It returns when ctx is cancelled.
func (reg *Registry) StartJanitor(ctx context.Context, idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}

	interval := idleTimeout / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.sweepIdle(ctx, idleTimeout)
		}
	}
}

func (reg *Registry) sweepIdle(ctx context.Context, idleTimeout time.Duration) {
	reg.mu.RLock()
	var idle []*Room
	for _, worker := range reg.pool.workers {
		for _, room := range worker.rooms {
			if room.emptyLongerThan(idleTimeout) {
				idle = append(idle, room)
			}
		}
	}
	reg.mu.RUnlock()

	for _, room := range idle {
		log.Info().Str("service", "rtc").Str("roomID", room.ID).Msg("closing idle room")
		if err := reg.DeleteRoom(ctx, room.ID); err != nil && err != ErrRoomNotFound {
			log.Error().Err(err).Str("service", "rtc").Str("roomID", room.ID).Msg("close idle room")
		}
	}
}

// findLocked iterates over all workers. Callers hold reg.mu.
func (reg *Registry) findLocked(id string) *Room {
	for _, worker := range reg.pool.workers {
		if room, ok := worker.rooms[id]; ok {
			return room
		}
	}
	return nil
}
