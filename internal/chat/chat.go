// Package chat is the boundary with the text-chat collaborator. The
// orchestrator only appends to a bounded history and fans messages out
// through the bus; durable persistence lives outside this process.
package chat

import (
	"context"
	"sync"
	"time"
)

const defaultHistoryLimit = 100

type Message struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId"`
	PeerID   string    `json:"peerId"`
	PeerName string    `json:"peerName"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
}

// Bus is the pub/sub fan-out for room chat channels.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// History keeps the tail of each room's conversation for late joiners.
type History interface {
	Append(msg Message)
	Recent(roomID string) []Message
	Drop(roomID string)
}

// Service ties history bookkeeping to the bus.
type Service struct {
	history History
	bus     Bus
}

func NewService(history History, bus Bus) *Service {
	return &Service{history: history, bus: bus}
}

func (s *Service) Send(ctx context.Context, msg Message) error {
	if err := s.bus.Publish(ctx, msg); err != nil {
		return err
	}
	s.history.Append(msg)
	return nil
}

func (s *Service) Recent(roomID string) []Message {
	return s.history.Recent(roomID)
}

func (s *Service) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	return s.bus.Subscribe(ctx, roomID)
}

func (s *Service) RoomClosed(roomID string) {
	s.history.Drop(roomID)
}

// RingHistory is the in-memory History: a bounded tail per room.
type RingHistory struct {
	mu    sync.Mutex
	limit int
	rooms map[string][]Message
}

func NewRingHistory(limit int) *RingHistory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &RingHistory{
		limit: limit,
		rooms: make(map[string][]Message),
	}
}

func (h *RingHistory) Append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := append(h.rooms[msg.RoomID], msg)
	if len(tail) > h.limit {
		tail = tail[len(tail)-h.limit:]
	}
	h.rooms[msg.RoomID] = tail
}

func (h *RingHistory) Recent(roomID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := h.rooms[roomID]
	out := make([]Message, len(tail))
	copy(out, tail)
	return out
}

func (h *RingHistory) Drop(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms, roomID)
}
