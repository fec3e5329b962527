package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/telemetry"
)

// Room is the per-conference aggregate. It owns its peers, transports,
// producers and consumers; every entity referenced by the room belongs
// to a peer that is a member of the room. All topology mutation and all
// engine calls for the room happen under its mutex, so operations on
// different rooms never contend.
type Room struct {
	ID string

	worker    *Worker
	maxPeers  int
	createdAt time.Time

	mu         sync.Mutex
	closed     bool
	emptySince time.Time
	peers      map[string]*Peer
	transports map[string]*Transport
	producers  map[string]*Producer
	consumers  map[string]*Consumer
}

// RoomStats is an atomic snapshot of the room topology.
type RoomStats struct {
	RoomID         string `json:"roomId"`
	PeerCount      int    `json:"participantCount"`
	TransportCount int    `json:"transportCount"`
	ProducerCount  int    `json:"producerCount"`
	ConsumerCount  int    `json:"consumerCount"`
}

func newRoom(id string, worker *Worker, maxPeers int) *Room {
	now := time.Now()

	return &Room{
		ID:         id,
		worker:     worker,
		maxPeers:   maxPeers,
		createdAt:  now,
		emptySince: now,
		peers:      make(map[string]*Peer),
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
		consumers:  make(map[string]*Consumer),
	}
}

func (r *Room) RouterRtpCapabilities() engine.RtpCapabilities {
	return r.worker.handle.RouterRtpCapabilities()
}

// Join adds the peer or, when it is already a member, updates its
// metadata. It returns the summaries of the room's current producers.
func (r *Room) Join(peerID, name string, role PeerRole) ([]ProducerSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomNotFound
	}

	peer, ok := r.peers[peerID]
	if ok {
		peer.Name = name
		if role != "" {
			peer.Role = role
		}
	} else {
		if r.maxPeers > 0 && len(r.peers) >= r.maxPeers {
			return nil, ErrRoomFull
		}
		r.peers[peerID] = newPeer(peerID, name, role)
		r.emptySince = time.Time{}
		telemetry.PeerJoined()
	}

	summaries := make([]ProducerSummary, 0, len(r.producers))
	for _, producer := range r.producers {
		if producer.PeerID == peerID {
			continue
		}
		summaries = append(summaries, ProducerSummary{
			ProducerID: producer.ID,
			PeerID:     producer.PeerID,
			Kind:       producer.Kind,
			AppData:    producer.AppData,
		})
	}

	return summaries, nil
}

// Leave closes everything the peer owns and removes it. It reports
// whether the peer was actually a member, so a disconnect racing an
// explicit leave broadcasts the departure exactly once.
func (r *Room) Leave(ctx context.Context, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return false
	}

	for id := range peer.transports {
		r.closeTransportLocked(ctx, id)
	}

	delete(r.peers, peerID)
	if len(r.peers) == 0 {
		r.emptySince = time.Now()
	}
	telemetry.PeerLeft()

	return true
}

// HasPeer reports membership without mutating anything.
func (r *Room) HasPeer(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.peers[peerID]
	return ok
}

func (r *Room) Stats() RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RoomStats{
		RoomID:         r.ID,
		PeerCount:      len(r.peers),
		TransportCount: len(r.transports),
		ProducerCount:  len(r.producers),
		ConsumerCount:  len(r.consumers),
	}
}

// emptyLongerThan reports whether the room has had no peers for at
// least d. Used by the registry's idle janitor.
func (r *Room) emptyLongerThan(d time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.peers) > 0 || r.emptySince.IsZero() {
		return false
	}
	return time.Since(r.emptySince) >= d
}

// close tears the room down: consumers first, then producers, then
// transports. Engine-side "already closed" is swallowed, anything the
// engine already dropped is simply unregistered.
func (r *Room) close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	log.Info().Str("service", "rtc").Str("roomID", r.ID).
		Dur("uptime", time.Since(r.createdAt)).Msg("closing room")

	for id := range r.consumers {
		r.closeConsumerLocked(ctx, id)
	}
	for id := range r.producers {
		r.closeProducerLocked(ctx, id)
	}
	for id := range r.transports {
		r.closeTransportLocked(ctx, id)
	}

	for range r.peers {
		telemetry.PeerLeft()
	}
	r.peers = make(map[string]*Peer)
}

// closeTransportLocked closes the transport and cascades to every
// producer and consumer riding on it. Callers hold r.mu.
func (r *Room) closeTransportLocked(ctx context.Context, transportID string) {
	transport, ok := r.transports[transportID]
	if !ok {
		return
	}

	for id, producer := range r.producers {
		if producer.TransportID == transportID {
			r.closeProducerLocked(ctx, id)
		}
	}
	for id, consumer := range r.consumers {
		if consumer.TransportID == transportID {
			r.closeConsumerLocked(ctx, id)
		}
	}

	if err := r.worker.handle.CloseTransport(ctx, transportID); err != nil && !engine.IsAlreadyClosed(err) {
		log.Error().Err(err).Str("service", "rtc").Str("roomID", r.ID).
			Str("transportID", transportID).Msg("close transport")
	}

	transport.State = TransportClosed
	delete(r.transports, transportID)
	if peer, ok := r.peers[transport.PeerID]; ok {
		delete(peer.transports, transportID)
	}
}

// closeProducerLocked closes the producer and cascades to every consumer
// referencing it. Callers hold r.mu.
func (r *Room) closeProducerLocked(ctx context.Context, producerID string) {
	producer, ok := r.producers[producerID]
	if !ok {
		return
	}

	for id, consumer := range r.consumers {
		if consumer.ProducerID == producerID {
			r.closeConsumerLocked(ctx, id)
		}
	}

	if err := r.worker.handle.CloseProducer(ctx, producerID); err != nil && !engine.IsAlreadyClosed(err) {
		log.Error().Err(err).Str("service", "rtc").Str("roomID", r.ID).
			Str("producerID", producerID).Msg("close producer")
	}

	delete(r.producers, producerID)
	if peer, ok := r.peers[producer.PeerID]; ok {
		delete(peer.producers, producerID)
	}
}

// closeConsumerLocked removes only the consumer itself. Callers hold r.mu.
func (r *Room) closeConsumerLocked(ctx context.Context, consumerID string) {
	consumer, ok := r.consumers[consumerID]
	if !ok {
		return
	}

	if err := r.worker.handle.CloseConsumer(ctx, consumerID); err != nil && !engine.IsAlreadyClosed(err) {
		log.Error().Err(err).Str("service", "rtc").Str("roomID", r.ID).
			Str("consumerID", consumerID).Msg("close consumer")
	}

	delete(r.consumers, consumerID)
	if peer, ok := r.peers[consumer.PeerID]; ok {
		delete(peer.consumers, consumerID)
	}
}
