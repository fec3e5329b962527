package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/webinar-sfu/internal/engine"
)

func TestJoinUpdatesExistingPeer(t *testing.T) {
	room, _ := setupRoom(t)

	_, err := room.Join("peer-1", "Alice", ParticipantRole)
	require.NoError(t, err)

	_, err = room.Join("peer-1", "Alice Cooper", SpeakerRole)
	require.NoError(t, err)

	assert.Equal(t, 1, room.Stats().PeerCount)
	assert.Equal(t, "Alice Cooper", room.peers["peer-1"].Name)
	assert.Equal(t, SpeakerRole, room.peers["peer-1"].Role)
}

func TestJoinReturnsExistingProducers(t *testing.T) {
	ctx := context.Background()
	room, _ := setupRoom(t)

	send := joinWithTransport(t, room, "publisher", engine.SendDirection)
	producer, err := room.Produce(ctx, send.ID, engine.VideoKind, engine.RtpParameters{}, engine.H{"source": "screen"})
	require.NoError(t, err)

	summaries, err := room.Join("viewer", "Bob", ParticipantRole)
	require.NoError(t, err)

	require.Len(t, summaries, 1)
	assert.Equal(t, producer.ID, summaries[0].ProducerID)
	assert.Equal(t, "publisher", summaries[0].PeerID)
	assert.Equal(t, engine.VideoKind, summaries[0].Kind)

	// the publisher does not get its own producer back
	summaries, err = room.Join("publisher", "Pub", ParticipantRole)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestJoinRoomFull(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	reg := NewRegistry(pool, 2)

	room, err := reg.CreateRoom("small")
	require.NoError(t, err)

	_, err = room.Join("p1", "one", ParticipantRole)
	require.NoError(t, err)
	_, err = room.Join("p2", "two", ParticipantRole)
	require.NoError(t, err)

	_, err = room.Join("p3", "three", ParticipantRole)
	assert.ErrorIs(t, err, ErrRoomFull)

	// re-join of a member is not a capacity violation
	_, err = room.Join("p1", "one again", ParticipantRole)
	assert.NoError(t, err)
}

func TestLeaveCascade(t *testing.T) {
	ctx := context.Background()
	room, fake := setupRoom(t)

	send := joinWithTransport(t, room, "leaver", engine.SendDirection)
	recv, err := room.CreateTransport(ctx, "leaver", engine.RecvDirection, "0.0.0.0", "")
	require.NoError(t, err)

	producer, err := room.Produce(ctx, send.ID, engine.VideoKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	// the leaver also consumes someone else's stream, twice
	other := joinWithTransport(t, room, "other", engine.SendDirection)
	otherProducer, err := room.Produce(ctx, other.ID, engine.AudioKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	c1, err := room.Consume(ctx, recv.ID, otherProducer.ID, engine.RtpCapabilities{})
	require.NoError(t, err)
	c2, err := room.Consume(ctx, recv.ID, otherProducer.ID, engine.RtpCapabilities{})
	require.NoError(t, err)

	assert.True(t, room.Leave(ctx, "leaver"))

	// all five owned entities are unreachable
	for _, id := range []string{send.ID, recv.ID} {
		_, err := room.FindTransport(id)
		assert.ErrorIs(t, err, ErrTransportNotFound)
	}
	_, err = room.FindProducer(producer.ID)
	assert.ErrorIs(t, err, ErrProducerNotFound)
	for _, id := range []string{c1.ID, c2.ID} {
		_, err := room.FindConsumer(id)
		assert.ErrorIs(t, err, ErrConsumerNotFound)
	}

	// the other peer's entities survive
	_, err = room.FindProducer(otherProducer.ID)
	assert.NoError(t, err)
	assert.False(t, room.HasPeer("leaver"))
	assert.True(t, room.HasPeer("other"))
	assert.Equal(t, 1, fake.ProducerCount())
}

func TestLeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	room, _ := setupRoom(t)

	_, err := room.Join("peer-1", "Alice", ParticipantRole)
	require.NoError(t, err)

	assert.True(t, room.Leave(ctx, "peer-1"))
	assert.False(t, room.Leave(ctx, "peer-1"))
	assert.False(t, room.Leave(ctx, "never-joined"))
}

func TestEmptyRoomIdleTracking(t *testing.T) {
	room, _ := setupRoom(t)

	// a freshly created room counts as empty
	room.mu.Lock()
	room.emptySince = time.Now().Add(-time.Hour)
	room.mu.Unlock()
	assert.True(t, room.emptyLongerThan(30*time.Minute))

	_, err := room.Join("peer-1", "Alice", ParticipantRole)
	require.NoError(t, err)
	assert.False(t, room.emptyLongerThan(0))

	room.Leave(context.Background(), "peer-1")
	assert.False(t, room.emptyLongerThan(30*time.Minute))
}
