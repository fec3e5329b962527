package rtc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/engine/enginetest"
)

func newTestPool(t *testing.T, numWorkers int) (*WorkerPool, []*enginetest.Fake) {
	t.Helper()

	var fakes []*enginetest.Fake
	pool, err := NewWorkerPool(numWorkers, func() (engine.Handle, error) {
		f := enginetest.New()
		fakes = append(fakes, f)
		return f, nil
	})
	require.NoError(t, err)

	return pool, fakes
}

func newTestRegistry(t *testing.T, numWorkers int) (*Registry, []*enginetest.Fake) {
	t.Helper()

	pool, fakes := newTestPool(t, numWorkers)
	return NewRegistry(pool, 200), fakes
}

func TestCreateRoomRoundRobin(t *testing.T) {
	reg, _ := newTestRegistry(t, 3)

	assignments := make([]int, 0, 6)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		room, err := reg.CreateRoom(id)
		require.NoError(t, err)
		assignments = append(assignments, room.worker.ID)
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, assignments)
}

func TestCreateRoomDuplicate(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	first, err := reg.CreateRoom("dup")
	require.NoError(t, err)

	_, err = reg.CreateRoom("dup")
	assert.ErrorIs(t, err, ErrRoomExists)

	// the first room is unaffected
	found, err := reg.FindRoom("dup")
	require.NoError(t, err)
	assert.Same(t, first, found)
}

func TestFindRoomNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	_, err := reg.FindRoom("missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeleteRoom(t *testing.T) {
	ctx := context.Background()
	reg, fakes := newTestRegistry(t, 1)

	room, err := reg.CreateRoom("doomed")
	require.NoError(t, err)

	_, err = room.Join("peer-1", "Alice", HostRole)
	require.NoError(t, err)

	sendInfo, err := room.CreateTransport(ctx, "peer-1", engine.SendDirection, "0.0.0.0", "")
	require.NoError(t, err)
	recvInfo, err := room.CreateTransport(ctx, "peer-1", engine.RecvDirection, "0.0.0.0", "")
	require.NoError(t, err)

	producer, err := room.Produce(ctx, sendInfo.ID, engine.AudioKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	require.NoError(t, reg.DeleteRoom(ctx, "doomed"))

	_, err = reg.FindRoom("doomed")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// no orphaned entities, neither in the room nor engine-side
	_, err = room.FindTransport(sendInfo.ID)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	_, err = room.FindTransport(recvInfo.ID)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	_, err = room.FindProducer(producer.ID)
	assert.ErrorIs(t, err, ErrProducerNotFound)
	assert.Equal(t, 0, fakes[0].TransportCount())
	assert.Equal(t, 0, fakes[0].ProducerCount())

	// id is reusable after deletion
	_, err = reg.CreateRoom("doomed")
	assert.NoError(t, err)
}

func TestDeleteRoomNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	err := reg.DeleteRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestGetOrCreateRoom(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	room, err := reg.GetOrCreateRoom("auto")
	require.NoError(t, err)

	again, err := reg.GetOrCreateRoom("auto")
	require.NoError(t, err)
	assert.Same(t, room, again)
}

func TestRegistryStats(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	room, err := reg.CreateRoom("stats")
	require.NoError(t, err)
	_, err = room.Join("peer-1", "Alice", ParticipantRole)
	require.NoError(t, err)

	stats, err := reg.Stats("stats")
	require.NoError(t, err)
	assert.Equal(t, "stats", stats.RoomID)
	assert.Equal(t, 1, stats.PeerCount)
	assert.Equal(t, 0, stats.TransportCount)

	_, err = reg.Stats("missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
