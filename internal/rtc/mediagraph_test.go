package rtc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/engine/enginetest"
)

func setupRoom(t *testing.T) (*Room, *enginetest.Fake) {
	t.Helper()

	reg, fakes := newTestRegistry(t, 1)
	room, err := reg.CreateRoom("media")
	require.NoError(t, err)

	return room, fakes[0]
}

func joinWithTransport(t *testing.T, room *Room, peerID string, direction engine.TransportDirection) *engine.TransportInfo {
	t.Helper()

	_, err := room.Join(peerID, peerID, ParticipantRole)
	require.NoError(t, err)

	info, err := room.CreateTransport(context.Background(), peerID, direction, "0.0.0.0", "")
	require.NoError(t, err)

	return info
}

func TestProduceVideoSimulcastLayers(t *testing.T) {
	room, fake := setupRoom(t)
	transport := joinWithTransport(t, room, "publisher", engine.SendDirection)

	producer, err := room.Produce(context.Background(), transport.ID, engine.VideoKind, engine.RtpParameters{}, engine.H{"source": "camera"})
	require.NoError(t, err)

	require.Len(t, producer.Encodings, 3)
	assert.Equal(t, uint32(1000000), producer.Encodings[0].MaxBitrate)
	assert.Equal(t, "S3T3", producer.Encodings[0].ScalabilityMode)
	assert.Equal(t, uint32(500000), producer.Encodings[1].MaxBitrate)
	assert.Equal(t, "S2T3", producer.Encodings[1].ScalabilityMode)
	assert.Equal(t, uint32(150000), producer.Encodings[2].MaxBitrate)
	assert.Equal(t, "S1T3", producer.Encodings[2].ScalabilityMode)

	// the engine received the same layering
	opts, ok := fake.LastProduce(producer.ID)
	require.True(t, ok)
	assert.Equal(t, producer.Encodings, opts.Encodings)
}

func TestProduceAudioHasNoLayers(t *testing.T) {
	room, _ := setupRoom(t)
	transport := joinWithTransport(t, room, "publisher", engine.SendDirection)

	producer, err := room.Produce(context.Background(), transport.ID, engine.AudioKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	assert.Empty(t, producer.Encodings)
}

func TestProduceUnknownTransport(t *testing.T) {
	room, _ := setupRoom(t)

	_, err := room.Produce(context.Background(), "nope", engine.AudioKind, engine.RtpParameters{}, nil)
	assert.ErrorIs(t, err, ErrTransportNotFound)
}

func TestConsume(t *testing.T) {
	ctx := context.Background()
	room, _ := setupRoom(t)

	send := joinWithTransport(t, room, "publisher", engine.SendDirection)
	producer, err := room.Produce(ctx, send.ID, engine.VideoKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	recv := joinWithTransport(t, room, "viewer", engine.RecvDirection)

	info, err := room.Consume(ctx, recv.ID, producer.ID, engine.RtpCapabilities{})
	require.NoError(t, err)
	assert.Equal(t, producer.ID, info.ProducerID)
	assert.Equal(t, engine.VideoKind, info.Kind)

	consumer, err := room.FindConsumer(info.ID)
	require.NoError(t, err)
	assert.False(t, consumer.Paused)
	assert.Equal(t, "viewer", consumer.PeerID)
}

func TestConsumeCapabilityMismatch(t *testing.T) {
	ctx := context.Background()
	room, fake := setupRoom(t)

	send := joinWithTransport(t, room, "publisher", engine.SendDirection)
	producer, err := room.Produce(ctx, send.ID, engine.VideoKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	recv := joinWithTransport(t, room, "viewer", engine.RecvDirection)

	fake.Consumable = false
	_, err = room.Consume(ctx, recv.ID, producer.ID, engine.RtpCapabilities{})
	assert.ErrorIs(t, err, ErrCapabilityMismatch)

	// nothing was registered
	assert.Equal(t, 0, room.Stats().ConsumerCount)
	assert.Equal(t, 0, fake.ConsumerCount())
}

func TestConsumeUnknownProducer(t *testing.T) {
	room, _ := setupRoom(t)
	recv := joinWithTransport(t, room, "viewer", engine.RecvDirection)

	_, err := room.Consume(context.Background(), recv.ID, "nope", engine.RtpCapabilities{})
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestCloseProducerCascadesToConsumers(t *testing.T) {
	ctx := context.Background()
	room, fake := setupRoom(t)

	send := joinWithTransport(t, room, "publisher", engine.SendDirection)
	doomed, err := room.Produce(ctx, send.ID, engine.VideoKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)
	unrelated, err := room.Produce(ctx, send.ID, engine.AudioKind, engine.RtpParameters{}, nil)
	require.NoError(t, err)

	var consumerIDs []string
	for _, viewer := range []string{"v1", "v2", "v3"} {
		recv := joinWithTransport(t, room, viewer, engine.RecvDirection)
		info, err := room.Consume(ctx, recv.ID, doomed.ID, engine.RtpCapabilities{})
		require.NoError(t, err)
		consumerIDs = append(consumerIDs, info.ID)
	}

	require.NoError(t, room.CloseProducer(ctx, doomed.ID))

	for _, id := range consumerIDs {
		_, err := room.FindConsumer(id)
		assert.ErrorIs(t, err, ErrConsumerNotFound)
	}
	_, err = room.FindProducer(doomed.ID)
	assert.ErrorIs(t, err, ErrProducerNotFound)

	// the unrelated producer survives
	_, err = room.FindProducer(unrelated.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, fake.ConsumerCount())
}

func TestConnectTransport(t *testing.T) {
	ctx := context.Background()
	room, fake := setupRoom(t)
	transport := joinWithTransport(t, room, "peer", engine.SendDirection)

	err := room.ConnectTransport(ctx, transport.ID, engine.DtlsParameters{Role: "client"})
	require.NoError(t, err)

	registered, err := room.FindTransport(transport.ID)
	require.NoError(t, err)
	assert.Equal(t, TransportConnected, registered.State)

	err = room.ConnectTransport(ctx, "nope", engine.DtlsParameters{})
	assert.ErrorIs(t, err, ErrTransportNotFound)

	fake.FailNext = "connectTransport"
	other := joinWithTransport(t, room, "peer", engine.RecvDirection)
	err = room.ConnectTransport(ctx, other.ID, engine.DtlsParameters{})
	var engineErr *engine.EngineError
	assert.ErrorAs(t, err, &engineErr)
}

func TestValidateSimulcastBounds(t *testing.T) {
	assert.NoError(t, ValidateSimulcastBounds(3, 1000000, 100000))

	assert.Error(t, ValidateSimulcastBounds(2, 1000000, 100000))
	assert.Error(t, ValidateSimulcastBounds(3, 900000, 100000))
	assert.Error(t, ValidateSimulcastBounds(3, 1000000, 200000))
}
