package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBus struct {
	published []Message
}

func (b *mockBus) Publish(ctx context.Context, msg Message) error {
	b.published = append(b.published, msg)
	return nil
}

func (b *mockBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	return nil, nil
}

func TestRingHistoryBounded(t *testing.T) {
	h := NewRingHistory(3)

	for i := 0; i < 5; i++ {
		h.Append(Message{RoomID: "r", Body: fmt.Sprintf("msg-%d", i)})
	}

	recent := h.Recent("r")
	require.Len(t, recent, 3)
	assert.Equal(t, "msg-2", recent[0].Body)
	assert.Equal(t, "msg-4", recent[2].Body)
}

func TestRingHistoryPerRoom(t *testing.T) {
	h := NewRingHistory(10)

	h.Append(Message{RoomID: "a", Body: "hello"})
	h.Append(Message{RoomID: "b", Body: "world"})

	assert.Len(t, h.Recent("a"), 1)
	assert.Len(t, h.Recent("b"), 1)
	assert.Empty(t, h.Recent("c"))

	h.Drop("a")
	assert.Empty(t, h.Recent("a"))
	assert.Len(t, h.Recent("b"), 1)
}

func TestServiceSend(t *testing.T) {
	bus := &mockBus{}
	svc := NewService(NewRingHistory(10), bus)

	msg := Message{ID: "m1", RoomID: "r", PeerID: "p", Body: "hi", SentAt: time.Now()}
	require.NoError(t, svc.Send(context.Background(), msg))

	require.Len(t, bus.published, 1)
	assert.Equal(t, "hi", bus.published[0].Body)

	recent := svc.Recent("r")
	require.Len(t, recent, 1)
	assert.Equal(t, "m1", recent[0].ID)
}
