package chat

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const roomChannelPrefix = "chat:"

// RedisBus is the Bus backed by redis pub/sub, one channel per room.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, roomChannelPrefix+msg.RoomID, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, roomChannelPrefix+roomID)
	// Wait until the subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:   pubsub,
		messages: make(chan Message),
	}
	go sub.pump()

	return sub, nil
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	messages chan Message
}

func (s *redisSubscription) Channel() <-chan Message {
	return s.messages
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

func (s *redisSubscription) pump() {
	defer close(s.messages)

	for raw := range s.pubsub.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			log.Error().Err(err).Str("service", "chat").Msg("malformed chat message")
			continue
		}
		s.messages <- msg
	}
}
