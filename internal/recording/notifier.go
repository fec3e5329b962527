package recording

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// RecordingSubject carries session lifecycle events to the capture
// collaborator.
const RecordingSubject = "recording.sessions"

type lifecycleEvent struct {
	Event   string   `json:"event"`
	Session *Session `json:"session"`
}

// NatsNotifier publishes lifecycle events to NATS.
type NatsNotifier struct {
	nc *nats.Conn
}

func NewNatsNotifier(nc *nats.Conn) *NatsNotifier {
	return &NatsNotifier{nc: nc}
}

func (n *NatsNotifier) RecordingStarted(session *Session) error {
	return n.publish("started", session)
}

func (n *NatsNotifier) RecordingStopped(session *Session) error {
	return n.publish("stopped", session)
}

func (n *NatsNotifier) publish(event string, session *Session) error {
	payload, err := json.Marshal(lifecycleEvent{Event: event, Session: session})
	if err != nil {
		return err
	}
	return n.nc.Publish(RecordingSubject, payload)
}
