package rtc

import "github.com/isqad/webinar-sfu/internal/engine"

type PeerRole string

const (
	HostRole        PeerRole = "host"
	SpeakerRole     PeerRole = "speaker"
	ParticipantRole PeerRole = "participant"
)

type TransportState string

const (
	TransportCreated    TransportState = "created"
	TransportConnecting TransportState = "connecting"
	TransportConnected  TransportState = "connected"
	TransportClosed     TransportState = "closed"
)

// Peer is a connected participant of a Room. All of its fields are
// guarded by the owning room's lock.
type Peer struct {
	ID   string
	Name string
	Role PeerRole

	transports map[string]*Transport
	producers  map[string]*Producer
	consumers  map[string]*Consumer
}

func newPeer(id, name string, role PeerRole) *Peer {
	if role == "" {
		role = ParticipantRole
	}

	return &Peer{
		ID:         id,
		Name:       name,
		Role:       role,
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
		consumers:  make(map[string]*Consumer),
	}
}

// Transport is a send or recv media endpoint between one peer and the
// engine. The negotiation parameters inside Info are engine-defined and
// relayed to the client as-is.
type Transport struct {
	ID        string
	PeerID    string
	Direction engine.TransportDirection
	State     TransportState
	Info      *engine.TransportInfo
}

type Producer struct {
	ID          string
	PeerID      string
	TransportID string
	Kind        engine.MediaKind
	// Encodings is the simulcast layer descriptor, empty for audio.
	Encodings []engine.RtpEncodingParameters
	AppData   engine.H
}

// Consumer references its source producer without owning it: when the
// producer closes, the consumer is closed in cascade.
type Consumer struct {
	ID          string
	PeerID      string
	TransportID string
	ProducerID  string
	Paused      bool
}

// ProducerSummary is what late joiners receive about already published
// streams so they can decide to consume them.
type ProducerSummary struct {
	ProducerID string           `json:"producerId"`
	PeerID     string           `json:"peerId"`
	Kind       engine.MediaKind `json:"kind"`
	AppData    engine.H         `json:"appData,omitempty"`
}
