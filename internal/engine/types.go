package engine

// The media engine defines the full schemas of the negotiation blobs below.
// The orchestrator only inspects the handful of fields it needs (kind,
// encodings); everything else is relayed verbatim between the engine and
// the client.

const SchemaVersion = "1"

type MediaKind string

const (
	AudioKind MediaKind = "audio"
	VideoKind MediaKind = "video"
)

type TransportDirection string

const (
	SendDirection TransportDirection = "send"
	RecvDirection TransportDirection = "recv"
)

// H is a free-form mapping, used for the engine-defined parts of a blob
// and for client application data.
type H map[string]interface{}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []H                  `json:"headerExtensions,omitempty"`
}

type RtpCodecCapability struct {
	Kind       MediaKind `json:"kind"`
	MimeType   string    `json:"mimeType"`
	ClockRate  uint32    `json:"clockRate"`
	Channels   uint8     `json:"channels,omitempty"`
	Parameters H         `json:"parameters,omitempty"`
}

type RtpParameters struct {
	Mid              string                  `json:"mid,omitempty"`
	Codecs           []H                     `json:"codecs,omitempty"`
	HeaderExtensions []H                     `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters `json:"encodings,omitempty"`
	Rtcp             H                       `json:"rtcp,omitempty"`
}

// RtpEncodingParameters is one simulcast layer.
type RtpEncodingParameters struct {
	Rid             string `json:"rid,omitempty"`
	MaxBitrate      uint32 `json:"maxBitrate,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportOptions is the request side of CreateTransport.
type TransportOptions struct {
	Direction   TransportDirection `json:"direction"`
	ListenIP    string             `json:"listenIp"`
	AnnouncedIP string             `json:"announcedIp,omitempty"`
}

// TransportInfo carries the negotiation parameters the client needs to
// connect, exactly as the engine produced them.
type TransportInfo struct {
	ID             string         `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type ProduceOptions struct {
	TransportID   string        `json:"transportId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
	// Encodings is the simulcast layering the orchestrator decided on,
	// empty for audio.
	Encodings []RtpEncodingParameters `json:"encodings,omitempty"`
	AppData   H                       `json:"appData,omitempty"`
}

type ProducerInfo struct {
	ID   string    `json:"id"`
	Kind MediaKind `json:"kind"`
}

type ConsumeOptions struct {
	TransportID     string          `json:"transportId"`
	ProducerID      string          `json:"producerId"`
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
	Paused          bool            `json:"paused"`
}

type ConsumerInfo struct {
	ID             string        `json:"id"`
	ProducerID     string        `json:"producerId"`
	Kind           MediaKind     `json:"kind"`
	RtpParameters  RtpParameters `json:"rtpParameters"`
	Type           string        `json:"type"`
	ProducerPaused bool          `json:"producerPaused"`
}
