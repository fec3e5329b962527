package signaling

import (
	"encoding/json"

	"github.com/isqad/webinar-sfu/internal/engine"
)

// Wire format of the signaling protocol. Requests carry a client-chosen
// id echoed back in the reply; server-initiated events carry no id.
// Every reply is the {success, ...} envelope, failures are
// {success:false, error} — no fault ever crosses the wire raw.

type Method string

const (
	JoinRoomMethod         Method = "join-room"
	LeaveRoomMethod        Method = "leave-room"
	RouterRtpCapsMethod    Method = "get-router-rtp-capabilities"
	CreateTransportMethod  Method = "create-transport"
	ConnectTransportMethod Method = "connect-transport"
	ProduceMethod          Method = "produce"
	ConsumeMethod          Method = "consume"
	ChatMessageMethod      Method = "chat-message"

	// server → client events
	ConnectedEvent         Method = "connected"
	ParticipantJoinedEvent Method = "participant-joined"
	ParticipantLeftEvent   Method = "participant-left"
	NewProducerEvent       Method = "new-producer"
	ChatMessageEvent       Method = "chat-message"
	ChatHistoryEvent       Method = "chat-history"
)

type Request struct {
	ID     int64           `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type JoinRoomParams struct {
	RoomID          string `json:"roomId"`
	ParticipantName string `json:"participantName"`
	Role            string `json:"role,omitempty"`
}

type RoomParams struct {
	RoomID string `json:"roomId"`
}

type CreateTransportParams struct {
	RoomID    string                    `json:"roomId"`
	Direction engine.TransportDirection `json:"direction"`
}

type ConnectTransportParams struct {
	RoomID         string                `json:"roomId"`
	TransportID    string                `json:"transportId"`
	DtlsParameters engine.DtlsParameters `json:"dtlsParameters"`
}

type ProduceParams struct {
	RoomID        string               `json:"roomId"`
	TransportID   string               `json:"transportId"`
	Kind          engine.MediaKind     `json:"kind"`
	RtpParameters engine.RtpParameters `json:"rtpParameters"`
	AppData       engine.H             `json:"appData,omitempty"`
}

type ConsumeParams struct {
	RoomID          string                 `json:"roomId"`
	TransportID     string                 `json:"transportId"`
	ProducerID      string                 `json:"producerId"`
	RtpCapabilities engine.RtpCapabilities `json:"rtpCapabilities"`
}

type ChatMessageParams struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
}

// H is a reply payload fragment merged into the envelope.
type H map[string]interface{}

func successReply(id int64, payload H) []byte {
	envelope := H{"id": id, "success": true}
	for k, v := range payload {
		envelope[k] = v
	}
	// the envelope is built from marshalable values only
	raw, _ := json.Marshal(envelope)
	return raw
}

func errorReply(id int64, err error) []byte {
	raw, _ := json.Marshal(H{"id": id, "success": false, "error": err.Error()})
	return raw
}

type notification struct {
	Method Method      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

func event(method Method, params interface{}) []byte {
	raw, _ := json.Marshal(notification{Method: method, Params: params})
	return raw
}
