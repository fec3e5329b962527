package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/chat"
	"github.com/isqad/webinar-sfu/internal/rtc"
)

const connSessionKey = "conn"

var (
	ErrNotJoined     = errors.New("not joined to a room")
	errUnknownMethod = errors.New("unknown method")
)

type connStatus int

const (
	statusConnected connStatus = iota
	statusJoined
	statusLeft
)

// connState is the per-connection signaling state machine:
// Connected → JoinedRoom → (Disconnected | Left). It lives in the
// melody session keys.
type connState struct {
	mu       sync.Mutex
	peerID   string
	peerName string
	roomID   string
	status   connStatus
	chatSub  chat.Subscription
}

func (c *connState) joinedRoom() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != statusJoined {
		return "", false
	}
	return c.roomID, true
}

// Gateway drives the bidirectional signaling protocol over websocket
// connections and translates it into registry and media-graph calls.
type Gateway struct {
	registry  *rtc.Registry
	chat      *chat.Service
	websocket *melody.Melody

	listenIP    string
	announcedIP string

	// seqMu guards seq; each room's sequence lock is held across a
	// mutation and its broadcast, so events leave in the completion
	// order of the operations that triggered them.
	seqMu sync.Mutex
	seq   map[string]*sync.Mutex
}

func New(registry *rtc.Registry, chatService *chat.Service, listenIP, announcedIP string) *Gateway {
	m := melody.New()
	m.Config.MaxMessageSize = 200 * 1024 // 200K

	g := &Gateway{
		registry:    registry,
		chat:        chatService,
		websocket:   m,
		listenIP:    listenIP,
		announcedIP: announcedIP,
		seq:         make(map[string]*sync.Mutex),
	}

	m.HandleConnect(g.handleConnect)
	m.HandleDisconnect(g.handleDisconnect)
	m.HandleMessage(g.handleMessage)
	m.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "signaling").Msg("error in websocket session")
	})

	return g
}

// Handler upgrades the request and pins a fresh peer identity to the
// connection.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessKeys := make(map[string]interface{})
		sessKeys[connSessionKey] = &connState{peerID: uuid.NewString()}

		if err := g.websocket.HandleRequestWithKeys(w, r, sessKeys); err != nil {
			log.Error().Err(err).Str("service", "signaling").Msg("can't handle request")
		}
	}
}

func (g *Gateway) handleConnect(s *melody.Session) {
	conn := connOf(s)
	if conn == nil {
		return
	}

	log.Debug().Str("service", "signaling").Str("peerID", conn.peerID).Msg("client connected")

	if err := s.Write(event(ConnectedEvent, H{"peerId": conn.peerID})); err != nil {
		log.Error().Err(err).Str("service", "signaling").Str("peerID", conn.peerID).Msg("write welcome")
	}
}

// handleDisconnect treats a dropped connection as an implicit leave.
func (g *Gateway) handleDisconnect(s *melody.Session) {
	conn := connOf(s)
	if conn == nil {
		return
	}

	log.Debug().Str("service", "signaling").Str("peerID", conn.peerID).Msg("client disconnected")

	g.leave(context.Background(), conn)
}

func (g *Gateway) handleMessage(s *melody.Session, msg []byte) {
	conn := connOf(s)
	if conn == nil {
		return
	}

	req := &Request{}
	if err := json.Unmarshal(msg, req); err != nil {
		if writeErr := s.Write(errorReply(0, err)); writeErr != nil {
			log.Error().Err(writeErr).Str("service", "signaling").Msg("write reply")
		}
		return
	}

	payload, err := g.dispatch(s, conn, req)

	var reply []byte
	if err != nil {
		log.Debug().Err(err).Str("service", "signaling").Str("peerID", conn.peerID).
			Str("method", string(req.Method)).Msg("request failed")
		reply = errorReply(req.ID, err)
	} else {
		reply = successReply(req.ID, payload)
	}

	if err := s.Write(reply); err != nil {
		log.Error().Err(err).Str("service", "signaling").Str("peerID", conn.peerID).Msg("write reply")
	}
}

func (g *Gateway) dispatch(s *melody.Session, conn *connState, req *Request) (H, error) {
	ctx := context.Background()

	switch req.Method {
	case JoinRoomMethod:
		params := &JoinRoomParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		return g.joinRoom(ctx, s, conn, params)

	case LeaveRoomMethod:
		g.leaveExplicit(ctx, conn)
		return H{}, nil

	case RouterRtpCapsMethod:
		params := &RoomParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		room, err := g.registry.FindRoom(params.RoomID)
		if err != nil {
			return nil, err
		}
		return H{"rtpCapabilities": room.RouterRtpCapabilities()}, nil

	case CreateTransportMethod:
		params := &CreateTransportParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		room, err := g.joinedRoomOf(conn, params.RoomID)
		if err != nil {
			return nil, err
		}
		info, err := room.CreateTransport(ctx, conn.peerID, params.Direction, g.listenIP, g.announcedIP)
		if err != nil {
			return nil, err
		}
		return H{"params": info}, nil

	case ConnectTransportMethod:
		params := &ConnectTransportParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		room, err := g.joinedRoomOf(conn, params.RoomID)
		if err != nil {
			return nil, err
		}
		if err := room.ConnectTransport(ctx, params.TransportID, params.DtlsParameters); err != nil {
			return nil, err
		}
		return H{}, nil

	case ProduceMethod:
		params := &ProduceParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		return g.produce(ctx, conn, params)

	case ConsumeMethod:
		params := &ConsumeParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		room, err := g.joinedRoomOf(conn, params.RoomID)
		if err != nil {
			return nil, err
		}
		info, err := room.Consume(ctx, params.TransportID, params.ProducerID, params.RtpCapabilities)
		if err != nil {
			return nil, err
		}
		return H{"params": info}, nil

	case ChatMessageMethod:
		params := &ChatMessageParams{}
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, err
		}
		return g.chatMessage(ctx, conn, params)

	default:
		return nil, errUnknownMethod
	}
}

func (g *Gateway) joinRoom(ctx context.Context, s *melody.Session, conn *connState, params *JoinRoomParams) (H, error) {
	room, err := g.registry.GetOrCreateRoom(params.RoomID)
	if err != nil {
		return nil, err
	}

	seq := g.roomSeq(params.RoomID)
	seq.Lock()
	defer seq.Unlock()

	producers, err := room.Join(conn.peerID, params.ParticipantName, rtc.PeerRole(params.Role))
	if err != nil {
		return nil, err
	}

	conn.mu.Lock()
	conn.roomID = params.RoomID
	conn.peerName = params.ParticipantName
	conn.status = statusJoined
	conn.mu.Unlock()

	g.subscribeChat(ctx, s, conn, params.RoomID)

	// late joiners receive the tail of the room's conversation
	if history := g.chat.Recent(params.RoomID); len(history) > 0 {
		if err := s.Write(event(ChatHistoryEvent, H{"messages": history})); err != nil {
			log.Error().Err(err).Str("service", "signaling").Str("peerID", conn.peerID).Msg("write chat history")
		}
	}

	role := params.Role
	if role == "" {
		role = string(rtc.ParticipantRole)
	}
	g.broadcastRoom(params.RoomID, conn.peerID, ParticipantJoinedEvent, H{
		"participantId":   conn.peerID,
		"participantName": params.ParticipantName,
		"role":            role,
	})

	log.Info().Str("service", "signaling").Str("peerID", conn.peerID).
		Str("roomID", params.RoomID).Msg("peer joined room")

	return H{
		"roomId":    params.RoomID,
		"peerId":    conn.peerID,
		"producers": producers,
	}, nil
}

func (g *Gateway) produce(ctx context.Context, conn *connState, params *ProduceParams) (H, error) {
	room, err := g.joinedRoomOf(conn, params.RoomID)
	if err != nil {
		return nil, err
	}

	seq := g.roomSeq(params.RoomID)
	seq.Lock()
	defer seq.Unlock()

	producer, err := room.Produce(ctx, params.TransportID, params.Kind, params.RtpParameters, params.AppData)
	if err != nil {
		return nil, err
	}

	g.broadcastRoom(params.RoomID, conn.peerID, NewProducerEvent, H{
		"producerId": producer.ID,
		"kind":       producer.Kind,
		"appData":    producer.AppData,
	})

	return H{"producerId": producer.ID}, nil
}

func (g *Gateway) chatMessage(ctx context.Context, conn *connState, params *ChatMessageParams) (H, error) {
	if _, err := g.joinedRoomOf(conn, params.RoomID); err != nil {
		return nil, err
	}

	msg := chat.Message{
		ID:       uuid.NewString(),
		RoomID:   params.RoomID,
		PeerID:   conn.peerID,
		PeerName: conn.peerName,
		Body:     params.Body,
		SentAt:   time.Now(),
	}
	if err := g.chat.Send(ctx, msg); err != nil {
		return nil, err
	}

	return H{"messageId": msg.ID}, nil
}

// leaveExplicit handles the leave-room request: full cleanup, but the
// connection stays open and may re-join.
func (g *Gateway) leaveExplicit(ctx context.Context, conn *connState) {
	g.leave(ctx, conn)

	conn.mu.Lock()
	conn.status = statusLeft
	conn.mu.Unlock()
}

// leave runs the idempotent cleanup cascade and broadcasts the departure
// at most once.
func (g *Gateway) leave(ctx context.Context, conn *connState) {
	conn.mu.Lock()
	roomID := conn.roomID
	joined := conn.status == statusJoined
	chatSub := conn.chatSub
	conn.roomID = ""
	conn.status = statusConnected
	conn.chatSub = nil
	conn.mu.Unlock()

	if chatSub != nil {
		if err := chatSub.Close(); err != nil {
			log.Error().Err(err).Str("service", "signaling").Str("peerID", conn.peerID).Msg("close chat subscription")
		}
	}

	if !joined || roomID == "" {
		return
	}

	room, err := g.registry.FindRoom(roomID)
	if err != nil {
		return
	}

	seq := g.roomSeq(roomID)
	seq.Lock()
	defer seq.Unlock()

	if room.Leave(ctx, conn.peerID) {
		g.broadcastRoom(roomID, conn.peerID, ParticipantLeftEvent, H{
			"participantId": conn.peerID,
		})
		log.Info().Str("service", "signaling").Str("peerID", conn.peerID).
			Str("roomID", roomID).Msg("peer left room")
	}
}

// joinedRoomOf guards room-scoped operations: the connection must be in
// the JoinedRoom state for this very room.
func (g *Gateway) joinedRoomOf(conn *connState, roomID string) (*rtc.Room, error) {
	joined, ok := conn.joinedRoom()
	if !ok || joined != roomID {
		return nil, ErrNotJoined
	}
	return g.registry.FindRoom(roomID)
}

// subscribeChat fans the room's chat channel back out over this
// connection.
func (g *Gateway) subscribeChat(ctx context.Context, s *melody.Session, conn *connState, roomID string) {
	sub, err := g.chat.Subscribe(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("service", "signaling").Str("roomID", roomID).Msg("subscribe chat")
		return
	}

	conn.mu.Lock()
	conn.chatSub = sub
	conn.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			if err := s.Write(event(ChatMessageEvent, msg)); err != nil {
				// only a closed session errors here
				return
			}
		}
	}()
}

// roomSeq returns the room's sequence lock, creating it on first use.
func (g *Gateway) roomSeq(roomID string) *sync.Mutex {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()

	mu, ok := g.seq[roomID]
	if !ok {
		mu = &sync.Mutex{}
		g.seq[roomID] = mu
	}
	return mu
}

func (g *Gateway) broadcastRoom(roomID, excludePeerID string, method Method, params interface{}) {
	payload := event(method, params)

	err := g.websocket.BroadcastFilter(payload, func(s *melody.Session) bool {
		other := connOf(s)
		if other == nil || other.peerID == excludePeerID {
			return false
		}
		joined, ok := other.joinedRoom()
		return ok && joined == roomID
	})
	if err != nil {
		log.Error().Err(err).Str("service", "signaling").Str("roomID", roomID).Msg("broadcast")
	}
}

func connOf(s *melody.Session) *connState {
	raw, ok := s.Keys[connSessionKey]
	if !ok {
		return nil
	}
	conn, ok := raw.(*connState)
	if !ok {
		return nil
	}
	return conn
}
