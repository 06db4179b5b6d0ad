package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chathub/internal/metrics"
)

const idLength = 8

// maxIDAttempts bounds re-derivation when a derived id is already taken.
const maxIDAttempts = 3

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// deriveID truncates the upgrade handshake key to the short client id.
// Keys too short to truncate get a random id instead.
func deriveID(handshakeKey string) string {
	if len(handshakeKey) >= idLength {
		return handshakeKey[:idLength]
	}
	return randomID()
}

func randomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}

// session drives one connection through connecting -> active -> closed.
// Inbound frames are handled one at a time in arrival order.
type session struct {
	hub     *Hub
	client  *Client
	state   sessionState
	metrics *metrics.Metrics
}

func newSession(h *Hub, c *Client) *session {
	return &session{
		hub:     h,
		client:  c,
		state:   stateConnecting,
		metrics: h.metrics,
	}
}

// run owns the connection until its transport fails or closes.
func (s *session) run(ctx context.Context) {
	if err := s.open(ctx); err != nil {
		s.client.log.Warn("session failed to open", zap.Error(err))
		s.client.close()
		s.client.terminate()
		s.state = stateClosed
		return
	}
	defer s.close(ctx)

	s.readLoop(ctx)
}

// open performs the connecting -> active transition.
func (s *session) open(ctx context.Context) error {
	if s.state != stateConnecting {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return ErrHubClosed
	}

	s.setupReadConnection()

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		err = s.hub.Join(ctx, s.client)
		if !errors.Is(err, ErrDuplicateID) {
			break
		}
		s.client.log.Info("client id already in use, re-deriving")
		s.client.setID(randomID())
	}
	if err != nil {
		return err
	}

	s.state = stateActive
	s.client.log.Info("client connected", zap.String("nickname", s.client.Nickname()))

	// Shutdown may have enumerated clients before this one registered.
	if ctx.Err() != nil {
		s.client.terminate()
	}
	return nil
}

// setupReadConnection installs the pong handler that feeds the liveness flag.
func (s *session) setupReadConnection() {
	if s.client.conn == nil {
		return
	}
	s.client.conn.SetPongHandler(func(string) error {
		s.client.markAlive()
		return nil
	})
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, raw, err := s.client.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}
		s.handleFrame(ctx, raw)
	}
}

// handleReadError logs the read failure at a level matching its cause.
func (s *session) handleReadError(err error) {
	log := s.client.log

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("message exceeded maximum size", zap.Int64("limit", s.hub.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		log.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		log.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Warn("unexpected websocket close", zap.Error(err))
	default:
		log.Debug("websocket read error", zap.Error(err))
	}
}

// handleFrame interprets one inbound frame while active.
func (s *session) handleFrame(ctx context.Context, raw []byte) {
	if s.state != stateActive {
		return
	}

	evt, err := decodeEvent(raw)
	if err != nil {
		s.rejectMalformed(err)
		return
	}

	switch evt.Type {
	case EventSetNickname:
		var p setNicknamePayload
		if err := decodePayload(evt.Payload, &p); err != nil {
			s.rejectMalformed(err)
			return
		}
		s.setNickname(ctx, p.Nickname)

	case EventMessage:
		var p messagePayload
		if err := decodePayload(evt.Payload, &p); err != nil {
			s.rejectMalformed(err)
			return
		}
		s.hub.Broadcast(ctx, EventMessage, ChatPayload{
			ID:       s.client.id,
			Nickname: s.client.Nickname(),
			Msg:      p.Msg,
		}, nil)

	default:
		s.client.log.Debug("unsupported event type", zap.String("type", evt.Type))
		s.hub.Unicast(s.client, EventError, ErrorPayload{Msg: msgUnsupportedType})
	}
}

func (s *session) setNickname(ctx context.Context, raw json.RawMessage) {
	nickname, ok := nicknameText(raw)
	if !ok {
		s.client.log.Debug("ignoring empty nickname")
		return
	}
	if s.hub.Rename(ctx, s.client, nickname) {
		s.client.log.Info("client changed nickname", zap.String("nickname", nickname))
	}
}

func (s *session) rejectMalformed(err error) {
	s.metrics.IncMalformed()
	s.client.log.Info("invalid message format", zap.Error(err))
	s.hub.Unicast(s.client, EventError, ErrorPayload{Msg: msgInvalidFormat})
}

// close performs the active -> closed transition. It runs once.
func (s *session) close(ctx context.Context) {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed

	// Leave broadcasts even during shutdown so remaining clients see the change.
	s.hub.Leave(context.WithoutCancel(ctx), s.client)
	s.client.close()
	s.client.log.Info("client left", zap.String("nickname", s.client.Nickname()))
}
