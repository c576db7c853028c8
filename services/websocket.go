package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"
	"eventflex_back_end_go/presence"
	"eventflex_back_end_go/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait     = 10 * time.Second
	frameTimeout  = 10 * time.Second
	codeRateLimit = "rate_limited"

	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 64
	defaultRateLimit    = 20
)

// Authenticator verifies the token presented in the register handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Participant, error)
}

type WebsocketConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	MaxFrameBytes  int
	RateLimit      int
}

type WebsocketHandler struct {
	hub      *relay.Hub
	chat     *ChatService
	auth     Authenticator
	presence presence.Tracker
	cfg      WebsocketConfig
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWebsocketHandler(hub *relay.Hub, chat *ChatService, auth Authenticator, tracker presence.Tracker, cfg WebsocketConfig, log *zap.Logger) *WebsocketHandler {
	// time.NewTicker panics on a non-positive interval inside the write pump
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	h := &WebsocketHandler{
		hub:      hub,
		chat:     chat,
		auth:     auth,
		presence: tracker,
		cfg:      cfg,
		log:      log.Named("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Client is one websocket connection. It becomes a relay session once the
// register handshake succeeds.
type Client struct {
	id      string
	conn    *websocket.Conn
	handler *WebsocketHandler
	limiter *rate.Limiter

	// written and read by readPump only
	participantID string

	mu     sync.Mutex
	send   chan relay.Envelope
	closed bool
}

func (c *Client) ID() string { return c.id }

// Send queues event for the write pump without blocking. A full or closed
// queue drops the event.
func (c *Client) Send(event relay.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *WebsocketHandler) ServeWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		handler: h,
		limiter: rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateLimit),
		send:    make(chan relay.Envelope, h.cfg.SendBuffer),
	}
	h.log.Debug("websocket connected", zap.String("session_id", client.id))

	go client.writePump()
	go client.readPump()
}

func (h *WebsocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *WebsocketHandler) pongWait() time.Duration {
	return h.cfg.PingInterval + h.cfg.PingInterval/2
}

func (c *Client) readPump() {
	h := c.handler
	defer func() {
		h.hub.Deregister(c)
		if c.participantID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
			if err := h.presence.Offline(ctx, c.participantID, c.id); err != nil {
				h.log.Warn("failed to mark participant offline", zap.String("participant_id", c.participantID), zap.Error(err))
			}
			cancel()
		}
		c.closeSend()
		c.conn.Close()
		h.log.Debug("websocket disconnected",
			zap.String("session_id", c.id),
			zap.String("participant_id", c.participantID))
	}()

	if h.cfg.MaxFrameBytes > 0 {
		c.conn.SetReadLimit(int64(h.cfg.MaxFrameBytes))
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		if c.participantID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
			defer cancel()
			if err := h.presence.Online(ctx, c.participantID, c.id); err != nil {
				h.log.Warn("failed to refresh presence", zap.String("participant_id", c.participantID), zap.Error(err))
			}
		}
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("websocket closed unexpectedly", zap.String("session_id", c.id), zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.reply(relay.EventError, relay.ErrorPayload{Code: codeRateLimit, Message: "too many events"})
			continue
		}

		var envelope relay.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.replyError(apperrors.Wrap(apperrors.KindInvalidArgument, "malformed event", err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		err = c.handle(ctx, envelope)
		cancel()
		if err != nil {
			c.replyError(err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.handler.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case envelope, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type registerPayload struct {
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
}

type conversationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type publishPayload struct {
	Message struct {
		ID uuid.UUID `json:"id"`
	} `json:"message"`
}

func (c *Client) handle(ctx context.Context, envelope relay.Envelope) error {
	h := c.handler
	switch envelope.Type {
	case relay.EventRegister:
		var p registerPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		participant, err := h.auth.Authenticate(ctx, p.Token)
		if err != nil {
			return err
		}
		if p.ParticipantID != "" && p.ParticipantID != participant.ID {
			return apperrors.New(apperrors.KindForbidden, "token does not belong to this participant")
		}
		if err := h.hub.Register(c, participant.ID); err != nil {
			return err
		}
		c.participantID = participant.ID
		if err := h.presence.Online(ctx, participant.ID, c.id); err != nil {
			h.log.Warn("failed to mark participant online", zap.String("participant_id", participant.ID), zap.Error(err))
		}
		c.reply(relay.EventRegistered, relay.Registered{ParticipantID: participant.ID, SessionID: c.id})
		return nil

	case relay.EventJoinConversationChannel:
		var p conversationPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if err := h.hub.JoinConversationChannel(ctx, c, p.ConversationID); err != nil {
			return err
		}
		c.reply(relay.EventJoinedConversationChannel, relay.JoinedConversationChannel{ConversationID: p.ConversationID})
		return nil

	case relay.EventPublishMessage:
		if c.participantID == "" {
			return relay.ErrNotRegistered
		}
		var p publishPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		_, err := h.chat.Republish(ctx, p.Message.ID, c.participantID)
		return err

	case relay.EventTyping:
		if c.participantID == "" {
			return relay.ErrNotRegistered
		}
		var p conversationPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if !h.hub.InChannel(c.id, relay.ConversationChannel(p.ConversationID)) {
			return apperrors.New(apperrors.KindForbidden, "join the conversation channel first")
		}
		event, err := relay.NewEnvelope(relay.EventTyping, relay.Typing{ConversationID: p.ConversationID, ParticipantID: c.participantID})
		if err != nil {
			return err
		}
		h.hub.BroadcastConversation(p.ConversationID, event, c.participantID)
		return nil

	default:
		return apperrors.Newf(apperrors.KindInvalidArgument, "unknown event type %q", envelope.Type)
	}
}

func decodePayload(envelope relay.Envelope, v any) error {
	if len(envelope.Payload) == 0 {
		return apperrors.Newf(apperrors.KindInvalidArgument, "%s requires a payload", envelope.Type)
	}
	if err := json.Unmarshal(envelope.Payload, v); err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArgument, "malformed "+envelope.Type+" payload", err)
	}
	return nil
}

func (c *Client) reply(eventType string, payload any) {
	envelope, err := relay.NewEnvelope(eventType, payload)
	if err != nil {
		c.handler.log.Error("failed to encode reply", zap.String("type", eventType), zap.Error(err))
		return
	}
	if !c.Send(envelope) {
		c.handler.log.Warn("reply dropped", zap.String("session_id", c.id), zap.String("type", eventType))
	}
}

func (c *Client) replyError(err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal || apperrors.KindOf(err) == apperrors.KindTransient {
		c.handler.log.Error("websocket event failed", zap.String("session_id", c.id), zap.Error(err))
	}
	c.reply(relay.EventError, relay.ErrorPayload{
		Code:    apperrors.KindOf(err).String(),
		Message: apperrors.Message(err),
	})
}
