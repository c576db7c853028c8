package relay

import (
	"context"
	"strings"
	"sync"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/metrics"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one live transport connection. Send must never block: it
// either queues the event or reports false.
type Session interface {
	ID() string
	Send(event Envelope) bool
}

// MembershipChecker answers whether a participant belongs to a conversation.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) (bool, error)
}

var (
	ErrNotRegistered       = apperrors.New(apperrors.KindUnauthenticated, "session is not registered")
	ErrParticipantMismatch = apperrors.New(apperrors.KindForbidden, "session is registered to another participant")
)

func PersonalChannel(participantID string) string {
	return "participant:" + participantID
}

func ConversationChannel(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

type member struct {
	session       Session
	participantID string
	channels      map[string]struct{}
}

type Stats struct {
	Sessions int `json:"sessions"`
	Channels int `json:"channels"`
}

// Hub is the process-wide relay table. It holds no durable state: losing it
// loses nothing but live delivery until clients register again.
type Hub struct {
	mu       sync.RWMutex
	members  map[string]*member
	channels map[string]map[string]Session

	membership MembershipChecker
	log        *zap.Logger
}

func NewHub(membership MembershipChecker, log *zap.Logger) *Hub {
	return &Hub{
		members:    make(map[string]*member),
		channels:   make(map[string]map[string]Session),
		membership: membership,
		log:        log.Named("relay"),
	}
}

// Register is the handshake: it binds the session to a participant and joins
// the participant's personal channel. Repeating it is a no-op.
func (h *Hub) Register(session Session, participantID string) error {
	if strings.TrimSpace(participantID) == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "participant id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.members[session.ID()]; ok {
		if m.participantID != participantID {
			return ErrParticipantMismatch
		}
		return nil
	}
	m := &member{session: session, participantID: participantID, channels: make(map[string]struct{})}
	h.members[session.ID()] = m
	h.join(m, PersonalChannel(participantID))
	metrics.RelaySessions.Inc()

	h.log.Debug("session registered",
		zap.String("session_id", session.ID()),
		zap.String("participant_id", participantID))
	return nil
}

// JoinConversationChannel subscribes a registered session to a conversation
// channel after checking that its participant belongs to the conversation.
func (h *Hub) JoinConversationChannel(ctx context.Context, session Session, conversationID uuid.UUID) error {
	participantID, ok := h.ParticipantOf(session.ID())
	if !ok {
		return ErrNotRegistered
	}

	allowed, err := h.membership.IsParticipant(ctx, conversationID, participantID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.New(apperrors.KindForbidden, "participant does not belong to this conversation")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[session.ID()]
	if !ok {
		// deregistered while the membership lookup was running
		return ErrNotRegistered
	}
	h.join(m, ConversationChannel(conversationID))
	return nil
}

// Publish delivers event to every live session of every participant of the
// conversation except excludeParticipant. It is fire-and-forget and returns
// the number of sessions that accepted the event.
func (h *Hub) Publish(event Envelope, conversation models.Conversation, excludeParticipant string) int {
	var targets []Session
	h.mu.RLock()
	for _, participantID := range conversation.ParticipantIDs {
		if participantID == excludeParticipant {
			continue
		}
		for _, s := range h.channels[PersonalChannel(participantID)] {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	return h.deliver(event, targets)
}

// BroadcastConversation delivers event to the sessions that joined the
// conversation channel, skipping those of excludeParticipant.
func (h *Hub) BroadcastConversation(conversationID uuid.UUID, event Envelope, excludeParticipant string) int {
	var targets []Session
	h.mu.RLock()
	for id, s := range h.channels[ConversationChannel(conversationID)] {
		if m, ok := h.members[id]; ok && m.participantID == excludeParticipant {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	return h.deliver(event, targets)
}

// Deregister removes the session from every channel it joined.
func (h *Hub) Deregister(session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[session.ID()]
	if !ok {
		return
	}
	for channel := range m.channels {
		sessions := h.channels[channel]
		delete(sessions, session.ID())
		if len(sessions) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(h.members, session.ID())
	metrics.RelaySessions.Dec()

	h.log.Debug("session deregistered",
		zap.String("session_id", session.ID()),
		zap.String("participant_id", m.participantID))
}

func (h *Hub) ParticipantOf(sessionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[sessionID]
	if !ok {
		return "", false
	}
	return m.participantID, true
}

func (h *Hub) InChannel(sessionID, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][sessionID]
	return ok
}

// SessionCount returns how many live sessions the participant has here.
func (h *Hub) SessionCount(participantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[PersonalChannel(participantID)])
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Sessions: len(h.members), Channels: len(h.channels)}
}

// join must be called with h.mu held for writing.
func (h *Hub) join(m *member, channel string) {
	sessions, ok := h.channels[channel]
	if !ok {
		sessions = make(map[string]Session)
		h.channels[channel] = sessions
	}
	sessions[m.session.ID()] = m.session
	m.channels[channel] = struct{}{}
}

func (h *Hub) deliver(event Envelope, targets []Session) int {
	delivered := 0
	for _, s := range targets {
		if s.Send(event) {
			delivered++
			continue
		}
		metrics.RelayDropped.WithLabelValues(event.Type).Inc()
		h.log.Warn("dropped relay event",
			zap.String("session_id", s.ID()),
			zap.String("type", event.Type))
	}
	if delivered > 0 {
		metrics.RelayDeliveries.WithLabelValues(event.Type).Add(float64(delivered))
	}
	return delivered
}
