package services

import (
	"context"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"
	"eventflex_back_end_go/relay"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	defaultResolveTimeout = 5 * time.Second

	// how many delivered message ids are remembered to suppress repeat relays
	relayedCapacity = 4096
)

// Publisher fans an event out to the live sessions of a conversation's
// participants. *relay.Hub implements it.
type Publisher interface {
	Publish(event relay.Envelope, conversation models.Conversation, excludeParticipant string) int
}

type SubmitInput struct {
	ConversationID  uuid.UUID
	SenderID        string
	Text            string
	ClientMessageID string
}

// ChatService is the submission flow: persist first, then relay to whoever
// is online. Relay is best-effort and never undoes a persisted message.
type ChatService struct {
	conversations  *ConversationService
	messages       *MessageService
	publisher      Publisher
	relayed        *lru.Cache
	resolveTimeout time.Duration
	log            *zap.Logger
}

func NewChatService(conversations *ConversationService, messages *MessageService, publisher Publisher, log *zap.Logger) *ChatService {
	relayed, err := lru.New(relayedCapacity)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &ChatService{
		conversations:  conversations,
		messages:       messages,
		publisher:      publisher,
		relayed:        relayed,
		resolveTimeout: defaultResolveTimeout,
		log:            log.Named("chat"),
	}
}

// Submit stores the message and publishes messageReceived to the other
// participant. A replayed client id returns the stored message with
// created=false and publishes nothing.
func (s *ChatService) Submit(ctx context.Context, in SubmitInput) (view models.MessageView, created bool, err error) {
	message, created, err := s.messages.Append(ctx, AppendInput(in))
	if err != nil {
		return models.MessageView{}, false, err
	}

	// The message is durable from here on: a disconnecting client must not
	// stop the relay attempt.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.resolveTimeout)
	defer cancel()

	view, err = s.messages.Resolve(rctx, message)
	if err != nil {
		s.log.Warn("failed to resolve sender",
			zap.String("message_id", message.ID.String()),
			zap.Error(err))
		view = models.MessageView{Message: message, Sender: models.UnknownParticipant(message.SenderID)}
	}
	if !created {
		return view, false, nil
	}

	if _, err := s.publish(rctx, view); err != nil {
		s.log.Warn("failed to relay message",
			zap.String("message_id", message.ID.String()),
			zap.String("conversation_id", message.ConversationID.String()),
			zap.Error(err))
	}
	return view, true, nil
}

// Republish relays an already persisted message. Only its sender may trigger
// it, and the payload always comes from the store. A message that already
// reached a live session of the recipient is not delivered again.
func (s *ChatService) Republish(ctx context.Context, messageID uuid.UUID, requester string) (int, error) {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if message.SenderID != requester {
		return 0, apperrors.New(apperrors.KindForbidden, "only the sender may publish this message")
	}
	view, err := s.messages.Resolve(ctx, message)
	if err != nil {
		return 0, err
	}
	return s.publish(ctx, view)
}

// History returns the conversation's messages to one of its participants.
func (s *ChatService) History(ctx context.Context, conversationID uuid.UUID, requester string) ([]models.MessageView, error) {
	member, err := s.conversations.IsParticipant(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperrors.New(apperrors.KindForbidden, "participant does not belong to this conversation")
	}
	return s.messages.ListFor(ctx, conversationID)
}

func (s *ChatService) publish(ctx context.Context, message models.MessageView) (int, error) {
	if s.relayed.Contains(message.ID) {
		s.log.Debug("message already relayed", zap.String("message_id", message.ID.String()))
		return 0, nil
	}

	conversation, conversationView, err := s.conversations.Lookup(ctx, message.ConversationID)
	if err != nil {
		if conversation.ID == uuid.Nil {
			return 0, err
		}
		s.log.Warn("relaying without participant details",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		conversationView = models.ConversationView{
			Conversation: conversation,
			Participants: []models.Participant{
				models.UnknownParticipant(conversation.ParticipantIDs[0]),
				models.UnknownParticipant(conversation.ParticipantIDs[1]),
			},
		}
	}
	event, err := relay.NewEnvelope(relay.EventMessageReceived, relay.MessageReceived{
		Message:      message,
		Conversation: conversationView,
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, "encoding messageReceived", err)
	}

	delivered := s.publisher.Publish(event, conversation, message.SenderID)
	if delivered > 0 {
		s.relayed.Add(message.ID, struct{}{})
	}
	s.log.Debug("message relayed",
		zap.String("message_id", message.ID.String()),
		zap.String("recipient_id", conversation.Other(message.SenderID)),
		zap.Int("sessions", delivered))
	return delivered, nil
}
