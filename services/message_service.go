package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/metrics"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MaxClientMessageIDLength bounds the idempotency key so it stays indexable.
const MaxClientMessageIDLength = 128

type AppendInput struct {
	ConversationID  uuid.UUID
	SenderID        string
	Text            string
	ClientMessageID string
}

// MessageService is the message store. Messages are immutable once appended.
type MessageService struct {
	conversations ConversationRepository
	messages      MessageRepository
	participants  ParticipantDirectory
	maxLength     int
	log           *zap.Logger
}

func NewMessageService(conversations ConversationRepository, messages MessageRepository, participants ParticipantDirectory, maxLength int, log *zap.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		participants:  participants,
		maxLength:     maxLength,
		log:           log.Named("messages"),
	}
}

// Append persists a message and advances the conversation's latest pointer.
// created is false when an earlier message with the same client id was
// returned instead of storing a new one.
func (s *MessageService) Append(ctx context.Context, in AppendInput) (message models.Message, created bool, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return models.Message{}, false, apperrors.New(apperrors.KindInvalidArgument, "message text must not be empty")
	}
	if s.maxLength > 0 && utf8.RuneCountInString(text) > s.maxLength {
		return models.Message{}, false, apperrors.Newf(apperrors.KindInvalidArgument, "message text exceeds %d characters", s.maxLength)
	}
	if strings.TrimSpace(in.SenderID) == "" {
		return models.Message{}, false, apperrors.New(apperrors.KindInvalidArgument, "sender id is required")
	}
	clientMessageID := strings.TrimSpace(in.ClientMessageID)
	if utf8.RuneCountInString(clientMessageID) > MaxClientMessageIDLength {
		return models.Message{}, false, apperrors.Newf(apperrors.KindInvalidArgument, "clientMessageId exceeds %d characters", MaxClientMessageIDLength)
	}

	conversation, err := s.conversations.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return models.Message{}, false, err
	}
	if !conversation.HasParticipant(in.SenderID) {
		return models.Message{}, false, apperrors.New(apperrors.KindForbidden, "sender is not a participant of this conversation")
	}

	message, created, err = s.messages.AppendMessage(ctx, models.Message{
		ConversationID:  in.ConversationID,
		SenderID:        in.SenderID,
		Text:            text,
		ClientMessageID: clientMessageID,
	})
	if err != nil {
		s.log.Error("failed to append message",
			zap.String("conversation_id", in.ConversationID.String()),
			zap.String("sender_id", in.SenderID),
			zap.Error(err))
		return models.Message{}, false, err
	}
	if created {
		metrics.MessagesPersisted.Inc()
	}
	return message, created, nil
}

func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (models.Message, error) {
	return s.messages.GetMessage(ctx, id)
}

// ListFor returns the conversation's messages oldest first with senders resolved.
func (s *MessageService) ListFor(ctx context.Context, conversationID uuid.UUID) ([]models.MessageView, error) {
	messages, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	senders := lo.Uniq(lo.Map(messages, func(m models.Message, _ int) string { return m.SenderID }))
	directory, err := s.participants.GetParticipants(ctx, senders)
	if err != nil {
		return nil, err
	}

	return lo.Map(messages, func(m models.Message, _ int) models.MessageView {
		return models.MessageView{Message: m, Sender: lookupParticipant(directory, m.SenderID)}
	}), nil
}

// Resolve attaches the sender's display details to one message.
func (s *MessageService) Resolve(ctx context.Context, message models.Message) (models.MessageView, error) {
	directory, err := s.participants.GetParticipants(ctx, []string{message.SenderID})
	if err != nil {
		return models.MessageView{}, err
	}
	return models.MessageView{Message: message, Sender: lookupParticipant(directory, message.SenderID)}, nil
}
