package services

import (
	"context"
	"errors"
	"strings"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ConversationService is the conversation directory: at most one
// conversation exists per unordered pair of participants.
type ConversationService struct {
	conversations ConversationRepository
	messages      MessageRepository
	participants  ParticipantDirectory
	log           *zap.Logger
}

func NewConversationService(conversations ConversationRepository, messages MessageRepository, participants ParticipantDirectory, log *zap.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		participants:  participants,
		log:           log.Named("conversations"),
	}
}

// GetOrCreate returns the conversation between a and b, creating it on first
// use. Calls with the arguments swapped return the same conversation.
func (s *ConversationService) GetOrCreate(ctx context.Context, a, b string) (models.ConversationView, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return models.ConversationView{}, apperrors.New(apperrors.KindInvalidArgument, "both participant ids are required")
	}
	if a == b {
		return models.ConversationView{}, apperrors.New(apperrors.KindInvalidArgument, "a conversation needs two distinct participants")
	}
	pair := models.SortedPair(a, b)

	conversation, err := s.conversations.FindConversationByPair(ctx, pair)
	switch {
	case err == nil:
		return s.View(ctx, conversation)
	case !errors.Is(err, apperrors.ErrNotFound):
		return models.ConversationView{}, err
	}

	conversation, err = s.conversations.InsertConversation(ctx, models.Conversation{ParticipantIDs: pair})
	if errors.Is(err, apperrors.ErrConflict) {
		// another request created the pair between our lookup and insert
		conversation, err = s.conversations.FindConversationByPair(ctx, pair)
	}
	if err != nil {
		return models.ConversationView{}, err
	}

	s.log.Info("conversation created",
		zap.String("conversation_id", conversation.ID.String()),
		zap.Strings("participants", pair[:]))
	return s.View(ctx, conversation)
}

// ListFor returns every conversation of participantID, most recently active first.
func (s *ConversationService) ListFor(ctx context.Context, participantID string) ([]models.ConversationView, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "participant id is required")
	}
	conversations, err := s.conversations.ListConversationsFor(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, conversations)
}

// Get returns one conversation to one of its participants.
func (s *ConversationService) Get(ctx context.Context, id uuid.UUID, requester string) (models.ConversationView, error) {
	conversation, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return models.ConversationView{}, err
	}
	if !conversation.HasParticipant(requester) {
		return models.ConversationView{}, apperrors.New(apperrors.KindForbidden, "participant does not belong to this conversation")
	}
	return s.View(ctx, conversation)
}

// IsParticipant reports whether participantID belongs to the conversation.
// An unknown conversation is reported as apperrors.ErrNotFound.
func (s *ConversationService) IsParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) (bool, error) {
	conversation, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conversation.HasParticipant(participantID), nil
}

// Lookup returns the stored conversation and its resolved view. When only the
// view fails, the stored conversation is still returned with the error.
func (s *ConversationService) Lookup(ctx context.Context, id uuid.UUID) (models.Conversation, models.ConversationView, error) {
	conversation, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return models.Conversation{}, models.ConversationView{}, err
	}
	view, err := s.View(ctx, conversation)
	if err != nil {
		return conversation, models.ConversationView{}, err
	}
	return conversation, view, nil
}

// View resolves the participants and latest message of one conversation.
func (s *ConversationService) View(ctx context.Context, conversation models.Conversation) (models.ConversationView, error) {
	views, err := s.views(ctx, []models.Conversation{conversation})
	if err != nil {
		return models.ConversationView{}, err
	}
	return views[0], nil
}

// views batches the message and participant lookups for a page of conversations.
func (s *ConversationService) views(ctx context.Context, conversations []models.Conversation) ([]models.ConversationView, error) {
	views := make([]models.ConversationView, 0, len(conversations))
	if len(conversations) == 0 {
		return views, nil
	}

	var latestIDs []uuid.UUID
	for _, c := range conversations {
		if c.LatestMessageID != nil {
			latestIDs = append(latestIDs, *c.LatestMessageID)
		}
	}
	latest, err := s.messages.GetMessages(ctx, latestIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(conversations)*2)
	for _, c := range conversations {
		ids = append(ids, c.ParticipantIDs[0], c.ParticipantIDs[1])
	}
	for _, m := range latest {
		ids = append(ids, m.SenderID)
	}
	directory, err := s.participants.GetParticipants(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}

	for _, c := range conversations {
		view := models.ConversationView{
			Conversation: c,
			Participants: []models.Participant{
				lookupParticipant(directory, c.ParticipantIDs[0]),
				lookupParticipant(directory, c.ParticipantIDs[1]),
			},
		}
		if c.LatestMessageID != nil {
			if m, ok := latest[*c.LatestMessageID]; ok {
				view.LatestMessage = &models.MessageView{Message: m, Sender: lookupParticipant(directory, m.SenderID)}
			} else {
				s.log.Warn("latest message missing",
					zap.String("conversation_id", c.ID.String()),
					zap.String("message_id", c.LatestMessageID.String()))
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func lookupParticipant(directory map[string]models.Participant, id string) models.Participant {
	if p, ok := directory[id]; ok {
		return p
	}
	return models.UnknownParticipant(id)
}
