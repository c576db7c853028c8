//go:generate go run go.uber.org/mock/mockgen -source=repositories.go -destination=../mocks/mock_repositories.go -package=mocks
package services

import (
	"context"

	"eventflex_back_end_go/models"

	"github.com/google/uuid"
)

// ConversationRepository persists conversations. InsertConversation must fail
// with apperrors.ErrConflict when the unordered pair already exists.
type ConversationRepository interface {
	FindConversationByPair(ctx context.Context, pair [2]string) (models.Conversation, error)
	InsertConversation(ctx context.Context, conversation models.Conversation) (models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error)
	ListConversationsFor(ctx context.Context, participantID string) ([]models.Conversation, error)
}

// MessageRepository persists messages. AppendMessage stores the message and
// moves the conversation's latest pointer in one transaction; the bool is
// false when an earlier message with the same client id was returned instead.
type MessageRepository interface {
	AppendMessage(ctx context.Context, message models.Message) (models.Message, bool, error)
	GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error)
	GetMessages(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
}

// ParticipantDirectory resolves display details. Unknown ids are simply
// absent from the returned map.
type ParticipantDirectory interface {
	GetParticipants(ctx context.Context, ids []string) (map[string]models.Participant, error)
	UpsertParticipant(ctx context.Context, participant models.Participant) error
}
