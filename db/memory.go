package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
)

type clientKey struct {
	conversationID  uuid.UUID
	senderID        string
	clientMessageID string
}

// MemoryStore keeps conversations and messages in process memory. It honours
// the same constraints as the PostgreSQL schema and backs the memory driver
// and the service tests.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	participants   map[string]models.Participant
	conversations  map[uuid.UUID]models.Conversation
	pairs          map[[2]string]uuid.UUID
	messages       map[uuid.UUID]models.Message
	byConversation map[uuid.UUID][]uuid.UUID
	clientIDs      map[clientKey]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:            now,
		participants:   make(map[string]models.Participant),
		conversations:  make(map[uuid.UUID]models.Conversation),
		pairs:          make(map[[2]string]uuid.UUID),
		messages:       make(map[uuid.UUID]models.Message),
		byConversation: make(map[uuid.UUID][]uuid.UUID),
		clientIDs:      make(map[clientKey]uuid.UUID),
	}
}

func (s *MemoryStore) UpsertParticipant(_ context.Context, participant models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[participant.ID] = participant
	return nil
}

func (s *MemoryStore) GetParticipants(_ context.Context, ids []string) (map[string]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		if p, ok := s.participants[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (s *MemoryStore) FindConversationByPair(_ context.Context, pair [2]string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[pair]
	if !ok {
		return models.Conversation{}, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}
	return s.conversations[id], nil
}

func (s *MemoryStore) InsertConversation(_ context.Context, conversation models.Conversation) (models.Conversation, error) {
	pair := conversation.ParticipantIDs
	if pair[0] >= pair[1] {
		return models.Conversation{}, apperrors.New(apperrors.KindInvalidArgument, "participant pair must be sorted and distinct")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pairs[pair]; exists {
		return models.Conversation{}, apperrors.New(apperrors.KindConflict, "conversation already exists for this pair")
	}
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	now := s.now().UTC()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.UpdatedAt.IsZero() {
		conversation.UpdatedAt = conversation.CreatedAt
	}
	conversation.LatestMessageID = nil
	s.conversations[conversation.ID] = conversation
	s.pairs[pair] = conversation.ID
	return conversation, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id uuid.UUID) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}
	return c, nil
}

func (s *MemoryStore) ListConversationsFor(_ context.Context, participantID string) ([]models.Conversation, error) {
	s.mu.RLock()
	var list []models.Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(participantID) {
			list = append(list, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
	return list, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, message models.Message) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[message.ConversationID]
	if !ok {
		return models.Message{}, false, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}
	if !conversation.HasParticipant(message.SenderID) {
		return models.Message{}, false, apperrors.New(apperrors.KindForbidden, "sender is not a participant of this conversation")
	}

	var key clientKey
	if message.ClientMessageID != "" {
		key = clientKey{message.ConversationID, message.SenderID, message.ClientMessageID}
		if id, seen := s.clientIDs[key]; seen {
			return s.messages[id], false, nil
		}
	}

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	createdAt := s.now().UTC()
	if createdAt.Before(conversation.UpdatedAt) {
		createdAt = conversation.UpdatedAt
	}
	s.seq++
	message.Seq = s.seq
	message.CreatedAt = createdAt

	s.messages[message.ID] = message
	s.byConversation[message.ConversationID] = append(s.byConversation[message.ConversationID], message.ID)
	if message.ClientMessageID != "" {
		s.clientIDs[key] = message.ID
	}

	latest := message.ID
	conversation.LatestMessageID = &latest
	conversation.UpdatedAt = createdAt
	s.conversations[conversation.ID] = conversation
	return message, true, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id uuid.UUID) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return models.Message{}, apperrors.New(apperrors.KindNotFound, "message not found")
	}
	return m, nil
}

func (s *MemoryStore) GetMessages(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[uuid.UUID]models.Message, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			found[id] = m
		}
	}
	return found, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}
	ids := s.byConversation[conversationID]
	list := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.messages[id])
	}
	return list, nil
}
