package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/db"
	"eventflex_back_end_go/mocks"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var (
	alice = models.Participant{ID: "alice", DisplayName: "Alice Planner", Role: models.RoleOrganizer}
	bob   = models.Participant{ID: "bob", DisplayName: "Bob's Catering", Role: models.RoleVendor}
)

// tickingClock advances one millisecond per reading so ordering by time is deterministic.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newMemoryStore(t *testing.T) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStoreWithClock(tickingClock())
	ctx := context.Background()
	require.NoError(t, store.UpsertParticipant(ctx, alice))
	require.NoError(t, store.UpsertParticipant(ctx, bob))
	return store
}

func newMemoryConversations(t *testing.T) (*ConversationService, *db.MemoryStore) {
	t.Helper()
	store := newMemoryStore(t)
	return NewConversationService(store, store, store, zap.NewNop()), store
}

func TestConversationService_GetOrCreate_IsOrderInsensitive(t *testing.T) {
	req := require.New(t)
	svc, _ := newMemoryConversations(t)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)
	second, err := svc.GetOrCreate(ctx, "bob", "alice")
	req.NoError(err)

	req.Equal(first.ID, second.ID)
	req.Equal([2]string{"alice", "bob"}, first.ParticipantIDs)
	req.Equal([]models.Participant{alice, bob}, first.Participants)
	req.Nil(first.LatestMessage)
	req.Nil(first.LatestMessageID)
}

func TestConversationService_GetOrCreate_InvalidArguments(t *testing.T) {
	svc, store := newMemoryConversations(t)
	ctx := context.Background()

	for name, pair := range map[string][2]string{
		"same participant": {"alice", "alice"},
		"blank first":      {"", "bob"},
		"blank second":     {"alice", "  "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.GetOrCreate(ctx, pair[0], pair[1])
			require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}

	list, err := store.ListConversationsFor(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestConversationService_GetOrCreate_ConcurrentCallersShareOneConversation(t *testing.T) {
	req := require.New(t)
	svc, store := newMemoryConversations(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			view, err := svc.GetOrCreate(ctx, a, b)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = view.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		req.Equal(ids[0], id)
	}
	list, err := store.ListConversationsFor(ctx, "bob")
	req.NoError(err)
	req.Len(list, 1)
}

func TestConversationService_GetOrCreate_FallsBackToLookupOnConflict(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conversations := mocks.NewMockConversationRepository(ctrl)
	messages := mocks.NewMockMessageRepository(ctrl)
	participants := mocks.NewMockParticipantDirectory(ctrl)
	svc := NewConversationService(conversations, messages, participants, zap.NewNop())

	pair := [2]string{"alice", "bob"}
	existing := models.Conversation{ID: uuid.New(), ParticipantIDs: pair}

	gomock.InOrder(
		conversations.EXPECT().FindConversationByPair(gomock.Any(), pair).
			Return(models.Conversation{}, apperrors.New(apperrors.KindNotFound, "conversation not found")),
		conversations.EXPECT().InsertConversation(gomock.Any(), models.Conversation{ParticipantIDs: pair}).
			Return(models.Conversation{}, apperrors.New(apperrors.KindConflict, "duplicate key")),
		conversations.EXPECT().FindConversationByPair(gomock.Any(), pair).Return(existing, nil),
	)
	messages.EXPECT().GetMessages(gomock.Any(), gomock.Len(0)).Return(map[uuid.UUID]models.Message{}, nil)
	participants.EXPECT().GetParticipants(gomock.Any(), []string{"alice", "bob"}).
		Return(map[string]models.Participant{"alice": alice}, nil)

	view, err := svc.GetOrCreate(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Equal(existing.ID, view.ID)
	req.Equal([]models.Participant{alice, models.UnknownParticipant("bob")}, view.Participants)
}

func TestConversationService_GetOrCreate_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	conversations := mocks.NewMockConversationRepository(ctrl)
	svc := NewConversationService(conversations, mocks.NewMockMessageRepository(ctrl), mocks.NewMockParticipantDirectory(ctrl), zap.NewNop())

	conversations.EXPECT().FindConversationByPair(gomock.Any(), gomock.Any()).
		Return(models.Conversation{}, apperrors.New(apperrors.KindTransient, "connection refused"))

	_, err := svc.GetOrCreate(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, apperrors.ErrTransient)
}

func TestConversationService_ListFor_ResolvesLatestMessage(t *testing.T) {
	req := require.New(t)
	svc, store := newMemoryConversations(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertParticipant(ctx, models.Participant{ID: "carol", DisplayName: "Carol Florals"}))

	withBob, err := svc.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)
	withCarol, err := svc.GetOrCreate(ctx, "alice", "carol")
	req.NoError(err)

	_, _, err = store.AppendMessage(ctx, models.Message{ConversationID: withBob.ID, SenderID: "bob", Text: "quote attached"})
	req.NoError(err)

	views, err := svc.ListFor(ctx, "alice")
	req.NoError(err)
	req.Len(views, 2)
	req.Equal(withBob.ID, views[0].ID)
	req.Equal(withCarol.ID, views[1].ID)
	req.NotNil(views[0].LatestMessage)
	req.Equal("quote attached", views[0].LatestMessage.Text)
	req.Equal(bob, views[0].LatestMessage.Sender)
	req.Nil(views[1].LatestMessage)

	views, err = svc.ListFor(ctx, "dave")
	req.NoError(err)
	req.Empty(views)
}

func TestConversationService_Get(t *testing.T) {
	req := require.New(t)
	svc, _ := newMemoryConversations(t)
	ctx := context.Background()

	created, err := svc.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	view, err := svc.Get(ctx, created.ID, "bob")
	req.NoError(err)
	req.Equal(created.ID, view.ID)

	_, err = svc.Get(ctx, created.ID, "mallory")
	req.ErrorIs(err, apperrors.ErrForbidden)

	_, err = svc.Get(ctx, uuid.New(), "bob")
	req.ErrorIs(err, apperrors.ErrNotFound)

	member, err := svc.IsParticipant(ctx, created.ID, "alice")
	req.NoError(err)
	req.True(member)
	member, err = svc.IsParticipant(ctx, created.ID, "mallory")
	req.NoError(err)
	req.False(member)
}

func TestConversationService_Lookup(t *testing.T) {
	req := require.New(t)
	svc, _ := newMemoryConversations(t)
	ctx := context.Background()

	created, err := svc.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	conversation, view, err := svc.Lookup(ctx, created.ID)
	req.NoError(err)
	req.Equal(created.ID, conversation.ID)
	req.Equal([]models.Participant{alice, bob}, view.Participants)

	_, _, err = svc.Lookup(ctx, uuid.New())
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestConversationService_Lookup_KeepsConversationWhenViewFails(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conversations := mocks.NewMockConversationRepository(ctrl)
	messages := mocks.NewMockMessageRepository(ctrl)
	participants := mocks.NewMockParticipantDirectory(ctrl)
	svc := NewConversationService(conversations, messages, participants, zap.NewNop())

	stored := models.Conversation{ID: uuid.New(), ParticipantIDs: [2]string{"alice", "bob"}}
	conversations.EXPECT().GetConversation(gomock.Any(), stored.ID).Return(stored, nil)
	messages.EXPECT().GetMessages(gomock.Any(), gomock.Any()).Return(map[uuid.UUID]models.Message{}, nil)
	participants.EXPECT().GetParticipants(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.New(apperrors.KindTransient, "directory unavailable"))

	conversation, _, err := svc.Lookup(context.Background(), stored.ID)
	req.ErrorIs(err, apperrors.ErrTransient)
	req.Equal(stored.ID, conversation.ID)
}
