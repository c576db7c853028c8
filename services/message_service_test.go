package services

import (
	"context"
	"strings"
	"testing"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/mocks"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newMemoryServices(t *testing.T, maxLength int) (*ConversationService, *MessageService) {
	t.Helper()
	store := newMemoryStore(t)
	return NewConversationService(store, store, store, zap.NewNop()),
		NewMessageService(store, store, store, maxLength, zap.NewNop())
}

func TestMessageService_Append_AdvancesLatest(t *testing.T) {
	req := require.New(t)
	conversations, messages := newMemoryServices(t, 100)
	ctx := context.Background()

	conversation, err := conversations.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	first, created, err := messages.Append(ctx, AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: "  hi  "})
	req.NoError(err)
	req.True(created)
	req.Equal("hi", first.Text)

	second, _, err := messages.Append(ctx, AppendInput{ConversationID: conversation.ID, SenderID: "bob", Text: "hello"})
	req.NoError(err)
	req.False(second.CreatedAt.Before(first.CreatedAt))

	view, err := conversations.Get(ctx, conversation.ID, "alice")
	req.NoError(err)
	req.Equal(second.ID, *view.LatestMessageID)
	req.Equal(second.CreatedAt, view.UpdatedAt)
	req.False(view.UpdatedAt.Before(conversation.UpdatedAt))

	list, err := messages.ListFor(ctx, conversation.ID)
	req.NoError(err)
	req.Len(list, 2)
	req.Equal(first.ID, list[0].ID)
	req.Equal(alice, list[0].Sender)
	req.Equal(second.ID, list[1].ID)
	req.Equal(bob, list[1].Sender)
}

func TestMessageService_Append_RejectsWithoutStoring(t *testing.T) {
	conversations, messages := newMemoryServices(t, 10)
	ctx := context.Background()

	conversation, err := conversations.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	cases := []struct {
		name  string
		input AppendInput
		want  error
	}{
		{"empty text", AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: " \n\t "}, apperrors.ErrInvalidArgument},
		{"too long", AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: strings.Repeat("é", 11)}, apperrors.ErrInvalidArgument},
		{"client id too long", AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: "hi", ClientMessageID: strings.Repeat("k", MaxClientMessageIDLength+1)}, apperrors.ErrInvalidArgument},
		{"non participant", AppendInput{ConversationID: conversation.ID, SenderID: "mallory", Text: "hi"}, apperrors.ErrForbidden},
		{"unknown conversation", AppendInput{ConversationID: uuid.New(), SenderID: "alice", Text: "hi"}, apperrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := messages.Append(ctx, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}

	list, err := messages.ListFor(ctx, conversation.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	view, err := conversations.Get(ctx, conversation.ID, "alice")
	require.NoError(t, err)
	require.Nil(t, view.LatestMessageID)
}

func TestMessageService_Append_LengthCountsCharacters(t *testing.T) {
	conversations, messages := newMemoryServices(t, 3)
	ctx := context.Background()
	conversation, err := conversations.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, _, err = messages.Append(ctx, AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: "héé"})
	require.NoError(t, err)

	_, _, err = messages.Append(ctx, AppendInput{
		ConversationID:  conversation.ID,
		SenderID:        "alice",
		Text:            "ok",
		ClientMessageID: strings.Repeat("é", MaxClientMessageIDLength),
	})
	require.NoError(t, err)
}

func TestMessageService_Append_ReplaysClientMessageID(t *testing.T) {
	req := require.New(t)
	conversations, messages := newMemoryServices(t, 100)
	ctx := context.Background()
	conversation, err := conversations.GetOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	in := AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: "deposit sent", ClientMessageID: "c-1"}
	first, created, err := messages.Append(ctx, in)
	req.NoError(err)
	req.True(created)

	again, created, err := messages.Append(ctx, in)
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, again.ID)

	list, err := messages.ListFor(ctx, conversation.ID)
	req.NoError(err)
	req.Len(list, 1)
}

func TestMessageService_Append_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	conversations := mocks.NewMockConversationRepository(ctrl)
	messageRepo := mocks.NewMockMessageRepository(ctrl)
	svc := NewMessageService(conversations, messageRepo, mocks.NewMockParticipantDirectory(ctrl), 100, zap.NewNop())

	conversation := models.Conversation{ID: uuid.New(), ParticipantIDs: [2]string{"alice", "bob"}}
	conversations.EXPECT().GetConversation(gomock.Any(), conversation.ID).Return(conversation, nil)
	messageRepo.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).
		Return(models.Message{}, false, apperrors.New(apperrors.KindTransient, "connection reset"))

	_, created, err := svc.Append(context.Background(), AppendInput{ConversationID: conversation.ID, SenderID: "alice", Text: "hi"})
	require.ErrorIs(t, err, apperrors.ErrTransient)
	require.False(t, created)
}

func TestMessageService_ListFor_UnknownConversation(t *testing.T) {
	_, messages := newMemoryServices(t, 100)
	_, err := messages.ListFor(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
