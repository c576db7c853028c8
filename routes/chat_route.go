package routes

import (
	"errors"
	"net/http"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/auth"
	"eventflex_back_end_go/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createConversationRequest struct {
	OtherParticipantID string `json:"otherParticipantId" binding:"required"`
}

type sendMessageRequest struct {
	ConversationID  uuid.UUID `json:"conversationId" binding:"required"`
	Text            string    `json:"text"`
	ClientMessageID string    `json:"clientMessageId"`
}

type chatHandler struct {
	conversations *services.ConversationService
	chat          *services.ChatService
}

func SetupChatRoutes(r *gin.Engine, gate *auth.Gate, conversations *services.ConversationService, chat *services.ChatService) {
	h := &chatHandler{conversations: conversations, chat: chat}

	api := r.Group("/api/v1", gate.RequireParticipant())

	// Get or create the conversation with another participant
	api.POST("/conversations", h.createConversation)
	api.GET("/conversations", h.listConversations)
	api.GET("/conversations/:conversationId", h.getConversation)
	api.GET("/conversations/:conversationId/messages", h.listMessages)

	api.POST("/messages", h.sendMessage)
}

func (h *chatHandler) createConversation(c *gin.Context) {
	me, _ := auth.ParticipantFrom(c)
	var body createConversationRequest
	if !bindJSON(c, &body, "otherParticipantId is required") {
		return
	}
	view, err := h.conversations.GetOrCreate(c.Request.Context(), me.ID, body.OtherParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *chatHandler) listConversations(c *gin.Context) {
	me, _ := auth.ParticipantFrom(c)
	views, err := h.conversations.ListFor(c.Request.Context(), me.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *chatHandler) getConversation(c *gin.Context) {
	me, _ := auth.ParticipantFrom(c)
	id, ok := conversationParam(c)
	if !ok {
		return
	}
	view, err := h.conversations.Get(c.Request.Context(), id, me.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *chatHandler) listMessages(c *gin.Context) {
	me, _ := auth.ParticipantFrom(c)
	id, ok := conversationParam(c)
	if !ok {
		return
	}
	messages, err := h.chat.History(c.Request.Context(), id, me.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *chatHandler) sendMessage(c *gin.Context) {
	me, _ := auth.ParticipantFrom(c)
	var body sendMessageRequest
	if !bindJSON(c, &body, "invalid message format") {
		return
	}
	message, created, err := h.chat.Submit(c.Request.Context(), services.SubmitInput{
		ConversationID:  body.ConversationID,
		SenderID:        me.ID,
		Text:            body.Text,
		ClientMessageID: body.ClientMessageID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, message)
}

// bindJSON decodes the request body into body, answering 400 on failure.
func bindJSON(c *gin.Context, body any, invalid string) bool {
	err := c.ShouldBindJSON(body)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, apperrors.Newf(apperrors.KindInvalidArgument, "request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	respondError(c, apperrors.Wrap(apperrors.KindInvalidArgument, invalid, err))
	return false
}

func conversationParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		respondError(c, apperrors.New(apperrors.KindInvalidArgument, "conversationId must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}
