package relay

import (
	"encoding/json"

	"eventflex_back_end_go/models"

	"github.com/google/uuid"
)

// Envelope is the wire format of every realtime frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client -> server
const (
	EventRegister                = "register"
	EventJoinConversationChannel = "joinConversationChannel"
	EventPublishMessage          = "publishMessage"
	EventTyping                  = "typing"
)

// server -> client
const (
	EventRegistered                = "registered"
	EventJoinedConversationChannel = "joinedConversationChannel"
	EventMessageReceived           = "messageReceived"
	EventError                     = "error"
)

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

type MessageReceived struct {
	Message      models.MessageView      `json:"message"`
	Conversation models.ConversationView `json:"conversation"`
}

type Registered struct {
	ParticipantID string `json:"participantId"`
	SessionID     string `json:"sessionId"`
}

type JoinedConversationChannel struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type Typing struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ParticipantID  string    `json:"participantId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
