package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation binds exactly two participants to a shared message history.
// ParticipantIDs is always stored sorted so the pair is order-insensitive.
type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	ParticipantIDs  [2]string  `json:"participantIds"`
	LatestMessageID *uuid.UUID `json:"latestMessageId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SortedPair returns the canonical key of the unordered pair {a, b}.
func SortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

func (c Conversation) HasParticipant(participantID string) bool {
	return c.ParticipantIDs[0] == participantID || c.ParticipantIDs[1] == participantID
}

// Other returns the participant that is not participantID.
func (c Conversation) Other(participantID string) string {
	if c.ParticipantIDs[0] == participantID {
		return c.ParticipantIDs[1]
	}
	return c.ParticipantIDs[0]
}

type Message struct {
	ID              uuid.UUID `json:"id"`
	ConversationID  uuid.UUID `json:"conversationId"`
	SenderID        string    `json:"senderId"`
	Text            string    `json:"text"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`

	// Seq breaks createdAt ties in insertion order.
	Seq int64 `json:"-"`
}

// MessageView is a Message with its sender resolved for display.
type MessageView struct {
	Message
	Sender Participant `json:"sender"`
}

// ConversationView is a Conversation with its participants and latest
// message resolved for display.
type ConversationView struct {
	Conversation
	Participants  []Participant `json:"participants"`
	LatestMessage *MessageView  `json:"latestMessage"`
}
