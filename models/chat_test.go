package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedPair_IsOrderInsensitive(t *testing.T) {
	req := require.New(t)
	req.Equal(SortedPair("alice", "bob"), SortedPair("bob", "alice"))
	req.Equal([2]string{"alice", "bob"}, SortedPair("bob", "alice"))
}

func TestConversation_Membership(t *testing.T) {
	req := require.New(t)
	c := Conversation{ParticipantIDs: SortedPair("vendor-7", "organizer-3")}

	req.True(c.HasParticipant("vendor-7"))
	req.True(c.HasParticipant("organizer-3"))
	req.False(c.HasParticipant("mallory"))
	req.Equal("vendor-7", c.Other("organizer-3"))
	req.Equal("organizer-3", c.Other("vendor-7"))
}
