package models

const (
	RoleOrganizer = "organizer"
	RoleVendor    = "vendor"
)

// Participant is owned by the identity provider; the messaging core only
// keeps what it needs to display conversations.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}

// UnknownParticipant is used when the directory has no record for an id.
func UnknownParticipant(id string) Participant {
	return Participant{ID: id, DisplayName: id}
}
