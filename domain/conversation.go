package domain

import (
	"time"

	"github.com/samber/lo"
)

// Conversation ties a ticket to its fixed participant set (client and
// accepting agent). Membership is owned by the ticketing flow; the
// messaging core only reads it to authorize join and send.
type Conversation struct {
	ID             ConversationID
	TicketID       string
	ParticipantIDs []string
	CreatedAt      time.Time
}

func (c Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.ParticipantIDs, userID)
}
