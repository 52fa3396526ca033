package pubsub

import (
	"time"

	"chatbot-backend/internal/service"

	"github.com/google/uuid"
)

// Meta describes one published event.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// HandoffData is the payload of every handoff.* event.
type HandoffData struct {
	ConversationID string   `json:"conversation_id"`
	BusinessID     string   `json:"business_id"`
	RequesterID    string   `json:"requester_id"`
	StaffID        string   `json:"staff_id,omitempty"`
	StaffRoster    []string `json:"staff_roster,omitempty"`
}

// Producer names this service in event metadata.
const Producer = "chatbot-backend"

// handoffEnvelope wraps event for the wire. Events of one conversation share
// its id as correlation id so consumers can stitch the hand-off together.
func handoffEnvelope(event service.HandoffEvent, now time.Time) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			Type:          event.Kind + ".v1",
			CorrelationID: event.ConversationID,
			Producer:      Producer,
			Time:          now.UTC(),
		},
		Data: HandoffData{
			ConversationID: event.ConversationID,
			BusinessID:     event.BusinessID,
			RequesterID:    event.RequesterID,
			StaffID:        event.StaffID,
			StaffRoster:    event.StaffRoster,
		},
	}
}
