package model

import "time"

// ActionStaffAwaiting is the action type of hand-off notifications.
const ActionStaffAwaiting = "staffAwaiting"

// Notification asks a staff member to take over a conversation.
type Notification struct {
	ID             string    `json:"id"`
	To             string    `json:"to"`
	From           string    `json:"from"`
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Accept         string    `json:"accept,omitempty"`
	Decline        string    `json:"decline,omitempty"`
	ActionType     string    `json:"action_type"`
	StaffRoster    []string  `json:"staff_roster"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}
