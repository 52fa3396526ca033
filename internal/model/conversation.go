package model

import "time"

// ConversationState is derived from the two hand-off flags.
type ConversationState string

const (
	StateIdle             ConversationState = "idle"
	StateWaitingStaff     ConversationState = "waiting_staff"
	StateSupportedByStaff ConversationState = "supported_by_staff"
)

// Conversation is a persisted thread between a creator and a recipient set.
// Invariants: CreatorID is always in Recipients, and IsWaitingStaff and
// IsSupportedByStaff are never both true.
type Conversation struct {
	ID                 string    `json:"id"`
	CreatorID          string    `json:"creator_id"`
	BusinessID         string    `json:"business_id"`
	Recipients         []string  `json:"recipients"`
	Messages           []Message `json:"messages"`
	IsWaitingStaff     bool      `json:"is_waiting_staff"`
	IsSupportedByStaff bool      `json:"is_supported_by_staff"`
	IsWithAssistant    bool      `json:"is_with_assistant"`
	CreatedAt          time.Time `json:"created_at"`
}

func (c *Conversation) HasRecipient(identityID string) bool {
	for _, r := range c.Recipients {
		if r == identityID {
			return true
		}
	}
	return false
}

// AddRecipient appends identityID if absent and reports whether it was added.
func (c *Conversation) AddRecipient(identityID string) bool {
	if identityID == "" || c.HasRecipient(identityID) {
		return false
	}
	c.Recipients = append(c.Recipients, identityID)
	return true
}

// IncludesBot reports whether the business bot takes part in the conversation.
func (c *Conversation) IncludesBot() bool {
	return c.BusinessID != "" && c.HasRecipient(c.BusinessID)
}

func (c *Conversation) State() ConversationState {
	switch {
	case c.IsSupportedByStaff:
		return StateSupportedByStaff
	case c.IsWaitingStaff:
		return StateWaitingStaff
	default:
		return StateIdle
	}
}

// UnreadCount counts unread messages addressed to identityID by someone else.
func (c *Conversation) UnreadCount(identityID string) int {
	n := 0
	for _, m := range c.Messages {
		if m.SenderID != identityID && !m.IsRead {
			n++
		}
	}
	return n
}

// SameRecipients reports whether the conversation is between exactly the given set.
func (c *Conversation) SameRecipients(ids []string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	own := make(map[string]struct{}, len(c.Recipients))
	for _, id := range c.Recipients {
		own[id] = struct{}{}
	}
	if len(set) != len(own) {
		return false
	}
	for id := range set {
		if _, ok := own[id]; !ok {
			return false
		}
	}
	return true
}

// ConversationSummary is what conversation lists return to a participant.
type ConversationSummary struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}
