package model

import "time"

// ActionLiveAgentTrigger marks a menu option that asks for a human.
const ActionLiveAgentTrigger = "liveAgentTrigger"

// MessageRecipient is the snapshot of who a message was delivered to.
type MessageRecipient struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Message is immutable once stored, except IsRead.
type Message struct {
	ID                  string             `json:"id"`
	ConversationID      string             `json:"conversation_id"`
	SenderID            string             `json:"sender_id"`
	Text                string             `json:"text"`
	Link                string             `json:"link,omitempty"`
	ActionType          string             `json:"action_type,omitempty"`
	SentAt              time.Time          `json:"sent_at"`
	IsRead              bool               `json:"is_read"`
	IsForce             bool               `json:"is_force"`
	IsCommandMenuOption bool               `json:"is_command_menu_option"`
	Recipients          []MessageRecipient `json:"recipients"`
}

// InboundMessage is the payload of a conversation/message socket event.
type InboundMessage struct {
	ConversationID      string   `json:"conversation_id"`
	Recipients          []string `json:"recipients,omitempty"`
	Text                string   `json:"text"`
	Link                string   `json:"link,omitempty"`
	ActionType          string   `json:"action_type,omitempty"`
	IsCommandMenuOption bool     `json:"is_command_menu_option,omitempty"`
}
