package model

import "encoding/json"

type WSEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound socket events.
const (
	EventConversationMessage = "conversation/message"
	EventBotSendGreeting     = "bot/sendGreeting"
	EventStaffAccept         = "conversation/staff/accept"
	EventStaffDecline        = "conversation/staff/decline"
	EventPing                = "ping"
)

// Outbound socket events.
const (
	EventMessageClient          = "conversation/message/client"
	EventConversationUpdate     = "conversation/update"
	EventUserNotification       = "user/notification"
	EventNotificationListUpdate = "notification/list/update"
	EventUserConnection         = "user-connection"
	EventUserDisconnection      = "user-disconnection"
	EventPong                   = "pong"
	EventError                  = "error"
)

// MessageDelivery is the payload of conversation/message/client.
type MessageDelivery struct {
	Message     Message `json:"message"`
	UnreadCount int     `json:"unread_count"`
}

type ConversationUpdate struct {
	ConversationID string            `json:"conversation_id"`
	State          ConversationState `json:"state"`
}

type PresenceUpdate struct {
	Identity Identity   `json:"identity"`
	Online   []Identity `json:"online"`
}

type GreetingRequest struct {
	ConversationID string `json:"conversation_id"`
}

type StaffDecision struct {
	NotificationID string `json:"notification_id"`
}

type WSError struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
