package service

import (
	"context"

	"chatbot-backend/internal/model"
)

// ConversationStore is the durable storage for conversations and their messages.
// Implementations return repository.ErrNotFound for unknown ids.
type ConversationStore interface {
	Load(ctx context.Context, id string) (*model.Conversation, error)
	Save(ctx context.Context, conv *model.Conversation) error
	FindByRecipients(ctx context.Context, businessID string, recipients []string) (*model.Conversation, error)
	ListForIdentity(ctx context.Context, identityID string) ([]model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	ClearMessages(ctx context.Context, conversationID string) error
}

// NotificationStore persists hand-off notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id string) (*model.Notification, error)
	FindByConversation(ctx context.Context, conversationID string) ([]model.Notification, error)
	FindByRecipient(ctx context.Context, to string) ([]model.Notification, error)
	FindByAuthor(ctx context.Context, from string) ([]model.Notification, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
	DeleteByAuthor(ctx context.Context, from string) (int64, error)
}

// BotSettingsProvider is the read-only bot configuration collaborator.
type BotSettingsProvider interface {
	GeneralSettings(ctx context.Context, businessID string) (*model.GeneralSettings, error)
	Commands(ctx context.Context, businessID string) ([]model.BotCommand, error)
}

// IdentityDirectory looks up identities that may not be connected right now.
type IdentityDirectory interface {
	Get(ctx context.Context, id string) (*model.Identity, error)
	StaffRoster(ctx context.Context, businessID string) ([]model.Identity, error)
}

// HandoffPublisher forwards hand-off lifecycle events to external consumers.
type HandoffPublisher interface {
	PublishHandoff(ctx context.Context, event HandoffEvent) error
}

// StaffAlerter mirrors escalations to an out-of-band staff channel.
type StaffAlerter interface {
	AlertEscalation(ctx context.Context, conv *model.Conversation, requester model.Identity, title string) error
}

// HandoffEvent is published whenever a hand-off request changes.
type HandoffEvent struct {
	Kind           string   `json:"kind"`
	ConversationID string   `json:"conversation_id"`
	BusinessID     string   `json:"business_id"`
	RequesterID    string   `json:"requester_id,omitempty"`
	StaffID        string   `json:"staff_id,omitempty"`
	StaffRoster    []string `json:"staff_roster,omitempty"`
}

const (
	HandoffRequested = "handoff.requested"
	HandoffAccepted  = "handoff.accepted"
	HandoffDeclined  = "handoff.declined"
)

type noopPublisher struct{}

func (noopPublisher) PublishHandoff(context.Context, HandoffEvent) error { return nil }

type noopAlerter struct{}

func (noopAlerter) AlertEscalation(context.Context, *model.Conversation, model.Identity, string) error {
	return nil
}
