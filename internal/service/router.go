package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chatbot-backend/internal/model"
	"chatbot-backend/internal/repository"

	"github.com/google/uuid"
)

// Interceptor takes over a bot turn after the inbound message is delivered.
type Interceptor interface {
	Intercept(ctx context.Context, conv *model.Conversation, msg *model.Message, requester model.Identity)
}

// Router turns inbound messages into persisted, fanned-out messages.
type Router struct {
	registry      *Registry
	conversations *ConversationService
	directory     IdentityDirectory
	bot           Interceptor

	// spawn runs bot turns; production runs them on their own goroutine.
	spawn func(func())
}

func NewRouter(registry *Registry, conversations *ConversationService, directory IdentityDirectory) *Router {
	return &Router{
		registry:      registry,
		conversations: conversations,
		directory:     directory,
		spawn:         func(f func()) { go f() },
	}
}

// SetInterceptor wires the bot engine.
func (r *Router) SetInterceptor(bot Interceptor) { r.bot = bot }

// Route handles one inbound message from connection connID.
func (r *Router) Route(ctx context.Context, connID string, in model.InboundMessage) (*model.Message, error) {
	sender, err := r.registry.Resolve(connID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" && in.ActionType == "" {
		return nil, &ValidationError{Field: "text"}
	}

	var conv *model.Conversation
	if in.ConversationID != "" {
		conv, err = r.conversations.Get(ctx, in.ConversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasRecipient(sender.ID) {
			return nil, ErrNotParticipant
		}
	} else {
		if len(in.Recipients) == 0 {
			return nil, &ValidationError{Field: "conversation_id"}
		}
		conv, err = r.conversations.FindOrCreate(ctx, sender, in.Recipients)
		if err != nil {
			return nil, err
		}
	}

	msg := &model.Message{
		Text:                in.Text,
		Link:                in.Link,
		ActionType:          in.ActionType,
		IsCommandMenuOption: in.IsCommandMenuOption,
	}
	if err := r.deliver(ctx, conv, sender, trueRecipients(conv, sender.ID, false), msg); err != nil {
		return nil, err
	}

	if r.shouldIntercept(conv, sender, msg) {
		turnCtx := context.WithoutCancel(ctx)
		r.spawn(func() { r.bot.Intercept(turnCtx, conv, msg, sender) })
	}
	return msg, nil
}

// SendAs persists and delivers a message authored by sender to audience.
// The bot engine uses it for every reply it emits.
func (r *Router) SendAs(ctx context.Context, conv *model.Conversation, sender model.Identity, audience []string, draft model.Message) (*model.Message, error) {
	msg := draft
	if err := r.deliver(ctx, conv, sender, audience, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendForce delivers a message to every human recipient regardless of the
// conversation's hand-off state.
func (r *Router) SendForce(ctx context.Context, conv *model.Conversation, sender model.Identity, text string) error {
	msg := &model.Message{Text: text, IsForce: true}
	return r.deliver(ctx, conv, sender, trueRecipients(conv, sender.ID, true), msg)
}

// deliver appends msg before fan-out; nothing is sent if the append fails.
func (r *Router) deliver(ctx context.Context, conv *model.Conversation, sender model.Identity, audience []string, msg *model.Message) error {
	msg.ID = uuid.NewString()
	msg.ConversationID = conv.ID
	msg.SenderID = sender.ID
	msg.SentAt = time.Now().UTC()
	msg.Recipients = make([]model.MessageRecipient, 0, len(audience))
	for _, id := range audience {
		msg.Recipients = append(msg.Recipients, model.MessageRecipient{ID: id, DisplayName: r.displayName(ctx, id)})
	}

	if err := r.conversations.Append(ctx, msg); err != nil {
		log.Printf("[Router] message to %s not delivered: %v", conv.ID, err)
		return err
	}
	conv.Messages = append(conv.Messages, *msg)

	for _, id := range audience {
		r.registry.EmitTo(id, model.EventMessageClient, model.MessageDelivery{
			Message:     *msg,
			UnreadCount: conv.UnreadCount(id),
		})
	}
	return nil
}

func (r *Router) shouldIntercept(conv *model.Conversation, sender model.Identity, msg *model.Message) bool {
	if r.bot == nil || !conv.IncludesBot() || conv.IsSupportedByStaff {
		return false
	}
	if sender.ID == conv.BusinessID {
		return false
	}
	// while staff is awaited the bot stays quiet unless forced
	return !conv.IsWaitingStaff || msg.IsForce
}

func (r *Router) displayName(ctx context.Context, identityID string) string {
	if c := r.registry.AnyConnectionFor(identityID); c != nil {
		if identity, err := r.registry.Resolve(c.ID); err == nil {
			return identity.DisplayName
		}
	}
	if r.directory != nil {
		identity, err := r.directory.Get(ctx, identityID)
		if err == nil && identity != nil {
			return identity.DisplayName
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[Router] identity lookup %s failed: %v", identityID, err)
		}
	}
	return identityID
}

// trueRecipients resolves who actually receives a message in conv.
//
// A conversation with the bot and no staff is a private bot turn: only the
// human side sees it. Once staff support the conversation, everyone but the
// bot receives it. Without the bot the literal recipient list is used.
func trueRecipients(conv *model.Conversation, humanID string, force bool) []string {
	if !conv.IncludesBot() {
		return append([]string(nil), conv.Recipients...)
	}
	if !force && !conv.IsSupportedByStaff {
		if humanID == conv.BusinessID {
			humanID = conv.CreatorID
		}
		return []string{humanID}
	}
	out := make([]string, 0, len(conv.Recipients))
	for _, id := range conv.Recipients {
		if id != conv.BusinessID {
			out = append(out, id)
		}
	}
	return out
}
