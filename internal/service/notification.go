package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatbot-backend/internal/model"
	"chatbot-backend/internal/repository"

	"github.com/google/uuid"
)

// Dispatcher creates hand-off notifications and resolves accept/decline.
//
// Accept and decline are delete-then-act: the caller that deletes the shared
// notification set wins, everyone else is a silent no-op.
type Dispatcher struct {
	store         NotificationStore
	registry      *Registry
	conversations *ConversationService
	directory     IdentityDirectory
	publisher     HandoffPublisher
}

func NewDispatcher(store NotificationStore, registry *Registry, conversations *ConversationService, directory IdentityDirectory, publisher HandoffPublisher) *Dispatcher {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Dispatcher{
		store:         store,
		registry:      registry,
		conversations: conversations,
		directory:     directory,
		publisher:     publisher,
	}
}

// Create validates, persists and pushes a notification to its target.
func (d *Dispatcher) Create(ctx context.Context, n *model.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := d.store.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	d.registry.EmitTo(n.To, model.EventUserNotification, n)
	return nil
}

// RequestHandoff notifies every staff member of roster about conv. Each
// notification shares the same roster. Failed creates are logged and skipped.
func (d *Dispatcher) RequestHandoff(ctx context.Context, conv *model.Conversation, requesterID, title string, roster []string) int {
	sent := d.issue(ctx, conv.ID, requesterID, title, roster)
	d.publish(ctx, HandoffEvent{
		Kind:           HandoffRequested,
		ConversationID: conv.ID,
		BusinessID:     conv.BusinessID,
		RequesterID:    requesterID,
		StaffRoster:    roster,
	})
	return sent
}

func (d *Dispatcher) issue(ctx context.Context, convID, from, title string, roster []string) int {
	sent := 0
	for _, staffID := range roster {
		n := &model.Notification{
			To:             staffID,
			From:           from,
			ConversationID: convID,
			Title:          title,
			Accept:         model.EventStaffAccept,
			Decline:        model.EventStaffDecline,
			ActionType:     model.ActionStaffAwaiting,
			StaffRoster:    append([]string(nil), roster...),
		}
		if err := d.Create(ctx, n); err != nil {
			log.Printf("[Notify] notification for %s on %s failed: %v", staffID, convID, err)
			continue
		}
		sent++
	}
	return sent
}

// Accept assigns staff to the notification's conversation if the hand-off is
// still pending.
func (d *Dispatcher) Accept(ctx context.Context, notificationID string, staff model.Identity) error {
	n, err := d.claim(ctx, notificationID, staff)
	if err != nil || n == nil {
		return err
	}

	conv, err := d.conversations.AssignStaff(ctx, n.ConversationID, staff)
	if err != nil {
		// the claim already removed the request; put it back for the roster
		if !errors.Is(err, ErrConversationNotFound) {
			d.issue(ctx, n.ConversationID, n.From, n.Title, n.StaffRoster)
			d.listChanged(n.ConversationID, append(n.StaffRoster, n.To))
		}
		return fmt.Errorf("assign staff: %w", err)
	}
	d.listChanged(n.ConversationID, append(n.StaffRoster, n.To))
	d.publish(ctx, HandoffEvent{
		Kind:           HandoffAccepted,
		ConversationID: conv.ID,
		BusinessID:     conv.BusinessID,
		RequesterID:    n.From,
		StaffID:        staff.ID,
	})
	return nil
}

// Decline withdraws staff from the hand-off. Copies for other staff are
// re-issued; when nobody else was pending the request goes to the current
// full roster instead of being dropped.
func (d *Dispatcher) Decline(ctx context.Context, notificationID string, staff model.Identity) error {
	if notificationID == "" {
		return &ValidationError{Field: "id"}
	}
	n, err := d.lookup(ctx, notificationID)
	if err != nil || n == nil {
		return err
	}
	pending, err := d.store.FindByConversation(ctx, n.ConversationID)
	if err != nil {
		return fmt.Errorf("find pending notifications: %w", err)
	}
	n, err = d.claim(ctx, notificationID, staff)
	if err != nil || n == nil {
		return err
	}

	seen := map[string]struct{}{staff.ID: {}}
	affected := []string{staff.ID}
	var remaining []string
	for _, p := range pending {
		if _, ok := seen[p.To]; ok {
			continue
		}
		seen[p.To] = struct{}{}
		remaining = append(remaining, p.To)
		affected = append(affected, p.To)
	}

	conv, err := d.conversations.Get(ctx, n.ConversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			d.listChanged(n.ConversationID, affected)
			return nil
		}
		return err
	}
	if !conv.IsWaitingStaff {
		d.listChanged(conv.ID, affected)
		return nil
	}

	targets := remaining
	if len(targets) == 0 {
		targets, err = d.currentRoster(ctx, conv.BusinessID, n.From)
		if err != nil {
			log.Printf("[Notify] roster for %s failed, request dropped: %v", conv.BusinessID, err)
		}
		log.Printf("[Notify] last decline on %s, redistributing to %d staff", conv.ID, len(targets))
	}
	d.issue(ctx, conv.ID, n.From, n.Title, targets)
	d.listChanged(conv.ID, affected)
	d.publish(ctx, HandoffEvent{
		Kind:           HandoffDeclined,
		ConversationID: conv.ID,
		BusinessID:     conv.BusinessID,
		RequesterID:    n.From,
		StaffID:        staff.ID,
		StaffRoster:    targets,
	})
	return nil
}

// CleanupOnDisconnect drops the hand-off requests identityID authored.
func (d *Dispatcher) CleanupOnDisconnect(ctx context.Context, identityID string) error {
	pending, err := d.store.FindByAuthor(ctx, identityID)
	if err != nil {
		return fmt.Errorf("find notifications by %s: %w", identityID, err)
	}
	if len(pending) == 0 {
		return nil
	}
	if _, err := d.store.DeleteByAuthor(ctx, identityID); err != nil {
		return fmt.Errorf("delete notifications by %s: %w", identityID, err)
	}
	for _, n := range pending {
		d.registry.EmitTo(n.To, model.EventNotificationListUpdate, NotificationListUpdate{ConversationID: n.ConversationID})
	}
	log.Printf("[Notify] dropped %d pending notifications of %s", len(pending), identityID)
	return nil
}

// List returns the pending notifications addressed to staffID.
func (d *Dispatcher) List(ctx context.Context, staffID string) ([]model.Notification, error) {
	list, err := d.store.FindByRecipient(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []model.Notification{}
	}
	return list, nil
}

// claim deletes every pending notification of the conversation behind
// notificationID. A nil notification means someone else got there first.
func (d *Dispatcher) claim(ctx context.Context, notificationID string, staff model.Identity) (*model.Notification, error) {
	if notificationID == "" {
		return nil, &ValidationError{Field: "id"}
	}
	if !staff.IsStaff() {
		return nil, ErrForbidden
	}
	n, err := d.lookup(ctx, notificationID)
	if err != nil || n == nil {
		return nil, err
	}
	if err := d.authorize(ctx, n, staff); err != nil {
		return nil, err
	}
	deleted, err := d.store.DeleteByConversation(ctx, n.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("delete notifications: %w", err)
	}
	if deleted == 0 {
		return nil, nil
	}
	return n, nil
}

// authorize allows only staff the request was addressed to, and only within
// the conversation's business.
func (d *Dispatcher) authorize(ctx context.Context, n *model.Notification, staff model.Identity) error {
	addressed := n.To == staff.ID
	for _, id := range n.StaffRoster {
		if id == staff.ID {
			addressed = true
			break
		}
	}
	if !addressed {
		return ErrForbidden
	}
	conv, err := d.conversations.Get(ctx, n.ConversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil
		}
		return err
	}
	if conv.BusinessID != staff.BusinessID {
		return ErrForbidden
	}
	return nil
}

func (d *Dispatcher) lookup(ctx context.Context, id string) (*model.Notification, error) {
	n, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return n, nil
}

func (d *Dispatcher) currentRoster(ctx context.Context, businessID, excludeID string) ([]string, error) {
	if d.directory == nil {
		return nil, nil
	}
	staff, err := d.directory.StaffRoster(ctx, businessID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(staff))
	for _, s := range staff {
		if s.ID != excludeID {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (d *Dispatcher) listChanged(convID string, staffIDs []string) {
	seen := make(map[string]struct{}, len(staffIDs))
	for _, id := range staffIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		d.registry.EmitTo(id, model.EventNotificationListUpdate, NotificationListUpdate{ConversationID: convID})
	}
}

func (d *Dispatcher) publish(ctx context.Context, event HandoffEvent) {
	if err := d.publisher.PublishHandoff(ctx, event); err != nil {
		log.Printf("[Notify] publish %s for %s failed: %v", event.Kind, event.ConversationID, err)
	}
}

func validateNotification(n *model.Notification) error {
	switch {
	case n.Title == "":
		return &ValidationError{Field: "title"}
	case n.ConversationID == "":
		return &ValidationError{Field: "conversationId"}
	case n.From == "":
		return &ValidationError{Field: "from"}
	case n.To == "":
		return &ValidationError{Field: "to"}
	case n.ActionType == "":
		return &ValidationError{Field: "actionType"}
	}
	return nil
}
