package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"chatbot-backend/internal/model"
	"chatbot-backend/internal/repository"

	"github.com/google/uuid"
)

// MessageSender delivers synthetic messages produced by state transitions.
type MessageSender interface {
	SendForce(ctx context.Context, conv *model.Conversation, sender model.Identity, text string) error
}

// NotificationListUpdate tells staff clients to re-fetch their notifications.
type NotificationListUpdate struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationService owns conversation aggregates and their hand-off state.
type ConversationService struct {
	store         ConversationStore
	notifications NotificationStore
	registry      *Registry
	settings      BotSettingsProvider
	sender        MessageSender

	// durationUnit scales GeneralSettings.LiveChatDuration.
	durationUnit time.Duration

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewConversationService(store ConversationStore, notifications NotificationStore, registry *Registry, settings BotSettingsProvider) *ConversationService {
	return &ConversationService{
		store:         store,
		notifications: notifications,
		registry:      registry,
		settings:      settings,
		durationUnit:  time.Minute,
		timers:        make(map[string]*time.Timer),
	}
}

// SetSender wires the router used for "connected"/"disconnected" messages.
func (s *ConversationService) SetSender(sender MessageSender) { s.sender = sender }

func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, &ValidationError{Field: "conversation_id"}
	}
	conv, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return conv, nil
}

// GetFor loads a conversation on behalf of identity. Staff of the owning
// business may read any of its conversations.
func (s *ConversationService) GetFor(ctx context.Context, id string, identity model.Identity) (*model.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(conv, identity) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// FindOrCreate returns the conversation between creator and recipients,
// creating it on first exchange. Conversations are matched by recipient set.
func (s *ConversationService) FindOrCreate(ctx context.Context, creator model.Identity, recipients []string) (*model.Conversation, error) {
	set := normalizeRecipients(creator.ID, recipients)
	if len(set) < 2 {
		return nil, &ValidationError{Field: "recipients"}
	}

	conv, err := s.store.FindByRecipients(ctx, creator.BusinessID, set)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = &model.Conversation{
		ID:         uuid.NewString(),
		CreatorID:  creator.ID,
		BusinessID: creator.BusinessID,
		Recipients: set,
		Messages:   []model.Message{},
		CreatedAt:  time.Now().UTC(),
	}
	conv.IsWithAssistant = conv.IncludesBot()
	if err := s.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	log.Printf("[Conversation] created %s by %s with %d recipients", conv.ID, creator.ID, len(set))
	return conv, nil
}

func (s *ConversationService) ListFor(ctx context.Context, identityID string) ([]model.ConversationSummary, error) {
	convs, err := s.store.ListForIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, model.ConversationSummary{Conversation: c, UnreadCount: c.UnreadCount(identityID)})
	}
	return out, nil
}

// Append durably stores msg. Unknown conversations are reported, not created.
func (s *ConversationService) Append(ctx context.Context, msg *model.Message) error {
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ReadMessages marks everything addressed to readerID as read.
func (s *ConversationService) ReadMessages(ctx context.Context, convID string, reader model.Identity) error {
	conv, err := s.GetFor(ctx, convID, reader)
	if err != nil {
		return err
	}
	if _, err := s.store.MarkRead(ctx, convID, reader.ID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	s.registry.EmitTo(reader.ID, model.EventConversationUpdate, updateFor(conv))
	return nil
}

// RequestStaff moves an idle conversation to WaitingStaff.
func (s *ConversationService) RequestStaff(ctx context.Context, conv *model.Conversation) error {
	if conv.IsSupportedByStaff || conv.IsWaitingStaff {
		return nil
	}
	conv.IsWaitingStaff = true
	if err := s.store.Save(ctx, conv); err != nil {
		conv.IsWaitingStaff = false
		return fmt.Errorf("save waiting flag: %w", err)
	}
	s.broadcastUpdate(conv)
	return nil
}

// AssignStaff moves the conversation to SupportedByStaff with staff as a recipient.
func (s *ConversationService) AssignStaff(ctx context.Context, convID string, staff model.Identity) (*model.Conversation, error) {
	if !staff.IsStaff() {
		return nil, ErrForbidden
	}
	conv, err := s.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.BusinessID != staff.BusinessID {
		return nil, ErrForbidden
	}

	added := conv.AddRecipient(staff.ID)
	if conv.IsSupportedByStaff && !added {
		return conv, nil
	}
	conv.IsWaitingStaff = false
	conv.IsSupportedByStaff = true
	if err := s.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save staff assignment: %w", err)
	}
	log.Printf("[Conversation] %s supported by %s", conv.ID, staff.ID)

	s.broadcastUpdate(conv)
	s.sendForce(ctx, conv, staff, staff.DisplayName+" connected!")
	s.scheduleAutoEnd(ctx, conv, staff)
	return conv, nil
}

// EndSupport releases the conversation back to Idle. It is a no-op when the
// conversation is not staff-supported.
func (s *ConversationService) EndSupport(ctx context.Context, convID string, staff model.Identity) error {
	s.cancelTimer(convID)
	return s.endSupport(ctx, convID, staff)
}

func (s *ConversationService) endSupport(ctx context.Context, convID string, staff model.Identity) error {
	conv, err := s.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsSupportedByStaff {
		return nil
	}
	conv.IsSupportedByStaff = false
	if err := s.store.Save(ctx, conv); err != nil {
		return fmt.Errorf("save end support: %w", err)
	}
	log.Printf("[Conversation] %s released by %s", conv.ID, staff.ID)

	s.broadcastUpdate(conv)
	s.sendForce(ctx, conv, staff, staff.DisplayName+" disconnected!")
	return nil
}

// NewSession resets the conversation: flags and messages are cleared and
// pending hand-off notifications are dropped.
func (s *ConversationService) NewSession(ctx context.Context, convID string) (*model.Conversation, error) {
	s.cancelTimer(convID)

	conv, err := s.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	conv.IsWaitingStaff = false
	conv.IsSupportedByStaff = false
	if err := s.store.ClearMessages(ctx, convID); err != nil {
		return nil, fmt.Errorf("clear messages: %w", err)
	}
	conv.Messages = []model.Message{}
	if err := s.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	if _, err := s.notifications.DeleteByConversation(ctx, convID); err != nil {
		log.Printf("[Conversation] drop notifications for %s failed: %v", convID, err)
	}

	s.broadcastUpdate(conv)
	for _, identity := range s.registry.OnlineIdentities(conv.BusinessID) {
		if identity.IsStaff() {
			s.registry.EmitTo(identity.ID, model.EventNotificationListUpdate, NotificationListUpdate{ConversationID: convID})
		}
	}
	return conv, nil
}

func (s *ConversationService) broadcastUpdate(conv *model.Conversation) {
	update := updateFor(conv)
	for _, id := range conv.Recipients {
		s.registry.EmitTo(id, model.EventConversationUpdate, update)
	}
}

func (s *ConversationService) sendForce(ctx context.Context, conv *model.Conversation, sender model.Identity, text string) {
	if s.sender == nil {
		return
	}
	if err := s.sender.SendForce(ctx, conv, sender, text); err != nil {
		log.Printf("[Conversation] force message to %s failed: %v", conv.ID, err)
	}
}

// scheduleAutoEnd arms the live-chat duration timer. A later manual
// transition cancels it; a timer that fires anyway re-checks state first.
func (s *ConversationService) scheduleAutoEnd(ctx context.Context, conv *model.Conversation, staff model.Identity) {
	if s.settings == nil {
		return
	}
	gs, err := s.settings.GeneralSettings(ctx, conv.BusinessID)
	if err != nil || gs == nil || !gs.LiveChatDurationEnabled || gs.LiveChatDuration <= 0 {
		return
	}
	d := time.Duration(gs.LiveChatDuration) * s.durationUnit
	convID := conv.ID

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if old, ok := s.timers[convID]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.timerMu.Lock()
		if s.timers[convID] != t {
			s.timerMu.Unlock()
			return
		}
		delete(s.timers, convID)
		s.timerMu.Unlock()

		if err := s.endSupport(context.Background(), convID, staff); err != nil {
			log.Printf("[Conversation] auto end support for %s failed: %v", convID, err)
		}
	})
	s.timers[convID] = t
}

func (s *ConversationService) cancelTimer(convID string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if t, ok := s.timers[convID]; ok {
		t.Stop()
		delete(s.timers, convID)
	}
}

func updateFor(conv *model.Conversation) model.ConversationUpdate {
	return model.ConversationUpdate{ConversationID: conv.ID, State: conv.State()}
}

func canAccess(conv *model.Conversation, identity model.Identity) bool {
	if conv.HasRecipient(identity.ID) {
		return true
	}
	return identity.IsStaff() && identity.BusinessID == conv.BusinessID
}

func normalizeRecipients(creatorID string, recipients []string) []string {
	seen := map[string]struct{}{creatorID: {}}
	out := []string{creatorID}
	for _, id := range recipients {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
