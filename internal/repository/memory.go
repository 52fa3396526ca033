package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatbot-backend/internal/model"
)

// In-memory stores back `serve --memory` and the service tests. They follow
// the Postgres repositories: unknown ids give ErrNotFound and values handed
// out are copies.

type MemoryConversations struct {
	mu        sync.Mutex
	convs     map[string]model.Conversation
	messages  map[string][]model.Message
	updatedAt map[string]time.Time
	clock     int64
}

func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{
		convs:     make(map[string]model.Conversation),
		messages:  make(map[string][]model.Message),
		updatedAt: make(map[string]time.Time),
	}
}

func (m *MemoryConversations) Load(_ context.Context, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyOut(c), nil
}

func (m *MemoryConversations) Save(_ context.Context, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *c
	stored.Recipients = append([]string(nil), c.Recipients...)
	stored.Messages = nil
	m.convs[c.ID] = stored
	m.touch(c.ID)
	return nil
}

func (m *MemoryConversations) FindByRecipients(_ context.Context, businessID string, recipients []string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Conversation
	for _, c := range m.convs {
		c := c
		if c.BusinessID != businessID || !c.SameRecipients(recipients) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return m.copyOut(*found), nil
}

func (m *MemoryConversations) ListForIdentity(_ context.Context, identityID string) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Conversation{}
	for _, c := range m.convs {
		if c.HasRecipient(identityID) {
			out = append(out, *m.copyOut(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.updatedAt[out[i].ID].After(m.updatedAt[out[j].ID])
	})
	return out, nil
}

func (m *MemoryConversations) AppendMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	stored := *msg
	stored.Recipients = append([]model.MessageRecipient(nil), msg.Recipients...)
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], stored)
	m.touch(msg.ConversationID)
	return nil
}

func (m *MemoryConversations) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	msgs := m.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryConversations) ClearMessages(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, conversationID)
	return nil
}

// touch keeps list order stable even when two writes share a timestamp.
func (m *MemoryConversations) touch(id string) {
	m.clock++
	m.updatedAt[id] = time.Unix(0, m.clock)
}

func (m *MemoryConversations) copyOut(c model.Conversation) *model.Conversation {
	c.Recipients = append([]string(nil), c.Recipients...)
	msgs := m.messages[c.ID]
	c.Messages = make([]model.Message, len(msgs))
	copy(c.Messages, msgs)
	return &c
}

type MemoryNotifications struct {
	mu    sync.Mutex
	items map[string]model.Notification
	order []string
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{items: make(map[string]model.Notification)}
}

func (m *MemoryNotifications) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *n
	stored.StaffRoster = append([]string(nil), n.StaffRoster...)
	if _, exists := m.items[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.items[n.ID] = stored
	return nil
}

func (m *MemoryNotifications) Get(_ context.Context, id string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *MemoryNotifications) FindByConversation(_ context.Context, conversationID string) ([]model.Notification, error) {
	return m.filter(func(n model.Notification) bool { return n.ConversationID == conversationID }), nil
}

func (m *MemoryNotifications) FindByRecipient(_ context.Context, to string) ([]model.Notification, error) {
	return m.filter(func(n model.Notification) bool { return n.To == to }), nil
}

func (m *MemoryNotifications) FindByAuthor(_ context.Context, from string) ([]model.Notification, error) {
	return m.filter(func(n model.Notification) bool { return n.From == from }), nil
}

func (m *MemoryNotifications) DeleteByConversation(_ context.Context, conversationID string) (int64, error) {
	return m.delete(func(n model.Notification) bool { return n.ConversationID == conversationID }), nil
}

func (m *MemoryNotifications) DeleteByAuthor(_ context.Context, from string) (int64, error) {
	return m.delete(func(n model.Notification) bool { return n.From == from }), nil
}

// Len reports how many notifications are stored.
func (m *MemoryNotifications) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryNotifications) filter(keep func(model.Notification) bool) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, id := range m.order {
		if n := m.items[id]; keep(n) {
			n.StaffRoster = append([]string(nil), n.StaffRoster...)
			out = append(out, n)
		}
	}
	return out
}

func (m *MemoryNotifications) delete(match func(model.Notification) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.order[:0]
	for _, id := range m.order {
		if match(m.items[id]) {
			delete(m.items, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return n
}

type MemoryIdentities struct {
	mu    sync.Mutex
	items map[string]model.Identity
	order []string
}

func NewMemoryIdentities(identities ...model.Identity) *MemoryIdentities {
	m := &MemoryIdentities{items: make(map[string]model.Identity)}
	for _, i := range identities {
		_ = m.Upsert(context.Background(), i)
	}
	return m
}

func (m *MemoryIdentities) Get(_ context.Context, id string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &i, nil
}

func (m *MemoryIdentities) StaffRoster(_ context.Context, businessID string) ([]model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Identity
	for _, id := range m.order {
		if i := m.items[id]; i.BusinessID == businessID && i.IsStaff() {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *MemoryIdentities) Upsert(_ context.Context, i model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[i.ID]; ok {
		existing.DisplayName = i.DisplayName
		existing.AvatarURL = i.AvatarURL
		m.items[i.ID] = existing
		return nil
	}
	m.items[i.ID] = i
	m.order = append(m.order, i.ID)
	return nil
}

func (m *MemoryIdentities) SetRole(_ context.Context, id string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	i.Role = role
	m.items[id] = i
	return nil
}

type MemorySettings struct {
	mu       sync.Mutex
	general  map[string]model.GeneralSettings
	commands map[string][]model.BotCommand
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{
		general:  make(map[string]model.GeneralSettings),
		commands: make(map[string][]model.BotCommand),
	}
}

func (m *MemorySettings) SetGeneral(gs model.GeneralSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.general[gs.BusinessID] = gs
}

func (m *MemorySettings) SetCommands(businessID string, cmds []model.BotCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[businessID] = append([]model.BotCommand(nil), cmds...)
}

func (m *MemorySettings) GeneralSettings(_ context.Context, businessID string) (*model.GeneralSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gs, ok := m.general[businessID]
	if !ok {
		gs = model.GeneralSettings{BusinessID: businessID}
	}
	return &gs, nil
}

func (m *MemorySettings) Commands(_ context.Context, businessID string) ([]model.BotCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.BotCommand(nil), m.commands[businessID]...), nil
}
