package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chatbot-backend/internal/model"
	"chatbot-backend/internal/repository"
)

var (
	staffAnna = model.Identity{ID: "staff-a", Role: model.RoleStaff, BusinessID: "biz", DisplayName: "Anna"}
	staffBen  = model.Identity{ID: "staff-b", Role: model.RoleStaff, BusinessID: "biz", DisplayName: "Ben"}
	guest     = model.Identity{ID: "guest-1", Role: model.RoleGuest, BusinessID: "biz", DisplayName: "Guest"}
	userBob   = model.Identity{ID: "user-bob", Role: model.RoleUser, BusinessID: "biz", DisplayName: "Bob"}
	userCarl  = model.Identity{ID: "user-carl", Role: model.RoleUser, BusinessID: "biz", DisplayName: "Carl"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []HandoffEvent
}

func (p *recordingPublisher) PublishHandoff(_ context.Context, e HandoffEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func (p *recordingPublisher) count(kind string) int {
	n := 0
	for _, k := range p.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (a *recordingAlerter) AlertEscalation(_ context.Context, _ *model.Conversation, _ model.Identity, title string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return a.err
}

type harness struct {
	t *testing.T

	registry      *Registry
	convStore     *repository.MemoryConversations
	notifStore    *repository.MemoryNotifications
	settingsStore *repository.MemorySettings
	identities    *repository.MemoryIdentities
	publisher     *recordingPublisher
	alerter       *recordingAlerter

	conversations *ConversationService
	dispatcher    *Dispatcher
	router        *Router
	bot           *BotEngine
	presence      *Presence
}

// newHarness wires the services the way serve does, with bot turns run
// inline, no reply delay and live-chat durations measured in milliseconds.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:             t,
		registry:      NewRegistry(),
		convStore:     repository.NewMemoryConversations(),
		notifStore:    repository.NewMemoryNotifications(),
		settingsStore: repository.NewMemorySettings(),
		identities:    repository.NewMemoryIdentities(staffAnna, staffBen, guest, userBob, userCarl),
		publisher:     &recordingPublisher{},
		alerter:       &recordingAlerter{},
	}
	h.conversations = NewConversationService(h.convStore, h.notifStore, h.registry, h.settingsStore)
	h.conversations.durationUnit = time.Millisecond
	h.dispatcher = NewDispatcher(h.notifStore, h.registry, h.conversations, h.identities, h.publisher)
	h.router = NewRouter(h.registry, h.conversations, h.identities)
	h.router.spawn = func(f func()) { f() }
	h.conversations.SetSender(h.router)
	h.bot = NewBotEngine(h.settingsStore, h.conversations, h.router, h.dispatcher, h.identities, h.alerter)
	h.bot.sleep = func(context.Context, time.Duration) error { return nil }
	h.router.SetInterceptor(h.bot)
	h.presence = NewPresence(h.registry, h.dispatcher)
	return h
}

func (h *harness) connect(identity model.Identity) *Client {
	h.t.Helper()
	c := NewClient(identity)
	h.registry.Connect(c)
	return c
}

func (h *harness) botConversation(creator model.Identity) *model.Conversation {
	h.t.Helper()
	conv, err := h.conversations.FindOrCreate(context.Background(), creator, []string{creator.BusinessID})
	if err != nil {
		h.t.Fatalf("create bot conversation: %v", err)
	}
	return conv
}

func (h *harness) load(id string) *model.Conversation {
	h.t.Helper()
	conv, err := h.convStore.Load(context.Background(), id)
	if err != nil {
		h.t.Fatalf("load %s: %v", id, err)
	}
	return conv
}

func (h *harness) notificationsFor(staffID string) []model.Notification {
	h.t.Helper()
	list, err := h.notifStore.FindByRecipient(context.Background(), staffID)
	if err != nil {
		h.t.Fatalf("notifications for %s: %v", staffID, err)
	}
	return list
}

// escalate sends a live-agent request from the guest's bot conversation.
func (h *harness) escalate(client *Client) *model.Conversation {
	h.t.Helper()
	identity, _ := h.registry.Resolve(client.ID)
	conv := h.botConversation(identity)
	_, err := h.router.Route(context.Background(), client.ID, model.InboundMessage{
		ConversationID: conv.ID,
		Text:           "Talk to a human",
		ActionType:     model.ActionLiveAgentTrigger,
	})
	if err != nil {
		h.t.Fatalf("escalate: %v", err)
	}
	return h.load(conv.ID)
}

// drain returns every frame queued for the client without blocking.
func drain(c *Client) []model.WSEvent {
	var out []model.WSEvent
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var ev model.WSEvent
			if err := json.Unmarshal(data, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func ofType(events []model.WSEvent, typ string) []model.WSEvent {
	var out []model.WSEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func deliveries(t *testing.T, events []model.WSEvent) []model.MessageDelivery {
	t.Helper()
	var out []model.MessageDelivery
	for _, e := range ofType(events, model.EventMessageClient) {
		var d model.MessageDelivery
		if err := json.Unmarshal(e.Data, &d); err != nil {
			t.Fatalf("decode delivery: %v", err)
		}
		out = append(out, d)
	}
	return out
}

func texts(ds []model.MessageDelivery) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Message.Text)
	}
	return out
}

func messageTexts(conv *model.Conversation) []string {
	out := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, m.Text)
	}
	return out
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
