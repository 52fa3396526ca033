package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatbot-backend/internal/model"
)

func TestGreetDefaultsOnce(t *testing.T) {
	h := newHarness(t)
	g := h.connect(guest)
	conv := h.botConversation(guest)
	ctx := context.Background()

	if err := h.bot.Greet(ctx, conv.ID, guest); err != nil {
		t.Fatalf("greet: %v", err)
	}
	got := deliveries(t, drain(g))
	if !reflect.DeepEqual(texts(got), []string{"Welcome...", "How can I help You?"}) {
		t.Fatalf("greeting = %v", texts(got))
	}
	for _, d := range got {
		if d.Message.SenderID != "biz" {
			t.Fatalf("greeting sent by %s", d.Message.SenderID)
		}
	}

	if err := h.bot.Greet(ctx, conv.ID, guest); err != nil {
		t.Fatalf("second greet: %v", err)
	}
	if frames := drain(g); len(frames) != 0 {
		t.Fatalf("a conversation with messages must not be greeted again, got %d frames", len(frames))
	}
}

func TestGreetConfiguredWithMenu(t *testing.T) {
	h := newHarness(t)
	h.settingsStore.SetGeneral(model.GeneralSettings{BusinessID: "biz", BotName: "Shopbot", MessageSendingTimer: 3})
	h.settingsStore.SetCommands("biz", []model.BotCommand{
		{
			ID:        "greet",
			Type:      model.CommandGreeting,
			Responses: []string{"Hi!", "Pick one:"},
			MenuOptions: []model.MenuOption{
				{Title: "Orders", Link: "/orders"},
				{Title: "Talk to a human", ActionType: model.ActionLiveAgentTrigger},
			},
		},
	})
	slept := false
	h.bot.sleep = func(context.Context, time.Duration) error { slept = true; return nil }

	g := h.connect(guest)
	conv := h.botConversation(guest)
	if err := h.bot.Greet(context.Background(), conv.ID, guest); err != nil {
		t.Fatal(err)
	}
	if slept {
		t.Fatal("greetings are sent without the reply delay")
	}

	got := deliveries(t, drain(g))
	if !reflect.DeepEqual(texts(got), []string{"Hi!", "Pick one:", "Orders", "Talk to a human"}) {
		t.Fatalf("greeting = %v", texts(got))
	}
	if got[0].Message.IsCommandMenuOption || !got[2].Message.IsCommandMenuOption {
		t.Fatal("only menu options carry the menu flag")
	}
	if got[2].Message.Link != "/orders" || got[3].Message.ActionType != model.ActionLiveAgentTrigger {
		t.Fatalf("menu options lost fields: %+v %+v", got[2].Message, got[3].Message)
	}
	if name := got[0].Message.Recipients[0].DisplayName; name != "Guest" {
		t.Fatalf("recipient snapshot = %q", name)
	}
}

func TestGreetRequiresBotConversation(t *testing.T) {
	h := newHarness(t)
	bob := h.connect(userBob)
	msg, err := h.router.Route(context.Background(), bob.ID, model.InboundMessage{Recipients: []string{userCarl.ID}, Text: "hey"})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.bot.Greet(context.Background(), msg.ConversationID, userBob); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := h.bot.Greet(context.Background(), msg.ConversationID, guest); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider greet: %v", err)
	}
}

func TestRespondFallbacks(t *testing.T) {
	h := newHarness(t)
	g := h.connect(guest)
	conv := h.botConversation(guest)
	ctx := context.Background()

	h.router.Route(ctx, g.ID, model.InboundMessage{ConversationID: conv.ID, Text: "gibberish"})
	if got := texts(deliveries(t, drain(g))); !reflect.DeepEqual(got, []string{"gibberish", "I didn't understand You."}) {
		t.Fatalf("default rejecting: %v", got)
	}

	h.settingsStore.SetCommands("biz", []model.BotCommand{
		{ID: "r", Type: model.CommandRejecting, Responses: []string{"Sorry?", "Try the menu."}},
	})
	h.router.Route(ctx, g.ID, model.InboundMessage{ConversationID: conv.ID, Text: "more gibberish"})
	if got := texts(deliveries(t, drain(g))); !reflect.DeepEqual(got, []string{"more gibberish", "Sorry?", "Try the menu."}) {
		t.Fatalf("configured rejecting: %v", got)
	}
}

func TestRespondDelayRechecksState(t *testing.T) {
	h := newHarness(t)
	h.settingsStore.SetGeneral(model.GeneralSettings{BusinessID: "biz", MessageSendingTimer: 2})
	g := h.connect(guest)
	conv := h.botConversation(guest)

	var waited time.Duration
	h.bot.sleep = func(ctx context.Context, d time.Duration) error {
		waited = d
		// staff takes over while the bot waits
		stored := h.load(conv.ID)
		stored.IsSupportedByStaff = true
		return h.convStore.Save(ctx, stored)
	}

	if _, err := h.router.Route(context.Background(), g.ID, model.InboundMessage{ConversationID: conv.ID, Text: "anyone?"}); err != nil {
		t.Fatal(err)
	}
	if waited != 2*time.Second {
		t.Fatalf("waited %s, want 2s", waited)
	}
	if got := messageTexts(h.load(conv.ID)); !reflect.DeepEqual(got, []string{"anyone?"}) {
		t.Fatalf("bot replied after staff took over: %v", got)
	}
}

func TestRespondCancelledDelay(t *testing.T) {
	h := newHarness(t)
	h.settingsStore.SetGeneral(model.GeneralSettings{BusinessID: "biz", MessageSendingTimer: 1})
	h.bot.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	g := h.connect(guest)
	conv := h.botConversation(guest)

	h.router.Route(context.Background(), g.ID, model.InboundMessage{ConversationID: conv.ID, Text: "hi"})
	if n := len(h.load(conv.ID).Messages); n != 1 {
		t.Fatalf("messages = %d, want only the guest's", n)
	}
}

func TestMatchCommand(t *testing.T) {
	commands := []model.BotCommand{
		{ID: "hello", Triggers: []string{"^hi\\b", "hello"}},
		{ID: "broken", Triggers: []string{"price ("}},
		{ID: "empty", Triggers: []string{""}},
		{ID: "late", Triggers: []string{"hello"}},
	}
	cases := []struct {
		text string
		want string
	}{
		{"Hi there", "hello"},
		{"well HELLO", "hello"},
		{"what is the PRICE (eur)?", "broken"},
		{"high tide", ""},
		{"", ""},
	}
	for _, tc := range cases {
		got := matchCommand(commands, tc.text)
		switch {
		case tc.want == "" && got != nil:
			t.Fatalf("%q matched %s", tc.text, got.ID)
		case tc.want != "" && (got == nil || got.ID != tc.want):
			t.Fatalf("%q: got %v, want %s", tc.text, got, tc.want)
		}
	}
}

func TestEscalateOnSupportedConversationIsNoop(t *testing.T) {
	h := newHarness(t)
	g := h.connect(guest)
	conv := h.botConversation(guest)
	conv.IsSupportedByStaff = true
	if err := h.convStore.Save(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	h.bot.escalate(context.Background(), conv, guest)
	if frames := drain(g); len(frames) != 0 {
		t.Fatalf("got %d frames", len(frames))
	}
	if h.notifStore.Len() != 0 || len(h.publisher.kinds()) != 0 {
		t.Fatal("no hand-off may be requested for a supported conversation")
	}
}

func TestBotTurnsDoNotInterleave(t *testing.T) {
	h := newHarness(t)
	h.settingsStore.SetGeneral(model.GeneralSettings{BusinessID: "biz", MessageSendingTimer: 1})
	h.settingsStore.SetCommands("biz", []model.BotCommand{
		{ID: "alpha", Type: model.CommandResponse, Triggers: []string{"alpha"}, Responses: []string{"a1", "a2"}},
		{ID: "beta", Type: model.CommandResponse, Triggers: []string{"beta"}, Responses: []string{"b1", "b2"}},
	})
	conv := h.botConversation(guest)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	h.bot.sleep = func(context.Context, time.Duration) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.bot.Intercept(ctx, h.load(conv.ID), &model.Message{Text: "alpha"}, guest)
	}()
	<-entered
	go func() {
		defer wg.Done()
		h.bot.Intercept(ctx, h.load(conv.ID), &model.Message{Text: "beta"}, guest)
	}()
	// the second turn must queue behind the first one's delay
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := messageTexts(h.load(conv.ID)); !reflect.DeepEqual(got, []string{"a1", "a2", "b1", "b2"}) {
		t.Fatalf("replies = %v", got)
	}
	h.bot.turns.mu.Lock()
	defer h.bot.turns.mu.Unlock()
	if len(h.bot.turns.locks) != 0 {
		t.Fatalf("%d turn locks left behind", len(h.bot.turns.locks))
	}
}
