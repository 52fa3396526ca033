package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"chatbot-backend/internal/model"
)

// Defaults used whenever the business has not configured a command.
var (
	defaultGreeting = model.BotCommand{
		Type:      model.CommandGreeting,
		Responses: []string{"Welcome...", "How can I help You?"},
	}
	defaultRejecting = model.BotCommand{
		Type:      model.CommandRejecting,
		Responses: []string{"I didn't understand You."},
	}
	pleaseWait = []string{
		"Please wait a moment.",
		"We are looking for a free staff member, they will join this chat shortly.",
	}
)

// BotEngine answers bot turns from configured commands and escalates to staff.
type BotEngine struct {
	settings      BotSettingsProvider
	conversations *ConversationService
	router        *Router
	dispatcher    *Dispatcher
	directory     IdentityDirectory
	alerter       StaffAlerter

	sleep func(ctx context.Context, d time.Duration) error
	turns turnLocks
}

// turnLocks serializes bot turns per conversation so delayed reply sequences
// never interleave. Entries live only while a turn holds or awaits them.
type turnLocks struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	sync.Mutex
	refs int
}

func (t *turnLocks) lock(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*turnLock)
	}
	l, ok := t.locks[key]
	if !ok {
		l = &turnLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

func NewBotEngine(settings BotSettingsProvider, conversations *ConversationService, router *Router, dispatcher *Dispatcher, directory IdentityDirectory, alerter StaffAlerter) *BotEngine {
	if alerter == nil {
		alerter = noopAlerter{}
	}
	return &BotEngine{
		settings:      settings,
		conversations: conversations,
		router:        router,
		dispatcher:    dispatcher,
		directory:     directory,
		alerter:       alerter,
		sleep:         sleepCtx,
	}
}

// Intercept handles a message the requester sent into a bot conversation.
func (b *BotEngine) Intercept(ctx context.Context, conv *model.Conversation, msg *model.Message, requester model.Identity) {
	defer b.turns.lock(conv.ID)()
	if msg.ActionType == model.ActionLiveAgentTrigger {
		b.escalate(ctx, conv, requester)
		return
	}
	b.respond(ctx, conv, msg, requester)
}

// Greet sends the greeting sequence into a brand-new bot conversation.
// Conversations that already have messages are left alone.
func (b *BotEngine) Greet(ctx context.Context, convID string, requester model.Identity) error {
	conv, err := b.conversations.GetFor(ctx, convID, requester)
	if err != nil {
		return err
	}
	if !conv.IncludesBot() {
		return ErrForbidden
	}
	defer b.turns.lock(conv.ID)()
	if conv, err = b.conversations.Get(ctx, convID); err != nil {
		return err
	}
	if len(conv.Messages) > 0 || conv.IsSupportedByStaff {
		return nil
	}

	settings := b.generalSettings(ctx, conv.BusinessID)
	cmd := findCommandByType(b.commands(ctx, conv.BusinessID), model.CommandGreeting)
	if cmd == nil {
		cmd = &defaultGreeting
	}
	b.emitCommand(ctx, conv, botOf(conv, settings), requester.ID, cmd)
	return nil
}

func (b *BotEngine) respond(ctx context.Context, conv *model.Conversation, msg *model.Message, requester model.Identity) {
	settings := b.generalSettings(ctx, conv.BusinessID)
	commands := b.commands(ctx, conv.BusinessID)

	cmd := matchCommand(commands, msg.Text)
	if cmd == nil {
		cmd = findCommandByType(commands, model.CommandRejecting)
	}
	if cmd == nil {
		cmd = &defaultRejecting
	}

	if settings.MessageSendingTimer > 0 {
		if err := b.sleep(ctx, time.Duration(settings.MessageSendingTimer)*time.Second); err != nil {
			return
		}
		// staff may have taken over while we waited
		fresh, err := b.conversations.Get(ctx, conv.ID)
		if err != nil {
			log.Printf("[Bot] conversation %s vanished before reply: %v", conv.ID, err)
			return
		}
		if fresh.IsSupportedByStaff || fresh.IsWaitingStaff {
			return
		}
		conv = fresh
	}
	b.emitCommand(ctx, conv, botOf(conv, settings), requester.ID, cmd)
}

// emitCommand sends every response, then every menu option, one message at a
// time and in list order.
func (b *BotEngine) emitCommand(ctx context.Context, conv *model.Conversation, bot model.Identity, requesterID string, cmd *model.BotCommand) {
	audience := []string{requesterID}
	for _, text := range cmd.Responses {
		if _, err := b.router.SendAs(ctx, conv, bot, audience, model.Message{Text: text}); err != nil {
			log.Printf("[Bot] response to %s aborted: %v", conv.ID, err)
			return
		}
	}
	for _, opt := range cmd.MenuOptions {
		draft := model.Message{
			Text:                opt.Title,
			Link:                opt.Link,
			ActionType:          opt.ActionType,
			IsCommandMenuOption: true,
		}
		if _, err := b.router.SendAs(ctx, conv, bot, audience, draft); err != nil {
			log.Printf("[Bot] menu option to %s aborted: %v", conv.ID, err)
			return
		}
	}
}

// escalate hands the conversation over to the staff pool. The requester always
// gets the please-wait acknowledgement, whatever happens to the notifications.
func (b *BotEngine) escalate(ctx context.Context, conv *model.Conversation, requester model.Identity) {
	if conv.IsSupportedByStaff {
		return
	}
	if err := b.conversations.RequestStaff(ctx, conv); err != nil {
		log.Printf("[Bot] request staff for %s failed: %v", conv.ID, err)
	}

	settings := b.generalSettings(ctx, conv.BusinessID)
	bot := botOf(conv, settings)
	for _, text := range pleaseWait {
		if _, err := b.router.SendAs(ctx, conv, bot, []string{requester.ID}, model.Message{Text: text}); err != nil {
			log.Printf("[Bot] please-wait to %s failed: %v", conv.ID, err)
			break
		}
	}

	title := b.awaitingTitle(ctx, conv, requester)
	roster, err := b.staffRoster(ctx, conv.BusinessID, requester.ID)
	if err != nil {
		log.Printf("[Bot] staff roster for %s failed: %v", conv.BusinessID, err)
	}
	sent := b.dispatcher.RequestHandoff(ctx, conv, requester.ID, title, roster)
	log.Printf("[Bot] %s escalated, %d/%d staff notified", conv.ID, sent, len(roster))

	if err := b.alerter.AlertEscalation(ctx, conv, requester, title); err != nil {
		log.Printf("[Bot] staff alert for %s failed: %v", conv.ID, err)
	}
}

func (b *BotEngine) awaitingTitle(ctx context.Context, conv *model.Conversation, requester model.Identity) string {
	names := make([]string, 0, len(conv.Recipients))
	for _, id := range conv.Recipients {
		if id == conv.BusinessID {
			continue
		}
		if id == requester.ID {
			names = append(names, requester.DisplayName)
			continue
		}
		names = append(names, b.router.displayName(ctx, id))
	}
	if len(names) == 0 {
		names = append(names, requester.DisplayName)
	}
	return fmt.Sprintf("%s awaiting for staff", strings.Join(names, ", "))
}

func (b *BotEngine) staffRoster(ctx context.Context, businessID, excludeID string) ([]string, error) {
	if b.directory == nil {
		return nil, nil
	}
	staff, err := b.directory.StaffRoster(ctx, businessID)
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

func (b *BotEngine) generalSettings(ctx context.Context, businessID string) model.GeneralSettings {
	gs, err := b.settings.GeneralSettings(ctx, businessID)
	if err != nil || gs == nil {
		if err != nil {
			log.Printf("[Bot] general settings for %s unavailable, using defaults: %v", businessID, err)
		}
		return model.GeneralSettings{BusinessID: businessID}
	}
	return *gs
}

func (b *BotEngine) commands(ctx context.Context, businessID string) []model.BotCommand {
	cmds, err := b.settings.Commands(ctx, businessID)
	if err != nil {
		log.Printf("[Bot] commands for %s unavailable, using defaults: %v", businessID, err)
		return nil
	}
	return cmds
}

// matchCommand returns the first command with a trigger matching text as a
// case-insensitive regular expression. Invalid patterns match as plain
// case-insensitive substrings.
func matchCommand(commands []model.BotCommand, text string) *model.BotCommand {
	lower := strings.ToLower(text)
	for i := range commands {
		for _, trigger := range commands[i].Triggers {
			if trigger == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + trigger)
			if err != nil {
				if strings.Contains(lower, strings.ToLower(trigger)) {
					return &commands[i]
				}
				continue
			}
			if re.MatchString(text) {
				return &commands[i]
			}
		}
	}
	return nil
}

func findCommandByType(commands []model.BotCommand, t model.CommandType) *model.BotCommand {
	for i := range commands {
		if commands[i].Type == t {
			return &commands[i]
		}
	}
	return nil
}

func botOf(conv *model.Conversation, settings model.GeneralSettings) model.Identity {
	return model.BotIdentity(conv.BusinessID, settings.BotName)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
