package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"chatbot-backend/internal/model"

	"github.com/bwmarrin/discordgo"
)

// Bot posts hand-off alerts to the staff channel and answers staff commands
// typed there.
type Bot struct {
	session   *discordgo.Session
	channelID string
	commands  *CommandHandler
}

// NewBot returns nil when no token or channel is configured.
func NewBot(token, channelID string, commands *CommandHandler) (*Bot, error) {
	if token == "" || channelID == "" {
		log.Println("[Discord] no bot token or staff channel configured, alerts disabled")
		return nil, nil
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	bot := &Bot{session: s, channelID: channelID, commands: commands}
	s.AddHandler(bot.onMessageCreate)
	return bot, nil
}

// Start opens the Discord gateway connection.
func (b *Bot) Start() error {
	if b == nil || b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return err
	}
	log.Println("[Discord] bot connected")
	return nil
}

// Stop closes the Discord gateway connection.
func (b *Bot) Stop() {
	if b == nil || b.session == nil {
		return
	}
	_ = b.session.Close()
	log.Println("[Discord] bot disconnected")
}

// AlertEscalation posts an embed announcing that conv waits for staff.
func (b *Bot) AlertEscalation(ctx context.Context, conv *model.Conversation, requester model.Identity, title string) error {
	if b == nil || b.session == nil {
		return nil
	}
	_, err := b.session.ChannelMessageSendEmbed(b.channelID, escalationEmbed(conv, requester, title, time.Now()), discordgo.WithContext(ctx))
	return err
}

func escalationEmbed(conv *model.Conversation, requester model.Identity, title string, now time.Time) *discordgo.MessageEmbed {
	name := requester.DisplayName
	if name == "" {
		name = requester.ID
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s** asked for a live agent.", name),
		Color:       0xE67E22,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Conversation", Value: conv.ID, Inline: true},
			{Name: "Business", Value: conv.BusinessID, Inline: true},
			{Name: "Participants", Value: fmt.Sprintf("%d", len(conv.Recipients)), Inline: true},
		},
		Timestamp: now.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Live chat"},
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if m.ChannelID != b.channelID || !strings.HasPrefix(m.Content, "!") || b.commands == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	embed := b.commands.Reply(ctx, m.Content)
	if embed == nil {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		log.Printf("[Discord] reply to %q failed: %v", m.Content, err)
	}
}
