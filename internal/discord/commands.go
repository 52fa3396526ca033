package discord

import (
	"context"
	"fmt"
	"strings"

	"chatbot-backend/internal/model"

	"github.com/bwmarrin/discordgo"
)

type onlineCounter interface {
	OnlineCount() int
}

type pendingLister interface {
	List(ctx context.Context, staffID string) ([]model.Notification, error)
}

// CommandHandler answers the prefix commands staff type in the alert channel.
type CommandHandler struct {
	online  onlineCounter
	pending pendingLister
}

func NewCommandHandler(online onlineCounter, pending pendingLister) *CommandHandler {
	return &CommandHandler{online: online, pending: pending}
}

// Reply builds the answer to content, or nil for anything that is not a
// known command.
func (h *CommandHandler) Reply(ctx context.Context, content string) *discordgo.MessageEmbed {
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "!status":
		return h.cmdStatus()
	case "!pending":
		if len(parts) < 2 {
			return &discordgo.MessageEmbed{Description: "Usage: `!pending <staff id>`", Color: colorInfo}
		}
		return h.cmdPending(ctx, parts[1])
	case "!help":
		return cmdHelp()
	}
	return nil
}

const (
	colorInfo  = 0x00C8FF
	colorOK    = 0x2ECC71
	colorError = 0xE74C3C
)

func (h *CommandHandler) cmdStatus() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Live chat status",
		Color: colorOK,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Open connections", Value: fmt.Sprintf("%d", h.online.OnlineCount()), Inline: true},
		},
	}
}

func (h *CommandHandler) cmdPending(ctx context.Context, staffID string) *discordgo.MessageEmbed {
	list, err := h.pending.List(ctx, staffID)
	if err != nil {
		return &discordgo.MessageEmbed{Description: "Could not load pending requests.", Color: colorError}
	}
	if len(list) == 0 {
		return &discordgo.MessageEmbed{Description: fmt.Sprintf("No pending requests for `%s`.", staffID), Color: colorInfo}
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(list))
	for _, n := range list {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  n.Title,
			Value: fmt.Sprintf("conversation `%s`", n.ConversationID),
		})
	}
	return &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%d pending request(s)", len(list)),
		Color:  colorInfo,
		Fields: fields,
	}
}

func cmdHelp() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Live chat bot commands",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "`!status`", Value: "Number of open widget connections"},
			{Name: "`!pending <staff id>`", Value: "Hand-off requests waiting for a staff member"},
			{Name: "`!help`", Value: "This help"},
		},
	}
}
