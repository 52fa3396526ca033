package model

// CommandType classifies configured bot commands.
type CommandType string

const (
	CommandGreeting  CommandType = "greeting"
	CommandRejecting CommandType = "rejecting"
	CommandResponse  CommandType = "response"
)

type MenuOption struct {
	Title      string `json:"title"`
	Link       string `json:"link,omitempty"`
	ActionType string `json:"action_type,omitempty"`
}

// BotCommand is read-only configuration owned by the bot settings collaborator.
type BotCommand struct {
	ID          string       `json:"id"`
	Type        CommandType  `json:"type"`
	Triggers    []string     `json:"triggers"`
	Responses   []string     `json:"responses"`
	MenuOptions []MenuOption `json:"menu_options"`
}

// GeneralSettings holds per-business bot behaviour.
type GeneralSettings struct {
	BusinessID              string `json:"business_id"`
	BotName                 string `json:"bot_name"`
	MessageSendingTimer     int    `json:"message_sending_timer"` // seconds
	LiveChatDurationEnabled bool   `json:"live_chat_duration_enabled"`
	LiveChatDuration        int    `json:"live_chat_duration"` // minutes
}
