package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatbot-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository reads the bot configuration managed by the settings CRUD.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GeneralSettings returns zero-value settings when the business has none.
func (r *SettingsRepository) GeneralSettings(ctx context.Context, businessID string) (*model.GeneralSettings, error) {
	gs := model.GeneralSettings{BusinessID: businessID}
	err := r.pool.QueryRow(ctx, `
		SELECT bot_name, message_sending_timer, live_chat_duration_enabled, live_chat_duration
		FROM bot_settings WHERE business_id = $1
	`, businessID).Scan(&gs.BotName, &gs.MessageSendingTimer, &gs.LiveChatDurationEnabled, &gs.LiveChatDuration)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &gs, nil
}

func (r *SettingsRepository) Commands(ctx context.Context, businessID string) ([]model.BotCommand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, triggers, responses, menu_options
		FROM bot_commands WHERE business_id = $1
		ORDER BY position ASC, id ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []model.BotCommand
	for rows.Next() {
		var c model.BotCommand
		var cmdType string
		var options []byte
		if err := rows.Scan(&c.ID, &cmdType, &c.Triggers, &c.Responses, &options); err != nil {
			return nil, err
		}
		c.Type = model.CommandType(cmdType)
		if len(options) > 0 {
			if err := json.Unmarshal(options, &c.MenuOptions); err != nil {
				return nil, fmt.Errorf("decode menu options of %s: %w", c.ID, err)
			}
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}
