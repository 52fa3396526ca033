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

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const conversationColumns = `id, creator_id, business_id, recipients, is_waiting_staff, is_supported_by_staff, is_with_assistant, created_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.CreatorID, &c.BusinessID, &c.Recipients,
		&c.IsWaitingStaff, &c.IsSupportedByStaff, &c.IsWithAssistant, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Load returns the conversation with its messages in arrival order.
func (r *ConversationRepository) Load(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	byConv, err := r.messagesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	c.Messages = byConv[id]
	if c.Messages == nil {
		c.Messages = []model.Message{}
	}
	return c, nil
}

// Save upserts the conversation row. Messages are written by AppendMessage.
func (r *ConversationRepository) Save(ctx context.Context, c *model.Conversation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, creator_id, business_id, recipients, is_waiting_staff, is_supported_by_staff, is_with_assistant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			recipients = EXCLUDED.recipients,
			is_waiting_staff = EXCLUDED.is_waiting_staff,
			is_supported_by_staff = EXCLUDED.is_supported_by_staff,
			is_with_assistant = EXCLUDED.is_with_assistant,
			updated_at = NOW()
	`, c.ID, c.CreatorID, c.BusinessID, c.Recipients, c.IsWaitingStaff, c.IsSupportedByStaff, c.IsWithAssistant, c.CreatedAt)
	return err
}

// FindByRecipients finds the conversation whose recipient set equals recipients.
func (r *ConversationRepository) FindByRecipients(ctx context.Context, businessID string, recipients []string) (*model.Conversation, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE business_id = $1 AND recipients @> $2 AND recipients <@ $2
		ORDER BY created_at ASC
		LIMIT 1
	`, businessID, recipients).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.Load(ctx, id)
}

func (r *ConversationRepository) ListForIdentity(ctx context.Context, identityID string) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE $1 = ANY (recipients)
		ORDER BY updated_at DESC
		LIMIT 100
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	var ids []string
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Conversation{}, nil
	}

	byConv, err := r.messagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Messages = byConv[convs[i].ID]
		if convs[i].Messages == nil {
			convs[i].Messages = []model.Message{}
		}
	}
	return convs, nil
}

// AppendMessage inserts msg only if its conversation exists.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	recipients, err := json.Marshal(msg.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, link, action_type, sent_at, is_read, is_force, is_command_menu_option, recipients)
		SELECT $1, c.id, $3, $4, $5, $6, $7, $8, $9, $10, $11
		FROM conversations c WHERE c.id = $2
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Link, msg.ActionType, msg.SentAt,
		msg.IsRead, msg.IsForce, msg.IsCommandMenuOption, json.RawMessage(recipients))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkRead marks every message readerID did not send as read.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ConversationRepository) ClearMessages(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	return err
}

func (r *ConversationRepository) messagesFor(ctx context.Context, convIDs []string) (map[string][]model.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, text, link, action_type, sent_at, is_read, is_force, is_command_menu_option, recipients
		FROM messages
		WHERE conversation_id = ANY ($1)
		ORDER BY seq ASC
	`, convIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.Message, len(convIDs))
	for rows.Next() {
		var m model.Message
		var recipients []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Link, &m.ActionType,
			&m.SentAt, &m.IsRead, &m.IsForce, &m.IsCommandMenuOption, &recipients); err != nil {
			return nil, err
		}
		if len(recipients) > 0 {
			if err := json.Unmarshal(recipients, &m.Recipients); err != nil {
				return nil, fmt.Errorf("decode recipients of %s: %w", m.ID, err)
			}
		}
		out[m.ConversationID] = append(out[m.ConversationID], m)
	}
	return out, rows.Err()
}
