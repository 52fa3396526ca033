package repository

import (
	"context"
	"errors"

	"chatbot-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationColumns = `id, to_id, from_id, conversation_id, title, accept, decline, action_type, staff_roster, is_read, created_at`

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.To, &n.From, &n.ConversationID, &n.Title, &n.Accept, &n.Decline,
		&n.ActionType, &n.StaffRoster, &n.IsRead, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	roster := n.StaffRoster
	if roster == nil {
		roster = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, n.To, n.From, n.ConversationID, n.Title, n.Accept, n.Decline, n.ActionType, roster, n.IsRead, n.CreatedAt)
	return err
}

func (r *NotificationRepository) Get(ctx context.Context, id string) (*model.Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

func (r *NotificationRepository) FindByConversation(ctx context.Context, conversationID string) ([]model.Notification, error) {
	return r.list(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
}

func (r *NotificationRepository) FindByRecipient(ctx context.Context, to string) ([]model.Notification, error) {
	return r.list(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE to_id = $1 ORDER BY created_at DESC`, to)
}

func (r *NotificationRepository) FindByAuthor(ctx context.Context, from string) ([]model.Notification, error) {
	return r.list(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE from_id = $1 ORDER BY created_at ASC`, from)
}

// DeleteByConversation removes every pending notification of the conversation
// and returns how many rows were deleted. Concurrent callers race on the rows:
// only one of them sees a non-zero count.
func (r *NotificationRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) DeleteByAuthor(ctx context.Context, from string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE from_id = $1`, from)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) list(ctx context.Context, query string, arg string) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
