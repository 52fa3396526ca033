package repository

import (
	"context"
	"errors"

	"chatbot-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) Get(ctx context.Context, id string) (*model.Identity, error) {
	var i model.Identity
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, role, display_name, avatar_url FROM identities WHERE id = $1
	`, id).Scan(&i.ID, &i.BusinessID, &role, &i.DisplayName, &i.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	i.Role = model.Role(role)
	return &i, nil
}

// StaffRoster lists every staff member of the business.
func (r *IdentityRepository) StaffRoster(ctx context.Context, businessID string) ([]model.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, role, display_name, avatar_url FROM identities
		WHERE business_id = $1 AND role = $2
		ORDER BY created_at ASC
	`, businessID, string(model.RoleStaff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		var i model.Identity
		var role string
		if err := rows.Scan(&i.ID, &i.BusinessID, &role, &i.DisplayName, &i.AvatarURL); err != nil {
			return nil, err
		}
		i.Role = model.Role(role)
		out = append(out, i)
	}
	return out, rows.Err()
}

// Upsert records an identity the first time it connects and refreshes its
// profile afterwards. The stored role is left alone once set.
func (r *IdentityRepository) Upsert(ctx context.Context, i model.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, business_id, role, display_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url
	`, i.ID, i.BusinessID, string(i.Role), i.DisplayName, i.AvatarURL)
	return err
}

// SetRole changes the stored role and reports whether the identity exists.
func (r *IdentityRepository) SetRole(ctx context.Context, id string, role model.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE identities SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
