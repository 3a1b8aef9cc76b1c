package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// IdentityRepo deletes auth identities held in the auth_identities table.
// Self-hosted deployments keep identities next to the data; hosted ones use
// the httpapi admin client instead.
type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(s *Store) *IdentityRepo {
	return &IdentityRepo{db: s.db}
}

// DeleteUser removes the auth identity of a user. Zero affected rows means
// the identity is already gone, which keeps deletion re-runs idempotent.
func (r *IdentityRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_identities WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}
