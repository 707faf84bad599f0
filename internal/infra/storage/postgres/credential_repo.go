package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
)

// CredentialRepo implements storage.CredentialRepository using PostgreSQL.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new PostgreSQL credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// ListByUserProvider returns credentials in LRU order, never-used first.
func (r *CredentialRepo) ListByUserProvider(
	ctx context.Context,
	userID, provider string,
) ([]domain.Credential, error) {
	var creds []domain.Credential
	err := r.db.SelectContext(ctx, &creds, `
		SELECT id, user_id, provider, name, secret, status,
		       last_used, last_failed, failure_count
		FROM api_credentials
		WHERE user_id = $1 AND provider = $2
		ORDER BY last_used ASC NULLS FIRST`,
		userID, provider,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

// Update applies a partial update to a credential row.
func (r *CredentialRepo) Update(
	ctx context.Context,
	id string,
	upd storage.CredentialUpdate,
) error {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	if upd.Status != nil {
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.LastUsed != nil {
		args = append(args, *upd.LastUsed)
		sets = append(sets, fmt.Sprintf("last_used = $%d", len(args)))
	}
	if upd.LastFailed != nil {
		args = append(args, *upd.LastFailed)
		sets = append(sets, fmt.Sprintf("last_failed = $%d", len(args)))
	}
	if upd.FailureCount != nil {
		args = append(args, *upd.FailureCount)
		sets = append(sets, fmt.Sprintf("failure_count = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE api_credentials SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args),
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update credential %s: %w", id, err)
	}
	return nil
}
