package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/harvester/internal/core/domain"
)

// ScrapeLogRepo implements storage.ScrapeLogRepository using PostgreSQL.
type ScrapeLogRepo struct {
	db *DB
}

// NewScrapeLogRepo creates a new PostgreSQL scrape log repository.
func NewScrapeLogRepo(db *DB) *ScrapeLogRepo {
	return &ScrapeLogRepo{db: db}
}

// Create inserts a running log row and returns its ID.
func (r *ScrapeLogRepo) Create(ctx context.Context, log domain.ScrapeLog) (string, error) {
	id := uuid.NewString()
	urls, err := json.Marshal(log.InputURLs)
	if err != nil {
		return "", fmt.Errorf("failed to encode input urls: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scraping_logs
			(id, user_id, scrape_type, input_urls, status, started_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		id, log.UserID, log.Type, urls, domain.ScrapeRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create scrape log: %w", err)
	}
	return id, nil
}

// Finish records the terminal state of a scrape.
func (r *ScrapeLogRepo) Finish(
	ctx context.Context,
	id string,
	status domain.ScrapeStatus,
	scraped, failed int,
	errMsg string,
) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scraping_logs
		SET status = $1, scraped = $2, failed = $3, error_msg = $4, completed_at = now()
		WHERE id = $5`,
		status, scraped, failed, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish scrape log %s: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes audit rows started before the cutoff.
func (r *ScrapeLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scraping_logs WHERE started_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scrape logs: %w", err)
	}
	return res.RowsAffected()
}

// UserRepo implements storage.UserRepository using PostgreSQL.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new PostgreSQL user repository.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByToken resolves a webhook token to a user.
func (r *UserRepo) GetByToken(ctx context.Context, token string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `
		SELECT id, webhook_token FROM users WHERE webhook_token = $1`,
		token,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}
	return &u, nil
}
