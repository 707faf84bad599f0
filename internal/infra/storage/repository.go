package storage

import (
	"context"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
)

// CredentialUpdate is a partial update to a credential row. Nil fields are
// left untouched.
type CredentialUpdate struct {
	Status       *domain.CredentialStatus
	LastUsed     *time.Time
	LastFailed   *time.Time
	FailureCount *int
}

// CredentialRepository handles credential storage operations. It is a thin
// CRUD facade: no retries, no caching, failures propagate to the caller.
type CredentialRepository interface {
	// ListByUserProvider returns all credentials for (user, provider)
	// ordered by last_used ascending with NULL first, so never-used
	// credentials sort earliest. This ordering is the basis for LRU
	// rotation throughout the pool.
	ListByUserProvider(ctx context.Context, userID, provider string) ([]domain.Credential, error)

	// Update applies a partial update to a credential.
	Update(ctx context.Context, id string, upd CredentialUpdate) error
}

// ProfileRepository handles scraped profile storage.
type ProfileRepository interface {
	// GetByURL returns the profile for a normalized URL, or nil if unknown.
	GetByURL(ctx context.Context, url string) (*domain.Profile, error)

	// Upsert stores a scraped profile, replacing any previous payload for
	// the same URL, and returns the stored row.
	Upsert(ctx context.Context, p domain.Profile) (*domain.Profile, error)

	// SaveForUser adds a profile to a user's saved collection. Idempotent.
	SaveForUser(ctx context.Context, userID, profileID string) error

	// ListSavedForUser returns a user's saved profiles, most recently
	// saved first.
	ListSavedForUser(ctx context.Context, userID string) ([]domain.Profile, error)

	// UnsaveForUser removes a profile from a user's saved collection.
	// Removing a profile that is not saved is not an error.
	UnsaveForUser(ctx context.Context, userID, profileID string) error
}

// ScrapeLogRepository handles scrape audit rows.
type ScrapeLogRepository interface {
	// Create inserts a running log row and returns its ID.
	Create(ctx context.Context, log domain.ScrapeLog) (string, error)

	// Finish records the terminal state of a scrape.
	Finish(ctx context.Context, id string, status domain.ScrapeStatus, scraped, failed int, errMsg string) error

	// DeleteOlderThan removes audit rows started before the cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserRepository resolves API users.
type UserRepository interface {
	// GetByToken returns the user owning a webhook token, or nil when the
	// token is unknown.
	GetByToken(ctx context.Context, token string) (*domain.User, error)
}
