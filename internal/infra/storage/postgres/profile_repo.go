package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vietddude/harvester/internal/core/domain"
)

// ProfileRepo implements storage.ProfileRepository using PostgreSQL.
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates a new PostgreSQL profile repository.
func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetByURL retrieves a profile by its normalized LinkedIn URL.
func (r *ProfileRepo) GetByURL(ctx context.Context, url string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.GetContext(ctx, &p, `
		SELECT id, linkedin_url, full_name, headline, company_name, payload, created_at
		FROM linkedin_profiles
		WHERE linkedin_url = $1`,
		url,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// Upsert stores a scraped profile, replacing the payload on conflict.
func (r *ProfileRepo) Upsert(ctx context.Context, p domain.Profile) (*domain.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var stored domain.Profile
	err := r.db.GetContext(ctx, &stored, `
		INSERT INTO linkedin_profiles
			(id, linkedin_url, full_name, headline, company_name, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (linkedin_url) DO UPDATE SET
			full_name    = EXCLUDED.full_name,
			headline     = EXCLUDED.headline,
			company_name = EXCLUDED.company_name,
			payload      = EXCLUDED.payload
		RETURNING id, linkedin_url, full_name, headline, company_name, payload, created_at`,
		p.ID, p.LinkedInURL, p.FullName, p.Headline, p.CompanyName, []byte(p.Payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return &stored, nil
}

// ListSavedForUser returns a user's saved profiles, most recent first.
func (r *ProfileRepo) ListSavedForUser(ctx context.Context, userID string) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.SelectContext(ctx, &profiles, `
		SELECT p.id, p.linkedin_url, p.full_name, p.headline, p.company_name, p.payload, p.created_at
		FROM linkedin_profiles p
		JOIN user_saved_profiles s ON s.profile_id = p.id
		WHERE s.user_id = $1
		ORDER BY s.saved_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved profiles: %w", err)
	}
	return profiles, nil
}

// UnsaveForUser removes a profile from a user's saved collection.
func (r *ProfileRepo) UnsaveForUser(ctx context.Context, userID, profileID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_saved_profiles
		WHERE user_id = $1 AND profile_id = $2`,
		userID, profileID,
	)
	if err != nil {
		return fmt.Errorf("failed to unsave profile for user: %w", err)
	}
	return nil
}

// SaveForUser adds a profile to a user's saved collection.
func (r *ProfileRepo) SaveForUser(ctx context.Context, userID, profileID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_saved_profiles (user_id, profile_id, saved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, profile_id) DO NOTHING`,
		userID, profileID,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile for user: %w", err)
	}
	return nil
}
