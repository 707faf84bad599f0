package service

import (
	"context"
	"errors"

	"github.com/vietddude/harvester/internal/core/domain"
)

// ErrProfileNotFound is returned when a save refers to a profile that
// has never been scraped.
var ErrProfileNotFound = errors.New("profile not found")

// SavedProfiles returns the user's saved collection, most recent first.
func (s *Service) SavedProfiles(ctx context.Context, userID string) ([]domain.Profile, error) {
	return s.profiles.ListSavedForUser(ctx, userID)
}

// SaveProfile adds an already scraped profile to the user's saved
// collection, looked up by its LinkedIn URL.
func (s *Service) SaveProfile(ctx context.Context, userID, rawURL string) (*domain.Profile, error) {
	url := NormalizeURL(rawURL)
	if url == "" {
		return nil, ErrNoValidURLs
	}
	p, err := s.profiles.GetByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if err := s.profiles.SaveForUser(ctx, userID, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// UnsaveProfile removes a profile from the user's saved collection.
func (s *Service) UnsaveProfile(ctx context.Context, userID, profileID string) error {
	return s.profiles.UnsaveForUser(ctx, userID, profileID)
}
