// Package memory provides in-memory repository implementations used by
// tests and by local runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
)

// CredentialRepo is an in-memory storage.CredentialRepository.
type CredentialRepo struct {
	mu    sync.Mutex
	creds map[string]domain.Credential
}

// NewCredentialRepo creates an in-memory credential repository seeded with
// the given credentials.
func NewCredentialRepo(seed ...domain.Credential) *CredentialRepo {
	r := &CredentialRepo{creds: make(map[string]domain.Credential)}
	for _, c := range seed {
		r.creds[c.ID] = c
	}
	return r
}

// ListByUserProvider returns credentials ordered by last_used ascending,
// never-used first, matching the SQL "ASC NULLS FIRST" contract.
func (r *CredentialRepo) ListByUserProvider(
	_ context.Context,
	userID, provider string,
) ([]domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Credential
	for _, c := range r.creds {
		if c.UserID == userID && c.Provider == provider {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastUsed, out[j].LastUsed
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

// Update applies a partial update.
func (r *CredentialRepo) Update(_ context.Context, id string, upd storage.CredentialUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.creds[id]
	if !ok {
		return nil
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.LastUsed != nil {
		t := *upd.LastUsed
		c.LastUsed = &t
	}
	if upd.LastFailed != nil {
		t := *upd.LastFailed
		c.LastFailed = &t
	}
	if upd.FailureCount != nil {
		c.FailureCount = *upd.FailureCount
	}
	r.creds[id] = c
	return nil
}

// Get returns a copy of the stored credential, for test assertions.
func (r *CredentialRepo) Get(id string) (domain.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[id]
	return c, ok
}

// ProfileRepo is an in-memory storage.ProfileRepository.
type ProfileRepo struct {
	mu       sync.Mutex
	byURL    map[string]domain.Profile
	savedFor map[string][]string // userID -> profile IDs in save order
}

// NewProfileRepo creates an in-memory profile repository.
func NewProfileRepo() *ProfileRepo {
	return &ProfileRepo{
		byURL:    make(map[string]domain.Profile),
		savedFor: make(map[string][]string),
	}
}

func (r *ProfileRepo) GetByURL(_ context.Context, url string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byURL[url]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (r *ProfileRepo) Upsert(_ context.Context, p domain.Profile) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byURL[p.LinkedInURL]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.byURL[p.LinkedInURL] = p
	cp := p
	return &cp, nil
}

func (r *ProfileRepo) SaveForUser(_ context.Context, userID, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.savedFor[userID] {
		if id == profileID {
			return nil
		}
	}
	r.savedFor[userID] = append(r.savedFor[userID], profileID)
	return nil
}

func (r *ProfileRepo) ListSavedForUser(_ context.Context, userID string) ([]domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := r.savedFor[userID]
	out := make([]domain.Profile, 0, len(saved))
	// Most recently saved first.
	for i := len(saved) - 1; i >= 0; i-- {
		for _, p := range r.byURL {
			if p.ID == saved[i] {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (r *ProfileRepo) UnsaveForUser(_ context.Context, userID, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := r.savedFor[userID]
	for i, id := range saved {
		if id == profileID {
			r.savedFor[userID] = append(saved[:i], saved[i+1:]...)
			break
		}
	}
	return nil
}

// SavedCount returns how many profiles a user has saved, for tests.
func (r *ProfileRepo) SavedCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.savedFor[userID])
}

// ScrapeLogRepo is an in-memory storage.ScrapeLogRepository.
type ScrapeLogRepo struct {
	mu   sync.Mutex
	logs map[string]domain.ScrapeLog
}

// NewScrapeLogRepo creates an in-memory scrape log repository.
func NewScrapeLogRepo() *ScrapeLogRepo {
	return &ScrapeLogRepo{logs: make(map[string]domain.ScrapeLog)}
}

func (r *ScrapeLogRepo) Create(_ context.Context, log domain.ScrapeLog) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	log.ID = id
	log.Status = domain.ScrapeRunning
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	r.logs[id] = log
	return id, nil
}

func (r *ScrapeLogRepo) Finish(
	_ context.Context,
	id string,
	status domain.ScrapeStatus,
	scraped, failed int,
	errMsg string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return nil
	}
	log.Status = status
	log.Scraped = scraped
	log.Failed = failed
	log.Error = errMsg
	r.logs[id] = log
	return nil
}

func (r *ScrapeLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, l := range r.logs {
		if l.StartedAt.Before(cutoff) {
			delete(r.logs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns a stored log row, for tests.
func (r *ScrapeLogRepo) Get(id string) (domain.ScrapeLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	return l, ok
}

// UserRepo is an in-memory storage.UserRepository.
type UserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User // token -> user
}

// NewUserRepo creates an in-memory user repository.
func NewUserRepo(users ...domain.User) *UserRepo {
	r := &UserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		r.users[u.WebhookToken] = u
	}
	return r
}

func (r *UserRepo) GetByToken(_ context.Context, token string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[token]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}
