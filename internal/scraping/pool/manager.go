// Package pool selects, tests, recovers and replaces API credentials across
// concurrent batches of scraping work. Selection is LRU-based: the store
// returns credentials ordered by last use, never-used first, and every tier
// of every decision keeps that order.
package pool

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/scraping/metrics"
)

// Prober tests one credential against the external API and persists the
// outcome. Implemented by HealthProber.
type Prober interface {
	Probe(ctx context.Context, cred domain.Credential) (accepted bool, status domain.CredentialStatus)
}

// Manager is the credential pool manager.
type Manager struct {
	creds     storage.CredentialRepository
	prober    Prober
	cooldown  time.Duration
	minActive int
	now       func() time.Time
	log       *slog.Logger
}

// NewManager creates a pool manager.
func NewManager(
	creds storage.CredentialRepository,
	prober Prober,
	cfg config.PoolConfig,
	log *slog.Logger,
) *Manager {
	return &Manager{
		creds:     creds,
		prober:    prober,
		cooldown:  cfg.Cooldown.Std(),
		minActive: cfg.MinActive,
		now:       time.Now,
		log:       log,
	}
}

// SelectCredentials returns up to required credentials for (user, provider),
// best available first. It returns domain.ErrNoCredentials when the user has
// none configured at all; otherwise it returns whatever the pool can cover —
// possibly fewer than required, possibly empty on total exhaustion, never
// more than required and never duplicates.
//
// Probing only happens when the active pool has dropped below the minimum
// threshold: probes cost latency and burn the provider's own rate budget, so
// the common path must stay cheap.
func (m *Manager) SelectCredentials(
	ctx context.Context,
	userID, provider string,
	required int,
	state *RequestState,
) ([]domain.Credential, error) {
	all, err := m.creds.ListByUserProvider(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrNoCredentials
	}

	now := m.now()
	var active, candidates []domain.Credential
	for _, c := range all {
		if state.Failed(c.ID) {
			continue
		}
		switch c.Status {
		case domain.CredentialActive:
			active = append(active, c)
		case domain.CredentialRateLimited:
			// Quota windows reset opaquely; re-testing costs nothing
			// compared to running out of credentials.
			candidates = append(candidates, c)
		case domain.CredentialFailed:
			if c.CooldownExpired(now, m.cooldown) {
				candidates = append(candidates, c)
			}
		}
	}

	m.log.Debug("credential inventory",
		"user", userID, "provider", provider,
		"active", len(active), "recovery_candidates", len(candidates),
		"required", required, "excluded", state.FailedCount())

	if len(active) >= required {
		metrics.SelectionsTotal.WithLabelValues("fast").Inc()
		return active[:required], nil
	}

	if len(active) >= m.minActive {
		// Enough known-good credentials to keep moving; the caller reuses
		// them round-robin across the excess work units.
		metrics.SelectionsTotal.WithLabelValues("threshold").Inc()
		return active, nil
	}

	// Pool nearly exhausted: probe every recovery candidate in parallel.
	metrics.SelectionsTotal.WithLabelValues("probe").Inc()
	recovered := m.probeCandidates(ctx, candidates, state)

	m.log.Info("recovery probing finished",
		"user", userID, "provider", provider,
		"tested", len(candidates), "recovered", len(recovered))

	selection := append(active, recovered...)
	if len(selection) > required {
		selection = selection[:required]
	}
	return selection, nil
}

// probeCandidates fans out one probe per candidate and returns the ones
// that came back active, preserving LRU order. Recovered credentials are
// recorded in the request state so replacements can prefer them.
func (m *Manager) probeCandidates(
	ctx context.Context,
	candidates []domain.Credential,
	state *RequestState,
) []domain.Credential {
	if len(candidates) == 0 {
		return nil
	}

	accepted := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, cred := range candidates {
		g.Go(func() error {
			ok, _ := m.prober.Probe(gctx, cred)
			accepted[i] = ok
			return nil
		})
	}
	// Workers never return errors; a rejected probe is an outcome, not a
	// failure of the fan-out.
	_ = g.Wait()

	now := m.now()
	var recovered []domain.Credential
	for i, ok := range accepted {
		if !ok {
			continue
		}
		c := candidates[i]
		c.ApplyProbe(domain.CredentialActive, now)
		state.MarkRecovered(c.ID)
		recovered = append(recovered, c)
		metrics.RecoveriesTotal.Inc()
	}
	return recovered
}

// SelectReplacement picks a single credential to take over mid-item after
// another one failed. It never probes — this is a synchronous best-effort
// pick to keep the batch moving, and the caller must be prepared for the
// replacement to fail too.
//
// Priority tiers, each LRU-ordered internally:
//  1. active credentials recovered during this request
//  2. other active credentials
//  3. rate-limited credentials whose cooldown expired
//  4. failed credentials whose cooldown expired (or never recorded a failure)
func (m *Manager) SelectReplacement(
	ctx context.Context,
	userID, provider string,
	state *RequestState,
) (domain.Credential, error) {
	all, err := m.creds.ListByUserProvider(ctx, userID, provider)
	if err != nil {
		return domain.Credential{}, err
	}
	if len(all) == 0 {
		return domain.Credential{}, domain.ErrNoReplacement
	}

	now := m.now()
	var recovered, active, rateLimited, failed []domain.Credential
	for _, c := range all {
		if state.Failed(c.ID) {
			continue
		}
		switch c.Status {
		case domain.CredentialActive:
			if state.Recovered(c.ID) {
				recovered = append(recovered, c)
			} else {
				active = append(active, c)
			}
		case domain.CredentialRateLimited:
			if c.CooldownExpired(now, m.cooldown) {
				rateLimited = append(rateLimited, c)
			}
		case domain.CredentialFailed:
			if c.CooldownExpired(now, m.cooldown) {
				failed = append(failed, c)
			}
		}
	}

	tiers := []struct {
		name  string
		creds []domain.Credential
	}{
		{"recently_activated", recovered},
		{"active", active},
		{"rate_limited", rateLimited},
		{"failed", failed},
	}
	for _, tier := range tiers {
		if len(tier.creds) == 0 {
			continue
		}
		pick := tier.creds[0]
		metrics.ReplacementsTotal.WithLabelValues(tier.name).Inc()
		m.log.Debug("replacement credential selected",
			"credential", pick.ID, "name", pick.Name, "tier", tier.name)
		return pick, nil
	}

	return domain.Credential{}, domain.ErrNoReplacement
}
