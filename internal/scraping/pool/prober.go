package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/scraping/metrics"
)

// tokenChecker is the identity call the prober needs from the API client.
type tokenChecker interface {
	WhoAmI(ctx context.Context, token string) error
}

// HealthProber tests whether a credential currently works and persists the
// result. Probing is itself a repair action: the new status is written
// before the result is returned, so a probe is never just an observation.
type HealthProber struct {
	api   tokenChecker
	creds storage.CredentialRepository
	now   func() time.Time
	log   *slog.Logger
}

// NewHealthProber creates a prober.
func NewHealthProber(api tokenChecker, creds storage.CredentialRepository, log *slog.Logger) *HealthProber {
	return &HealthProber{
		api:   api,
		creds: creds,
		now:   time.Now,
		log:   log,
	}
}

// Probe issues a lightweight identity call with the credential and
// classifies the outcome: success means active, 429 means rate limited,
// anything else (including transport errors) means failed. The prober never
// returns an error; every outcome is represented in the classification.
func (p *HealthProber) Probe(ctx context.Context, cred domain.Credential) (bool, domain.CredentialStatus) {
	err := p.api.WhoAmI(ctx, cred.Secret)

	status := domain.CredentialFailed
	if err == nil {
		status = domain.CredentialActive
	} else if cf, ok := domain.AsCredentialFailure(err); ok && cf.Kind == domain.FailureRateLimited {
		status = domain.CredentialRateLimited
	}

	now := p.now()
	cred.ApplyProbe(status, now)

	upd := storage.CredentialUpdate{Status: &status}
	if status == domain.CredentialActive {
		upd.LastUsed = &now
		zero := 0
		upd.FailureCount = &zero
	} else {
		upd.LastFailed = &now
		fc := cred.FailureCount
		upd.FailureCount = &fc
	}
	// Bookkeeping is best-effort; a store hiccup must not turn a healthy
	// probe into a failure.
	if uerr := p.creds.Update(ctx, cred.ID, upd); uerr != nil {
		p.log.Warn("failed to persist probe result", "credential", cred.ID, "error", uerr)
	}

	metrics.ProbesTotal.WithLabelValues(string(status)).Inc()

	if status != domain.CredentialActive {
		p.log.Debug("credential probe rejected",
			"credential", cred.ID, "name", cred.Name, "status", status, "error", err)
	}
	return status == domain.CredentialActive, status
}
