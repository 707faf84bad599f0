package domain

import "time"

// CredentialStatus is the health state of an API credential as of its most
// recent probe or use. It is never accumulated: a single successful probe
// resets a credential to active no matter what came before.
type CredentialStatus string

const (
	CredentialActive      CredentialStatus = "active"
	CredentialRateLimited CredentialStatus = "rate_limited"
	CredentialFailed      CredentialStatus = "failed"
)

// Credential is one account's access token for the external scraping API.
// Each credential is individually rate-limited and quota-capped, which is
// why the pool rotates across them.
type Credential struct {
	ID           string           `db:"id"            json:"id"`
	UserID       string           `db:"user_id"       json:"user_id"`
	Provider     string           `db:"provider"      json:"provider"`
	Name         string           `db:"name"          json:"name"`
	Secret       string           `db:"secret"        json:"-"`
	Status       CredentialStatus `db:"status"        json:"status"`
	LastUsed     *time.Time       `db:"last_used"     json:"last_used,omitempty"`
	LastFailed   *time.Time       `db:"last_failed"   json:"last_failed,omitempty"`
	FailureCount int              `db:"failure_count" json:"failure_count"`
}

// ApplyProbe is the single transition point for credential status. All
// probe/use outcomes funnel through here so invalid states cannot be
// represented elsewhere.
func (c *Credential) ApplyProbe(status CredentialStatus, at time.Time) {
	c.Status = status
	if status == CredentialActive {
		t := at
		c.LastUsed = &t
		c.FailureCount = 0
		return
	}
	t := at
	c.LastFailed = &t
	c.FailureCount++
}

// CooldownExpired reports whether the credential's last failure is old
// enough to reconsider it. The boundary is exclusive: elapsed time must be
// strictly greater than the cooldown. A credential with no recorded failure
// was never actually tested and is always eligible.
func (c *Credential) CooldownExpired(now time.Time, cooldown time.Duration) bool {
	if c.LastFailed == nil {
		return true
	}
	return now.Sub(*c.LastFailed) > cooldown
}
