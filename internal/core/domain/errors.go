package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials is returned when a user has zero credentials
	// configured for a provider. Fatal to the whole run, never retried.
	ErrNoCredentials = errors.New("no credentials configured for provider")

	// ErrNoReplacement is returned when a mid-item replacement is
	// requested but every credential is exhausted or excluded.
	ErrNoReplacement = errors.New("no replacement credential available")
)

// FailureKind classifies how a credential-bearing call failed.
type FailureKind string

const (
	FailureUnauthorized      FailureKind = "unauthorized"       // HTTP 401
	FailureRateLimited       FailureKind = "rate_limited"       // HTTP 429
	FailureInsufficientQuota FailureKind = "insufficient_quota" // HTTP 402 or quota phrase
	FailureGeneric           FailureKind = "generic"
)

// CredentialRelated reports whether the failure is attributable to the
// credential itself and therefore worth a replacement-and-retry.
func (k FailureKind) CredentialRelated() bool {
	switch k {
	case FailureUnauthorized, FailureRateLimited, FailureInsufficientQuota:
		return true
	}
	return false
}

// Status maps a failure kind to the credential status to persist.
func (k FailureKind) Status() CredentialStatus {
	if k == FailureRateLimited {
		return CredentialRateLimited
	}
	return CredentialFailed
}

// CredentialFailure wraps an error from the external API with its
// classification so callers can decide whether to rotate credentials.
type CredentialFailure struct {
	Kind FailureKind
	Err  error
}

func (e *CredentialFailure) Error() string {
	return fmt.Sprintf("credential failure (%s): %v", e.Kind, e.Err)
}

func (e *CredentialFailure) Unwrap() error {
	return e.Err
}

// AsCredentialFailure extracts a CredentialFailure from an error chain.
func AsCredentialFailure(err error) (*CredentialFailure, bool) {
	var cf *CredentialFailure
	if errors.As(err, &cf) {
		return cf, true
	}
	return nil, false
}
