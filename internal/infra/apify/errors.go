package apify

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/vietddude/harvester/internal/core/domain"
)

// quotaPhrases are body fragments the provider uses to signal account-level
// credit exhaustion without a 402 status.
var quotaPhrases = []string{
	"insufficient credits",
	"monthly usage hard limit exceeded",
	"platform-feature-disabled",
}

func isQuotaPhrase(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range quotaPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classify turns an HTTP response into the failure taxonomy consumed by the
// orchestrator: 401 unauthorized, 429 rate limited, 402 or a quota phrase
// insufficient quota, anything else generic. Transport errors stay generic.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("apify request: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}

	body := string(resp.Body())
	base := fmt.Errorf("apify: status %d: %s", resp.StatusCode(), strings.TrimSpace(body))

	switch {
	case resp.StatusCode() == 401:
		return &domain.CredentialFailure{Kind: domain.FailureUnauthorized, Err: base}
	case resp.StatusCode() == 429:
		return &domain.CredentialFailure{Kind: domain.FailureRateLimited, Err: base}
	case resp.StatusCode() == 402 || isQuotaPhrase(body):
		return &domain.CredentialFailure{Kind: domain.FailureInsufficientQuota, Err: base}
	}
	return base
}
