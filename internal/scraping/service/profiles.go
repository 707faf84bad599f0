package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/scraping/batch"
)

// ScrapeProfiles scrapes a list of LinkedIn profile URLs. Known profiles
// are served from the cache/store without spending an actor run; the rest
// go through the batch orchestrator under pooled credentials.
func (s *Service) ScrapeProfiles(
	ctx context.Context,
	userID string,
	rawURLs []string,
	saveAll bool,
) (*Response, error) {
	start := time.Now()

	urls := NormalizeProfileURLs(rawURLs)
	if len(urls) == 0 {
		return nil, ErrNoValidURLs
	}

	logID := s.startLog(ctx, userID, domain.ScrapeProfiles, urls)

	result, profiles, err := s.runProfileItems(ctx, userID, urls, saveAll)
	if err != nil {
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(urls), err.Error())
		return nil, err
	}

	resp := &Response{
		RequestID:       requestID("prof"),
		Scraped:         len(profiles),
		Failed:          result.FailedCount,
		CredentialsUsed: len(result.UsedCredentialIDs),
		ProcessingMS:    elapsedMS(start),
		Profiles:        profiles,
	}

	if result.NoCredentials {
		resp.Status = domain.ScrapeFailed
		resp.Message = noCredentialsMessage
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(urls), "no credentials available")
		return resp, nil
	}

	resp.Status = overallStatus(resp.Scraped, resp.Failed)
	if resp.Failed > 0 {
		resp.Message = fmt.Sprintf("Some profiles failed to scrape: %d scraped, %d failed.", resp.Scraped, resp.Failed)
	} else {
		resp.Message = fmt.Sprintf("All %d profiles scraped successfully.", resp.Scraped)
	}
	if saveAll {
		resp.AutoSaved = resp.Scraped
	}

	s.finishLog(ctx, logID, resp.Status, resp.Scraped, resp.Failed, "")
	return resp, nil
}

// runProfileItems executes the profile pipeline for normalized URLs and
// decodes the settled outcomes back into profiles.
func (s *Service) runProfileItems(
	ctx context.Context,
	userID string,
	urls []string,
	saveAll bool,
) (batch.RunResult, []domain.Profile, error) {
	work := func(ctx context.Context, url string, cred domain.Credential) (json.RawMessage, error) {
		return s.scrapeOneProfile(ctx, userID, url, cred, saveAll)
	}

	result, err := s.orch.Run(ctx, batch.Request{
		UserID:   userID,
		Provider: ProviderApify,
		Items:    urls,
		Work:     work,
	})
	if err != nil {
		return batch.RunResult{}, nil, err
	}

	var profiles []domain.Profile
	for _, oc := range result.Outcomes {
		if oc.Err != nil || oc.Data == nil {
			continue
		}
		var p domain.Profile
		if uerr := json.Unmarshal(oc.Data, &p); uerr != nil {
			s.log.Warn("failed to decode scraped profile", "item", oc.Item, "error", uerr)
			continue
		}
		profiles = append(profiles, p)
	}
	return result, profiles, nil
}

// scrapeOneProfile is the per-item work: dedup against cache and store,
// otherwise run the profile actor and persist the result.
func (s *Service) scrapeOneProfile(
	ctx context.Context,
	userID, url string,
	cred domain.Credential,
	saveAll bool,
) (json.RawMessage, error) {
	if existing := s.lookupProfile(ctx, url); existing != nil {
		if saveAll {
			s.saveForUser(ctx, userID, existing.ID)
		}
		return json.Marshal(existing)
	}

	input := map[string]any{"profileUrls": []string{url}}
	items, err := s.api.RunActor(ctx, cred.Secret, s.profileActor, input)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("scraper returned no data for %s", url)
	}

	stored, err := s.profiles.Upsert(ctx, domain.ProfileFromPayload(url, items[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to save profile data: %w", err)
	}

	if s.cache != nil {
		if cerr := s.cache.SetProfile(ctx, *stored); cerr != nil {
			s.log.Warn("failed to cache profile", "url", url, "error", cerr)
		}
	}
	if saveAll {
		s.saveForUser(ctx, userID, stored.ID)
	}
	return json.Marshal(stored)
}

// lookupProfile checks the cache, then the store. Lookup errors only skip
// the dedup; the URL still gets scraped.
func (s *Service) lookupProfile(ctx context.Context, url string) *domain.Profile {
	if s.cache != nil {
		p, hit, err := s.cache.GetProfile(ctx, url)
		if err != nil {
			s.log.Warn("profile cache lookup failed", "url", url, "error", err)
		} else if hit {
			return p
		}
	}

	p, err := s.profiles.GetByURL(ctx, url)
	if err != nil {
		s.log.Warn("profile store lookup failed", "url", url, "error", err)
		return nil
	}
	return p
}

func (s *Service) saveForUser(ctx context.Context, userID, profileID string) {
	if err := s.profiles.SaveForUser(ctx, userID, profileID); err != nil {
		s.log.Warn("failed to auto-save profile", "profile", profileID, "error", err)
	}
}
