package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/scraping/batch"
)

// ScrapePostComments scrapes the comments of up to postLimit LinkedIn
// posts. Each post runs under its own credential (batch size 1) because a
// comment run is much heavier than a profile run. Comments are returned,
// not persisted.
func (s *Service) ScrapePostComments(
	ctx context.Context,
	userID string,
	rawURLs []string,
) (*Response, error) {
	start := time.Now()

	posts := NormalizePostURLs(rawURLs, s.postLimit)
	if len(posts) == 0 {
		return nil, ErrNoValidURLs
	}

	logID := s.startLog(ctx, userID, domain.ScrapePostComments, posts)

	result, comments, err := s.runCommentItems(ctx, userID, posts)
	if err != nil {
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(posts), err.Error())
		return nil, err
	}

	resp := &Response{
		RequestID:       requestID("cmt"),
		Scraped:         len(comments),
		Failed:          result.FailedCount,
		CredentialsUsed: len(result.UsedCredentialIDs),
		ProcessingMS:    elapsedMS(start),
		Comments:        comments,
	}

	if result.NoCredentials {
		resp.Status = domain.ScrapeFailed
		resp.Message = noCredentialsMessage
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(posts), "no credentials available")
		return resp, nil
	}

	resp.Status = overallStatus(resp.Scraped, resp.Failed)
	if resp.Failed > 0 {
		resp.Message = fmt.Sprintf("Some posts failed to scrape: %d comments scraped, %d posts failed.", len(comments), resp.Failed)
	} else {
		resp.Message = "All comments scraped successfully."
	}

	s.finishLog(ctx, logID, resp.Status, resp.Scraped, resp.Failed, "")
	return resp, nil
}

// ScrapeMixed scrapes the comments of the given posts, extracts the
// commenters' profile URLs, and scrapes those profiles.
func (s *Service) ScrapeMixed(
	ctx context.Context,
	userID string,
	rawURLs []string,
	saveAll bool,
) (*Response, error) {
	start := time.Now()

	posts := NormalizePostURLs(rawURLs, s.postLimit)
	if len(posts) == 0 {
		return nil, ErrNoValidURLs
	}

	logID := s.startLog(ctx, userID, domain.ScrapeMixed, posts)

	commentsResult, comments, err := s.runCommentItems(ctx, userID, posts)
	if err != nil {
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(posts), err.Error())
		return nil, err
	}
	if commentsResult.NoCredentials {
		resp := &Response{
			RequestID:    requestID("mix"),
			Status:       domain.ScrapeFailed,
			Message:      noCredentialsMessage,
			Failed:       len(posts),
			ProcessingMS: elapsedMS(start),
		}
		s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(posts), "no credentials available")
		return resp, nil
	}

	profileURLs := extractCommenterURLs(comments)
	s.log.Info("extracted commenter profiles",
		"posts", len(posts), "comments", len(comments), "profiles", len(profileURLs))

	var profiles []domain.Profile
	var profileResult batch.RunResult
	if len(profileURLs) > 0 {
		profileResult, profiles, err = s.runProfileItems(ctx, userID, profileURLs, saveAll)
		if err != nil {
			s.finishLog(ctx, logID, domain.ScrapeFailed, 0, len(profileURLs), err.Error())
			return nil, err
		}
	}

	failed := commentsResult.FailedCount + profileResult.FailedCount
	resp := &Response{
		RequestID:       requestID("mix"),
		Status:          overallStatus(len(profiles), failed),
		Scraped:         len(profiles),
		Failed:          failed,
		CredentialsUsed: len(commentsResult.UsedCredentialIDs) + len(profileResult.UsedCredentialIDs),
		ProcessingMS:    elapsedMS(start),
		Profiles:        profiles,
		Comments:        comments,
	}
	if profileResult.NoCredentials {
		resp.Status = domain.ScrapeFailed
		resp.Message = noCredentialsMessage
	} else if resp.Failed > 0 {
		resp.Message = fmt.Sprintf("Mixed scrape finished with failures: %d profiles scraped, %d items failed.", resp.Scraped, resp.Failed)
	} else {
		resp.Message = fmt.Sprintf("Scraped %d commenter profiles from %d posts.", resp.Scraped, len(posts))
	}
	if saveAll {
		resp.AutoSaved = resp.Scraped
	}

	s.finishLog(ctx, logID, resp.Status, resp.Scraped, resp.Failed, "")
	return resp, nil
}

// runCommentItems executes the comments pipeline and flattens the per-post
// comment arrays into one list.
func (s *Service) runCommentItems(
	ctx context.Context,
	userID string,
	posts []string,
) (batch.RunResult, []json.RawMessage, error) {
	work := func(ctx context.Context, post string, cred domain.Credential) (json.RawMessage, error) {
		input := map[string]any{"posts": []string{post}}
		items, err := s.api.RunActor(ctx, cred.Secret, s.commentsActor, input)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("no comments returned for %s", post)
		}
		return json.Marshal(items)
	}

	result, err := s.orch.Run(ctx, batch.Request{
		UserID:    userID,
		Provider:  ProviderApify,
		Items:     posts,
		BatchSize: 1,
		Work:      work,
	})
	if err != nil {
		return batch.RunResult{}, nil, err
	}

	var comments []json.RawMessage
	for _, oc := range result.Outcomes {
		if oc.Err != nil || oc.Data == nil {
			continue
		}
		var postComments []json.RawMessage
		if uerr := json.Unmarshal(oc.Data, &postComments); uerr != nil {
			s.log.Warn("failed to decode comments", "item", oc.Item, "error", uerr)
			continue
		}
		comments = append(comments, postComments...)
	}
	return result, comments, nil
}

// extractCommenterURLs pulls the distinct commenter profile URLs out of raw
// comment records, preserving first-seen order.
func extractCommenterURLs(comments []json.RawMessage) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, raw := range comments {
		var c struct {
			Actor struct {
				LinkedInURL string `json:"linkedinUrl"`
			} `json:"actor"`
		}
		if err := json.Unmarshal(raw, &c); err != nil || c.Actor.LinkedInURL == "" {
			continue
		}
		u := NormalizeURL(c.Actor.LinkedInURL)
		if u == "" || !strings.Contains(u, "linkedin.com/in/") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}
