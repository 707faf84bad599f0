// Package service ties the credential pool, batch orchestrator and external
// job driver together into the scraping pipelines the API exposes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/scraping/batch"
)

// ProviderApify is the provider tag credentials are pooled under.
const ProviderApify = "apify"

// ErrNoValidURLs is returned when a request contains nothing scrapeable.
var ErrNoValidURLs = errors.New("no valid LinkedIn URLs provided")

const noCredentialsMessage = "All your Apify API credentials have hit their usage limits. " +
	"Add credits to your accounts or wait for the monthly reset; you can also add credentials from more accounts."

// actorRunner is the slice of the Apify client the service needs.
type actorRunner interface {
	RunActor(ctx context.Context, token, actorID string, input any) ([]json.RawMessage, error)
}

// ProfileCache fronts the profile store; implemented by the redis client.
type ProfileCache interface {
	GetProfile(ctx context.Context, url string) (*domain.Profile, bool, error)
	SetProfile(ctx context.Context, p domain.Profile) error
}

// Service runs the scraping pipelines.
type Service struct {
	orch          *batch.Orchestrator
	api           actorRunner
	profiles      storage.ProfileRepository
	logs          storage.ScrapeLogRepository
	cache         ProfileCache // nil when redis is not configured
	profileActor  string
	commentsActor string
	postLimit     int
	log           *slog.Logger
}

// New creates the scraping service.
func New(
	orch *batch.Orchestrator,
	api actorRunner,
	profiles storage.ProfileRepository,
	logs storage.ScrapeLogRepository,
	cache ProfileCache,
	apifyCfg config.ApifyConfig,
	batchCfg config.BatchConfig,
	log *slog.Logger,
) *Service {
	return &Service{
		orch:          orch,
		api:           api,
		profiles:      profiles,
		logs:          logs,
		cache:         cache,
		profileActor:  apifyCfg.ProfileActorID,
		commentsActor: apifyCfg.CommentsActorID,
		postLimit:     batchCfg.PostLimit,
		log:           log,
	}
}

// Response is the user-facing result of one scraping request. Partial
// success is a first-class outcome: the caller always gets whatever was
// scraped plus the failure count.
type Response struct {
	RequestID       string              `json:"request_id"`
	Status          domain.ScrapeStatus `json:"status"`
	Message         string              `json:"message"`
	Scraped         int                 `json:"scraped"`
	Failed          int                 `json:"failed"`
	CredentialsUsed int                 `json:"credentials_used"`
	ProcessingMS    int64               `json:"processing_ms"`
	AutoSaved       int                 `json:"auto_saved,omitempty"`
	Profiles        []domain.Profile    `json:"profiles,omitempty"`
	Comments        []json.RawMessage   `json:"comments,omitempty"`
}

// startLog opens a scrape audit row. Audit writes are best-effort.
func (s *Service) startLog(ctx context.Context, userID string, t domain.ScrapeType, urls []string) string {
	id, err := s.logs.Create(ctx, domain.ScrapeLog{
		UserID:    userID,
		Type:      t,
		InputURLs: urls,
	})
	if err != nil {
		s.log.Warn("failed to create scrape log", "type", t, "error", err)
		return ""
	}
	return id
}

// finishLog closes a scrape audit row. Best-effort.
func (s *Service) finishLog(ctx context.Context, id string, status domain.ScrapeStatus, scraped, failed int, errMsg string) {
	if id == "" {
		return
	}
	if err := s.logs.Finish(ctx, id, status, scraped, failed, errMsg); err != nil {
		s.log.Warn("failed to finish scrape log", "log", id, "error", err)
	}
}

func overallStatus(scraped, failed int) domain.ScrapeStatus {
	switch {
	case failed == 0:
		return domain.ScrapeCompleted
	case scraped > 0:
		return domain.ScrapePartial
	default:
		return domain.ScrapeFailed
	}
}

func requestID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
