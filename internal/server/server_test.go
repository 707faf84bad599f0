package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage/memory"
	"github.com/vietddude/harvester/internal/scraping/batch"
	"github.com/vietddude/harvester/internal/scraping/pool"
	"github.com/vietddude/harvester/internal/scraping/service"
)

type noActorAPI struct{}

func (noActorAPI) RunActor(context.Context, string, string, any) ([]json.RawMessage, error) {
	return nil, errors.New("no actor runs in this test")
}

type healthyChecker struct{}

func (healthyChecker) Health(context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *memory.ProfileRepo) {
	t.Helper()
	log := slog.Default()
	credRepo := memory.NewCredentialRepo()
	profileRepo := memory.NewProfileRepo()
	logRepo := memory.NewScrapeLogRepo()
	users := memory.NewUserRepo(domain.User{ID: "u1", WebhookToken: "secret-token"})

	manager := pool.NewManager(credRepo, nil, config.PoolConfig{MinActive: 2}, log)
	orch := batch.NewOrchestrator(manager, credRepo, config.BatchConfig{Size: 50, PostLimit: 10}, log)
	svc := service.New(orch, noActorAPI{}, profileRepo, logRepo, nil,
		config.ApifyConfig{}, config.BatchConfig{Size: 50, PostLimit: 10}, log)

	return NewServer(svc, users, healthyChecker{}, config.ServerConfig{Port: 0, RatePerMinute: 100}, log), profileRepo
}

func (s *Server) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSavedProfileRoutes(t *testing.T) {
	srv, profiles := newTestServer(t)

	jdoe, _ := profiles.Upsert(context.Background(), domain.Profile{
		LinkedInURL: "https://www.linkedin.com/in/jdoe",
		FullName:    "J Doe",
	})

	rec := srv.do(http.MethodPost, "/api/save-profile",
		`{"linkedin_url":"https://www.linkedin.com/in/jdoe/"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save code = %d, want 200 (body %s)", rec.Code, rec.Body)
	}

	rec = srv.do(http.MethodGet, "/api/saved-profiles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list code = %d, want 200", rec.Code)
	}
	var listed struct {
		Profiles []domain.Profile `json:"profiles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if len(listed.Profiles) != 1 || listed.Profiles[0].ID != jdoe.ID {
		t.Fatalf("listed = %+v, want the saved profile", listed.Profiles)
	}

	rec = srv.do(http.MethodDelete, "/api/save-profile/"+jdoe.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete code = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if profiles.SavedCount("u1") != 0 {
		t.Error("profile still saved after delete")
	}
}

func TestSaveProfileRejectsUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/save-profile",
		`{"linkedin_url":"https://www.linkedin.com/in/nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404 for an unscraped profile", rec.Code)
	}

	rec = srv.do(http.MethodPost, "/api/save-profile",
		`{"linkedin_url":"https://example.com/in/jdoe"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400 for a non-LinkedIn URL", rec.Code)
	}
}

func TestSavedProfilesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/saved-profiles", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401 without a token", rec.Code)
	}
}
