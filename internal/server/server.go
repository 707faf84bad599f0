// Package server exposes the scraping pipelines over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/scraping/service"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP front of the scraping service.
type Server struct {
	svc    *service.Service
	health HealthChecker
	server *http.Server
	log    *slog.Logger
}

// NewServer wires the routes and middleware.
func NewServer(
	svc *service.Service,
	users storage.UserRepository,
	health HealthChecker,
	cfg config.ServerConfig,
	log *slog.Logger,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:    svc,
		health: health,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
		log: log,
	}

	auth := newAuthMiddleware(users, log)
	limit := newRateLimiter(cfg.RatePerMinute)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.wrap(limit.wrap(h))
	}

	mux.Handle("POST /api/scrape-linkedin", protected(s.handleScrapeProfiles))
	mux.Handle("POST /api/scrape-post-comments", protected(s.handleScrapeComments))
	mux.Handle("POST /api/scrape-mixed", protected(s.handleScrapeMixed))
	mux.Handle("GET /api/saved-profiles", protected(s.handleSavedProfiles))
	mux.Handle("POST /api/save-profile", protected(s.handleSaveProfile))
	mux.Handle("DELETE /api/save-profile/{id}", protected(s.handleUnsaveProfile))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type scrapeRequest struct {
	LinkedInURLs []string `json:"linkedin_urls"`
	PostURLs     []string `json:"post_urls"`
	SaveAll      bool     `json:"save_all"`
}

func (s *Server) handleScrapeProfiles(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := s.svc.ScrapeProfiles(r.Context(), userFrom(r.Context()).ID, req.LinkedInURLs, req.SaveAll)
	s.writeResult(w, resp, err)
}

func (s *Server) handleScrapeComments(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := s.svc.ScrapePostComments(r.Context(), userFrom(r.Context()).ID, req.PostURLs)
	s.writeResult(w, resp, err)
}

func (s *Server) handleScrapeMixed(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := s.svc.ScrapeMixed(r.Context(), userFrom(r.Context()).ID, req.PostURLs, req.SaveAll)
	s.writeResult(w, resp, err)
}

func (s *Server) handleSavedProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.svc.SavedProfiles(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.log.Error("listing saved profiles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list saved profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

type saveProfileRequest struct {
	LinkedInURL string `json:"linkedin_url"`
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req saveProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	p, err := s.svc.SaveProfile(r.Context(), userFrom(r.Context()).ID, req.LinkedInURL)
	switch {
	case errors.Is(err, service.ErrNoValidURLs):
		writeError(w, http.StatusBadRequest, "no_valid_urls", "linkedin_url must be a LinkedIn profile URL")
	case errors.Is(err, service.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", "profile has not been scraped yet")
	case err != nil:
		s.log.Error("saving profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not save profile")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"profile": p})
	}
}

func (s *Server) handleUnsaveProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "profile id is required")
		return
	}
	if err := s.svc.UnsaveProfile(r.Context(), userFrom(r.Context()).ID, id); err != nil {
		s.log.Error("removing saved profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not remove saved profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) writeResult(w http.ResponseWriter, resp *service.Response, err error) {
	switch {
	case errors.Is(err, service.ErrNoValidURLs):
		writeError(w, http.StatusBadRequest, "no_valid_urls", err.Error())
	case err != nil:
		s.log.Error("scrape request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "scraping failed unexpectedly")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.health.Health(r.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]string{"error": kind, "message": message})
}
