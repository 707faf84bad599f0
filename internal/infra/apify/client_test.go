package apify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
)

func newTestClient(baseURL string, maxPolls int) *Client {
	return NewClient(config.ApifyConfig{
		BaseURL:         baseURL,
		SubmitTimeout:   config.Duration(5 * time.Second),
		PollInterval:    config.Duration(time.Millisecond),
		MaxPollAttempts: maxPolls,
		FetchGrace:      config.Duration(time.Millisecond),
	}, slog.Default())
}

func TestWhoAmIClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.FailureKind
		wantOK   bool
	}{
		{"valid token", 200, `{"data":{"id":"me"}}`, "", true},
		{"unauthorized", 401, `{"error":{"type":"token-not-found"}}`, domain.FailureUnauthorized, false},
		{"rate limited", 429, `{"error":{"type":"rate-limit-exceeded"}}`, domain.FailureRateLimited, false},
		{"payment required", 402, `{"error":{"type":"payment-required"}}`, domain.FailureInsufficientQuota, false},
		{"quota phrase without 402", 403, `{"error":{"message":"Insufficient credits on the account"}}`, domain.FailureInsufficientQuota, false},
		{"disabled feature phrase", 403, `{"error":{"type":"platform-feature-disabled"}}`, domain.FailureInsufficientQuota, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/users/me" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			err := newTestClient(srv.URL, 3).WhoAmI(context.Background(), "tok")
			if tt.wantOK {
				if err != nil {
					t.Fatalf("WhoAmI: %v, want nil", err)
				}
				return
			}

			cf, ok := domain.AsCredentialFailure(err)
			if !ok {
				t.Fatalf("err = %v, want a credential failure", err)
			}
			if cf.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", cf.Kind, tt.wantKind)
			}
		})
	}
}

func TestWhoAmIGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(500)
		fmt.Fprint(w, `{"error":{"type":"internal"}}`)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, 3).WhoAmI(context.Background(), "tok")
	if err == nil {
		t.Fatal("WhoAmI: nil, want an error")
	}
	if _, ok := domain.AsCredentialFailure(err); ok {
		t.Errorf("a 500 must stay generic, got credential failure %v", err)
	}
}

func TestRunActorSuccess(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/acts/act1/runs":
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("auth header = %q, want bearer token", got)
			}
			fmt.Fprint(w, `{"data":{"id":"r1","status":"RUNNING"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/acts/act1/runs/r1":
			if polls.Add(1) < 3 {
				fmt.Fprint(w, `{"data":{"id":"r1","status":"RUNNING"}}`)
				return
			}
			fmt.Fprint(w, `{"data":{"id":"r1","status":"SUCCEEDED","defaultDatasetId":"d1"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/datasets/d1/items":
			fmt.Fprint(w, `[{"fullName":"A"},{"fullName":"B"}]`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL, 10).RunActor(context.Background(), "tok", "act1", map[string]any{"profileUrls": []string{"u"}})
	if err != nil {
		t.Fatalf("RunActor: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want 2", len(items))
	}
	if polls.Load() != 3 {
		t.Errorf("polled %d times, want 3", polls.Load())
	}
}

func TestRunActorFailedRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"data":{"id":"r1","status":"RUNNING"}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"id":"r1","status":"FAILED"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 10).RunActor(context.Background(), "tok", "act1", nil)
	if err == nil || !strings.Contains(err.Error(), "FAILED") {
		t.Errorf("err = %v, want terminal FAILED error", err)
	}
}

func TestRunActorPollTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"id":"r1","status":"RUNNING"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).RunActor(context.Background(), "tok", "act1", nil)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want a poll timeout", err)
	}
}

func TestStartRunWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).StartRun(context.Background(), "tok", "act1", nil)
	if err == nil {
		t.Error("StartRun: nil error for a response without a run id")
	}
}
