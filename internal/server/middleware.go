package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
)

type ctxKey int

const userKey ctxKey = iota

// userFrom returns the authenticated user. Only valid behind the auth
// middleware.
func userFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

// authMiddleware resolves the Bearer token to a user before any handler
// runs.
type authMiddleware struct {
	users storage.UserRepository
	log   *slog.Logger
}

func newAuthMiddleware(users storage.UserRepository, log *slog.Logger) *authMiddleware {
	return &authMiddleware{users: users, log: log}
}

func (m *authMiddleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		user, err := m.users.GetByToken(r.Context(), token)
		if err != nil {
			m.log.Error("token lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "authentication unavailable")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// rateLimiter enforces a per-user request budget. Limiters are kept for
// the life of the process; the user population is small enough that no
// eviction is needed.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (rl *rateLimiter) allow(userID string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

func (rl *rateLimiter) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user != nil && !rl.allow(user.ID) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
