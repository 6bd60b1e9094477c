package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BackpressurePolicy bounds the request rate for a single actor.
type BackpressurePolicy struct {
	RPM   int // requests per minute
	Burst int
}

// LimiterStore tracks token buckets per actor. Implementations must be
// safe for concurrent use.
type LimiterStore interface {
	Allow(ctx context.Context, actorID string, policy BackpressurePolicy, cost int) (bool, error)
}

// LocalLimiterStore is an in-process LimiterStore backed by x/time/rate.
// Suitable for single-node deployments; use RedisLimiterStore when
// running more than one replica.
type LocalLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalLimiterStore() *LocalLimiterStore {
	return &LocalLimiterStore{limiters: make(map[string]*rate.Limiter)}
}

func (s *LocalLimiterStore) Allow(ctx context.Context, actorID string, policy BackpressurePolicy, cost int) (bool, error) {
	_ = ctx
	s.mu.Lock()
	lim, ok := s.limiters[actorID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(policy.RPM)/60.0), policy.Burst)
		s.limiters[actorID] = lim
	}
	s.mu.Unlock()
	return lim.AllowN(time.Now(), cost), nil
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// It extracts the actor ID from the authenticated Principal (falls back to
// remote IP). On rate limit exceeded, it returns 429 with a Retry-After header.
func RateLimitMiddleware(store LimiterStore, policy BackpressurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fail open if no store configured (dev mode)
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = principal.GetID()
			}

			allowed, err := store.Allow(r.Context(), actorID, policy, 1)
			if err != nil {
				// Fail open on limiter errors to avoid blocking all traffic
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				writeTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"type":"https://docket.systems/errors/429","title":"Too Many Requests","status":429}`+"\n")
}
