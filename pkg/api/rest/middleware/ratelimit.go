package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Token-bucket limits for the single shared index. Mutations contend on
// the graph's layer locks and grow the id space, so they get their own,
// typically much smaller, budget than searches. Clients are keyed by
// token subject when authenticated and by address otherwise; idle client
// state is pruned in-line on the request path rather than by a background
// sweeper.

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled      bool
	SearchPerSec float64 // search/stats budget, per client
	MutatePerSec float64 // insert/snapshot budget, per client
	Burst        int     // maximum burst, applied to both budgets
}

const (
	clientIdleAfter = 15 * time.Minute
	pruneEvery      = time.Minute
)

// clientBuckets is the per-client limiter pair.
type clientBuckets struct {
	search   *rate.Limiter
	mutate   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks per-client budgets.
type RateLimiter struct {
	config RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*clientBuckets
	lastPrune time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:    config,
		clients:   make(map[string]*clientBuckets),
		lastPrune: time.Now(),
	}
}

// allow charges one request against the client's search or mutate budget.
func (rl *RateLimiter) allow(key string, mutation bool) bool {
	now := time.Now()

	rl.mu.Lock()

	if now.Sub(rl.lastPrune) > pruneEvery {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > clientIdleAfter {
				delete(rl.clients, k)
			}
		}
		rl.lastPrune = now
	}

	client := rl.clients[key]
	if client == nil {
		client = &clientBuckets{
			search: rate.NewLimiter(rate.Limit(rl.config.SearchPerSec), rl.config.Burst),
			mutate: rate.NewLimiter(rate.Limit(rl.config.MutatePerSec), rl.config.Burst),
		}
		rl.clients[key] = client
	}
	client.lastSeen = now

	limiter := client.search
	if mutation {
		limiter = client.mutate
	}

	rl.mu.Unlock()

	return limiter.Allow()
}

// RateLimit builds the limiting middleware. Only /v1/ endpoints are
// charged; health and metrics probes never count against a budget.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.config.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			mutation := isMutating(r)
			if !limiter.allow(clientKey(r), mutation) {
				budget := "search"
				if mutation {
					budget = "mutate"
				}
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, fmt.Sprintf("%s rate limit exceeded", budget),
					http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller: authenticated clients by token
// subject, anonymous ones by address (trusting a forwarding proxy's
// header when present).
func clientKey(r *http.Request) string {
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return "token:" + claims.Subject
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return "addr:" + strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
