package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client; the client IP when nil.
	KeyFunc func(*http.Request) string
	// Store holds the counters; an in-process sliding window when nil.
	Store LimitStore
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// LimitStore counts requests per key.
type LimitStore interface {
	Take(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimit rejects clients that exceed cfg.Max requests per window with a
// 429 failure envelope. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset. If the store fails the
// request is let through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.Max, cfg.Window)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := cfg.Store.Take(r.Context(), cfg.KeyFunc(r), time.Now())
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(time.Until(d.ResetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// window tracks counts of the current and previous fixed windows.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// MemoryStore is an in-process sliding window limiter. The previous window
// is weighted by how much of it still overlaps the sliding window.
type MemoryStore struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*window
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(limit int, size time.Duration) *MemoryStore {
	return &MemoryStore{max: limit, window: size, entries: make(map[string]*window)}
}

// Take implements LimitStore.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.Truncate(s.window)
	e, ok := s.entries[key]
	switch {
	case !ok:
		e = &window{currStart: start}
		s.entries[key] = e
	case start.Sub(e.currStart) >= 2*s.window:
		*e = window{currStart: start}
	case start.After(e.currStart):
		*e = window{prevCount: e.currCount, currStart: start}
	}

	overlap := 1 - now.Sub(e.currStart).Seconds()/s.window.Seconds()
	effective := e.prevCount*max(overlap, 0) + e.currCount
	resetAt := e.currStart.Add(s.window)

	if effective >= float64(s.max) {
		return Decision{ResetAt: resetAt}, nil
	}
	e.currCount++
	return Decision{
		Allowed:   true,
		Remaining: max(int(float64(s.max)-effective-1), 0),
		ResetAt:   resetAt,
	}, nil
}

// Cleanup evicts clients idle for two windows until ctx is cancelled.
func (s *MemoryStore) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(2 * s.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.Sub(e.currStart) >= 2*s.window {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// RedisStore is a fixed window limiter shared by every API replica.
type RedisStore struct {
	client redis.UniversalClient
	max    int
	window time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.UniversalClient, limit int, window time.Duration) *RedisStore {
	return &RedisStore{client: client, max: limit, window: window, prefix: "ratelimit:"}
}

// Take implements LimitStore.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(s.window)
	resetAt := start.Add(s.window)
	k := s.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpireAt(ctx, k, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "count request")
	}

	n := int(incr.Val())
	if n > s.max {
		return Decision{ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: s.max - n, ResetAt: resetAt}, nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
