package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate; in-memory only
	BurstSize int
}

// DefaultRateLimitConfig is used for anonymous requests
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute, BurstSize: 10}
}

// PerUserRateLimitConfig is used for authenticated requests
func PerUserRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 1000, WindowDuration: time.Minute, BurstSize: 50}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter is an in-process token bucket limiter. It serves single
// instances and acts as the fallback when Redis is unreachable.
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new in-memory limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() float64 {
	return float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	rate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	b.tokens = math.Min(rl.capacity(), b.tokens+now.Sub(b.lastUpdate).Seconds()*rate)
	b.lastUpdate = now

	d := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(b.tokens)
	if missing := 1 - b.tokens; missing > 0 {
		d.Reset = time.Duration(missing / rate * float64(time.Second))
	}
	return d, nil
}

// Cleanup drops buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.config.WindowDuration)
	for key, b := range rl.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitRecorder counts rejected requests
type RateLimitRecorder interface {
	RecordRateLimited(backend string)
}

// RateLimitMiddleware throttles per authenticated user, or per client IP
// for anonymous requests. If the primary limiter errors, the fallback
// decides instead; without a fallback the request is let through.
type RateLimitMiddleware struct {
	primary  Limiter
	fallback Limiter
	recorder RateLimitRecorder
	logger   *observability.Logger
}

// NewRateLimitMiddleware creates the middleware; fallback and recorder may be nil
func NewRateLimitMiddleware(primary, fallback Limiter, recorder RateLimitRecorder, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{primary: primary, fallback: fallback, recorder: recorder, logger: logger}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		backend := backendName(m.primary)
		d, err := m.primary.Allow(r.Context(), key)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).Warn("rate limiter unavailable, using fallback")
			}
			if m.fallback == nil {
				next.ServeHTTP(w, r)
				return
			}
			backend = backendName(m.fallback)
			if d, err = m.fallback.Allow(r.Context(), key); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if d.Reset > 0 {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.Reset).Unix(), 10))
		}

		if !d.Allowed {
			if m.recorder != nil {
				m.recorder.RecordRateLimited(backend)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Reset.Seconds()))))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func backendName(l Limiter) string {
	if _, ok := l.(*DistributedRateLimiter); ok {
		return "redis"
	}
	return "memory"
}

func rateLimitKey(r *http.Request) string {
	if authCtx := GetAuthContext(r); authCtx != nil && authCtx.User != nil {
		return fmt.Sprintf("user:%d", authCtx.User.ID)
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
