package server

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig bounds overall request throughput and login attempts per
// client IP. When Redis is set, login counters are shared across replicas.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int
	LoginLimit  int
	LoginWindow time.Duration
	Redis       redis.UniversalClient
	KeyPrefix   string
}

// loginThrottle reports whether client may attempt another login and, if
// not, how long it should wait.
type loginThrottle interface {
	allow(ctx context.Context, client string) (bool, time.Duration, error)
}

func newLimiters(cfg RateLimitConfig, now func() time.Time) (*tokenBucket, loginThrottle, error) {
	if cfg.GlobalRPS < 0 || cfg.GlobalBurst < 0 || cfg.LoginLimit < 0 {
		return nil, nil, errors.New("rate limits must not be negative")
	}
	var global *tokenBucket
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst == 0 {
			burst = max(int(cfg.GlobalRPS), 1)
		}
		global = newTokenBucket(cfg.GlobalRPS, burst, now)
	}
	if cfg.LoginLimit == 0 {
		return global, nil, nil
	}
	window := cfg.LoginWindow
	if window <= 0 {
		window = time.Minute
	}
	if cfg.Redis != nil {
		return global, newRedisThrottle(cfg.Redis, cfg.KeyPrefix, cfg.LoginLimit, window), nil
	}
	return global, newMemoryThrottle(cfg.LoginLimit, window, now), nil
}

func setRetryAfter(w http.ResponseWriter, wait time.Duration) {
	if wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
}

// limitRequests sheds load above the global rate before any routing work.
func limitRequests(bucket *tokenBucket, next http.Handler) http.Handler {
	if bucket == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait := bucket.take(); wait > 0 {
			setRetryAfter(w, wait)
			writeMiddlewareError(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitLogins guards the login route. A throttle that cannot answer fails
// closed with 503 rather than letting guesses through unchecked.
func limitLogins(throttle loginThrottle, logger *slog.Logger, next http.Handler) http.Handler {
	if throttle == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait, err := throttle.allow(r.Context(), clientIP(r.RemoteAddr))
		if err != nil {
			requestLogger(logger, r).Error("login throttle unavailable", "error", err)
			writeMiddlewareError(w, http.StatusServiceUnavailable, "rate_limiter_unavailable", "login temporarily unavailable")
			return
		}
		if !allowed {
			setRetryAfter(w, wait)
			writeMiddlewareError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// memoryThrottle gives each client IP a bucket of limit tokens refilled over
// window. Buckets idle for two windows are swept.
type memoryThrottle struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	*tokenBucket
	seen time.Time
}

func newMemoryThrottle(limit int, window time.Duration, now func() time.Time) *memoryThrottle {
	return &memoryThrottle{
		limit:     limit,
		window:    window,
		now:       now,
		clients:   make(map[string]*clientBucket),
		lastSweep: now(),
	}
}

func (m *memoryThrottle) allow(_ context.Context, client string) (bool, time.Duration, error) {
	m.mu.Lock()
	now := m.now()
	if now.Sub(m.lastSweep) >= m.window {
		for key, c := range m.clients {
			if now.Sub(c.seen) > 2*m.window {
				delete(m.clients, key)
			}
		}
		m.lastSweep = now
	}
	c, ok := m.clients[client]
	if !ok {
		rate := float64(m.limit) / m.window.Seconds()
		c = &clientBucket{tokenBucket: newTokenBucket(rate, m.limit, m.now)}
		m.clients[client] = c
	}
	c.seen = now
	m.mu.Unlock()

	if wait := c.take(); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

type tokenBucket struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

func newTokenBucket(rate float64, burst int, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     now(),
		now:      now,
	}
}

// take consumes a token and returns zero, or returns how long until one is
// available without consuming anything.
func (b *tokenBucket) take() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.tokens = min(b.tokens+now.Sub(b.last).Seconds()*b.rate, b.capacity)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}
