package gateway

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// windowCounter is one fixed admission window.
type windowCounter struct {
	count       int
	windowStart time.Time
}

// clientRecord holds the two windows tracked per client IP.
type clientRecord struct {
	short    windowCounter
	long     windowCounter
	lastSeen time.Time
}

// LimiterConfig sets the window lengths and ceilings.
type LimiterConfig struct {
	ShortWindow time.Duration
	ShortLimit  int
	LongWindow  time.Duration
	LongLimit   int
}

// DefaultLimiterConfig returns the stock limits: 25 requests per minute and
// 75 per five minutes.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		ShortWindow: time.Minute,
		ShortLimit:  25,
		LongWindow:  5 * time.Minute,
		LongLimit:   75,
	}
}

// Limiter is a best-effort in-memory dual-window rate limiter keyed by
// client IP. Not shared across processes; the goal is abuse mitigation,
// not exact quota accounting.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientRecord
	cfg     LimiterConfig
	clock   func() time.Time
	log     zerolog.Logger
}

// NewLimiter creates a limiter with the given windows.
func NewLimiter(cfg LimiterConfig, log zerolog.Logger) *Limiter {
	return &Limiter{
		clients: make(map[string]*clientRecord),
		cfg:     cfg,
		clock:   time.Now,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
}

// Admit checks and updates both windows for clientID. When rejected, the
// returned duration is how long the client should wait before retrying.
func (l *Limiter) Admit(clientID string) (bool, time.Duration) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.clients[clientID]
	if !ok {
		l.clients[clientID] = &clientRecord{
			short:    windowCounter{count: 1, windowStart: now},
			long:     windowCounter{count: 1, windowStart: now},
			lastSeen: now,
		}
		return true, 0
	}
	rec.lastSeen = now

	advance(&rec.short, now, l.cfg.ShortWindow)
	advance(&rec.long, now, l.cfg.LongWindow)

	var wait time.Duration
	if rec.short.count > l.cfg.ShortLimit {
		wait = retryAfter(rec.short, now, l.cfg.ShortWindow)
	}
	if rec.long.count > l.cfg.LongLimit {
		if w := retryAfter(rec.long, now, l.cfg.LongWindow); w > wait {
			wait = w
		}
	}
	if wait > 0 {
		return false, wait
	}
	return true, 0
}

// advance resets an expired window or increments a live one.
func advance(w *windowCounter, now time.Time, length time.Duration) {
	if now.Sub(w.windowStart) > length {
		w.count = 1
		w.windowStart = now
		return
	}
	w.count++
}

func retryAfter(w windowCounter, now time.Time, length time.Duration) time.Duration {
	remaining := w.windowStart.Add(length).Sub(now)
	if remaining < time.Second {
		return time.Second
	}
	return remaining
}

// Prune drops client records idle longer than maxIdle. Run periodically by
// the scheduler so the map does not grow without bound.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for id, rec := range l.clients {
		if now.Sub(rec.lastSeen) > maxIdle {
			delete(l.clients, id)
			dropped++
		}
	}
	if dropped > 0 {
		l.log.Debug().Int("dropped", dropped).Msg("Pruned idle rate limit records")
	}
	return dropped
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := l.Admit(clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds()+0.5)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address; the RealIP middleware upstream has
// already folded proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
