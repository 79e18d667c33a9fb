package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg LimiterConfig) (*Limiter, *time.Time) {
	l := NewLimiter(cfg, zerolog.Nop())
	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	return l, &now
}

func TestLimiter_ShortWindowCeiling(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimiterConfig())

	for i := 0; i < 25; i++ {
		allowed, _ := l.Admit("1.2.3.4")
		require.True(t, allowed, "request %d", i+1)
	}
	allowed, wait := l.Admit("1.2.3.4")
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
}

func TestLimiter_LongWindowCeiling(t *testing.T) {
	l, now := newTestLimiter(DefaultLimiterConfig())

	// 76 requests spread over just under five minutes, slow enough that the
	// short window never trips: the 76th crosses the long ceiling.
	for i := 0; i < 75; i++ {
		allowed, _ := l.Admit("1.2.3.4")
		require.True(t, allowed, "request %d", i+1)
		*now = now.Add(3900 * time.Millisecond)
	}
	allowed, _ := l.Admit("1.2.3.4")
	assert.False(t, allowed)
}

func TestLimiter_WindowReset(t *testing.T) {
	l, now := newTestLimiter(DefaultLimiterConfig())

	for i := 0; i < 25; i++ {
		l.Admit("1.2.3.4")
	}
	allowed, _ := l.Admit("1.2.3.4")
	require.False(t, allowed)

	// Advancing past the short window resets its counter.
	*now = now.Add(61 * time.Second)
	allowed, _ = l.Admit("1.2.3.4")
	assert.True(t, allowed)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimiterConfig())

	for i := 0; i < 26; i++ {
		l.Admit("1.1.1.1")
	}
	allowed, _ := l.Admit("1.1.1.1")
	require.False(t, allowed)

	allowed, _ = l.Admit("2.2.2.2")
	assert.True(t, allowed)
}

func TestLimiter_Prune(t *testing.T) {
	l, now := newTestLimiter(DefaultLimiterConfig())

	l.Admit("1.1.1.1")
	*now = now.Add(10 * time.Minute)
	l.Admit("2.2.2.2")

	dropped := l.Prune(5 * time.Minute)
	assert.Equal(t, 1, dropped)

	// The pruned client starts from a fresh record.
	allowed, _ := l.Admit("1.1.1.1")
	assert.True(t, allowed)
}

func TestLimiter_Middleware(t *testing.T) {
	cfg := LimiterConfig{
		ShortWindow: time.Minute,
		ShortLimit:  2,
		LongWindow:  5 * time.Minute,
		LongLimit:   10,
	}
	l := NewLimiter(cfg, zerolog.Nop())

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/fetch", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	rejected := do()
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))
}
