package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hoken/internal/model"
)

func TestNoopLimiterAllowsEverything(t *testing.T) {
	l := NoopLimiter{}
	for range 100 {
		allowed, err := l.Allow(context.Background(), "any")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	require.NoError(t, l.Close())
}

func TestMemoryLimiterBurstThenRejects(t *testing.T) {
	l := NewMemoryLimiter(1, 3)
	defer func() { _ = l.Close() }()
	ctx := context.Background()

	for i := range 3 {
		allowed, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst", i)
	}

	allowed, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed, "burst exhausted")
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, 1)
	defer func() { _ = l.Close() }()
	ctx := context.Background()

	allowed, _ := l.Allow(ctx, "a")
	assert.True(t, allowed)
	allowed, _ = l.Allow(ctx, "a")
	assert.False(t, allowed)

	allowed, _ = l.Allow(ctx, "b")
	assert.True(t, allowed, "key b has its own bucket")
}

func TestMemoryLimiterRefills(t *testing.T) {
	l := NewMemoryLimiter(100, 1)
	defer func() { _ = l.Close() }()
	ctx := context.Background()

	allowed, _ := l.Allow(ctx, "k")
	require.True(t, allowed)
	allowed, _ = l.Allow(ctx, "k")
	require.False(t, allowed)

	time.Sleep(20 * time.Millisecond)
	allowed, _ = l.Allow(ctx, "k")
	assert.True(t, allowed, "token refilled after waiting")
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	l := NewMemoryLimiter(1, 1)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend unreachable")
}
func (errLimiter) Close() error { return nil }

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := NewMemoryLimiter(0.001, 1)
	defer func() { _ = l.Close() }()

	var hits int
	h := Middleware(l, IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cards/search", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, hits)

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.NotZero(t, body.Meta.Timestamp)
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	h := Middleware(errLimiter{}, IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	l := NewMemoryLimiter(0.001, 1)
	defer func() { _ = l.Close() }()

	skipAll := func(*http.Request) string { return "" }
	h := Middleware(l, skipAll)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:54321"
	assert.Equal(t, "192.168.1.5", IPKeyFunc(req))
}
