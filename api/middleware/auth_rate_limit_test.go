package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

func loginRequest(email, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = remote
	return req
}

func okHandlerFunc(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuthRateLimitPreservesBody(t *testing.T) {
	store := newFakeRateStore()
	handler := AuthRateLimit(LoginThrottle{Window: time.Minute, IPLimit: 2, EmailLimit: 2}, store, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"email":"tester@example.com"`)
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("tester@example.com", "1.2.3.4:5678"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitEmailLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := AuthRateLimit(LoginThrottle{Window: time.Minute, EmailLimit: 2}, store, nil)(http.HandlerFunc(okHandlerFunc))

	for i := 0; i < 3; i++ {
		// Case and whitespace variants count against the same address.
		email := []string{"blocked@example.com", "Blocked@Example.com", " blocked@example.com"}[i]
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest(email, "10.0.0."+string(rune('1'+i))+":80"))

		if i < 2 {
			require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		var payload struct {
			Success int    `json:"success"`
			Code    string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, 0, payload.Success)
		assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Code)
	}
}

func TestAuthRateLimitIPLimitUsesForwardedFor(t *testing.T) {
	store := newFakeRateStore()
	handler := AuthRateLimit(LoginThrottle{Window: time.Minute, IPLimit: 1}, store, nil)(http.HandlerFunc(okHandlerFunc))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := loginRequest("user"+string(rune('a'+i))+"@example.com", "5.6.7.8:1234")
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
	assert.Contains(t, store.counts, "ip:login:203.0.113.9")
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := AuthRateLimit(LoginThrottle{Window: time.Minute, IPLimit: 1}, store, nil)(http.HandlerFunc(okHandlerFunc))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("a@example.com", "1.1.1.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRateLimitDisabled(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	AuthRateLimit(LoginThrottle{IPLimit: 5}, newFakeRateStore(), nil)(next).
		ServeHTTP(httptest.NewRecorder(), loginRequest("a@example.com", "1.1.1.1:1"))
	assert.True(t, called, "zero window disables throttling")
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (redis.RateWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.RateWindow{}, f.err
	}
	f.counts[scope]++
	w := redis.RateWindow{Count: f.counts[scope], Allowed: f.counts[scope] <= limit}
	if !w.Allowed {
		w.RetryAfter = window
	}
	return w, nil
}
