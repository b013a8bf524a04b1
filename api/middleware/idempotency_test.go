package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

type memoryIdemStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryIdemStore() *memoryIdemStore {
	return &memoryIdemStore{data: make(map[string]string)}
}

func (m *memoryIdemStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryIdemStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryIdemStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryIdemStore) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

func postWithKey(path, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Code
}

func TestRequiredRejectsMissingKey(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	called := false
	h := guard.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/payment/refund", `{"transaction_id":"TXN-1"}`, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestRejectsOverlongKey(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	h := guard.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/order/create", `{}`, strings.Repeat("k", maxKeyLen+1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaysStoredResponse(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	calls := 0
	h := guard.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":1,"detail":"Order placed"}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postWithKey("/order/create", `{"shop_id":"s1"}`, "order-abc"))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	second := httptest.NewRecorder()
	h.ServeHTTP(second, postWithKey("/order/create", `{"shop_id":"s1"}`, "order-abc"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestKeyReuseWithDifferentBody(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	h := guard.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/order/create", `{"qty":1}`, "k1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/order/create", `{"qty":2}`, "k1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestKeysAreScopedByPath(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	calls := 0
	h := guard.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/notifications/read-all", `{}`, "same"))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/order/create", `{}`, "same"))
	assert.Equal(t, 2, calls)
}

func TestInFlightDuplicateIsRejected(t *testing.T) {
	guard := NewIdempotencyGuard(newMemoryIdemStore(), time.Hour, nil)
	var inner http.Handler
	dupe := httptest.NewRecorder()
	inner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A second request arrives while the first still holds the key.
		guard.Optional(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not reach the handler")
		})).ServeHTTP(dupe, postWithKey("/payment/initiate", `{"order_id":"ORD-1"}`, "pay-1"))
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	guard.Optional(inner).ServeHTTP(first, postWithKey("/payment/initiate", `{"order_id":"ORD-1"}`, "pay-1"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusConflict, dupe.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, dupe))
}

func TestServerErrorsReleaseTheKey(t *testing.T) {
	store := newMemoryIdemStore()
	guard := NewIdempotencyGuard(store, time.Hour, nil)
	calls := 0
	h := guard.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postWithKey("/wallet/transfer-to-bank", `{"amount":"10.00"}`, "retry-me"))
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 1)
}

func TestPassThroughWithoutKeyOrStore(t *testing.T) {
	store := newMemoryIdemStore()
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	optional := NewIdempotencyGuard(store, time.Hour, nil).Optional(handler)
	noStore := NewIdempotencyGuard(nil, 0, nil).Required(handler)
	for i := 0; i < 2; i++ {
		optional.ServeHTTP(httptest.NewRecorder(), postWithKey("/order/create", `{}`, ""))
		noStore.ServeHTTP(httptest.NewRecorder(), postWithKey("/payment/refund", `{}`, ""))
	}
	assert.Equal(t, 4, calls)
	assert.Empty(t, store.data)
}
