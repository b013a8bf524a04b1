package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketcore-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute
	maxKeyLen  = 255
)

// pendingMarker is stored while the first request with a key is running.
const pendingMarker = `{"pending":true}`

type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// IdempotencyGuard builds per-route middleware that replays the stored
// response for a repeated Idempotency-Key. The key is scoped to the caller,
// method and path. Server errors are not recorded so the client can retry.
type IdempotencyGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewIdempotencyGuard(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl, logg: logg}
}

// Optional honours the header when present.
func (g *IdempotencyGuard) Optional(next http.Handler) http.Handler { return g.wrap(next, false) }

// Required rejects requests without the header. Used on money-moving routes.
func (g *IdempotencyGuard) Required(next http.Handler) http.Handler { return g.wrap(next, true) }

func (g *IdempotencyGuard) wrap(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if g.store == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		id := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		switch {
		case id == "" && !required:
			next.ServeHTTP(w, r)
			return
		case id == "":
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		case len(id) > maxKeyLen:
			responses.WriteError(ctx, g.logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key longer than %d characters", maxKeyLen))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := hashBody(body)
		key := g.store.IdempotencyKey(callerScope(r), id)

		reserved, err := g.store.SetNX(ctx, key, pendingMarker, pendingTTL)
		if err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
			return
		}
		if !reserved {
			g.replay(w, r, key, hash)
			return
		}

		rec := &responseCapture{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.statusCode() >= http.StatusInternalServerError {
			if err := g.store.Del(ctx, key); err != nil {
				g.logg.Error(ctx, "release idempotency key", err)
			}
			return
		}
		g.save(r, key, hash, rec)
	})
}

func (g *IdempotencyGuard) replay(w http.ResponseWriter, r *http.Request, key, hash string) {
	ctx := r.Context()
	stored, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Released between SetNX and Get: the first attempt hit a 5xx.
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "previous request with this Idempotency-Key failed, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.Pending:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress"))
		return
	case record.RequestHash != hash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(decoded)
}

func (g *IdempotencyGuard) save(r *http.Request, key, hash string, rec *responseCapture) {
	ctx := r.Context()
	payload, err := json.Marshal(idempotencyRecord{
		Status:      rec.statusCode(),
		Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
		ContentType: rec.Header().Get("Content-Type"),
		RequestHash: hash,
	})
	if err == nil {
		// The pending marker is ours; overwrite it with the final record.
		if err = g.store.Del(ctx, key); err == nil {
			_, err = g.store.SetNX(ctx, key, string(payload), g.ttl)
		}
	}
	if err != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func callerScope(r *http.Request) string {
	caller := "anon:" + clientIP(r)
	if userID := UserIDFromContext(r.Context()); userID != uuid.Nil {
		caller = userID.String()
	}
	return strings.Join([]string{caller, r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
