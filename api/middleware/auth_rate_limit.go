package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.RateWindow, error)
}

// maxLoginBody bounds how much of the body is buffered to find the email.
const maxLoginBody = 64 << 10

// LoginThrottle limits token requests per client IP and per submitted email
// within one fixed window. A zero limit disables that dimension.
type LoginThrottle struct {
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

// LoginThrottleFromConfig maps the MARKETCORE_AUTH_RATE_LIMIT_* settings.
func LoginThrottleFromConfig(cfg config.AuthRateLimitConfig) LoginThrottle {
	return LoginThrottle{Window: cfg.LoginWindow, IPLimit: cfg.LoginIPLimit, EmailLimit: cfg.LoginEmailLimit}
}

func (p LoginThrottle) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.EmailLimit > 0)
}

// AuthRateLimit enforces p in front of the login handler. Without a store
// (no Redis configured) requests pass through unthrottled.
func AuthRateLimit(p LoginThrottle, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !p.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if p.IPLimit > 0 {
				if ip := clientIP(r); ip != "" && !p.allow(ctx, w, store, logg, "ip:login:"+ip, p.IPLimit) {
					return
				}
			}

			if p.EmailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := emailFromBody(body); email != "" {
					if !p.allow(ctx, w, store, logg, "email:login:"+hashValue(email), p.EmailLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow writes the error response itself and returns false when the
// request must stop.
func (p LoginThrottle) allow(ctx context.Context, w http.ResponseWriter, store rateLimiterStore, logg *logger.Logger, scope string, limit int) bool {
	win, err := store.FixedWindowAllow(ctx, scope, int64(limit), p.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if win.Allowed {
		return true
	}

	retry := win.RetryAfter
	if retry <= 0 {
		retry = p.Window
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{
		"scope":       scope[:strings.IndexByte(scope, ':')],
		"attempts":    win.Count,
		"limit":       limit,
		"retry_after": retry.String(),
	}), "login throttled")

	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later"))
	return false
}

// clientIP trusts the first X-Forwarded-For hop; the API runs behind a
// load balancer that sets it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
