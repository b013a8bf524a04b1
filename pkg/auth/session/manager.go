package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/google/uuid"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type refreshStore interface {
	StoreRefreshToken(ctx context.Context, userID, tokenID string, ttl time.Duration) error
	ConsumeRefreshToken(ctx context.Context, userID, tokenID string) (bool, error)
}

// Tokens is an issued access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager issues token pairs and rotates refresh tokens. Each refresh token
// jti is recorded in Redis and may be exchanged once.
type Manager struct {
	store refreshStore
	cfg   config.JWTConfig
	now   func() time.Time
}

// NewManager constructs a session manager backed by Redis.
func NewManager(store refreshStore, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("refresh store is required")
	}
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if ttl <= cfg.AccessTokenTTL() {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, cfg.AccessTokenTTL())
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}, nil
}

// Issue mints a new access/refresh pair for user.
func (m *Manager) Issue(ctx context.Context, user auth.TokenUser) (*Tokens, error) {
	now := m.now().UTC()
	access, err := auth.MintAccessToken(m.cfg, now, auth.AccessTokenPayload{User: user})
	if err != nil {
		return nil, err
	}
	refreshID := uuid.NewString()
	refresh, err := auth.MintRefreshToken(m.cfg, now, auth.AccessTokenPayload{User: user, JTI: refreshID})
	if err != nil {
		return nil, err
	}
	if err := m.store.StoreRefreshToken(ctx, user.ID.String(), refreshID, m.cfg.RefreshTokenTTL()); err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.cfg.AccessTokenTTL().Seconds()),
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// consumed; replaying it fails. reload lets the caller refresh roles and
// permissions from storage before the new pair is minted.
func (m *Manager) Rotate(ctx context.Context, refreshToken string, reload func(context.Context, uuid.UUID) (auth.TokenUser, error)) (*Tokens, error) {
	claims, err := auth.ParseRefreshToken(m.cfg, refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	ok, err := m.store.ConsumeRefreshToken(ctx, claims.User.ID.String(), claims.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	user := claims.User
	if reload != nil {
		if user, err = reload(ctx, claims.User.ID); err != nil {
			return nil, err
		}
	}
	return m.Issue(ctx, user)
}

// Revoke consumes a refresh token without issuing a new pair. Revoking an
// already used token succeeds so logout can be retried.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := auth.ParseRefreshToken(m.cfg, refreshToken)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	_, err = m.store.ConsumeRefreshToken(ctx, claims.User.ID.String(), claims.ID)
	return err
}
