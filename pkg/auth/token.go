package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
)

// TokenKind separates access from refresh tokens. Both are HS256 JWTs with
// the same claims shape.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// clockSkew tolerated on exp and iat between API replicas.
const clockSkew = 30 * time.Second

var (
	// ErrRefreshTokenMisuse is returned when a token of the wrong kind is
	// presented, e.g. a refresh token in the Authorization header.
	ErrRefreshTokenMisuse = errors.New("refresh token cannot be used here")

	errSecretRequired = errors.New("jwt secret is required")
	errIssuerRequired = errors.New("jwt issuer is required")
	errUserRequired   = errors.New("user id is required")
)

func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	return mint(cfg, now, payload, KindAccess)
}

// MintRefreshToken issues a refresh token. The caller stores its jti so the
// token can be exchanged once.
func MintRefreshToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	return mint(cfg, now, payload, KindRefresh)
}

func ttlFor(cfg config.JWTConfig, kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return cfg.RefreshTokenTTL()
	}
	return cfg.AccessTokenTTL()
}

func mint(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload, kind TokenKind) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errSecretRequired
	case cfg.Issuer == "":
		return "", errIssuerRequired
	case payload.User.ID == uuid.Nil:
		return "", errUserRequired
	}
	ttl := ttlFor(cfg, kind)
	if ttl <= 0 {
		return "", fmt.Errorf("%s token ttl must be positive", kind)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	user := payload.User
	user.Roles = orEmpty(user.Roles)
	user.Permissions = orEmpty(user.Permissions)

	claims := AccessTokenClaims{
		User: user,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken rejects refresh tokens with ErrRefreshTokenMisuse.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parse(cfg, tokenString, KindAccess)
}

// ParseRefreshToken rejects access tokens with ErrRefreshTokenMisuse.
func ParseRefreshToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parse(cfg, tokenString, KindRefresh)
}

func parse(cfg config.JWTConfig, tokenString string, want TokenKind) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errSecretRequired
	}
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.User.ID == uuid.Nil {
		return nil, errors.New("token missing user id")
	}
	if claims.Kind != want {
		return nil, ErrRefreshTokenMisuse
	}
	return claims, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
