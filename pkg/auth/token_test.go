package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
)

var testCfg = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "marketcore",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 600,
}

func testUser() TokenUser {
	return TokenUser{ID: uuid.New(), Roles: []string{"customer"}, Permissions: []string{"order:create"}}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	user := testUser()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{User: user})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, user, claims.User)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, "marketcore", claims.Issuer)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestRefreshTokenKeepsCallerJTI(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintRefreshToken(testCfg, now, AccessTokenPayload{User: testUser(), JTI: "rt-1"})
	require.NoError(t, err)

	claims, err := ParseRefreshToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
	assert.Equal(t, "rt-1", claims.ID)
	assert.WithinDuration(t, now.Add(10*time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	access, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{User: testUser()})
	require.NoError(t, err)
	refresh, err := MintRefreshToken(testCfg, time.Now(), AccessTokenPayload{User: testUser()})
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, refresh)
	assert.ErrorIs(t, err, ErrRefreshTokenMisuse)
	_, err = ParseRefreshToken(testCfg, access)
	assert.ErrorIs(t, err, ErrRefreshTokenMisuse)
}

func TestParseRejectsBadTokens(t *testing.T) {
	expired, err := MintAccessToken(testCfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{User: testUser()})
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	fresh, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{User: testUser()})
	require.NoError(t, err)

	otherSecret := testCfg
	otherSecret.Secret = "different"
	_, err = ParseAccessToken(otherSecret, fresh)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(otherIssuer, fresh)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{User: testUser(), Kind: KindAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, unsigned)
	assert.Error(t, err)
}

func TestMintValidatesInputs(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{})
	assert.ErrorIs(t, err, errUserRequired)

	noSecret := testCfg
	noSecret.Secret = ""
	_, err = MintAccessToken(noSecret, time.Now(), AccessTokenPayload{User: testUser()})
	assert.ErrorIs(t, err, errSecretRequired)

	noRefresh := testCfg
	noRefresh.RefreshTokenTTLMinutes = 0
	_, err = MintRefreshToken(noRefresh, time.Now(), AccessTokenPayload{User: testUser()})
	assert.ErrorContains(t, err, "refresh token ttl")
}

func TestHasAnyPermission(t *testing.T) {
	cases := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{"no requirement", nil, nil, true},
		{"single match", []string{"order:read"}, []string{"order:read"}, true},
		{"or semantics", []string{"order:read"}, []string{"order:write", "order:read"}, true},
		{"missing", []string{"order:read"}, []string{"withdraw:approve"}, false},
		{"system bypass", []string{PermissionSystemAll}, []string{"withdraw:approve"}, true},
		{"empty grants", nil, []string{"order:read"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := &AccessTokenClaims{User: TokenUser{Permissions: tc.granted}}
			assert.Equal(t, tc.want, claims.HasAnyPermission(tc.required...))
		})
	}
	assert.True(t, (&AccessTokenClaims{User: TokenUser{Roles: []string{"admin"}}}).HasRole("admin"))
}
