package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PermissionSystemAll grants every permission.
const PermissionSystemAll = "system:*"

// TokenUser is the identity embedded in every token.
type TokenUser struct {
	ID          uuid.UUID `json:"id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	User TokenUser
	JTI  string
}

// AccessTokenClaims is the JWT body for both token kinds; typ tells them
// apart.
type AccessTokenClaims struct {
	User TokenUser `json:"user"`
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) HasRole(role string) bool {
	return slices.Contains(c.User.Roles, role)
}

// HasAnyPermission is an OR check over required. system:* passes every check,
// and an empty requirement always passes.
func (c *AccessTokenClaims) HasAnyPermission(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	granted := c.User.Permissions
	if slices.Contains(granted, PermissionSystemAll) {
		return true
	}
	return slices.ContainsFunc(required, func(want string) bool { return slices.Contains(granted, want) })
}
