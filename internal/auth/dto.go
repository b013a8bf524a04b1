package auth

import (
	"github.com/angelmondragon/marketcore-backend/internal/users"
	"github.com/angelmondragon/marketcore-backend/pkg/auth/session"
)

// LoginRequest captures the user credentials sent to the token endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginResponse contains the token pair and the authenticated user.
type LoginResponse struct {
	session.Tokens
	User *users.UserDTO `json:"user"`
}
