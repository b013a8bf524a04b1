package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/users"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/auth/session"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*session.Tokens, error)
	Logout(ctx context.Context, req RefreshRequest) error
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehash string) error
}

type sessionManager interface {
	Issue(ctx context.Context, user pkgauth.TokenUser) (*session.Tokens, error)
	Rotate(ctx context.Context, refreshToken string, reload func(context.Context, uuid.UUID) (pkgauth.TokenUser, error)) (*session.Tokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	// Passwords defaults to a minimum-cost hasher when nil.
	Passwords *security.Hasher
}

type service struct {
	users     userRepository
	session   sessionManager
	passwords *security.Hasher
	now       func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	passwords := params.Passwords
	if passwords == nil {
		passwords = security.NewHasher(config.PasswordConfig{})
	}
	return &service{
		users:     params.UserRepo,
		session:   params.SessionManager,
		passwords: passwords,
		now:       time.Now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if !user.IsActive || user.PasswordHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	ok, err := s.passwords.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	tokens, err := s.session.Issue(ctx, users.TokenUser(user))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue tokens")
	}

	// Hashes from an older cost setting are upgraded while the plaintext is
	// at hand.
	var rehash string
	if s.passwords.NeedsRehash(user.PasswordHash) {
		if rehash, err = s.passwords.Hash(req.Password); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rehash password")
		}
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now, rehash); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
	}
	user.LastLoginAt = &now

	return &LoginResponse{Tokens: *tokens, User: users.FromModel(user)}, nil
}

// Refresh rotates the refresh token. Grants are reloaded so role changes and
// deactivations take effect on the next pair.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*session.Tokens, error) {
	tokens, err := s.session.Rotate(ctx, req.RefreshToken, func(ctx context.Context, id uuid.UUID) (pkgauth.TokenUser, error) {
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			return pkgauth.TokenUser{}, err
		}
		if !user.IsActive {
			return pkgauth.TokenUser{}, session.ErrInvalidRefreshToken
		}
		return users.TokenUser(user), nil
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate refresh token")
	}
	return tokens, nil
}

// Logout revokes the refresh token. The access token stays valid until it
// expires.
func (s *service) Logout(ctx context.Context, req RefreshRequest) error {
	err := s.session.Revoke(ctx, req.RefreshToken)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrInvalidRefreshToken):
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke refresh token")
	}
}
