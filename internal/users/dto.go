package users

import (
	"slices"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsRoot      bool       `json:"is_root"`
	IsActive    bool       `json:"is_active"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsRoot:      u.IsRoot,
		IsActive:    u.IsActive,
		Roles:       nonNil(u.Roles),
		Permissions: nonNil(u.Permissions),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// TokenUser projects the identity embedded in issued JWTs. Root users carry
// the system wildcard on top of their stored grants.
func TokenUser(u *models.User) pkgauth.TokenUser {
	perms := nonNil(u.Permissions)
	if u.IsRoot && !slices.Contains(perms, pkgauth.PermissionSystemAll) {
		perms = append(append([]string{}, perms...), pkgauth.PermissionSystemAll)
	}
	return pkgauth.TokenUser{
		ID:          u.ID,
		Roles:       nonNil(u.Roles),
		Permissions: perms,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
