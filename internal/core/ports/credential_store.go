package ports

import (
	"context"

	"github.com/realfinance/estate-api/internal/core/domain"
)

// CredentialStore persists users, roles and role memberships. Emails and role
// names are matched case-insensitively.
type CredentialStore interface {
	RoleExists(ctx context.Context, name string) (bool, error)
	// CreateRole returns domain.ErrRoleExists when the name is taken.
	CreateRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// FindUserByEmail returns domain.ErrUserNotFound when no user matches.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// CreateUser stores a user whose PasswordHash is already set and returns
	// the stored copy. Returns domain.ErrUserExists on a duplicate email.
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	// AssignRole adds roleName to the user's memberships. It is a no-op when
	// the membership already exists and returns domain.ErrRoleNotFound when
	// the role does not.
	AssignRole(ctx context.Context, userID, roleName string) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
