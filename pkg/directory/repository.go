package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
)

// Repository defines the interface for user directory data access
type Repository interface {
	// Get a user by ID
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// Get a user by email address
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// List all users that do not hold the administrator role
	FindNonAdminUsers(ctx context.Context) ([]User, error)

	// Get an organization by ID
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
}
