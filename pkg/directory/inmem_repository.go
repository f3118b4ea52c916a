package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]User
	organizations map[uuid.UUID]Organization
}

// NewInMemoryRepository creates a new in-memory directory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:         make(map[uuid.UUID]User),
		organizations: make(map[uuid.UUID]Organization),
	}
}

// AddUser stores a user, assigning an ID if none is set
func (r *InMemoryRepository) AddUser(user User) User {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.users[user.ID] = user
	return user
}

// AddOrganization stores an organization, assigning an ID if none is set
func (r *InMemoryRepository) AddOrganization(org Organization) Organization {
	r.mu.Lock()
	defer r.mu.Unlock()

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	r.organizations[org.ID] = org
	return org
}

// GetUser gets a user by ID
func (r *InMemoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// GetUserByEmail gets a user by email, matched case-insensitively
func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

// FindNonAdminUsers lists all users without the administrator role
func (r *InMemoryRepository) FindNonAdminUsers(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []User
	for _, user := range r.users {
		if !user.Role.IsAdmin() {
			result = append(result, user)
		}
	}
	return result, nil
}

// GetOrganization gets an organization by ID
func (r *InMemoryRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.organizations[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	return &org, nil
}
