package directory

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role in the incident-reporting platform
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleReporter    Role = "reporter"
	RoleReadonly    Role = "readonly"
)

// IsAdmin reports whether the role carries system-administrator privileges
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User represents a user account in the directory
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	Role           Role       `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Organization represents a healthcare organization users belong to
type Organization struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Identity is the resolved result of an admin bearer credential
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}
