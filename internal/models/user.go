package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the per-user, per-org designation governing default permissions.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCoadmin Role = "coadmin"
	RoleDriver  Role = "driver"
)

// ParseRole converts a claim or request value into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleCoadmin, RoleDriver:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IsManager returns true for roles that administer an organization.
func (r Role) IsManager() bool {
	return r == RoleAdmin || r == RoleCoadmin
}

func (r Role) String() string {
	return string(r)
}

// User belongs to exactly one organization. Email is globally unique and is the
// only attribute looked up across organizations.
type User struct {
	ID       uuid.UUID `json:"id"` // UUIDv7, also the identity provider subject
	OrgID    uuid.UUID `json:"orgId"`
	Email    string    `json:"email" validate:"required,email"`
	Name     string    `json:"name" validate:"required,max=200"`
	Role     Role      `json:"role" validate:"required,oneof=admin coadmin driver"`
	Phone    string    `json:"phone,omitempty" validate:"omitempty,e164"`
	Disabled bool      `json:"disabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsActiveDriver returns true if the user can be assigned loads.
func (u *User) IsActiveDriver() bool {
	return u.Role == RoleDriver && !u.Disabled
}
