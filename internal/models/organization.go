package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the system.
// Each organization owns its users, loads and fleet assets. Organizations are
// never hard deleted, only suspended.
type Organization struct {
	ID           uuid.UUID       `json:"id"` // UUIDv7
	Name         string          `json:"name" validate:"required,max=200"`
	LegalName    string          `json:"legalName,omitempty" validate:"max=200"`
	ContactEmail string          `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ReplyToEmail string          `json:"replyToEmail,omitempty" validate:"omitempty,email"`
	Features     map[string]bool `json:"features,omitempty"`

	// RetentionDays controls how long signature blobs are kept, 0 keeps forever.
	RetentionDays int `json:"retentionDays,omitempty" validate:"gte=0"`

	Suspended   bool       `json:"suspended"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FeatureEnabled reports whether the named feature flag is switched on.
func (o *Organization) FeatureEnabled(name string) bool {
	return o.Features[name]
}
