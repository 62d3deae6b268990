package models

import (
	"time"

	"github.com/google/uuid"
)

// LoadStatus is the lifecycle state of a load.
type LoadStatus string

const (
	// LoadStatusDraft is the initial state. It is stored as PENDING.
	LoadStatusDraft     LoadStatus = "PENDING"
	LoadStatusAssigned  LoadStatus = "ASSIGNED"
	LoadStatusInTransit LoadStatus = "IN_TRANSIT"
	LoadStatusDelivered LoadStatus = "DELIVERED"
	LoadStatusCompleted LoadStatus = "COMPLETED"
	LoadStatusCancelled LoadStatus = "CANCELLED"
)

// LoadStatuses lists every status in lifecycle order.
func LoadStatuses() []LoadStatus {
	return []LoadStatus{
		LoadStatusDraft,
		LoadStatusAssigned,
		LoadStatusInTransit,
		LoadStatusDelivered,
		LoadStatusCompleted,
		LoadStatusCancelled,
	}
}

// ParseLoadStatus accepts the stored value and the DRAFT alias.
func ParseLoadStatus(s string) (LoadStatus, bool) {
	if s == "DRAFT" {
		return LoadStatusDraft, true
	}
	for _, st := range LoadStatuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal returns true once no further transition is possible.
func (s LoadStatus) IsTerminal() bool {
	return s == LoadStatusCompleted || s == LoadStatusCancelled
}

// Address is a service address for a load.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
}

// LoadItem is a single manifest line.
type LoadItem struct {
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gt=0"`
	WeightKg    float64 `json:"weightKg,omitempty" validate:"gte=0"`
}

// Load is the mutable work item moving through the delivery lifecycle.
type Load struct {
	ID               uuid.UUID  `json:"id"`
	OrgID            uuid.UUID  `json:"orgId"`
	Reference        string     `json:"reference,omitempty"`
	Status           LoadStatus `json:"status"`
	AssignedDriverID *uuid.UUID `json:"assignedDriverId,omitempty"`
	ServiceAddress   Address    `json:"serviceAddress"`
	Items            []LoadItem `json:"items,omitempty" validate:"dive"`
	Notes            string     `json:"notes,omitempty"`
	CreatedBy        string     `json:"createdBy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// StatusChangedAt is the time of the last lifecycle transition and orders
	// loads in the status, org and driver indexes.
	StatusChangedAt time.Time `json:"statusChangedAt"`

	AssignedAt   *time.Time `json:"assignedAt,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
}

// AssignedTo returns true if the load is assigned to the given subject.
func (l *Load) AssignedTo(subjectID string) bool {
	return l.AssignedDriverID != nil && l.AssignedDriverID.String() == subjectID
}

// GeoPoint is where a signature was captured.
type GeoPoint struct {
	Lat      float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng      float64 `json:"lng" validate:"gte=-180,lte=180"`
	Accuracy float64 `json:"accuracy,omitempty" validate:"gte=0"`
}

// Signature is the shipper signature captured for a load. There is at most one
// per load.
type Signature struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"orgId"`
	LoadID      uuid.UUID `json:"loadId"`
	SignerName  string    `json:"signerName"`
	SignedAt    time.Time `json:"signedAt"`
	Geo         *GeoPoint `json:"geo,omitempty"`
	BlobKey     string    `json:"blobKey"`
	ContentType string    `json:"contentType"`
	ContentHash string    `json:"contentHash"` // base58 SHA-256 of the blob
	CapturedBy  string    `json:"capturedBy"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LoadEvent is an append-only audit record for a load mutation.
type LoadEvent struct {
	ID        uuid.UUID         `json:"id"` // UUIDv7
	OrgID     uuid.UUID         `json:"orgId"`
	LoadID    uuid.UUID         `json:"loadId"`
	Type      string            `json:"type"`
	ActorID   string            `json:"actorId"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}
