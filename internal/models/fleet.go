package models

import (
	"time"

	"github.com/google/uuid"
)

// expiryValid reports whether an expiry date is set and strictly after now.
func expiryValid(expiry *time.Time, now time.Time) bool {
	return expiry != nil && expiry.After(now)
}

// Trailer is a fleet trailer owned by an organization.
type Trailer struct {
	ID                 uuid.UUID  `json:"id"`
	OrgID              uuid.UUID  `json:"orgId"`
	Number             string     `json:"number" validate:"required,max=50"`
	Plate              string     `json:"plate,omitempty" validate:"max=20"`
	RegistrationExpiry *time.Time `json:"registrationExpiry,omitempty"`
	InspectionExpiry   *time.Time `json:"inspectionExpiry,omitempty"`
	InsuranceExpiry    *time.Time `json:"insuranceExpiry,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// TrailerCompliance is derived from the trailer's expiry dates.
type TrailerCompliance struct {
	Registration bool `json:"registration"`
	Inspection   bool `json:"inspection"`
	Insurance    bool `json:"insurance"`
	Compliant    bool `json:"compliant"`
}

// Compliance evaluates the trailer's expiry dates against now.
func (t *Trailer) Compliance(now time.Time) TrailerCompliance {
	c := TrailerCompliance{
		Registration: expiryValid(t.RegistrationExpiry, now),
		Inspection:   expiryValid(t.InspectionExpiry, now),
		Insurance:    expiryValid(t.InsuranceExpiry, now),
	}
	c.Compliant = c.Registration && c.Inspection && c.Insurance
	return c
}

// DockYard is a site containing docks.
type DockYard struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"orgId"`
	Name         string     `json:"name" validate:"required,max=200"`
	Address      *Address   `json:"address,omitempty"`
	PermitExpiry *time.Time `json:"permitExpiry,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PermitValid reports whether the yard's operating permit is current.
func (y *DockYard) PermitValid(now time.Time) bool {
	return expiryValid(y.PermitExpiry, now)
}

// Dock is a loading door inside a dock yard.
type Dock struct {
	ID                  uuid.UUID  `json:"id"`
	OrgID               uuid.UUID  `json:"orgId"`
	YardID              *uuid.UUID `json:"yardId,omitempty"`
	Name                string     `json:"name" validate:"required,max=200"`
	Door                string     `json:"door,omitempty" validate:"max=20"`
	Active              bool       `json:"active"`
	CertificationExpiry *time.Time `json:"certificationExpiry,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Operational reports whether the dock is active and certified.
func (d *Dock) Operational(now time.Time) bool {
	return d.Active && expiryValid(d.CertificationExpiry, now)
}
