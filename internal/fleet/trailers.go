package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/models"
)

// TrailerInput is the writable part of a trailer.
type TrailerInput struct {
	Number             string     `json:"number" validate:"required,max=50"`
	Plate              string     `json:"plate,omitempty" validate:"max=20"`
	RegistrationExpiry *time.Time `json:"registrationExpiry,omitempty"`
	InspectionExpiry   *time.Time `json:"inspectionExpiry,omitempty"`
	InsuranceExpiry    *time.Time `json:"insuranceExpiry,omitempty"`
	Notes              string     `json:"notes,omitempty" validate:"max=2000"`
}

// TrailerView is a trailer with its compliance at read time.
type TrailerView struct {
	*models.Trailer
	Compliance models.TrailerCompliance `json:"compliance"`
}

func (s *Service) trailerView(t *models.Trailer) *TrailerView {
	return &TrailerView{Trailer: t, Compliance: t.Compliance(s.now())}
}

func (in TrailerInput) apply(t *models.Trailer) {
	t.Number = in.Number
	t.Plate = in.Plate
	t.RegistrationExpiry = in.RegistrationExpiry
	t.InspectionExpiry = in.InspectionExpiry
	t.InsuranceExpiry = in.InsuranceExpiry
	t.Notes = in.Notes
}

// CreateTrailer adds a trailer to the organization.
func (s *Service) CreateTrailer(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in TrailerInput) (*TrailerView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	trailerID, err := newID()
	if err != nil {
		return nil, err
	}
	t := &models.Trailer{ID: trailerID, OrgID: orgID, CreatedAt: s.now()}
	in.apply(t)

	if err := s.trailers.create(ctx, t); err != nil {
		return nil, err
	}
	return s.trailerView(t), nil
}

// GetTrailer returns a trailer with its compliance.
func (s *Service) GetTrailer(ctx context.Context, id *auth.Identity, orgID, trailerID uuid.UUID) (*TrailerView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	t, err := s.trailers.get(ctx, orgID, trailerID)
	if err != nil {
		return nil, err
	}
	return s.trailerView(t), nil
}

// ListTrailers returns every trailer of the organization.
func (s *Service) ListTrailers(ctx context.Context, id *auth.Identity, orgID uuid.UUID) ([]*TrailerView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	trailers, err := s.trailers.list(ctx, orgID)
	if err != nil {
		return nil, err
	}
	views := make([]*TrailerView, len(trailers))
	for i, t := range trailers {
		views[i] = s.trailerView(t)
	}
	return views, nil
}

// UpdateTrailer replaces the writable fields of a trailer.
func (s *Service) UpdateTrailer(ctx context.Context, id *auth.Identity, orgID, trailerID uuid.UUID, in TrailerInput) (*TrailerView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	t, err := s.trailers.get(ctx, orgID, trailerID)
	if err != nil {
		return nil, err
	}
	in.apply(t)

	if err := s.trailers.put(ctx, t); err != nil {
		return nil, err
	}
	return s.trailerView(t), nil
}

// DeleteTrailer removes a trailer.
func (s *Service) DeleteTrailer(ctx context.Context, id *auth.Identity, orgID, trailerID uuid.UUID) error {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return err
	}
	return s.trailers.delete(ctx, id, orgID, trailerID)
}
