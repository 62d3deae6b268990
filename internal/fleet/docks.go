package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/models"
)

// DockYardInput is the writable part of a dock yard.
type DockYardInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Address      *models.Address `json:"address,omitempty"`
	PermitExpiry *time.Time      `json:"permitExpiry,omitempty"`
}

// DockYardView is a dock yard with its permit state at read time.
type DockYardView struct {
	*models.DockYard
	PermitValid bool `json:"permitValid"`
}

// DockInput is the writable part of a dock.
type DockInput struct {
	YardID              *uuid.UUID `json:"yardId,omitempty"`
	Name                string     `json:"name" validate:"required,max=200"`
	Door                string     `json:"door,omitempty" validate:"max=20"`
	Active              bool       `json:"active"`
	CertificationExpiry *time.Time `json:"certificationExpiry,omitempty"`
}

// DockView is a dock with its operational state at read time.
type DockView struct {
	*models.Dock
	Operational bool `json:"operational"`
}

func (s *Service) yardView(y *models.DockYard) *DockYardView {
	return &DockYardView{DockYard: y, PermitValid: y.PermitValid(s.now())}
}

func (s *Service) dockView(d *models.Dock) *DockView {
	return &DockView{Dock: d, Operational: d.Operational(s.now())}
}

// CreateDockYard adds a dock yard to the organization.
func (s *Service) CreateDockYard(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in DockYardInput) (*DockYardView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	yardID, err := newID()
	if err != nil {
		return nil, err
	}
	y := &models.DockYard{
		ID:           yardID,
		OrgID:        orgID,
		Name:         in.Name,
		Address:      in.Address,
		PermitExpiry: in.PermitExpiry,
		CreatedAt:    s.now(),
	}
	if err := s.yards.create(ctx, y); err != nil {
		return nil, err
	}
	return s.yardView(y), nil
}

// GetDockYard returns a dock yard.
func (s *Service) GetDockYard(ctx context.Context, id *auth.Identity, orgID, yardID uuid.UUID) (*DockYardView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	y, err := s.yards.get(ctx, orgID, yardID)
	if err != nil {
		return nil, err
	}
	return s.yardView(y), nil
}

// ListDockYards returns every dock yard of the organization.
func (s *Service) ListDockYards(ctx context.Context, id *auth.Identity, orgID uuid.UUID) ([]*DockYardView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	yards, err := s.yards.list(ctx, orgID)
	if err != nil {
		return nil, err
	}
	views := make([]*DockYardView, len(yards))
	for i, y := range yards {
		views[i] = s.yardView(y)
	}
	return views, nil
}

// UpdateDockYard replaces the writable fields of a dock yard.
func (s *Service) UpdateDockYard(ctx context.Context, id *auth.Identity, orgID, yardID uuid.UUID, in DockYardInput) (*DockYardView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	y, err := s.yards.get(ctx, orgID, yardID)
	if err != nil {
		return nil, err
	}
	y.Name = in.Name
	y.Address = in.Address
	y.PermitExpiry = in.PermitExpiry

	if err := s.yards.put(ctx, y); err != nil {
		return nil, err
	}
	return s.yardView(y), nil
}

// DeleteDockYard removes a dock yard that no dock belongs to.
func (s *Service) DeleteDockYard(ctx context.Context, id *auth.Identity, orgID, yardID uuid.UUID) error {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return err
	}

	docks, err := s.docks.list(ctx, orgID)
	if err != nil {
		return err
	}
	for _, d := range docks {
		if d.YardID != nil && *d.YardID == yardID {
			return apperr.ValidationFailed("dock yard still has docks", map[string]string{"yardId": "has docks assigned"})
		}
	}

	return s.yards.delete(ctx, id, orgID, yardID)
}

// CreateDock adds a dock, optionally inside one of the organization's yards.
func (s *Service) CreateDock(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in DockInput) (*DockView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := s.validateDock(ctx, orgID, in); err != nil {
		return nil, err
	}

	dockID, err := newID()
	if err != nil {
		return nil, err
	}
	d := &models.Dock{ID: dockID, OrgID: orgID, CreatedAt: s.now()}
	in.apply(d)

	if err := s.docks.create(ctx, d); err != nil {
		return nil, err
	}
	return s.dockView(d), nil
}

// GetDock returns a dock.
func (s *Service) GetDock(ctx context.Context, id *auth.Identity, orgID, dockID uuid.UUID) (*DockView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	d, err := s.docks.get(ctx, orgID, dockID)
	if err != nil {
		return nil, err
	}
	return s.dockView(d), nil
}

// ListDocks returns every dock of the organization.
func (s *Service) ListDocks(ctx context.Context, id *auth.Identity, orgID uuid.UUID) ([]*DockView, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	docks, err := s.docks.list(ctx, orgID)
	if err != nil {
		return nil, err
	}
	views := make([]*DockView, len(docks))
	for i, d := range docks {
		views[i] = s.dockView(d)
	}
	return views, nil
}

// UpdateDock replaces the writable fields of a dock.
func (s *Service) UpdateDock(ctx context.Context, id *auth.Identity, orgID, dockID uuid.UUID, in DockInput) (*DockView, error) {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return nil, err
	}
	if err := s.validateDock(ctx, orgID, in); err != nil {
		return nil, err
	}

	d, err := s.docks.get(ctx, orgID, dockID)
	if err != nil {
		return nil, err
	}
	in.apply(d)

	if err := s.docks.put(ctx, d); err != nil {
		return nil, err
	}
	return s.dockView(d), nil
}

// DeleteDock removes a dock.
func (s *Service) DeleteDock(ctx context.Context, id *auth.Identity, orgID, dockID uuid.UUID) error {
	if err := s.authorizeWrite(ctx, id, orgID); err != nil {
		return err
	}
	return s.docks.delete(ctx, id, orgID, dockID)
}

func (in DockInput) apply(d *models.Dock) {
	d.YardID = in.YardID
	d.Name = in.Name
	d.Door = in.Door
	d.Active = in.Active
	d.CertificationExpiry = in.CertificationExpiry
}

// validateDock checks the input and that the yard belongs to the same org.
func (s *Service) validateDock(ctx context.Context, orgID uuid.UUID, in DockInput) error {
	if err := apperr.Validate(in); err != nil {
		return err
	}
	if in.YardID == nil {
		return nil
	}
	if _, err := s.yards.get(ctx, orgID, *in.YardID); err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return apperr.ValidationFailed("invalid dock yard", map[string]string{"yardId": "must reference a dock yard of the organization"})
		}
		return err
	}
	return nil
}
