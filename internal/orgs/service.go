// Package orgs manages organizations (tenants) and their users.
package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/store"
)

// Config holds the collaborators of a Service.
type Config struct {
	Table       store.Table
	Provisioner Provisioner
	Notifier    notify.Notifier
	Now         func() time.Time
}

// Service implements organization and user operations.
type Service struct {
	orgs        *store.Repository[models.Organization]
	users       *store.Repository[models.User]
	loads       *store.Repository[models.Load]
	provisioner Provisioner
	notifier    notify.Notifier
	now         func() time.Time
}

// NewService creates an organization service.
func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	provisioner := cfg.Provisioner
	if provisioner == nil {
		provisioner = LogProvisioner{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	return &Service{
		orgs:        store.NewRepository(cfg.Table, store.OrganizationSchema, now),
		users:       store.NewRepository(cfg.Table, store.UserSchema, now),
		loads:       store.NewRepository(cfg.Table, store.LoadSchema, now),
		provisioner: provisioner,
		notifier:    notifier,
		now:         now,
	}
}

// CreateOrganizationInput describes a new tenant and its first admin.
type CreateOrganizationInput struct {
	Name         string     `json:"name" validate:"required,max=200"`
	LegalName    string     `json:"legalName,omitempty" validate:"max=200"`
	ContactEmail string     `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ReplyToEmail string     `json:"replyToEmail,omitempty" validate:"omitempty,email"`
	Admin        AdminInput `json:"admin"`
}

// AdminInput describes the first admin of a new organization.
type AdminInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// UpdateOrganizationInput names the editable organization fields. Nil fields
// are left unchanged.
type UpdateOrganizationInput struct {
	Name          *string         `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	LegalName     *string         `json:"legalName,omitempty" validate:"omitempty,max=200"`
	ContactEmail  *string         `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ReplyToEmail  *string         `json:"replyToEmail,omitempty" validate:"omitempty,email"`
	Features      map[string]bool `json:"features,omitempty"`
	RetentionDays *int            `json:"retentionDays,omitempty" validate:"omitempty,gte=0"`
}

func (in UpdateOrganizationInput) patch() store.Patch {
	patch := store.Patch{}
	if in.Name != nil {
		patch["name"] = *in.Name
	}
	if in.LegalName != nil {
		patch["legalName"] = *in.LegalName
	}
	if in.ContactEmail != nil {
		patch["contactEmail"] = *in.ContactEmail
	}
	if in.ReplyToEmail != nil {
		patch["replyToEmail"] = *in.ReplyToEmail
	}
	if in.Features != nil {
		patch["features"] = in.Features
	}
	if in.RetentionDays != nil {
		patch["retentionDays"] = *in.RetentionDays
	}
	return patch
}

// CreateOrganization signs up a tenant with its first admin. Only platform
// superusers create organizations.
func (s *Service) CreateOrganization(ctx context.Context, id *auth.Identity, in CreateOrganizationInput) (*models.Organization, *models.User, error) {
	if err := auth.RequireSuperuser(id); err != nil {
		return nil, nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, nil, err
	}
	if err := s.ensureEmailUnused(ctx, in.Admin.Email); err != nil {
		return nil, nil, err
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, apperr.StorageFailure("generate organization id", err)
	}

	org := &models.Organization{
		ID:           orgID,
		Name:         in.Name,
		LegalName:    in.LegalName,
		ContactEmail: in.ContactEmail,
		ReplyToEmail: in.ReplyToEmail,
		CreatedAt:    s.now(),
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, nil, apperr.FromStore("organization", "create organization", err)
	}

	admin, err := s.createUser(ctx, org, NewUserInput{
		Email: in.Admin.Email,
		Name:  in.Admin.Name,
		Role:  models.RoleAdmin,
		Phone: in.Admin.Phone,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("actor_id", id.SubjectID).
		Str("name", org.Name).
		Msg("organization created")

	return org, admin, nil
}

// GetOrganization returns the caller's organization.
func (s *Service) GetOrganization(ctx context.Context, id *auth.Identity, orgID uuid.UUID) (*models.Organization, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	return s.getOrg(ctx, orgID)
}

// UpdateOrganization edits an organization's profile and settings.
func (s *Service) UpdateOrganization(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in UpdateOrganizationInput) (*models.Organization, error) {
	if err := auth.Authorize(id, orgID, auth.AdminsOnly...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	patch := in.patch()
	if len(patch) == 0 {
		return nil, apperr.ValidationFailed("nothing to update", nil)
	}

	org, err := s.orgs.Update(ctx, keys.Organization(orgID), patch)
	if err != nil {
		return nil, apperr.FromStore("organization", "update organization", err)
	}
	return org, nil
}

// SuspendOrganization blocks mutations in an organization. Organizations are
// never deleted.
func (s *Service) SuspendOrganization(ctx context.Context, id *auth.Identity, orgID uuid.UUID) (*models.Organization, error) {
	return s.setSuspended(ctx, id, orgID, true)
}

// ReactivateOrganization lifts a suspension.
func (s *Service) ReactivateOrganization(ctx context.Context, id *auth.Identity, orgID uuid.UUID) (*models.Organization, error) {
	return s.setSuspended(ctx, id, orgID, false)
}

func (s *Service) setSuspended(ctx context.Context, id *auth.Identity, orgID uuid.UUID, suspended bool) (*models.Organization, error) {
	if err := auth.RequireSuperuser(id); err != nil {
		return nil, err
	}

	patch := store.Patch{"suspended": suspended, "suspendedAt": nil}
	if suspended {
		patch["suspendedAt"] = s.now()
	}

	org, err := s.orgs.Update(ctx, keys.Organization(orgID), patch)
	if err != nil {
		return nil, apperr.FromStore("organization", "update organization", err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("actor_id", id.SubjectID).
		Bool("suspended", suspended).
		Msg("organization suspension changed")

	return org, nil
}

func (s *Service) getOrg(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.orgs.Get(ctx, keys.Organization(orgID))
	if err != nil {
		return nil, apperr.FromStore("organization", "get organization", err)
	}
	return org, nil
}
