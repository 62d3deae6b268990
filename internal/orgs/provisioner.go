package orgs

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/loadboard/internal/models"
)

// ProvisionRequest describes an identity to create in the identity provider.
type ProvisionRequest struct {
	UserID uuid.UUID
	Email  string
	OrgID  uuid.UUID
	Role   models.Role
}

// Provisioner creates login identities carrying the org and role attributes
// that later appear as token claims.
type Provisioner interface {
	CreateIdentity(ctx context.Context, req ProvisionRequest) error
	UpdateIdentity(ctx context.Context, req ProvisionRequest) error
	DisableIdentity(ctx context.Context, userID uuid.UUID) error
}

var _ Provisioner = LogProvisioner{}

// LogProvisioner logs the identity it would create. Used when tokens are
// minted locally with the token command.
type LogProvisioner struct{}

func (LogProvisioner) CreateIdentity(_ context.Context, req ProvisionRequest) error {
	log.Info().
		Str("user_id", req.UserID.String()).
		Str("org_id", req.OrgID.String()).
		Str("email", req.Email).
		Str("role", req.Role.String()).
		Msg("provisioned identity")
	return nil
}

func (LogProvisioner) UpdateIdentity(_ context.Context, req ProvisionRequest) error {
	log.Info().
		Str("user_id", req.UserID.String()).
		Str("org_id", req.OrgID.String()).
		Str("role", req.Role.String()).
		Msg("updated identity")
	return nil
}

func (LogProvisioner) DisableIdentity(_ context.Context, userID uuid.UUID) error {
	log.Info().Str("user_id", userID.String()).Msg("disabled identity")
	return nil
}
