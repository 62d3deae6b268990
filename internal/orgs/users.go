package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// NewUserInput describes a user to invite into an organization.
type NewUserInput struct {
	Email string      `json:"email" validate:"required,email"`
	Name  string      `json:"name" validate:"required,max=200"`
	Role  models.Role `json:"role" validate:"required,oneof=admin coadmin driver"`
	Phone string      `json:"phone,omitempty" validate:"omitempty,e164"`
}

// UpdateUserInput names the editable user fields. Email is fixed once a user
// exists.
type UpdateUserInput struct {
	Name  *string      `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Role  *models.Role `json:"role,omitempty" validate:"omitempty,oneof=admin coadmin driver"`
	Phone *string      `json:"phone,omitempty" validate:"omitempty,e164"`
}

// CreateUser invites a user into the organization. Only admins may create
// other admins.
func (s *Service) CreateUser(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in NewUserInput) (*models.User, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	if in.Role == models.RoleAdmin {
		if err := auth.RequireRole(id, auth.AdminsOnly...); err != nil {
			return nil, err
		}
	}

	org, err := s.getOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Suspended {
		return nil, apperr.Forbidden("organization suspended", "org "+orgID.String()+" is suspended")
	}
	if err := s.ensureEmailUnused(ctx, in.Email); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, org, in)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", user.ID.String()).
		Str("actor_id", id.SubjectID).
		Str("role", user.Role.String()).
		Msg("user created")

	return user, nil
}

// createUser writes the user row, provisions the identity and sends the
// invite.
func (s *Service) createUser(ctx context.Context, org *models.Organization, in NewUserInput) (*models.User, error) {
	userID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.StorageFailure("generate user id", err)
	}

	user := &models.User{
		ID:        userID,
		OrgID:     org.ID,
		Email:     keys.NormalizeEmail(in.Email),
		Name:      in.Name,
		Role:      in.Role,
		Phone:     in.Phone,
		CreatedAt: s.now(),
	}

	// no identity is provisioned without a user row
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperr.FromStore("user", "create user", err)
	}

	if err := s.provisioner.CreateIdentity(ctx, ProvisionRequest{
		UserID: user.ID,
		Email:  user.Email,
		OrgID:  user.OrgID,
		Role:   user.Role,
	}); err != nil {
		if delErr := s.users.Delete(ctx, keys.User(user.OrgID, user.ID)); delErr != nil {
			log.Error().Err(delErr).
				Str("org_id", user.OrgID.String()).
				Str("user_id", user.ID.String()).
				Msg("failed to remove user row after provisioning failed, remove it manually")
		}
		return nil, apperr.StorageFailure("provision identity", err)
	}

	if err := s.notifier.Send(ctx, notify.Message{
		To:       user.Email,
		ReplyTo:  org.ReplyToEmail,
		Template: notify.TemplateUserInvite,
		Data: map[string]string{
			"organization": org.Name,
			"name":         user.Name,
			"role":         user.Role.String(),
		},
	}); err != nil {
		telemetry.GetMetrics().NotificationsFailedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("template", notify.TemplateUserInvite)))
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to send invite")
	}

	return user, nil
}

// ensureEmailUnused rejects an email that already belongs to a user in any
// organization. The check and the later write are not atomic.
func (s *Service) ensureEmailUnused(ctx context.Context, email string) error {
	existing, err := s.users.Query(ctx, keys.EmailPartition(email), keys.All(), store.QueryOptions{Limit: 1})
	if err != nil {
		return apperr.StorageFailure("lookup user by email", err)
	}
	if len(existing) > 0 {
		return apperr.ValidationFailed("email already registered", map[string]string{"email": "is already in use"})
	}
	return nil
}

// GetUser returns a user of the organization. Drivers may only read their
// own record.
func (s *Service) GetUser(ctx context.Context, id *auth.Identity, orgID, userID uuid.UUID) (*models.User, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	if err := requireSelfOrManager(id, userID); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, keys.User(orgID, userID))
	if err != nil {
		return nil, apperr.FromStore("user", "get user", err)
	}
	return user, nil
}

// UpdateUser edits a user. Granting or revoking the admin role requires an
// admin, and nobody changes their own role.
func (s *Service) UpdateUser(ctx context.Context, id *auth.Identity, orgID, userID uuid.UUID, in UpdateUserInput) (*models.User, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	current, err := s.users.Get(ctx, keys.User(orgID, userID))
	if err != nil {
		return nil, apperr.FromStore("user", "get user", err)
	}

	patch := store.Patch{}
	if in.Name != nil {
		patch["name"] = *in.Name
	}
	if in.Phone != nil {
		patch["phone"] = *in.Phone
	}
	roleChanged := in.Role != nil && *in.Role != current.Role
	if roleChanged {
		if id.SubjectID == userID.String() {
			return nil, apperr.Forbidden("cannot change own role", "self role change by "+id.SubjectID)
		}
		if *in.Role == models.RoleAdmin || current.Role == models.RoleAdmin {
			if err := auth.RequireRole(id, auth.AdminsOnly...); err != nil {
				return nil, err
			}
		}
		if current.Role == models.RoleDriver {
			if err := s.ensureNoOpenLoads(ctx, orgID, userID, "role"); err != nil {
				return nil, err
			}
		}
		patch["role"] = *in.Role
	}
	if len(patch) == 0 {
		return nil, apperr.ValidationFailed("nothing to update", nil)
	}

	if roleChanged {
		if err := s.provisioner.UpdateIdentity(ctx, ProvisionRequest{
			UserID: userID,
			Email:  current.Email,
			OrgID:  orgID,
			Role:   *in.Role,
		}); err != nil {
			return nil, apperr.StorageFailure("update identity", err)
		}
	}

	user, err := s.users.Update(ctx, keys.User(orgID, userID), patch)
	if err != nil {
		return nil, apperr.FromStore("user", "update user", err)
	}
	return user, nil
}

// DisableUser blocks a user from signing in and from being assigned loads.
// Users are never deleted.
func (s *Service) DisableUser(ctx context.Context, id *auth.Identity, orgID, userID uuid.UUID) (*models.User, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if id.SubjectID == userID.String() {
		return nil, apperr.Forbidden("cannot disable yourself", "self disable by "+id.SubjectID)
	}

	current, err := s.users.Get(ctx, keys.User(orgID, userID))
	if err != nil {
		return nil, apperr.FromStore("user", "get user", err)
	}
	if current.Role == models.RoleAdmin {
		if err := auth.RequireRole(id, auth.AdminsOnly...); err != nil {
			return nil, err
		}
	}
	if current.Role == models.RoleDriver {
		if err := s.ensureNoOpenLoads(ctx, orgID, userID, "disabled"); err != nil {
			return nil, err
		}
	}

	if err := s.provisioner.DisableIdentity(ctx, userID); err != nil {
		return nil, apperr.StorageFailure("disable identity", err)
	}

	user, err := s.users.Update(ctx, keys.User(orgID, userID), store.Patch{"disabled": true})
	if err != nil {
		return nil, apperr.FromStore("user", "disable user", err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", userID.String()).
		Str("actor_id", id.SubjectID).
		Msg("user disabled")

	return user, nil
}

// ensureNoOpenLoads refuses to take a driver out of service while loads that
// have not finished are still assigned to them. Those loads must be
// reassigned or cancelled first.
func (s *Service) ensureNoOpenLoads(ctx context.Context, orgID, driverID uuid.UUID, field string) error {
	assigned, err := s.loads.Query(ctx, keys.DriverPartition(orgID, driverID), keys.All(), store.QueryOptions{})
	if err != nil {
		return apperr.StorageFailure("list driver loads", err)
	}

	open := 0
	for _, l := range assigned {
		if l.AssignedTo(driverID.String()) && !l.Status.IsTerminal() {
			open++
		}
	}
	if open > 0 {
		return apperr.ValidationFailed("driver has open loads", map[string]string{
			field: fmt.Sprintf("driver has %d open load(s), reassign or cancel them first", open),
		})
	}
	return nil
}

// ListUsers returns the users of an organization, optionally of one role.
func (s *Service) ListUsers(ctx context.Context, id *auth.Identity, orgID uuid.UUID, role models.Role) ([]*models.User, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if role != "" {
		if _, err := models.ParseRole(string(role)); err != nil {
			return nil, apperr.ValidationFailed("invalid input", map[string]string{"role": "must be one of: admin coadmin driver"})
		}
	}

	users, err := s.users.Query(ctx, keys.OrgPartition(orgID), keys.BeginsWith(keys.KindUser), store.QueryOptions{})
	if err != nil {
		return nil, apperr.StorageFailure("list users", err)
	}
	if role == "" {
		return users, nil
	}

	out := users[:0]
	for _, u := range users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// LookupUserByEmail finds a user by email across organizations. A user in an
// organization the caller cannot access is reported as not found.
func (s *Service) LookupUserByEmail(ctx context.Context, id *auth.Identity, email string) (*models.User, error) {
	if err := auth.RequireRole(id, auth.Managers...); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperr.ValidationFailed("invalid input", map[string]string{"email": "is required"})
	}

	users, err := s.users.Query(ctx, keys.EmailPartition(email), keys.All(), store.QueryOptions{Limit: 1})
	if err != nil {
		return nil, apperr.StorageFailure("lookup user by email", err)
	}
	if len(users) == 0 {
		return nil, apperr.NotFound("user")
	}

	user := users[0]
	if err := auth.VerifyOrgAccess(id, user.OrgID); err != nil {
		log.Debug().
			Str("actor_id", id.SubjectID).
			Str("org_id", user.OrgID.String()).
			Msg("email lookup outside caller org")
		return nil, apperr.NotFound("user")
	}
	return user, nil
}

func requireSelfOrManager(id *auth.Identity, userID uuid.UUID) error {
	if id.SubjectID == userID.String() {
		return nil
	}
	if err := auth.RequireRole(id, auth.Managers...); err != nil {
		return apperr.Forbidden("not permitted to read this user", fmt.Sprintf("%s read user %s", id.SubjectID, userID))
	}
	return nil
}
