// Package loads implements load operations and the load lifecycle.
package loads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/blob"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// DefaultPresignTTL is how long signature upload and download URLs stay valid.
const DefaultPresignTTL = 15 * time.Minute

// Config holds the collaborators of a Service.
type Config struct {
	Table      store.Table
	Recorder   *audit.Recorder
	Blobs      blob.Store
	Notifier   notify.Notifier
	Now        func() time.Time
	PresignTTL time.Duration
}

// Service implements load operations. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	loads      *store.Repository[models.Load]
	signatures *store.Repository[models.Signature]
	users      *store.Repository[models.User]
	orgs       *store.Repository[models.Organization]
	recorder   *audit.Recorder
	blobs      blob.Store
	notifier   notify.Notifier
	now        func() time.Time
	presignTTL time.Duration
}

// NewService creates a load service.
func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.NewRecorder(cfg.Table, now)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	return &Service{
		loads:      store.NewRepository(cfg.Table, store.LoadSchema, now),
		signatures: store.NewRepository(cfg.Table, store.SignatureSchema, now),
		users:      store.NewRepository(cfg.Table, store.UserSchema, now),
		orgs:       store.NewRepository(cfg.Table, store.OrganizationSchema, now),
		recorder:   recorder,
		blobs:      cfg.Blobs,
		notifier:   notifier,
		now:        now,
		presignTTL: ttl,
	}
}

// CreateInput is the caller supplied part of a new load.
type CreateInput struct {
	Reference      string            `json:"reference,omitempty" validate:"max=100"`
	ServiceAddress models.Address    `json:"serviceAddress"`
	Items          []models.LoadItem `json:"items,omitempty" validate:"dive"`
	Notes          string            `json:"notes,omitempty" validate:"max=2000"`
}

// UpdateInput names the editable fields of a load. Nil fields are left
// unchanged. Status and driver only change through transitions.
type UpdateInput struct {
	Reference      *string            `json:"reference,omitempty" validate:"omitempty,max=100"`
	ServiceAddress *models.Address    `json:"serviceAddress,omitempty"`
	Items          *[]models.LoadItem `json:"items,omitempty" validate:"omitempty,dive"`
	Notes          *string            `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (in UpdateInput) patch() (store.Patch, []string) {
	patch := store.Patch{}
	if in.Reference != nil {
		patch["reference"] = *in.Reference
	}
	if in.ServiceAddress != nil {
		patch["serviceAddress"] = in.ServiceAddress
	}
	if in.Items != nil {
		patch["items"] = *in.Items
	}
	if in.Notes != nil {
		patch["notes"] = *in.Notes
	}

	fields := make([]string, 0, len(patch))
	for _, f := range []string{"reference", "serviceAddress", "items", "notes"} {
		if _, ok := patch[f]; ok {
			fields = append(fields, f)
		}
	}
	return patch, fields
}

// Create adds a load to the organization in the draft state.
func (s *Service) Create(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in CreateInput) (*models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.activeOrg(ctx, orgID); err != nil {
		return nil, err
	}

	loadID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.StorageFailure("generate load id", err)
	}

	now := s.now()
	load := &models.Load{
		ID:              loadID,
		OrgID:           orgID,
		Reference:       in.Reference,
		Status:          models.LoadStatusDraft,
		ServiceAddress:  in.ServiceAddress,
		Items:           in.Items,
		Notes:           in.Notes,
		CreatedBy:       id.SubjectID,
		CreatedAt:       now,
		StatusChangedAt: now,
	}

	if err := s.loads.Create(ctx, load); err != nil {
		return nil, apperr.FromStore("load", "create load", err)
	}

	if _, err := s.recorder.Append(ctx, orgID, loadID, audit.Entry{
		Type:    audit.LoadCreated,
		ActorID: id.SubjectID,
		Meta:    map[string]string{"status": string(load.Status)},
	}); err != nil {
		return nil, err
	}

	telemetry.GetMetrics().LoadsCreatedTotal.Add(ctx, 1)

	log.Info().
		Str("org_id", orgID.String()).
		Str("load_id", loadID.String()).
		Str("actor_id", id.SubjectID).
		Msg("load created")

	return load, nil
}

// Get returns a load the caller may read.
func (s *Service) Get(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID) (*models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	return s.readable(ctx, id, orgID, loadID, auth.ActionRead)
}

// Update edits the descriptive fields of a load that has not reached a
// terminal state.
func (s *Service) Update(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID, in UpdateInput) (*models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}

	patch, fields := in.patch()
	if len(patch) == 0 {
		return nil, apperr.ValidationFailed("nothing to update", nil)
	}

	if _, err := s.activeOrg(ctx, orgID); err != nil {
		return nil, err
	}

	load, err := s.readable(ctx, id, orgID, loadID, auth.ActionWrite)
	if err != nil {
		return nil, err
	}
	if load.Status.IsTerminal() {
		required := make([]string, len(nonTerminal))
		for i, st := range nonTerminal {
			required[i] = string(st)
		}
		return nil, apperr.InvalidTransition("update", string(load.Status), required...)
	}

	updated, err := s.loads.Update(ctx, keys.Load(orgID, loadID), patch)
	if err != nil {
		return nil, apperr.FromStore("load", "update load", err)
	}

	meta := make(map[string]string, len(fields))
	for _, f := range fields {
		meta[f] = "changed"
	}
	if _, err := s.recorder.Append(ctx, orgID, loadID, audit.Entry{
		Type:    audit.LoadUpdated,
		ActorID: id.SubjectID,
		Meta:    meta,
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// Events returns the audit trail of a load the caller may read, oldest first.
func (s *Service) Events(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID) ([]*models.LoadEvent, error) {
	if _, err := s.Get(ctx, id, orgID, loadID); err != nil {
		return nil, err
	}
	return s.recorder.List(ctx, orgID, loadID)
}

// readable loads the load and applies the ownership check for action.
func (s *Service) readable(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID, action auth.Action) (*models.Load, error) {
	load, err := s.loads.Get(ctx, keys.Load(orgID, loadID))
	if err != nil {
		return nil, apperr.FromStore("load", "get load", err)
	}
	if err := auth.AuthorizeResource(id, load, action); err != nil {
		return nil, err
	}
	return load, nil
}

// activeOrg returns the organization, refusing mutations of suspended ones.
func (s *Service) activeOrg(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.orgs.Get(ctx, keys.Organization(orgID))
	if err != nil {
		return nil, apperr.FromStore("organization", "get organization", err)
	}
	if org.Suspended {
		return nil, apperr.Forbidden("organization suspended", "org "+orgID.String()+" is suspended")
	}
	return org, nil
}

// send hands a message to the notifier. Failures are logged and counted,
// never returned.
func (s *Service) send(ctx context.Context, msg notify.Message) {
	if msg.To == "" {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		telemetry.GetMetrics().NotificationsFailedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("template", msg.Template)))
		log.Warn().Err(err).Str("template", msg.Template).Msg("failed to send notification")
	}
}
