package loads

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// TransitionInput carries optional data for a transition.
type TransitionInput struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Assign gives a draft load to a driver, or moves an assigned load to a
// different driver. The driver must be an active driver of the same
// organization.
func (s *Service) Assign(ctx context.Context, id *auth.Identity, orgID, loadID, driverID uuid.UUID) (_ *models.Load, err error) {
	t := transitions[ActionAssign]
	defer func() { s.countRejected(ctx, t.Action, err) }()

	if err := auth.Authorize(id, orgID, t.Roles...); err != nil {
		return nil, err
	}
	org, err := s.activeOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	load, err := s.readable(ctx, id, orgID, loadID, auth.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := t.check(load.Status); err != nil {
		return nil, err
	}
	if load.AssignedDriverID != nil && *load.AssignedDriverID == driverID {
		return nil, apperr.ValidationFailed("load is already assigned to this driver",
			map[string]string{"driverId": "must differ from the current driver"})
	}

	driver, err := s.users.Get(ctx, keys.User(orgID, driverID))
	if err != nil && !store.IsNotFound(err) {
		return nil, apperr.StorageFailure("get driver", err)
	}
	if driver == nil || !driver.IsActiveDriver() {
		return nil, apperr.ValidationFailed("invalid driver",
			map[string]string{"driverId": "must be an active driver of the organization"})
	}

	meta := map[string]string{"driverId": driverID.String()}
	if load.AssignedDriverID != nil {
		meta["previousDriverId"] = load.AssignedDriverID.String()
	}

	patch := store.Patch{"assignedDriverId": driverID}
	updated, err := s.apply(ctx, id, load, t, patch, meta)
	if err != nil {
		return nil, err
	}

	s.send(ctx, notify.Message{
		To:       driver.Email,
		ReplyTo:  org.ReplyToEmail,
		Template: notify.TemplateLoadAssigned,
		Data: map[string]string{
			"organization": org.Name,
			"driverName":   driver.Name,
			"loadId":       updated.ID.String(),
			"reference":    updated.Reference,
		},
	})

	return updated, nil
}

// Transition fires a lifecycle action other than assign on a load.
func (s *Service) Transition(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID, action Action, in TransitionInput) (_ *models.Load, err error) {
	t, ok := Lookup(action)
	if !ok {
		return nil, apperr.ValidationFailed("unknown action", map[string]string{"action": "is not a lifecycle action"})
	}
	if action == ActionAssign {
		return nil, apperr.ValidationFailed("assign requires a driver", map[string]string{"driverId": "is required"})
	}
	defer func() { s.countRejected(ctx, t.Action, err) }()

	if err := auth.Authorize(id, orgID, t.Roles...); err != nil {
		return nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	org, err := s.activeOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	load, err := s.loads.Get(ctx, keys.Load(orgID, loadID))
	if err != nil {
		return nil, apperr.FromStore("load", "get load", err)
	}
	if t.RequireAssignee {
		if err := auth.AuthorizeResource(id, load, auth.ActionWrite); err != nil {
			return nil, err
		}
	}
	if err := t.check(load.Status); err != nil {
		return nil, err
	}

	meta := map[string]string{}
	patch := store.Patch{}

	switch action {
	case ActionComplete:
		sig, err := s.verifySignature(ctx, load)
		if err != nil {
			return nil, err
		}
		meta["contentHash"] = sig.ContentHash
	case ActionCancel:
		if in.Reason != "" {
			patch["cancelReason"] = in.Reason
			meta["reason"] = in.Reason
		}
	}

	updated, err := s.apply(ctx, id, load, t, patch, meta)
	if err != nil {
		return nil, err
	}

	if action == ActionComplete {
		s.notifyCompleted(ctx, org, updated)
	}

	return updated, nil
}

// apply writes the transition and appends its event. The caller has already
// run every guard.
func (s *Service) apply(ctx context.Context, id *auth.Identity, load *models.Load, t Transition, patch store.Patch, meta map[string]string) (*models.Load, error) {
	t.stamp(patch, s.now())

	updated, err := s.loads.Update(ctx, keys.Load(load.OrgID, load.ID), patch)
	if err != nil {
		return nil, apperr.FromStore("load", "update load", err)
	}

	meta["from"] = string(load.Status)
	meta["to"] = string(t.To)
	if _, err := s.recorder.Append(ctx, load.OrgID, load.ID, audit.Entry{
		Type:    t.Event,
		ActorID: id.SubjectID,
		Meta:    meta,
	}); err != nil {
		return nil, err
	}

	telemetry.GetMetrics().TransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(t.Action)),
		attribute.String("to", string(t.To)),
	))

	log.Info().
		Str("org_id", load.OrgID.String()).
		Str("load_id", load.ID.String()).
		Str("actor_id", id.SubjectID).
		Str("from", string(load.Status)).
		Str("to", string(t.To)).
		Msg("load transitioned")

	return updated, nil
}

func (s *Service) countRejected(ctx context.Context, action Action, err error) {
	if err == nil {
		return
	}
	telemetry.GetMetrics().TransitionErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("code", string(apperr.CodeOf(err))),
	))
}

func (s *Service) notifyCompleted(ctx context.Context, org *models.Organization, load *models.Load) {
	s.send(ctx, notify.Message{
		To:       org.ContactEmail,
		ReplyTo:  org.ReplyToEmail,
		Template: notify.TemplateLoadCompleted,
		Data: map[string]string{
			"organization": org.Name,
			"loadId":       load.ID.String(),
			"reference":    load.Reference,
		},
	})
}
