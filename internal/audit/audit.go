// Package audit records the append-only event trail of load mutations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// Event types.
const (
	LoadCreated   = "load.created"
	LoadUpdated   = "load.updated"
	LoadAssigned  = "load.assigned"
	LoadStarted   = "load.started"
	LoadDelivered = "load.delivered"
	LoadSigned    = "load.signed"
	LoadCompleted = "load.completed"
	LoadCancelled = "load.cancelled"
)

// Entry is the caller supplied part of an event.
type Entry struct {
	Type    string
	ActorID string
	Meta    map[string]string
}

// Recorder appends and lists load events.
type Recorder struct {
	events *store.Repository[models.LoadEvent]
	now    func() time.Time
}

// NewRecorder creates a recorder over the shared table.
func NewRecorder(table store.Table, now func() time.Time) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{
		events: store.NewRepository(table, store.LoadEventSchema, now),
		now:    now,
	}
}

// Append writes a new immutable event. It either succeeds or returns a
// StorageFailure; an event is never silently dropped.
func (r *Recorder) Append(ctx context.Context, orgID, loadID uuid.UUID, e Entry) (*models.LoadEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.StorageFailure("generate event id", err)
	}

	ev := &models.LoadEvent{
		ID:        id,
		OrgID:     orgID,
		LoadID:    loadID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		Timestamp: r.now(),
		Meta:      e.Meta,
	}

	if err := r.events.Create(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("org_id", orgID.String()).
			Str("load_id", loadID.String()).
			Str("type", e.Type).
			Msg("failed to append load event")
		return nil, apperr.StorageFailure("append load event", err)
	}

	telemetry.GetMetrics().EventsAppendedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", e.Type)))

	return ev, nil
}

// List returns a load's events ordered by timestamp ascending.
func (r *Recorder) List(ctx context.Context, orgID, loadID uuid.UUID) ([]*models.LoadEvent, error) {
	events, err := r.events.Query(ctx, keys.LoadPartition(orgID, loadID), keys.BeginsWith(keys.KindEvent), store.QueryOptions{})
	if err != nil {
		return nil, apperr.StorageFailure("list load events", err)
	}
	return events, nil
}
