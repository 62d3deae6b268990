package loads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
)

// MaxListLimit caps the number of loads returned by one list call.
const MaxListLimit = 500

// ListFilter restricts a load listing. Dates compare against the time of the
// load's last status change and are inclusive; zero dates are open. An empty
// Status matches every status.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status models.LoadStatus
	Limit  int
}

func (f ListFilter) validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return apperr.ValidationFailed("invalid range", map[string]string{"to": "must not be before from"})
	}
	if f.Status != "" {
		if st, ok := models.ParseLoadStatus(string(f.Status)); !ok || st != f.Status {
			return apperr.ValidationFailed("invalid input", map[string]string{"status": "is not a load status"})
		}
	}
	if f.Limit < 0 || f.Limit > MaxListLimit {
		return apperr.ValidationFailed("invalid input", map[string]string{"limit": fmt.Sprintf("must be between 0 and %d", MaxListLimit)})
	}
	return nil
}

func (f ListFilter) limit() int {
	if f.Limit == 0 {
		return MaxListLimit
	}
	return f.Limit
}

// ListByOrg returns an organization's loads, newest status change first.
// Drivers only see the loads assigned to them, read from their own driver
// partition.
func (s *Service) ListByOrg(ctx context.Context, id *auth.Identity, orgID uuid.UUID, f ListFilter) ([]*models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	partition := keys.OrgLoadsPartition(orgID)
	if auth.RequireRole(id, auth.Managers...) != nil {
		driverID, err := uuid.Parse(id.SubjectID)
		if err != nil {
			return []*models.Load{}, nil
		}
		partition = keys.DriverPartition(orgID, driverID)
	}

	loads, err := s.loads.Query(ctx, partition, keys.Dated(f.From, f.To), store.QueryOptions{Descending: true})
	if err != nil {
		return nil, apperr.StorageFailure("list org loads", err)
	}

	return filter(loads, f, func(l *models.Load) bool {
		return auth.CanAccessResource(id, l, auth.ActionRead)
	}), nil
}

// ListByDriver returns the loads assigned to a driver, newest first. A driver
// may only list their own loads.
func (s *Service) ListByDriver(ctx context.Context, id *auth.Identity, orgID, driverID uuid.UUID, f ListFilter) ([]*models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	if auth.RequireRole(id, auth.Managers...) != nil && id.SubjectID != driverID.String() {
		return nil, apperr.Forbidden("not permitted to list another driver's loads", "driver "+id.SubjectID+" listed "+driverID.String())
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	loads, err := s.loads.Query(ctx, keys.DriverPartition(orgID, driverID), keys.Dated(f.From, f.To), store.QueryOptions{Descending: true})
	if err != nil {
		return nil, apperr.StorageFailure("list driver loads", err)
	}

	return filter(loads, f, nil), nil
}

// ListByStatus returns loads in a status across every organization. Only
// platform superusers may use it.
func (s *Service) ListByStatus(ctx context.Context, id *auth.Identity, status models.LoadStatus, f ListFilter) ([]*models.Load, error) {
	if err := auth.RequireSuperuser(id); err != nil {
		return nil, err
	}
	f.Status = status
	if status == "" {
		return nil, apperr.ValidationFailed("invalid input", map[string]string{"status": "is required"})
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	loads, err := s.loads.Query(ctx, keys.StatusPartition(status), keys.Dated(f.From, f.To),
		store.QueryOptions{Descending: true, Limit: f.limit()})
	if err != nil {
		return nil, apperr.StorageFailure("list loads by status", err)
	}
	return loads, nil
}

// filter applies the status filter, the visibility check and the limit.
func filter(loads []*models.Load, f ListFilter, visible func(*models.Load) bool) []*models.Load {
	out := make([]*models.Load, 0, len(loads))
	for _, l := range loads {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if visible != nil && !visible(l) {
			continue
		}
		out = append(out, l)
		if len(out) == f.limit() {
			break
		}
	}
	return out
}
