// Package fleet manages an organization's trailers, docks and dock yards and
// reports their compliance.
package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
)

// Service implements fleet asset operations. Every org member may read,
// admins and coadmins may write.
type Service struct {
	trailers collection[models.Trailer]
	docks    collection[models.Dock]
	yards    collection[models.DockYard]
	orgs     *store.Repository[models.Organization]
	now      func() time.Time
}

// NewService creates a fleet service. now is also the clock compliance is
// evaluated against.
func NewService(table store.Table, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		trailers: collection[models.Trailer]{
			repo:   store.NewRepository(table, store.TrailerSchema, now),
			kind:   "trailer",
			prefix: keys.KindTrailer,
			key:    keys.Trailer,
		},
		docks: collection[models.Dock]{
			repo:   store.NewRepository(table, store.DockSchema, now),
			kind:   "dock",
			prefix: keys.KindDock,
			key:    keys.Dock,
		},
		yards: collection[models.DockYard]{
			repo:   store.NewRepository(table, store.DockYardSchema, now),
			kind:   "dock yard",
			prefix: keys.KindDockYard,
			key:    keys.DockYard,
		},
		orgs: store.NewRepository(table, store.OrganizationSchema, now),
		now:  now,
	}
}

// collection is the org scoped storage of one asset kind.
type collection[T any] struct {
	repo   *store.Repository[T]
	kind   string
	prefix string
	key    func(orgID, id uuid.UUID) keys.Key
}

func (c collection[T]) get(ctx context.Context, orgID, id uuid.UUID) (*T, error) {
	v, err := c.repo.Get(ctx, c.key(orgID, id))
	if err != nil {
		return nil, apperr.FromStore(c.kind, "get "+c.kind, err)
	}
	return v, nil
}

func (c collection[T]) list(ctx context.Context, orgID uuid.UUID) ([]*T, error) {
	// DOCK# is a prefix of DOCKYARD#, the repository drops rows of the other kind
	vs, err := c.repo.Query(ctx, keys.OrgPartition(orgID), keys.BeginsWith(c.prefix), store.QueryOptions{})
	if err != nil {
		return nil, apperr.StorageFailure("list "+c.kind, err)
	}
	return vs, nil
}

func (c collection[T]) create(ctx context.Context, v *T) error {
	if err := c.repo.Create(ctx, v); err != nil {
		return apperr.FromStore(c.kind, "create "+c.kind, err)
	}
	return nil
}

func (c collection[T]) put(ctx context.Context, v *T) error {
	if err := c.repo.Put(ctx, v); err != nil {
		return apperr.FromStore(c.kind, "put "+c.kind, err)
	}
	return nil
}

func (c collection[T]) delete(ctx context.Context, id *auth.Identity, orgID, assetID uuid.UUID) error {
	if err := c.repo.Delete(ctx, c.key(orgID, assetID)); err != nil {
		return apperr.FromStore(c.kind, "delete "+c.kind, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("asset_id", assetID.String()).
		Str("actor_id", id.SubjectID).
		Str("kind", c.kind).
		Msg("fleet asset deleted")

	return nil
}

// authorizeWrite checks the caller may manage assets of a non-suspended
// organization.
func (s *Service) authorizeWrite(ctx context.Context, id *auth.Identity, orgID uuid.UUID) error {
	if err := auth.Authorize(id, orgID, auth.Managers...); err != nil {
		return err
	}
	org, err := s.orgs.Get(ctx, keys.Organization(orgID))
	if err != nil {
		return apperr.FromStore("organization", "get organization", err)
	}
	if org.Suspended {
		return apperr.Forbidden("organization suspended", "org "+orgID.String()+" is suspended")
	}
	return nil
}

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, apperr.StorageFailure("generate asset id", err)
	}
	return id, nil
}
