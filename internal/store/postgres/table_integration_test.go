//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) *Table {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		SlowQuery:  time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))
	// second run is a no-op
	require.NoError(t, Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	})

	return NewTable(pool)
}

func TestIntegration_TableLifecycle(t *testing.T) {
	ctx := context.Background()
	table := setupPostgresContainer(t, ctx)
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return base }

	loads := store.NewRepository(table, store.LoadSchema, now)
	users := store.NewRepository(table, store.UserSchema, now)

	orgID, driverID := uuid.New(), uuid.New()
	load := &models.Load{
		ID:              uuid.New(),
		OrgID:           orgID,
		Status:          models.LoadStatusDraft,
		ServiceAddress:  models.Address{Line1: "2 Wharf St", City: "Hobart"},
		CreatedAt:       base,
		StatusChangedAt: base,
	}

	t.Run("create conflict", func(t *testing.T) {
		require.NoError(t, loads.Create(ctx, load))
		require.ErrorIs(t, loads.Create(ctx, load), store.ErrAlreadyExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := loads.Get(ctx, keys.Load(orgID, uuid.New()))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update clears driver projection", func(t *testing.T) {
		_, err := loads.Update(ctx, keys.Load(orgID, load.ID), store.Patch{
			"status":           models.LoadStatusAssigned,
			"assignedDriverId": driverID.String(),
		})
		require.NoError(t, err)

		byDriver, err := loads.Query(ctx, keys.DriverPartition(orgID, driverID), keys.All(), store.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, byDriver, 1)

		_, err = loads.Update(ctx, keys.Load(orgID, load.ID), store.Patch{
			"status":           models.LoadStatusDraft,
			"assignedDriverId": nil,
		})
		require.NoError(t, err)

		byDriver, err = loads.Query(ctx, keys.DriverPartition(orgID, driverID), keys.All(), store.QueryOptions{})
		require.NoError(t, err)
		require.Empty(t, byDriver)
	})

	t.Run("begins with does not treat underscore as wildcard", func(t *testing.T) {
		require.NoError(t, users.Put(ctx, &models.User{
			ID: uuid.New(), OrgID: orgID, Email: "a_b@example.com", Name: "A B", Role: models.RoleDriver,
		}))

		got, err := users.Query(ctx, keys.OrgPartition(orgID), keys.BeginsWith("USER_"), store.QueryOptions{})
		require.NoError(t, err)
		require.Empty(t, got)

		got, err = users.Query(ctx, keys.OrgPartition(orgID), keys.BeginsWith(keys.KindUser), store.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("ordering and limit", func(t *testing.T) {
		for i := range 3 {
			l := *load
			l.ID = uuid.New()
			l.StatusChangedAt = base.Add(time.Duration(i+1) * time.Hour)
			require.NoError(t, loads.Put(ctx, &l))
		}

		latest, err := loads.Query(ctx, keys.OrgLoadsPartition(orgID), keys.All(), store.QueryOptions{Limit: 2, Descending: true})
		require.NoError(t, err)
		require.Len(t, latest, 2)
		require.True(t, latest[0].StatusChangedAt.After(latest[1].StatusChangedAt))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, loads.Delete(ctx, keys.Load(orgID, load.ID)))
		require.ErrorIs(t, loads.Delete(ctx, keys.Load(orgID, load.ID)), store.ErrNotFound)

		_, err := loads.Get(ctx, keys.Load(orgID, load.ID))
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
