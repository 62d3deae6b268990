package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
)

func loadItem(orgID uuid.UUID, status models.LoadStatus, changed time.Time, driver *uuid.UUID) *store.Item {
	l := &models.Load{ID: uuid.New(), OrgID: orgID, Status: status, StatusChangedAt: changed, AssignedDriverID: driver}
	return &store.Item{
		Key:     keys.Load(orgID, l.ID),
		Indexes: keys.LoadProjections(l),
		Kind:    store.KindLoad,
		Doc:     []byte(`{}`),
	}
}

func TestTableGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	table := NewTable()
	item := loadItem(uuid.New(), models.LoadStatusDraft, time.Now(), nil)
	require.NoError(t, table.Put(ctx, item))

	got, err := table.Get(ctx, item.Key)
	require.NoError(t, err)
	got.Doc[0] = 'x'

	again, err := table.Get(ctx, item.Key)
	require.NoError(t, err)
	require.Equal(t, []byte(`{}`), again.Doc)
}

func TestTableCreate(t *testing.T) {
	ctx := context.Background()
	table := NewTable()
	item := loadItem(uuid.New(), models.LoadStatusDraft, time.Now(), nil)

	require.NoError(t, table.Create(ctx, item))
	require.ErrorIs(t, table.Create(ctx, item), store.ErrAlreadyExists)
	require.Equal(t, 1, table.Len())
}

func TestTableQuery(t *testing.T) {
	ctx := context.Background()
	table := NewTable()
	orgA, orgB := uuid.New(), uuid.New()
	driver := uuid.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	items := []*store.Item{
		loadItem(orgA, models.LoadStatusDraft, day, nil),
		loadItem(orgA, models.LoadStatusAssigned, day.Add(24*time.Hour), &driver),
		loadItem(orgA, models.LoadStatusAssigned, day.Add(48*time.Hour), &driver),
		loadItem(orgB, models.LoadStatusAssigned, day.Add(36*time.Hour), nil),
	}
	for _, item := range items {
		require.NoError(t, table.Put(ctx, item))
	}

	tests := []struct {
		name      string
		partition keys.Partition
		rng       keys.Range
		opts      store.QueryOptions
		want      []*store.Item
	}{
		{
			name:      "primary partition prefix",
			partition: keys.OrgPartition(orgA),
			rng:       keys.BeginsWith(keys.KindLoad),
			want:      nil, // order checked by length only
		},
		{
			name:      "status across orgs",
			partition: keys.StatusPartition(models.LoadStatusAssigned),
			rng:       keys.All(),
			want:      []*store.Item{items[1], items[3], items[2]},
		},
		{
			name:      "driver index is sparse",
			partition: keys.DriverPartition(orgA, driver),
			rng:       keys.All(),
			want:      []*store.Item{items[1], items[2]},
		},
		{
			name:      "descending with limit",
			partition: keys.DriverPartition(orgA, driver),
			rng:       keys.All(),
			opts:      store.QueryOptions{Limit: 1, Descending: true},
			want:      []*store.Item{items[2]},
		},
		{
			name:      "dated range is inclusive of the end day",
			partition: keys.OrgLoadsPartition(orgA),
			rng:       keys.Dated(day.Add(24*time.Hour), day.Add(24*time.Hour)),
			want:      []*store.Item{items[1]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Query(ctx, tt.partition, tt.rng, tt.opts)
			require.NoError(t, err)
			if tt.want == nil {
				require.Len(t, got, 3)
				return
			}
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				require.Equal(t, tt.want[i].Key, got[i].Key)
			}
		})
	}
}

func TestTableDelete(t *testing.T) {
	ctx := context.Background()
	table := NewTable()
	orgID := uuid.New()
	item := loadItem(orgID, models.LoadStatusDraft, time.Now(), nil)
	require.NoError(t, table.Put(ctx, item))

	require.NoError(t, table.Delete(ctx, item.Key))
	require.ErrorIs(t, table.Delete(ctx, item.Key), store.ErrNotFound)

	_, err := table.Get(ctx, item.Key)
	require.ErrorIs(t, err, store.ErrNotFound)

	// a deleted item leaves its index partitions too
	found, err := table.Query(ctx, keys.OrgLoadsPartition(orgID), keys.All(), store.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, found)
}
