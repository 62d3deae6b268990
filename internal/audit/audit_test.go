package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/store/memory"
)

// tick returns a clock advancing one millisecond per call.
func tick(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	r := NewRecorder(table, tick(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	orgID, loadID := uuid.New(), uuid.New()

	types := []string{LoadCreated, LoadAssigned, LoadStarted, LoadDelivered}
	for _, eventType := range types {
		_, err := r.Append(ctx, orgID, loadID, Entry{Type: eventType, ActorID: "actor-1", Meta: map[string]string{"k": eventType}})
		require.NoError(t, err)
	}

	// events of another load stay separate
	_, err := r.Append(ctx, orgID, uuid.New(), Entry{Type: LoadCreated, ActorID: "actor-1"})
	require.NoError(t, err)

	events, err := r.List(ctx, orgID, loadID)
	require.NoError(t, err)
	require.Len(t, events, len(types))
	for i, ev := range events {
		require.Equal(t, types[i], ev.Type)
		require.Equal(t, orgID, ev.OrgID)
		require.Equal(t, types[i], ev.Meta["k"])
		if i > 0 {
			require.True(t, ev.Timestamp.After(events[i-1].Timestamp))
		}
	}
}

func TestAppendSameTimestampKeepsBoth(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRecorder(memory.NewTable(), func() time.Time { return fixed })
	orgID, loadID := uuid.New(), uuid.New()

	first, err := r.Append(ctx, orgID, loadID, Entry{Type: LoadCreated})
	require.NoError(t, err)
	second, err := r.Append(ctx, orgID, loadID, Entry{Type: LoadUpdated})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	events, err := r.List(ctx, orgID, loadID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// UUIDv7 ids order events written within the same millisecond
	require.Equal(t, LoadCreated, events[0].Type)
	require.Equal(t, LoadUpdated, events[1].Type)
}

func TestEventsAreImmutable(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	r := NewRecorder(table, nil)
	orgID, loadID := uuid.New(), uuid.New()

	ev, err := r.Append(ctx, orgID, loadID, Entry{Type: LoadCreated, ActorID: "a"})
	require.NoError(t, err)

	// a second create on the same key is refused by the table
	events := store.NewRepository(table, store.LoadEventSchema, nil)
	forged := *ev
	forged.ActorID = "someone-else"
	require.ErrorIs(t, events.Create(ctx, &forged), store.ErrAlreadyExists)

	stored, err := events.Get(ctx, keys.LoadEvent(orgID, loadID, ev.Timestamp, ev.ID))
	require.NoError(t, err)
	require.Equal(t, "a", stored.ActorID)
}

type failingTable struct{ store.Table }

func (failingTable) Create(context.Context, *store.Item) error { return errors.New("disk on fire") }

func TestAppendFailureIsStorageFailure(t *testing.T) {
	r := NewRecorder(failingTable{memory.NewTable()}, nil)

	_, err := r.Append(context.Background(), uuid.New(), uuid.New(), Entry{Type: LoadCreated})
	require.ErrorIs(t, err, apperr.ErrStorageFailure)
}
