package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/store"
)

var _ store.Table = (*Table)(nil)

// Table implements store.Table using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type Table struct {
	mu sync.RWMutex

	items map[keys.Key]*store.Item
}

// NewTable creates a new in-memory table.
func NewTable() *Table {
	return &Table{
		items: make(map[keys.Key]*store.Item),
	}
}

// Get retrieves an item by key.
func (t *Table) Get(ctx context.Context, key keys.Key) (*store.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, exists := t.items[key]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Clone to avoid external modifications
	return item.Clone(), nil
}

// Put writes an item, replacing any existing one.
func (t *Table) Put(ctx context.Context, item *store.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items[item.Key] = item.Clone()
	return nil
}

// Create writes an item if the key is unused.
func (t *Table) Create(ctx context.Context, item *store.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[item.Key]; exists {
		return store.ErrAlreadyExists
	}

	t.items[item.Key] = item.Clone()
	return nil
}

// Delete removes an item.
func (t *Table) Delete(ctx context.Context, key keys.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; !exists {
		return store.ErrNotFound
	}
	delete(t.items, key)
	return nil
}

// Query scans the table for items in the partition. Index partitions are
// matched against each item's projections, mirroring a sparse GSI.
func (t *Table) Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts store.QueryOptions) ([]*store.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type hit struct {
		sk   string
		item *store.Item
	}

	var hits []hit
	for _, item := range t.items {
		k := item.Key
		if partition.Index() != keys.Primary {
			projected, ok := item.Indexes[partition.Index()]
			if !ok {
				continue
			}
			k = projected
		}

		if k.PK() != partition.PK() || !rng.Match(k.SK()) {
			continue
		}
		hits = append(hits, hit{sk: k.SK(), item: item})
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := strings.Compare(a.sk, b.sk); c != 0 {
			return c
		}
		// GSI sort keys are not unique, fall back to the primary key
		return strings.Compare(a.item.Key.String(), b.item.Key.String())
	})
	if opts.Descending {
		slices.Reverse(hits)
	}
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	result := make([]*store.Item, 0, len(hits))
	for _, h := range hits {
		result = append(result, h.item.Clone())
	}
	return result, nil
}

// Len returns the number of items stored.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
