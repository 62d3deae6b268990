package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/loadboard/internal/keys"
)

// Sentinel errors for common error conditions
var (
	ErrNotFound      = errors.New("item not found")
	ErrAlreadyExists = errors.New("item already exists")
	ErrKeyChanged    = errors.New("patch changes the item key")
	ErrThrottled     = errors.New("request throttled")
)

// Item is a single row of the shared table: its primary key, the secondary
// index keys it projects and the JSON document of the entity.
type Item struct {
	Key       keys.Key
	Indexes   keys.Projections
	Kind      string
	Doc       []byte
	UpdatedAt time.Time
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	c.Doc = append([]byte(nil), i.Doc...)
	c.Indexes = make(keys.Projections, len(i.Indexes))
	for idx, k := range i.Indexes {
		c.Indexes[idx] = k
	}
	return &c
}

// QueryOptions tunes a Query.
type QueryOptions struct {
	// Limit caps the number of items returned, 0 means no limit.
	Limit int

	// Descending returns items in reverse sort key order.
	Descending bool
}

// Table is the single shared keyspace all entities live in.
//
// Writes replace the whole item, primary and index keys together, so a row can
// never be observed with stale index projections. There is no version token:
// concurrent writers to the same key race and the last write wins.
type Table interface {
	// Get returns the item stored under key.
	// Returns ErrNotFound if there is no such item.
	Get(ctx context.Context, key keys.Key) (*Item, error)

	// Put writes the item, overwriting any existing item with the same key.
	Put(ctx context.Context, item *Item) error

	// Create writes the item only if no item exists with the same key.
	// Returns ErrAlreadyExists otherwise.
	Create(ctx context.Context, item *Item) error

	// Delete removes the item stored under key.
	// Returns ErrNotFound if there is no such item.
	Delete(ctx context.Context, key keys.Key) error

	// Query returns the items of a partition, in sort key order, whose sort key
	// (for the partition's index) satisfies the range.
	Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts QueryOptions) ([]*Item, error)
}
