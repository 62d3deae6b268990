package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// Schema describes how an entity type is keyed and indexed. Index projections
// are always derived from the entity itself by the repository, so no call site
// can write a row without recomputing them.
type Schema[T any] struct {
	Kind    string
	Key     func(*T) keys.Key
	Indexes func(*T) keys.Projections
	Touch   func(*T, time.Time)
}

// Patch is a JSON merge patch (RFC 7386): named fields are replaced, a null
// value removes the field, anything not named is left untouched.
type Patch map[string]any

// Repository provides typed access to one entity kind in the shared table.
type Repository[T any] struct {
	table  Table
	schema Schema[T]
	now    func() time.Time
}

// NewRepository creates a repository for the given schema. now supplies the
// server timestamp written to UpdatedAt, time.Now is used when nil.
func NewRepository[T any](table Table, schema Schema[T], now func() time.Time) *Repository[T] {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Repository[T]{table: table, schema: schema, now: now}
}

// Get retrieves the entity stored under key.
// Returns ErrNotFound if the entity doesn't exist.
func (r *Repository[T]) Get(ctx context.Context, key keys.Key) (*T, error) {
	item, err := r.table.Get(ctx, key)
	r.observe(ctx, "get", err)
	if err != nil {
		return nil, err
	}
	return r.decode(item)
}

// Put overwrites the entity, refreshing UpdatedAt.
func (r *Repository[T]) Put(ctx context.Context, v *T) error {
	item, err := r.encode(v)
	if err != nil {
		return err
	}
	err = r.table.Put(ctx, item)
	r.observe(ctx, "put", err)
	return err
}

// Create writes a new entity, refreshing UpdatedAt.
// Returns ErrAlreadyExists if an entity with the same key exists.
func (r *Repository[T]) Create(ctx context.Context, v *T) error {
	item, err := r.encode(v)
	if err != nil {
		return err
	}
	err = r.table.Create(ctx, item)
	r.observe(ctx, "create", err)
	return err
}

// Update applies a merge patch to the stored entity and writes it back with
// recomputed index projections. The read and the write are not atomic: a
// concurrent Update on the same key is overwritten by whichever writes last.
// Returns ErrNotFound if the entity doesn't exist.
func (r *Repository[T]) Update(ctx context.Context, key keys.Key, patch Patch) (*T, error) {
	item, err := r.table.Get(ctx, key)
	r.observe(ctx, "get", err)
	if err != nil {
		return nil, err
	}

	patchDoc, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	merged, err := jsonpatch.MergePatch(item.Doc, patchDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	var v T
	if err := json.Unmarshal(merged, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patched %s: %w", r.schema.Kind, err)
	}

	if r.schema.Key(&v) != key {
		return nil, ErrKeyChanged
	}

	if err := r.Put(ctx, &v); err != nil {
		return nil, err
	}

	log.Debug().
		Str("kind", r.schema.Kind).
		Str("key", key.String()).
		Int("fields", len(patch)).
		Msg("patched item")

	return &v, nil
}

// Delete removes the entity stored under key.
// Returns ErrNotFound if the entity doesn't exist.
func (r *Repository[T]) Delete(ctx context.Context, key keys.Key) error {
	err := r.table.Delete(ctx, key)
	r.observe(ctx, "delete", err)
	return err
}

// Query returns the entities of a partition whose sort key satisfies rng.
func (r *Repository[T]) Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts QueryOptions) ([]*T, error) {
	items, err := r.table.Query(ctx, partition, rng, opts)
	r.observe(ctx, "query", err)
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(items))
	for _, item := range items {
		if item.Kind != r.schema.Kind {
			continue
		}
		v, err := r.decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository[T]) encode(v *T) (*Item, error) {
	now := r.now()
	r.schema.Touch(v, now)

	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", r.schema.Kind, err)
	}

	indexes := keys.Projections{}
	if r.schema.Indexes != nil {
		indexes = r.schema.Indexes(v)
	}

	return &Item{
		Key:       r.schema.Key(v),
		Indexes:   indexes,
		Kind:      r.schema.Kind,
		Doc:       doc,
		UpdatedAt: now,
	}, nil
}

func (r *Repository[T]) decode(item *Item) (*T, error) {
	var v T
	if err := json.Unmarshal(item.Doc, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", r.schema.Kind, err)
	}
	return &v, nil
}

// observe counts a table operation. Missing items and key clashes are
// expected outcomes, not failures.
func (r *Repository[T]) observe(ctx context.Context, op string, err error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("kind", r.schema.Kind), attribute.String("op", op))

	m.StorageOperationsTotal.Add(ctx, 1, attrs)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyExists) {
		m.StorageErrorsTotal.Add(ctx, 1, attrs)
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
