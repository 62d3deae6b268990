package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/store"
)

var _ store.Table = (*Table)(nil)

const itemColumns = `pk, sk, gsi1pk, gsi1sk, gsi2pk, gsi2sk, gsi3pk, gsi3sk, gsi4pk, gsi4sk, kind, doc, updated_at`

// Table implements store.Table on a single PostgreSQL table laid out like the
// DynamoDB one, with partial indexes standing in for the sparse GSIs.
type Table struct {
	pool *pgxpool.Pool
}

// NewTable creates a new PostgreSQL-backed table
func NewTable(pool *pgxpool.Pool) *Table {
	return &Table{pool: pool}
}

func indexColumns(idx keys.Index) (pk, sk string) {
	switch idx {
	case keys.IndexEmail:
		return "gsi1pk", "gsi1sk"
	case keys.IndexStatus:
		return "gsi2pk", "gsi2sk"
	case keys.IndexOrgDate:
		return "gsi3pk", "gsi3sk"
	case keys.IndexDriver:
		return "gsi4pk", "gsi4sk"
	default:
		return "pk", "sk"
	}
}

// projection returns the nullable index columns of an item in table order.
func projection(item *store.Item) []any {
	args := make([]any, 0, 8)
	for _, idx := range keys.SecondaryIndexes() {
		k, ok := item.Indexes[idx]
		if !ok {
			args = append(args, nil, nil)
			continue
		}
		args = append(args, k.PK(), k.SK())
	}
	return args
}

func itemArgs(item *store.Item) []any {
	args := []any{item.Key.PK(), item.Key.SK()}
	args = append(args, projection(item)...)
	return append(args, item.Kind, item.Doc, item.UpdatedAt)
}

// Get retrieves an item by key
func (t *Table) Get(ctx context.Context, key keys.Key) (*store.Item, error) {
	row := t.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE pk = $1 AND sk = $2`,
		key.PK(), key.SK())

	item, err := scanItem(row)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return item, nil
}

// Put upserts the item, replacing every column
func (t *Table) Put(ctx context.Context, item *store.Item) error {
	_, err := t.pool.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (pk, sk) DO UPDATE SET
			gsi1pk = EXCLUDED.gsi1pk, gsi1sk = EXCLUDED.gsi1sk,
			gsi2pk = EXCLUDED.gsi2pk, gsi2sk = EXCLUDED.gsi2sk,
			gsi3pk = EXCLUDED.gsi3pk, gsi3sk = EXCLUDED.gsi3sk,
			gsi4pk = EXCLUDED.gsi4pk, gsi4sk = EXCLUDED.gsi4sk,
			kind = EXCLUDED.kind,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`, itemArgs(item)...)
	if err != nil {
		return fmt.Errorf("failed to put item: %w", mapPostgresError(err))
	}

	log.Debug().Str("pk", item.Key.PK()).Str("sk", item.Key.SK()).Str("kind", item.Kind).Msg("item written")
	return nil
}

// Create inserts the item, failing with store.ErrAlreadyExists on a key clash
func (t *Table) Create(ctx context.Context, item *store.Item) error {
	_, err := t.pool.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, itemArgs(item)...)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("pk", item.Key.PK()).Str("sk", item.Key.SK()).Str("kind", item.Kind).Msg("item created")
	return nil
}

// Delete removes the item, failing with store.ErrNotFound if it is absent
func (t *Table) Delete(ctx context.Context, key keys.Key) error {
	tag, err := t.pool.Exec(ctx, `DELETE FROM items WHERE pk = $1 AND sk = $2`, key.PK(), key.SK())
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	log.Debug().Str("pk", key.PK()).Str("sk", key.SK()).Msg("item deleted")
	return nil
}

// Query returns the items of a partition ordered by the index sort key
func (t *Table) Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts store.QueryOptions) ([]*store.Item, error) {
	pkCol, skCol := indexColumns(partition.Index())

	var sb strings.Builder
	args := []any{partition.PK()}
	fmt.Fprintf(&sb, `SELECT %s FROM items WHERE %s = $1`, itemColumns, pkCol)

	switch rng.Op {
	case keys.OpEqual:
		args = append(args, rng.Lo)
		fmt.Fprintf(&sb, ` AND %s = $2`, skCol)
	case keys.OpBeginsWith:
		// avoids LIKE so '%' and '_' in keys are not wildcards
		args = append(args, rng.Lo)
		fmt.Fprintf(&sb, ` AND left(%s, length($2)) = $2`, skCol)
	case keys.OpBetween:
		args = append(args, rng.Lo, rng.Hi)
		fmt.Fprintf(&sb, ` AND %s BETWEEN $2 AND $3`, skCol)
	case keys.OpGreaterOrEqual:
		args = append(args, rng.Lo)
		fmt.Fprintf(&sb, ` AND %s >= $2`, skCol)
	case keys.OpLessOrEqual:
		args = append(args, rng.Hi)
		fmt.Fprintf(&sb, ` AND %s <= $2`, skCol)
	}

	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	fmt.Fprintf(&sb, ` ORDER BY %s %s, pk %s, sk %s`, skCol, direction, direction, direction)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := t.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var items []*store.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", mapPostgresError(err))
	}

	return items, nil
}

func scanItem(row pgx.Row) (*store.Item, error) {
	var (
		pk, sk    string
		gsi       [8]*string
		kind      string
		doc       []byte
		updatedAt time.Time
	)
	err := row.Scan(&pk, &sk,
		&gsi[0], &gsi[1], &gsi[2], &gsi[3], &gsi[4], &gsi[5], &gsi[6], &gsi[7],
		&kind, &doc, &updatedAt)
	if err != nil {
		return nil, err
	}

	item := &store.Item{
		Key:       keys.Restore(pk, sk),
		Indexes:   keys.Projections{},
		Kind:      kind,
		Doc:       doc,
		UpdatedAt: updatedAt.UTC(),
	}
	for i, idx := range keys.SecondaryIndexes() {
		ipk, isk := gsi[2*i], gsi[2*i+1]
		if ipk == nil || isk == nil {
			continue
		}
		item.Indexes[idx] = keys.Restore(*ipk, *isk)
	}
	return item, nil
}
