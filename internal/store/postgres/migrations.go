package postgres

import (
	"cmp"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// serializes Migrate across replicas starting at the same time
const migrationLockID = 0x6c6f6164626f6172 // "loadboar"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type migration struct {
	version int
	name    string
	sql     string
}

// Migrate brings the schema up to date. Files under migrations/ are named
// <version>_<description>.sql and run once each, in version order, inside
// their own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	pending, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, int64(migrationLockID)); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, int64(migrationLockID)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to release migration lock")
		}
	}()

	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range pending {
		ok, err := m.apply(ctx, conn.Conn())
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if ok {
			applied++
		}
	}

	log.Ctx(ctx).Info().Int("available", len(pending)).Int("applied", applied).Msg("database migrations complete")
	return nil
}

// readMigrations lists the migration files in fsys, skipping names without
// a numeric version prefix. Duplicate versions are an error.
func readMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			log.Warn().Str("file", name).Msg("skipping migration without a version prefix")
			continue
		}

		data, err := fs.ReadFile(fsys, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(data)})
	}

	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", out[i].version, out[i-1].name, out[i].name)
		}
	}
	return out, nil
}

// apply runs m unless it is already recorded. It reports whether it ran.
func (m migration) apply(ctx context.Context, conn *pgx.Conn) (bool, error) {
	var done bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&done); err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	if done {
		return false, nil
	}

	err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
		return err
	})
	if err != nil {
		return false, err
	}

	log.Ctx(ctx).Info().Int("version", m.version).Str("name", m.name).Msg("migration applied")
	return true, nil
}
