package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig configures the connection pool shared by the table and the
// migration runner. Zero values take the defaults below.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key/value DSN.
	ConnString string

	// ApplicationName is reported in pg_stat_activity. Default: loadboard
	ApplicationName string

	MaxConns        int32         // default 20
	MinConns        int32         // default 2
	MaxConnLifetime time.Duration // default 1h
	MaxConnIdleTime time.Duration // default 30m
	ConnectTimeout  time.Duration // default 10s

	// SlowQuery logs statements that take longer than this. Zero disables it.
	SlowQuery time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.ApplicationName == "" {
		c.ApplicationName = "loadboard"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 20
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *PoolConfig) validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// NewPool opens a pool and pings the server before returning it.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	pc, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	if cfg.SlowQuery > 0 {
		pc.ConnConfig.Tracer = &slowQueryTracer{threshold: cfg.SlowQuery}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

// slowQueryTracer warns about statements exceeding threshold.
type slowQueryTracer struct {
	threshold time.Duration
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: time.Now()})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.at)
	if elapsed < t.threshold {
		return
	}
	log.Ctx(ctx).Warn().
		Dur("elapsed", elapsed).
		Str("sql", start.sql).
		Str("command", data.CommandTag.String()).
		Err(data.Err).
		Msg("slow query")
}
