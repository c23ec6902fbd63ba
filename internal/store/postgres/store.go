// Package postgres provides the Postgres-backed durable Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for listing rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists canonical records in a single Postgres table keyed by
// unique_key. Per-key upsert atomicity is delegated to Postgres row
// locking through a single INSERT ... ON CONFLICT statement.
type Store struct {
	pool  querier
	table string
	clock pipeline.Clock
}

// New connects a Store using the provided config and verifies the
// connection with a ping. Connectivity failures wrap
// pipeline.ErrStoreUnavailable.
func New(ctx context.Context, cfg Config, clock pipeline.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "listings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", pipeline.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", pipeline.ErrStoreUnavailable, err)
	}
	return &Store{pool: pool, table: table, clock: clock}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool querier, table string, clock pipeline.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "listings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, clock: clock}, nil
}

// EnsureSchema creates the listings table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY,
	unique_key TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	rating TEXT NOT NULL DEFAULT '',
	availability TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", pipeline.ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert inserts or updates the row for rec.Key. The conditional ON
// CONFLICT update skips the write entirely when the stored content
// hash matches, and `xmax = 0` distinguishes a fresh insert from an
// update of an existing row.
func (s *Store) Upsert(ctx context.Context, rec pipeline.Record) (pipeline.UpsertOutcome, error) {
	if rec.Key == "" {
		return "", fmt.Errorf("record key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	unique_key, title, price, currency, category, rating,
	availability, description, source_url, content_hash,
	first_seen, last_updated
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (unique_key) DO UPDATE SET
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	category = EXCLUDED.category,
	rating = EXCLUDED.rating,
	availability = EXCLUDED.availability,
	description = EXCLUDED.description,
	source_url = EXCLUDED.source_url,
	content_hash = EXCLUDED.content_hash,
	last_updated = EXCLUDED.last_updated
WHERE %[1]s.content_hash IS DISTINCT FROM EXCLUDED.content_hash
RETURNING (xmax = 0)`, s.table)

	now := s.clock.Now()
	var created bool
	err := s.pool.QueryRow(ctx, query,
		rec.Key,
		rec.Title,
		rec.Price.String(),
		rec.Currency,
		rec.Category,
		rec.Rating,
		rec.Availability,
		rec.Description,
		rec.SourceURL,
		rec.ContentHash,
		now,
		now,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.OutcomeUnchanged, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: upsert listing: %v", pipeline.ErrStoreUnavailable, err)
	}
	if created {
		return pipeline.OutcomeCreated, nil
	}
	return pipeline.OutcomeUpdated, nil
}

const recordColumns = `unique_key, title, price::text, currency, category, rating,
	availability, description, source_url, content_hash, first_seen, last_updated`

// Get returns the record for key, if present.
func (s *Store) Get(ctx context.Context, key string) (pipeline.Record, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE unique_key = $1`, recordColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Record{}, false, nil
	}
	if err != nil {
		return pipeline.Record{}, false, fmt.Errorf("%w: get listing: %v", pipeline.ErrStoreUnavailable, err)
	}
	return rec, true, nil
}

// List streams every stored record through fn in first-seen order.
// Each call opens a fresh cursor, so List is restartable.
func (s *Store) List(ctx context.Context, fn func(pipeline.Record) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY first_seen, unique_key`, recordColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: list listings: %v", pipeline.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("%w: scan listing: %v", pipeline.ErrStoreUnavailable, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate listings: %v", pipeline.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func scanRecord(row pgx.Row) (pipeline.Record, error) {
	var (
		rec      pipeline.Record
		priceRaw string
	)
	err := row.Scan(
		&rec.Key,
		&rec.Title,
		&priceRaw,
		&rec.Currency,
		&rec.Category,
		&rec.Rating,
		&rec.Availability,
		&rec.Description,
		&rec.SourceURL,
		&rec.ContentHash,
		&rec.FirstSeen,
		&rec.LastUpdated,
	)
	if err != nil {
		return pipeline.Record{}, err
	}
	price, err := decimal.NewFromString(priceRaw)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("parse stored price %q: %w", priceRaw, err)
	}
	rec.Price = price
	return rec, nil
}
