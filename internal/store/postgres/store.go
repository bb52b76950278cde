// Package postgres provides Postgres-backed persistence for profile
// aggregates and captured sessions, stored as JSONB documents.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	AggregateTable  string
	SessionTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store reads and writes aggregate and session documents in Postgres.
type Store struct {
	pool           pgxPool
	aggregateTable string
	sessionTable   string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
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
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newWithPool(pool, cfg.AggregateTable, cfg.SessionTable)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, aggregateTable, sessionTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(pool, aggregateTable, sessionTable)
}

func newWithPool(pool pgxPool, aggregateTable, sessionTable string) (*Store, error) {
	if aggregateTable == "" {
		aggregateTable = "profile_aggregates"
	}
	if sessionTable == "" {
		sessionTable = "platform_sessions"
	}
	for _, table := range []string{aggregateTable, sessionTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, aggregateTable: aggregateTable, sessionTable: sessionTable}, nil
}

// GetAggregate loads and validates the stored aggregate document.
func (s *Store) GetAggregate(ctx context.Context, platform, profile string) (scraper.ProfileAggregate, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE platform = $1 AND profile = $2`, s.aggregateTable)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, platform, profile).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.ProfileAggregate{}, scraper.ErrAggregateNotFound
	}
	if err != nil {
		return scraper.ProfileAggregate{}, fmt.Errorf("select aggregate: %w", err)
	}
	var doc store.AggregateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return scraper.ProfileAggregate{}, fmt.Errorf("decode aggregate document: %w", err)
	}
	agg, err := doc.ToAggregate()
	if err != nil {
		return scraper.ProfileAggregate{}, fmt.Errorf("invalid aggregate document: %w", err)
	}
	return agg, nil
}

// PutAggregate upserts the aggregate document for (platform, profile).
func (s *Store) PutAggregate(ctx context.Context, platform string, aggregate scraper.ProfileAggregate) error {
	doc := store.FromAggregate(platform, aggregate, time.Now().UTC())
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid aggregate: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode aggregate document: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (platform, profile, doc, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (platform, profile)
DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, s.aggregateTable)
	if _, err := s.pool.Exec(ctx, query, platform, aggregate.Profile, raw, doc.UpdatedAt); err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

// GetCookies loads and validates the captured session cookies.
func (s *Store) GetCookies(ctx context.Context, platform string) ([]scraper.Cookie, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE platform = $1`, s.sessionTable)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, platform).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scraper.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	var doc store.SessionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	cookies, err := doc.ToCookies()
	if err != nil {
		return nil, fmt.Errorf("invalid session document: %w", err)
	}
	return cookies, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}
