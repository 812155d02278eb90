// Package accesslog records durable per-forward access-log rows when
// DATABASE_URL is configured, using a pool-config-then-ping connection
// pattern so a missing database degrades to a no-op rather than a crash.
package accesslog

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one forwarded request's outcome.
type Record struct {
	RequestID string
	NodeID    string
	Policy    string
	WaitMS    int64
	Outcome   string
	CreatedAt time.Time
}

// Store persists access-log records to Postgres. A nil *Store (returned when
// DATABASE_URL is unset) makes every method a no-op, so callers don't need a
// feature flag at every call site.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	if connString == "" {
		return nil, nil
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS access_log (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			policy TEXT NOT NULL,
			wait_ms BIGINT NOT NULL,
			outcome TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *Store) Insert(ctx context.Context, rec Record) {
	if s == nil {
		return
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_log (request_id, node_id, policy, wait_ms, outcome) VALUES ($1, $2, $3, $4, $5)`,
		rec.RequestID, rec.NodeID, rec.Policy, rec.WaitMS, rec.Outcome,
	)
	if err != nil {
		log.Printf("accesslog: insert failed: %v", err)
	}
}

func (s *Store) Close() {
	if s == nil {
		return
	}
	s.pool.Close()
}
