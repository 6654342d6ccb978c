// Package postgres implements codeact.Checkpointer using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	codeact "github.com/nevindra/codeact"
)

// Store implements codeact.Checkpointer backed by PostgreSQL. Messages are
// stored as JSONB.
type Store struct {
	pool  *pgxpool.Pool
	name  string
	table string // quoted name
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name (default "codeact_checkpoints").
func WithTable(name string) Option {
	return func(s *Store) { s.name = name }
}

var _ codeact.Checkpointer = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, name: "codeact_checkpoints"}
	for _, o := range opts {
		o(s)
	}
	s.table = pgx.Identifier{s.name}.Sanitize()
	return s
}

// Init creates the checkpoints table and its index.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			messages JSONB NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (session, created_at DESC)`,
			pgx.Identifier{s.name + "_session_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Save inserts cp.
func (s *Store) Save(ctx context.Context, cp codeact.Checkpoint) error {
	msgs, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("postgres: encode messages: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, session, created_at, messages) VALUES ($1, $2, $3, $4)`, s.table),
		cp.ID, cp.Session, cp.CreatedAt, msgs)
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the newest checkpoint of session.
func (s *Store) LoadLatest(ctx context.Context, session string) (codeact.Checkpoint, error) {
	cp := codeact.Checkpoint{Session: session}
	var msgs []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, created_at, messages FROM %s
			WHERE session = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, s.table),
		session,
	).Scan(&cp.ID, &cp.CreatedAt, &msgs)
	if errors.Is(err, pgx.ErrNoRows) {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("postgres: load checkpoint: %w", err)
	}
	if err := json.Unmarshal(msgs, &cp.Messages); err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("postgres: decode messages: %w", err)
	}
	return cp, nil
}

// Clear deletes every checkpoint of session.
func (s *Store) Clear(ctx context.Context, session string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session = $1`, s.table), session); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Close is a no-op. The caller owns the pool.
func (s *Store) Close() error {
	return nil
}
