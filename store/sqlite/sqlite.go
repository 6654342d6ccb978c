// Package sqlite implements codeact.Checkpointer using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	codeact "github.com/nevindra/codeact"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and row counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements codeact.Checkpointer backed by a local SQLite file.
// Messages are stored as a JSON array per checkpoint.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ codeact.Checkpointer = (*Store)(nil)

var nopLogger = slog.New(slog.DiscardHandler)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the checkpoints table and its index.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			messages TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	s.logger.Debug("sqlite: init ok", "duration", time.Since(start))
	return nil
}

// Save inserts cp.
func (s *Store) Save(ctx context.Context, cp codeact.Checkpoint) error {
	start := time.Now()
	msgs, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session, created_at, messages) VALUES (?, ?, ?, ?)`,
		cp.ID, cp.Session, cp.CreatedAt, string(msgs))
	if err != nil {
		return fmt.Errorf("sqlite: save checkpoint: %w", err)
	}
	s.logger.Debug("sqlite: save checkpoint", "session", cp.Session, "id", cp.ID,
		"messages", len(cp.Messages), "duration", time.Since(start))
	return nil
}

// LoadLatest returns the newest checkpoint of session.
func (s *Store) LoadLatest(ctx context.Context, session string) (codeact.Checkpoint, error) {
	start := time.Now()
	cp := codeact.Checkpoint{Session: session}
	var msgs string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, messages FROM checkpoints
		 WHERE session = ? ORDER BY created_at DESC, id DESC LIMIT 1`, session,
	).Scan(&cp.ID, &cp.CreatedAt, &msgs)
	if errors.Is(err, sql.ErrNoRows) {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("sqlite: load checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(msgs), &cp.Messages); err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("sqlite: decode messages: %w", err)
	}
	s.logger.Debug("sqlite: load checkpoint", "session", session, "id", cp.ID, "duration", time.Since(start))
	return cp, nil
}

// Clear deletes every checkpoint of session.
func (s *Store) Clear(ctx context.Context, session string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session = ?`, session)
	if err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("sqlite: clear", "session", session, "rows", n)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
