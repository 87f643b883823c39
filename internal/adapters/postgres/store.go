// Package postgres stores decoded frames in PostgreSQL using COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS frames (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL,
	destination TEXT NOT NULL,
	path        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS frames_fingerprint ON frames (fingerprint);
CREATE INDEX IF NOT EXISTS frames_received_at ON frames (received_at);
`

var frameColumns = []string{
	"id", "source", "destination", "path", "kind", "payload", "received_at", "fingerprint",
}

// Config holds the connection parameters.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32

	Logger log.Logger
}

// Store implements ports.FrameStore and ports.Pruner.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// Open connects, verifies the server is reachable and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: create schema: %w", err)
	}

	logger.Info("postgres store opened",
		log.String("host", poolConfig.ConnConfig.Host),
		log.String("database", poolConfig.ConnConfig.Database),
	)
	return &Store{pool: pool, logger: logger}, nil
}

// InsertBatch copies the frames inside one transaction.
func (s *Store) InsertBatch(ctx context.Context, frames []domain.Frame) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", log.Err(rollbackErr))
		}
	}()

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"frames"}, frameColumns, pgx.CopyFromRows(rows(frames)))
	if err != nil {
		return fmt.Errorf("postgres store: copy frames: %w", err)
	}
	if int(copyCount) != len(frames) {
		return fmt.Errorf("postgres store: copy count mismatch: expected %d, got %d", len(frames), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

func rows(frames []domain.Frame) [][]any {
	out := make([][]any, 0, len(frames))
	for i := range frames {
		f := &frames[i]
		out = append(out, []any{
			f.ID,
			f.Source,
			f.Destination,
			f.PathString(),
			string(f.Kind),
			f.Payload,
			f.ReceivedAt,
			string(f.Fingerprint),
		})
	}
	return out
}

// PruneBefore deletes frames received before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM frames WHERE received_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres store: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	s.logger.Info("postgres store closed")
	return nil
}
