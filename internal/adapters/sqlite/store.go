// Package sqlite stores decoded frames in a SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

const defaultPoolSize = 4

const schema = `
CREATE TABLE IF NOT EXISTS frames (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	destination TEXT NOT NULL,
	path        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	received_at INTEGER NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS frames_fingerprint ON frames (fingerprint);
CREATE INDEX IF NOT EXISTS frames_received_at ON frames (received_at);
`

const insertFrame = `INSERT INTO frames
	(id, source, destination, path, kind, payload, received_at, fingerprint)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Defaults to 4.
	PoolSize int

	Logger log.Logger
}

// Store implements ports.FrameStore and ports.Pruner.
// Safe for concurrent use; each call takes its own connection.
type Store struct {
	pool   *sqlitex.Pool
	path   string
	logger log.Logger
}

// Open creates the pool, applies connection pragmas and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{pool: pool, path: cfg.Path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("sqlite store opened",
		log.String("path", cfg.Path),
		log.Int("pool_size", poolSize),
	)
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return nil
}

// InsertBatch writes all frames in a single IMMEDIATE transaction.
func (s *Store) InsertBatch(ctx context.Context, frames []domain.Frame) (err error) {
	if len(frames) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: insert batch: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range frames {
		f := &frames[i]
		err = sqlitex.Execute(conn, insertFrame, &sqlitex.ExecOptions{
			Args: []any{
				f.ID,
				f.Source,
				f.Destination,
				f.PathString(),
				string(f.Kind),
				f.Payload,
				f.ReceivedAt.UnixMicro(),
				string(f.Fingerprint),
			},
		})
		if err != nil {
			return fmt.Errorf("sqlite store: insert frame %s: %w", f.ID, err)
		}
	}
	return nil
}

// PruneBefore deletes frames received before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: prune: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM frames WHERE received_at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff.UnixMicro()},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite store: prune: %w", err)
	}
	return int64(conn.Changes()), nil
}

// Count returns the number of stored frames.
func (s *Store) Count(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	defer s.pool.Put(conn)

	var n int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM frames", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	return n, nil
}

// Recent returns up to limit frames, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Frame, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: recent: %w", err)
	}
	defer s.pool.Put(conn)

	var frames []domain.Frame
	err = sqlitex.Execute(conn, `SELECT id, source, destination, path, kind, payload, received_at, fingerprint
		FROM frames ORDER BY received_at DESC, rowid DESC LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			f := domain.Frame{
				ID:          stmt.ColumnText(0),
				Source:      stmt.ColumnText(1),
				Destination: stmt.ColumnText(2),
				Kind:        domain.PayloadKind(stmt.ColumnText(4)),
				Payload:     stmt.ColumnText(5),
				ReceivedAt:  time.UnixMicro(stmt.ColumnInt64(6)).UTC(),
				Fingerprint: domain.Fingerprint(stmt.ColumnText(7)),
			}
			if p := stmt.ColumnText(3); p != "" {
				f.Path = strings.Split(p, ",")
			}
			frames = append(frames, f)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: recent: %w", err)
	}
	return frames, nil
}

// Close closes the pool. Blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", log.String("path", s.path))
	return nil
}
