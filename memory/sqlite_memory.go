package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/inquiry"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps turns in a local SQLite file.
//
// Table turns(session_id, seq, payload, created_at); seq is an autoincrement
// rowid so rows come back in append order.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "memory.sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite memory initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`)
	return err
}

// Append inserts a turn row.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn inquiry.Turn) error {
	payload, err := codec.EncodeTurn(turn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, payload, created_at) VALUES (?, ?, ?)`,
		sessionID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// Turns returns the full log, oldest first.
func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]inquiry.Turn, error) {
	return s.query(ctx, sessionID,
		`SELECT payload FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
}

// Recent returns the last n turns, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]inquiry.Turn, error) {
	if n <= 0 {
		return []inquiry.Turn{}, nil
	}
	return s.query(ctx, sessionID, `
		SELECT payload FROM (
			SELECT seq, payload FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, sessionID, n)
}

func (s *SQLiteStore) query(ctx context.Context, sessionID, query string, args ...interface{}) ([]inquiry.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := make([]inquiry.Turn, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn, err := codec.DecodeTurn([]byte(payload))
		if err != nil {
			s.logger.Warn("skipping malformed turn", "session_id", sessionID, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Clear deletes the session's rows.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
