package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLitePersister persists sessions to SQLite.
// It is suitable for single-process production use.
type SQLitePersister struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLitePersister opens (or creates) the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS canvas_sessions (
			session_id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canvas_sessions_timestamp
		ON canvas_sessions(timestamp)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Save implements Persister.
func (p *SQLitePersister) Save(ctx context.Context, id string, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO canvas_sessions (session_id, timestamp, data)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			data = excluded.data
	`, id, rec.Timestamp.UnixNano(), rec.Data)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load implements Persister.
func (p *SQLitePersister) Load(ctx context.Context, id string) (Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return Record{}, ErrClosed
	}

	var (
		data []byte
		ts   int64
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT data, timestamp FROM canvas_sessions
		WHERE session_id = ?
	`, id).Scan(&data, &ts)

	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	return Record{Data: data, Timestamp: time.Unix(0, ts)}, nil
}

// Touch implements Persister.
func (p *SQLitePersister) Touch(ctx context.Context, id string, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, err := p.db.ExecContext(ctx, `
		UPDATE canvas_sessions SET timestamp = ? WHERE session_id = ?
	`, ts.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete implements Persister.
func (p *SQLitePersister) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, err := p.db.ExecContext(ctx, `
		DELETE FROM canvas_sessions WHERE session_id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteBefore implements Expirer.
func (p *SQLitePersister) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}

	res, err := p.db.ExecContext(ctx, `
		DELETE FROM canvas_sessions WHERE timestamp < ?
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(n), nil
}

// Close implements Persister.
func (p *SQLitePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	return p.db.Close()
}
