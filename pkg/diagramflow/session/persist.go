package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Persister stores serialized sessions outside the process.
// Implementations must be safe for concurrent use.
type Persister interface {
	// Save stores rec under id, overwriting any previous record.
	Save(ctx context.Context, id string, rec Record) error

	// Load retrieves a record.
	// Returns ErrNotFound if the record doesn't exist.
	Load(ctx context.Context, id string) (Record, error)

	// Touch moves the record's access time to ts.
	// Returns nil if the record doesn't exist.
	Touch(ctx context.Context, id string, ts time.Time) error

	// Delete removes a record.
	// Returns nil if the record doesn't exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Expirer is implemented by persisters that cannot expire records on
// their own. Store.CleanupExpired calls it with now - TTL.
type Expirer interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Record is a serialized session plus its last access time.
type Record struct {
	Data      []byte
	Timestamp time.Time
}

// Sentinel errors for persisters.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("session record not found")

	// ErrClosed indicates the persister has been closed.
	ErrClosed = errors.New("session persister closed")
)

// FilePersister writes one JSON file per session under a directory.
// The file's modification time is the session's access time.
type FilePersister struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

// NewFilePersister creates dir if needed and returns a persister over it.
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(id string) string {
	return filepath.Join(p.dir, id+".json")
}

// Save implements Persister. The file is written to a temp name and
// renamed so readers never see a partial session.
func (p *FilePersister) Save(_ context.Context, id string, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(p.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(rec.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("save session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path(id)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.Chtimes(p.path(id), rec.Timestamp, rec.Timestamp); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load implements Persister.
func (p *FilePersister) Load(_ context.Context, id string) (Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return Record{}, ErrClosed
	}

	info, err := os.Stat(p.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	data, err := os.ReadFile(p.path(id))
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	return Record{Data: data, Timestamp: info.ModTime()}, nil
}

// Touch implements Persister.
func (p *FilePersister) Touch(_ context.Context, id string, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	err := os.Chtimes(p.path(id), ts, ts)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete implements Persister.
func (p *FilePersister) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	err := os.Remove(p.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteBefore implements Expirer.
func (p *FilePersister) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(p.dir, e.Name())); err == nil {
				n++
			}
		}
	}
	return n, nil
}

// Close implements Persister.
func (p *FilePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
