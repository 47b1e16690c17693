package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Store holds canvas sessions in memory. With a Persister attached,
// saves write through and misses read through.
//
// Concurrent saves to one id are last-writer-wins.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl      time.Duration
	maxBytes int
	persist  Persister
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the idle time after which a session expires.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxBytes sets the cap on a serialized session.
func WithMaxBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithPersister attaches durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persist = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIDSource overrides NewID for sessions saved without an id.
func WithIDSource(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store with DefaultTTL and DefaultMaxBytes.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      DefaultTTL,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		newID:    NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// TTL returns the configured session TTL.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Save stores g under id. An empty id creates a new session. Saving over
// a live session keeps its creation time and refreshes everything else.
func (s *Store) Save(ctx context.Context, id string, g model.Graph) (SaveResult, error) {
	mint := id == ""
	if !mint {
		if err := ValidateID(id); err != nil {
			return SaveResult{}, err
		}
	}

	g = g.Clone()
	if g.Nodes == nil {
		g.Nodes = []model.Node{}
	}
	if g.Edges == nil {
		g.Edges = []model.Edge{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mint {
		var err error
		if id, err = s.freshID(ctx); err != nil {
			return SaveResult{}, err
		}
	}

	now := s.now()
	sess := &Session{
		ID:        id,
		Nodes:     g.Nodes,
		Edges:     g.Edges,
		CreatedAt: now,
		Timestamp: now,
		NodeCount: len(g.Nodes),
		EdgeCount: len(g.Edges),
	}
	prev, existed := s.sessions[id]
	if existed && !prev.Expired(now, s.ttl) {
		sess.CreatedAt = prev.CreatedAt
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return SaveResult{}, fmt.Errorf("encode session: %w", err)
	}
	if len(data) > s.maxBytes {
		return SaveResult{}, &dferrors.SessionTooLargeError{SessionID: id, Size: len(data), Limit: s.maxBytes}
	}

	if s.persist != nil {
		if err := s.persist.Save(ctx, id, Record{Data: data, Timestamp: now}); err != nil {
			return SaveResult{}, err
		}
	}
	s.sessions[id] = sess

	s.logger.Debug("session saved",
		slog.String("session_id", id),
		slog.Int("node_count", sess.NodeCount),
		slog.Int("edge_count", sess.EdgeCount),
		slog.Int("bytes", len(data)),
	)

	return SaveResult{
		SessionID: id,
		NodeCount: sess.NodeCount,
		EdgeCount: sess.EdgeCount,
		Bytes:     len(data),
		Created:   !existed,
	}, nil
}

// maxIDAttempts bounds how many minted ids may collide before Save gives up.
const maxIDAttempts = 16

// freshID mints an id no stored or persisted session uses. Callers hold mu.
func (s *Store) freshID(ctx context.Context) (string, error) {
	for range maxIDAttempts {
		id := s.newID()
		if _, taken := s.sessions[id]; taken {
			s.logger.Warn("minted session id already in use", slog.String("session_id", id))
			continue
		}
		if s.persist != nil {
			if _, err := s.persist.Load(ctx, id); err == nil {
				s.logger.Warn("minted session id already persisted", slog.String("session_id", id))
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return "", fmt.Errorf("check session id %s: %w", id, err)
			}
		}
		return id, nil
	}
	return "", fmt.Errorf("no free session id after %d attempts", maxIDAttempts)
}

// Get returns the graph saved under id and refreshes its timestamp.
// A missing or expired session yields a SessionNotFoundError.
func (s *Store) Get(ctx context.Context, id string) (model.Graph, error) {
	sess, err := s.Lookup(ctx, id)
	if err != nil {
		return model.Graph{}, err
	}
	return sess.Graph(), nil
}

// Lookup is Get returning the whole session record.
func (s *Store) Lookup(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, &dferrors.SessionNotFoundError{SessionID: id}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok && s.persist != nil {
		loaded, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		sess, ok = loaded, loaded != nil
	}
	if !ok {
		return nil, &dferrors.SessionNotFoundError{SessionID: id}
	}

	now := s.now()
	if sess.Expired(now, s.ttl) {
		s.remove(ctx, id)
		s.logger.Debug("session expired", slog.String("session_id", id))
		return nil, &dferrors.SessionNotFoundError{SessionID: id}
	}

	sess.Timestamp = now
	s.sessions[id] = sess
	if s.persist != nil {
		if err := s.persist.Touch(ctx, id, now); err != nil {
			s.logger.Warn("session touch failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	out := *sess
	g := sess.Graph()
	out.Nodes, out.Edges = g.Nodes, g.Edges
	return &out, nil
}

// load reads id through the persister. It returns nil, nil when absent.
func (s *Store) load(ctx context.Context, id string) (*Session, error) {
	rec, err := s.persist.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(rec.Data, &sess); err != nil {
		s.logger.Warn("discarding unreadable session",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		_ = s.persist.Delete(ctx, id)
		return nil, nil
	}
	if rec.Timestamp.After(sess.Timestamp) {
		sess.Timestamp = rec.Timestamp
	}
	sess.ID = id
	return &sess, nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if ValidateID(id) != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if s.persist != nil {
		return s.persist.Delete(ctx, id)
	}
	return nil
}

// remove deletes id from memory and the persister. Caller holds s.mu.
func (s *Store) remove(ctx context.Context, id string) {
	delete(s.sessions, id)
	if s.persist == nil {
		return
	}
	if err := s.persist.Delete(ctx, id); err != nil {
		s.logger.Warn("session delete failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// CleanupExpired deletes every expired session and returns how many
// were removed.
func (s *Store) CleanupExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.ttl) {
			s.remove(ctx, id)
			n++
		}
	}

	if exp, ok := s.persist.(Expirer); ok {
		removed, err := exp.DeleteBefore(ctx, now.Add(-s.ttl))
		if err != nil {
			s.logger.Warn("persisted session sweep failed", slog.String("error", err.Error()))
		}
		n += removed
	}
	return n
}

// RunSweeper calls CleanupExpired every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(ctx); n > 0 {
				s.logger.Info("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

// Len returns the number of sessions held in memory, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes the persister, if any.
func (s *Store) Close() error {
	if s.persist == nil {
		return nil
	}
	return s.persist.Close()
}
