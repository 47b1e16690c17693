package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func graph() model.Graph {
	return model.Graph{
		Nodes: []model.Node{
			{ID: "api-1", Type: model.TypeAPI, Position: model.Position{X: 100, Y: 100}, Data: model.NodeData{Label: "API"}},
			{ID: "db-1", Type: model.TypeDatabase, Position: model.Position{X: 400, Y: 100}, Data: model.NodeData{Label: "DB"}},
		},
		Edges: []model.Edge{{ID: "e0", Source: "api-1", Target: "db-1"}},
	}
}

func newStore(clock *fakeClock, opts ...session.Option) *session.Store {
	base := []session.Option{session.WithClock(clock.Now), session.WithLogger(quiet())}
	return session.NewStore(append(base, opts...)...)
}

func TestStore_SaveCreatesSession(t *testing.T) {
	s := newStore(newFakeClock())
	ctx := context.Background()

	res, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.SessionID, session.IDPrefix))
	assert.Len(t, res.SessionID, len(session.IDPrefix)+8)
	assert.Equal(t, 2, res.NodeCount)
	assert.Equal(t, 1, res.EdgeCount)
	assert.True(t, res.Created)
	assert.Positive(t, res.Bytes)

	got, err := s.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, graph(), got)
}

// idSequence hands out ids in order, repeating the last one.
func idSequence(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}
}

func TestStore_MintedIDSkipsLiveSession(t *testing.T) {
	s := newStore(newFakeClock(), session.WithIDSource(idSequence("canvas-aaaa", "canvas-aaaa", "canvas-bbbb")))
	ctx := context.Background()

	first, err := s.Save(ctx, "", graph())
	require.NoError(t, err)
	assert.Equal(t, "canvas-aaaa", first.SessionID)

	second, err := s.Save(ctx, "", model.Graph{})
	require.NoError(t, err)
	assert.Equal(t, "canvas-bbbb", second.SessionID)
	assert.True(t, second.Created)

	kept, err := s.Get(ctx, "canvas-aaaa")
	require.NoError(t, err)
	assert.Equal(t, graph(), kept)
}

func TestStore_MintedIDSkipsPersistedSession(t *testing.T) {
	p, err := session.NewFilePersister(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	clock := newFakeClock()
	older := newStore(clock, session.WithPersister(p))
	_, err = older.Save(ctx, "canvas-aaaa", graph())
	require.NoError(t, err)

	s := newStore(clock, session.WithPersister(p), session.WithIDSource(idSequence("canvas-aaaa", "canvas-cccc")))
	res, err := s.Save(ctx, "", model.Graph{})
	require.NoError(t, err)
	assert.Equal(t, "canvas-cccc", res.SessionID)

	kept, err := s.Get(ctx, "canvas-aaaa")
	require.NoError(t, err)
	assert.Len(t, kept.Nodes, 2)
}

func TestStore_MintedIDGivesUp(t *testing.T) {
	s := newStore(newFakeClock(), session.WithIDSource(idSequence("canvas-aaaa")))
	ctx := context.Background()

	_, err := s.Save(ctx, "", graph())
	require.NoError(t, err)
	_, err = s.Save(ctx, "", graph())
	assert.ErrorContains(t, err, "no free session id")
}

func TestStore_SaveUpdatesInPlace(t *testing.T) {
	clock := newFakeClock()
	s := newStore(clock)
	ctx := context.Background()

	res, err := s.Save(ctx, "canvas-demo", graph())
	require.NoError(t, err)
	created := clock.Now()

	clock.Advance(10 * time.Minute)
	g := graph()
	g.Nodes = g.Nodes[:1]
	g.Edges = nil
	res2, err := s.Save(ctx, res.SessionID, g)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, 1, res2.NodeCount)
	assert.Equal(t, 0, res2.EdgeCount)

	sess, err := s.Lookup(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, created, sess.CreatedAt)
	assert.Equal(t, clock.Now(), sess.Timestamp)
	assert.Equal(t, []model.Edge{}, sess.Edges)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SlidingExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newStore(clock)
	ctx := context.Background()

	res, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	_, err = s.Get(ctx, res.SessionID)
	require.NoError(t, err)

	// The read above touched the session, so it survives another 50m.
	clock.Advance(50 * time.Minute)
	_, err = s.Get(ctx, res.SessionID)
	require.NoError(t, err)

	clock.Advance(session.DefaultTTL + time.Second)
	_, err = s.Get(ctx, res.SessionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dferrors.ErrSessionNotFound))
	assert.Equal(t, 404, dferrors.HTTPStatus(err))
	assert.Equal(t, 0, s.Len())
}

func TestStore_ExactlyAtTTLIsAlive(t *testing.T) {
	clock := newFakeClock()
	s := newStore(clock, session.WithTTL(time.Minute))
	ctx := context.Background()

	res, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Get(ctx, res.SessionID)
	assert.NoError(t, err)
}

func TestStore_TooLarge(t *testing.T) {
	s := newStore(newFakeClock(), session.WithMaxBytes(512))

	g := graph()
	g.Nodes[0].Data.Label = strings.Repeat("x", 1024)
	_, err := s.Save(context.Background(), "canvas-big", g)
	require.Error(t, err)

	var tooLarge *dferrors.SessionTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, "canvas-big", tooLarge.SessionID)
	assert.Equal(t, 512, tooLarge.Limit)
	assert.Greater(t, tooLarge.Size, 512)
	assert.Equal(t, 413, dferrors.HTTPStatus(err))
	assert.Equal(t, 0, s.Len())
}

func TestStore_InvalidID(t *testing.T) {
	s := newStore(newFakeClock())
	ctx := context.Background()

	_, err := s.Save(ctx, "../etc/passwd", graph())
	var cfgErr *dferrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))

	_, err = s.Get(ctx, "../etc/passwd")
	assert.True(t, errors.Is(err, dferrors.ErrSessionNotFound))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newStore(newFakeClock())
	ctx := context.Background()

	res, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	got, err := s.Get(ctx, res.SessionID)
	require.NoError(t, err)
	got.Nodes[0].Data.Label = "mutated"

	again, err := s.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "API", again.Nodes[0].Data.Label)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newStore(newFakeClock())
	ctx := context.Background()

	res, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, res.SessionID))
	require.NoError(t, s.Delete(ctx, res.SessionID))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, err = s.Get(ctx, res.SessionID)
	assert.True(t, errors.Is(err, dferrors.ErrSessionNotFound))
}

func TestStore_CleanupExpired(t *testing.T) {
	clock := newFakeClock()
	s := newStore(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Save(ctx, "", graph())
		require.NoError(t, err)
	}
	clock.Advance(30 * time.Minute)
	fresh, err := s.Save(ctx, "", graph())
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 2, s.CleanupExpired(ctx))
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, fresh.SessionID)
	assert.NoError(t, err)
}

func TestStore_RunSweeper(t *testing.T) {
	clock := newFakeClock()
	s := newStore(clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Save(ctx, "", graph())
	require.NoError(t, err)
	clock.Advance(2 * session.DefaultTTL)

	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newStore(newFakeClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Save(ctx, "canvas-shared", graph())
			_, _ = s.Get(ctx, "canvas-shared")
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "canvas-shared")
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 2)
}
