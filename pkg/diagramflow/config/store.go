package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
)

// OpenStore opens the canvas store for the configured backend. The
// returned release func closes any client the store does not own; call it
// after Store.Close.
func (s SessionSettings) OpenStore(ctx context.Context, logger *slog.Logger) (*session.Store, func() error, error) {
	release := func() error { return nil }
	opts := []session.Option{
		session.WithTTL(s.TTL),
		session.WithMaxBytes(s.MaxBytes),
		session.WithLogger(logger),
	}

	switch s.Backend {
	case BackendMemory, "":
	case BackendFile:
		p, err := session.NewFilePersister(s.Dir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, session.WithPersister(p))
	case BackendSQLite:
		p, err := session.NewSQLitePersister(s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, session.WithPersister(p))
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
		}
		release = client.Close
		opts = append(opts, session.WithPersister(session.NewRedisPersister(client, s.TTL)))
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", s.Backend)
	}
	return session.NewStore(opts...), release, nil
}
