package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "diagramflow:canvas:"

// RedisPersister stores each session as a hash with fields data and ts.
// Keys carry the session TTL, so Redis expires abandoned sessions itself.
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPersister returns a persister whose keys expire after ttl.
// A ttl of zero disables key expiry.
func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, prefix: DefaultRedisPrefix, ttl: ttl}
}

func (p *RedisPersister) key(id string) string {
	return fmt.Sprintf("%s%s", p.prefix, id)
}

// Save implements Persister.
func (p *RedisPersister) Save(ctx context.Context, id string, rec Record) error {
	key := p.key(id)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "data", rec.Data, "ts", rec.Timestamp.UnixNano())
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load implements Persister.
func (p *RedisPersister) Load(ctx context.Context, id string) (Record, error) {
	fields, err := p.client.HGetAll(ctx, p.key(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	data, ok := fields["data"]
	if !ok {
		return Record{}, ErrNotFound
	}
	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("load session: bad timestamp: %w", err)
	}
	return Record{Data: []byte(data), Timestamp: time.Unix(0, ts)}, nil
}

// Touch implements Persister.
func (p *RedisPersister) Touch(ctx context.Context, id string, ts time.Time) error {
	key := p.key(id)
	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n == 0 {
		return nil
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "ts", ts.UnixNano())
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete implements Persister.
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	if err := p.client.Del(ctx, p.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close implements Persister. The client is owned by the caller.
func (p *RedisPersister) Close() error {
	return nil
}
