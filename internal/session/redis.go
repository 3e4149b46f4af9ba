package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session keys in a shared Redis.
const keyPrefix = "session:"

// RedisBinder stores each binding as a JSON value with a TTL, so several
// server processes can share sessions.
type RedisBinder struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Binder = (*RedisBinder)(nil)

func NewRedisBinder(client redis.UniversalClient, ttl time.Duration) *RedisBinder {
	return &RedisBinder{client: client, ttl: ttl}
}

func (r *RedisBinder) Bind(ctx context.Context, sid, token, username string) error {
	data, err := json.Marshal(Binding{AccessToken: token, Username: username})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+sid, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}
	return nil
}

func (r *RedisBinder) Lookup(ctx context.Context, sid string) (*Binding, error) {
	data, err := r.client.Get(ctx, keyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &b, nil
}

func (r *RedisBinder) Unbind(ctx context.Context, sid string) error {
	if err := r.client.Del(ctx, keyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

func (r *RedisBinder) Close() error {
	return r.client.Close()
}
