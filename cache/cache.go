// Package cache keeps short-lived copies of overlay payloads in Redis.
// A nil client disables caching; every call then behaves as a miss.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}

type Overlay struct {
	r   *redis.Client
	ttl time.Duration
}

func NewOverlay(r *redis.Client, ttl time.Duration) *Overlay {
	return &Overlay{r: r, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (o *Overlay) Enabled() bool { return o != nil && o.r != nil && o.ttl > 0 }

func key(scope string) string { return "overlay:" + scope }

// AdminScope names the public overlay of one admin key.
func AdminScope(keyName string) string { return "admin:" + keyName }

// LatestScope names the latest-hunt overlay of one admin key, or the global one for "".
func LatestScope(adminKeyID string) string {
	if adminKeyID == "" {
		return "latest:all"
	}
	return "latest:" + adminKeyID
}

func (o *Overlay) Get(ctx context.Context, scope string, dst any) (bool, error) {
	if !o.Enabled() {
		return false, nil
	}
	b, err := o.r.Get(ctx, key(scope)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (o *Overlay) Set(ctx context.Context, scope string, v any) error {
	if !o.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return o.r.Set(ctx, key(scope), b, o.ttl).Err()
}

// Invalidate drops the given scopes.
func (o *Overlay) Invalidate(ctx context.Context, scopes ...string) error {
	if !o.Enabled() || len(scopes) == 0 {
		return nil
	}
	keys := make([]string, len(scopes))
	for i, s := range scopes {
		keys[i] = key(s)
	}
	return o.r.Del(ctx, keys...).Err()
}
