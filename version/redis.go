package version

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares versions across processes and survives restarts. With a TTL
// every bump refreshes the expiry; an expired version reads as 0.
type Redis struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration // 0 => no expiry
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis-backed store. ttl <= 0 keeps versions forever.
func NewRedis(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(k string) string { return "wbver:" + s.ns + ":" + k }

func (s *Redis) Current(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parse(key, res)
}

// CurrentMany issues a single MGET.
func (s *Redis) CurrentMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		var raw string
		switch vv := v.(type) {
		case nil:
			out[keys[i]] = 0
			continue
		case string:
			raw = vv
		case []byte:
			raw = string(vv)
		default:
			raw = fmt.Sprint(vv)
		}
		u, err := parse(keys[i], raw)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = u
	}
	return out, nil
}

// Bump runs INCR, pipelined with EXPIRE when a TTL is set.
func (s *Redis) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires keys on its own when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

// Close leaves the client open; its owner closes it.
func (s *Redis) Close(context.Context) error { return nil }

func parse(key, raw string) (uint64, error) {
	u, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version: parse %q: %w", key, err)
	}
	return u, nil
}
