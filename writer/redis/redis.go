// Package redis is a writebehind.Writer that persists values into Redis.
//
// Single operations map to SET and DEL. Batches go out in one round trip:
// WriteAll pipelines its SETs and DeleteAll issues a single multi-key DEL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/writebehind"
	"github.com/unkn0wn-root/writebehind/codec"
)

var ErrNilClient = errors.New("redis writer: nil client")

type Config[V any] struct {
	Client goredis.UniversalClient
	Codec  codec.Codec[V]
	Prefix string        // prepended to every key
	TTL    time.Duration // expiry of written keys; 0 => none
}

type Writer[V any] struct {
	rdb    goredis.UniversalClient
	codec  codec.Codec[V]
	prefix string
	ttl    time.Duration
}

var _ writebehind.Writer[string] = (*Writer[string])(nil)

func New[V any](cfg Config[V]) (*Writer[V], error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Codec == nil {
		return nil, errors.New("redis writer: codec is required")
	}
	return &Writer[V]{rdb: cfg.Client, codec: cfg.Codec, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (w *Writer[V]) Write(ctx context.Context, key string, value V) error {
	b, err := w.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("redis writer: encode %q: %w", key, err)
	}
	return w.rdb.Set(ctx, w.prefix+key, b, w.ttl).Err()
}

func (w *Writer[V]) WriteAll(ctx context.Context, entries []writebehind.Entry[V]) error {
	if len(entries) == 0 {
		return nil
	}
	frames := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := w.codec.Encode(e.Value)
		if err != nil {
			return fmt.Errorf("redis writer: encode %q: %w", e.Key, err)
		}
		frames[i] = b
	}
	cmds, err := w.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, e := range entries {
			p.Set(ctx, w.prefix+e.Key, frames[i], w.ttl)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if err := c.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer[V]) Delete(ctx context.Context, key string) error {
	return w.rdb.Del(ctx, w.prefix+key).Err()
}

func (w *Writer[V]) DeleteAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = w.prefix + k
	}
	return w.rdb.Del(ctx, rk...).Err()
}

// Load reads key back through the codec; ok=false on a miss. Useful as the
// read-through half of a write-behind setup.
func (w *Writer[V]) Load(ctx context.Context, key string) (v V, ok bool, err error) {
	b, err := w.rdb.Get(ctx, w.prefix+key).Bytes()
	if err == goredis.Nil {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if v, err = w.codec.Decode(b); err != nil {
		return v, false, fmt.Errorf("redis writer: decode %q: %w", key, err)
	}
	return v, true, nil
}
