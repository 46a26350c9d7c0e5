// Package redis hands undelivered write-behind operations to another node
// through a Redis list.
//
// A stopping node wires Queue.OnDiscard into its Coordinator options; every
// operation dropped because the drain ran out of time is pushed to the list
// in the writebehind hand-off frame. Another node (or the same one after a
// restart) calls Replay to feed them into its own Coordinator, oldest first.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/writebehind"
	"github.com/unkn0wn-root/writebehind/codec"
	"github.com/unkn0wn-root/writebehind/internal/util"
)

var ErrNilClient = errors.New("redis handoff: nil client")

// Enqueuer is the receiving side of a replay; *writebehind.Coordinator
// implements it.
type Enqueuer[V any] interface {
	Enqueue(ctx context.Context, op writebehind.Operation[V]) error
}

type Config[V any] struct {
	Client goredis.UniversalClient
	Codec  codec.Codec[V]
	Key    string // list key; required

	// IncludeFailed also hands off operations whose delivery failed after
	// all retries. By default only drain timeouts are handed off.
	IncludeFailed bool
	// PushTimeout bounds each push made from OnDiscard. 0 => 5s.
	PushTimeout time.Duration
	Logger      writebehind.Logger
}

type Queue[V any] struct {
	rdb           goredis.UniversalClient
	codec         codec.Codec[V]
	key           string
	includeFailed bool
	pushTimeout   time.Duration
	log           writebehind.Logger
}

func New[V any](cfg Config[V]) (*Queue[V], error) {
	switch {
	case cfg.Client == nil:
		return nil, ErrNilClient
	case cfg.Codec == nil:
		return nil, errors.New("redis handoff: codec is required")
	case cfg.Key == "":
		return nil, errors.New("redis handoff: list key is required")
	}
	q := &Queue[V]{
		rdb:           cfg.Client,
		codec:         cfg.Codec,
		key:           cfg.Key,
		includeFailed: cfg.IncludeFailed,
		pushTimeout:   cfg.PushTimeout,
		log:           cfg.Logger,
	}
	if q.pushTimeout <= 0 {
		q.pushTimeout = 5 * time.Second
	}
	if q.log == nil {
		q.log = writebehind.NopLogger{}
	}
	return q, nil
}

// Push appends op to the list.
func (q *Queue[V]) Push(ctx context.Context, op writebehind.Operation[V]) error {
	frame, err := writebehind.EncodeOperation(q.codec, op)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.key, frame).Err()
}

// OnDiscard matches writebehind.Options.OnDiscard.
func (q *Queue[V]) OnDiscard(op writebehind.Operation[V], cause error) {
	if !errors.Is(cause, writebehind.ErrDrainTimeout) && !q.includeFailed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.pushTimeout)
	defer cancel()
	if err := q.Push(ctx, op); err != nil {
		q.log.Error("write-behind hand-off push failed", writebehind.Fields{
			"list": q.key, "key": util.Digest(op.Key), "kind": op.Kind.String(), "err": err,
		})
	}
}

// Len is the number of operations waiting in the list.
func (q *Queue[V]) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Replay pops every handed-off operation and enqueues it into dst, oldest
// first. Frames that do not decode are logged and dropped. When dst refuses
// an operation it is pushed back to the head of the list and Replay stops.
// It returns the number of operations enqueued.
func (q *Queue[V]) Replay(ctx context.Context, dst Enqueuer[V]) (int, error) {
	n := 0
	for {
		frame, err := q.rdb.LPop(ctx, q.key).Bytes()
		if err == goredis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		op, err := writebehind.DecodeOperation(q.codec, frame)
		if err != nil {
			q.log.Warn("write-behind hand-off frame dropped", writebehind.Fields{"list": q.key, "err": err})
			continue
		}
		if err := dst.Enqueue(ctx, op); err != nil {
			if perr := q.rdb.LPush(context.Background(), q.key, frame).Err(); perr != nil {
				return n, fmt.Errorf("redis handoff: enqueue %q: %w (push back failed: %v)", op.Key, err, perr)
			}
			return n, fmt.Errorf("redis handoff: enqueue %q: %w", op.Key, err)
		}
		n++
	}
}
