package writebehind

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// slot holds the current representative operation for a key together with
// the producers waiting on its delivery (SynchronousWrite only).
type slot[V any] struct {
	op      Operation[V]
	waiters []chan error
	elem    *list.Element
}

// resolve hands err to every waiter. Each waiter channel is buffered (1) and
// receives exactly once.
func (s *slot[V]) resolve(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

// bucket is one shard of the queue: FIFO of distinct pending keys plus a
// key index for coalescing. drainBatch drops keys from the index, so an
// operation arriving while its key is being delivered queues behind as a
// fresh slot instead of replacing the operation in flight.
type bucket[V any] struct {
	mu      sync.Mutex
	pending *list.List // *slot[V], oldest first
	index   map[string]*slot[V]

	capacity int  // 0 => unbounded
	block    bool // wait for room instead of rejecting
	batchAt  int  // pending count that nudges the worker early; 0 => never

	closed bool
	space  chan struct{} // closed (and replaced) whenever room frees up
	ready  chan struct{} // cap 1; nudges the worker
}

func newBucket[V any](capacity int, block bool, batchAt int) *bucket[V] {
	return &bucket[V]{
		pending:  list.New(),
		index:    make(map[string]*slot[V]),
		capacity: capacity,
		block:    block,
		batchAt:  batchAt,
		space:    make(chan struct{}),
		ready:    make(chan struct{}, 1),
	}
}

// append queues op, coalescing with the pending operation for the same key.
// It reports whether op replaced an earlier one. A full bucket rejects with
// ErrRejected, or waits for room when the bucket blocks. A closed bucket
// returns ErrQueueUnavailable. waiter may be nil.
func (b *bucket[V]) append(ctx context.Context, op Operation[V], waiter chan error) (bool, error) {
	b.mu.Lock()
	for {
		if b.closed {
			b.mu.Unlock()
			return false, ErrQueueUnavailable
		}
		if s, ok := b.index[op.Key]; ok {
			if op.CreatedAt.Before(s.op.CreatedAt) {
				op.CreatedAt = s.op.CreatedAt
			}
			s.op = op
			if waiter != nil {
				s.waiters = append(s.waiters, waiter)
			}
			b.pending.MoveToBack(s.elem)
			b.mu.Unlock()
			return true, nil
		}
		if b.capacity == 0 || b.pending.Len() < b.capacity {
			break
		}
		if !b.block {
			b.mu.Unlock()
			return false, ErrRejected
		}
		room := b.space
		b.mu.Unlock()
		select {
		case <-room:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		b.mu.Lock()
	}

	s := &slot[V]{op: op}
	if waiter != nil {
		s.waiters = []chan error{waiter}
	}
	s.elem = b.pending.PushBack(s)
	b.index[op.Key] = s
	n := b.pending.Len()
	b.mu.Unlock()

	// First item starts the staleness clock; a full batch can go early.
	if n == 1 || (b.batchAt > 0 && n >= b.batchAt) {
		b.nudge()
	}
	return false, nil
}

func (b *bucket[V]) nudge() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// drainBatch removes up to limit pending operations (limit <= 0 => all) in FIFO
// order. The caller owns the returned slots and must resolve their waiters.
func (b *bucket[V]) drainBatch(limit int) []*slot[V] {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.pending.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	out := make([]*slot[V], 0, n)
	for i := 0; i < n; i++ {
		s := b.pending.Remove(b.pending.Front()).(*slot[V])
		s.elem = nil
		delete(b.index, s.op.Key)
		out = append(out, s)
	}
	b.freeSpace()
	return out
}

// freeSpace wakes producers blocked on a full bucket. Requires b.mu.
func (b *bucket[V]) freeSpace() {
	close(b.space)
	b.space = make(chan struct{})
}

// seal stops accepting operations and wakes blocked producers so they can
// observe ErrQueueUnavailable. Pending operations stay for the drain.
func (b *bucket[V]) seal() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.freeSpace()
	}
	b.mu.Unlock()
}

// oldestPending returns the creation time of the front operation.
func (b *bucket[V]) oldestPending() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	front := b.pending.Front()
	if front == nil {
		return time.Time{}, false
	}
	return front.Value.(*slot[V]).op.CreatedAt, true
}

// oldestPendingAge is the age of the front operation; 0 when empty.
func (b *bucket[V]) oldestPendingAge(now time.Time) time.Duration {
	oldest, ok := b.oldestPending()
	if !ok {
		return 0
	}
	return now.Sub(oldest)
}

func (b *bucket[V]) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}
