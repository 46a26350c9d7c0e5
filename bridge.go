package writebehind

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/writebehind/internal/util"
)

// bridge delivers calls to the Writer with a fixed-delay retry policy.
// Operations of a call that fails on every attempt are handed to onDiscard
// and dropped; they are never requeued.
type bridge[V any] struct {
	w         Writer[V]
	attempts  int // total, >= 1
	delay     time.Duration
	onDiscard func(Operation[V], error)
	log       Logger
	hooks     Hooks
}

// deliver runs c against the writer. It returns nil on success and the
// *DeliveryError handed to onDiscard otherwise. A close of abort cuts the
// retry wait short; the call is then discarded with the last writer error.
func (br *bridge[V]) deliver(ctx context.Context, abort <-chan struct{}, c call[V]) error {
	var err error
	attempt := 0
	for attempt < br.attempts {
		attempt++
		if err = br.invoke(ctx, c); err == nil {
			br.hooks.Delivered(c.kind, len(c.slots))
			return nil
		}
		if attempt == br.attempts {
			break
		}
		br.log.Warn("write-behind delivery failed, retrying", Fields{
			"kind": c.kind.String(), "ops": len(c.slots), "attempt": attempt,
			"retriesLeft": br.attempts - attempt, "delay": br.delay, "err": err,
		})
		br.hooks.DeliveryRetry(c.kind, len(c.slots), attempt, err)
		if !br.wait(abort) {
			break
		}
	}

	derr := &DeliveryError{Kind: c.kind, Keys: c.keys(), Attempts: attempt, Err: err}
	br.discard(c, derr)
	return derr
}

// wait sleeps for the retry delay; false when abort closed first.
func (br *bridge[V]) wait(abort <-chan struct{}) bool {
	t := time.NewTimer(br.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-abort:
		return false
	}
}

func (br *bridge[V]) invoke(ctx context.Context, c call[V]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writebehind: writer panicked: %v", r)
		}
	}()

	switch c.kind {
	case KindWrite:
		if !c.batch {
			op := c.slots[0].op
			return br.w.Write(ctx, op.Key, op.Value)
		}
		entries := make([]Entry[V], len(c.slots))
		for i, s := range c.slots {
			entries[i] = Entry[V]{Key: s.op.Key, Value: s.op.Value}
		}
		return br.w.WriteAll(ctx, entries)
	case KindDelete:
		if !c.batch {
			return br.w.Delete(ctx, c.slots[0].op.Key)
		}
		return br.w.DeleteAll(ctx, c.keys())
	default:
		return fmt.Errorf("writebehind: unknown operation kind %d", c.kind)
	}
}

// discard reports every operation of c as dropped with cause.
func (br *bridge[V]) discard(c call[V], cause error) {
	br.log.Error("write-behind operations discarded", Fields{
		"kind": c.kind.String(), "ops": len(c.slots), "err": cause,
	})
	br.hooks.Discarded(c.kind, len(c.slots), cause)
	if br.onDiscard == nil {
		return
	}
	for _, s := range c.slots {
		br.notify(s.op, cause)
	}
}

func (br *bridge[V]) notify(op Operation[V], cause error) {
	defer func() {
		if r := recover(); r != nil {
			br.log.Error("write-behind OnDiscard panicked", Fields{"key": util.Digest(op.Key), "panic": r})
		}
	}()
	br.onDiscard(op, cause)
}
