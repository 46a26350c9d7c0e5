package writebehind

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/writebehind/internal/util"
)

// Coordinator is the write-behind queue of one cache. It owns Config.Concurrency
// buckets, one worker goroutine per bucket, and a token bucket shared by all
// workers. The owner must call Stop exactly once when the cache goes away.
type Coordinator[V any] struct {
	name    string
	cfg     Config
	buckets []*bucket[V]
	bridge  *bridge[V]
	limiter *rate.Limiter // nil => unlimited
	filter  func([]Operation[V]) []Operation[V]
	log     Logger
	hooks   Hooks

	state     atomic.Int32
	abandoned atomic.Int64 // drained but never handed to the writer
	lifeMu    sync.Mutex
	draining  chan struct{}
	// stopCtx is cancelled when workers must stop pulling work:
	// at once for Stop(0), otherwise when the drain timeout runs out.
	stopCtx    context.Context
	stopCancel context.CancelFunc
	wg         sync.WaitGroup
}

func New[V any](opts Options[V]) (*Coordinator[V], error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("writebehind: writer is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config.withDefaults()

	c := &Coordinator[V]{
		name:     coalesce(opts.Name, "default"),
		cfg:      cfg,
		buckets:  make([]*bucket[V], cfg.Concurrency),
		filter:   opts.Filter,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		draining: make(chan struct{}),
	}
	c.stopCtx, c.stopCancel = context.WithCancel(context.Background())

	batchAt := 0
	if cfg.BatchingEnabled {
		batchAt = cfg.BatchSize
	}
	for i := range c.buckets {
		c.buckets[i] = newBucket[V](cfg.MaxQueueSize, cfg.SynchronousWrite, batchAt)
	}

	if cfg.RateLimit > 0 {
		// A whole batch is admitted at once, so the burst must fit one.
		burst := cfg.RateLimit
		if cfg.BatchingEnabled && cfg.BatchSize > burst {
			burst = cfg.BatchSize
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c.bridge = &bridge[V]{
		w:         opts.Writer,
		attempts:  cfg.RetryAttempts + 1,
		delay:     cfg.RetryAttemptDelay,
		onDiscard: opts.OnDiscard,
		log:       c.log,
		hooks:     c.hooks,
	}
	return c, nil
}

// Config returns the effective configuration (defaults applied).
func (c *Coordinator[V]) Config() Config { return c.cfg }

func (c *Coordinator[V]) State() State { return State(c.state.Load()) }

// Len is the number of operations waiting for a worker, across all buckets.
// Operations currently being delivered are not included.
func (c *Coordinator[V]) Len() int {
	n := 0
	for _, b := range c.buckets {
		n += b.size()
	}
	return n
}

// Start launches the bucket workers. Operations enqueued before Start are
// kept and delivered once the workers run.
func (c *Coordinator[V]) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		if c.State() == StateRunning {
			return ErrAlreadyStarted
		}
		return ErrQueueUnavailable
	}
	c.wg.Add(len(c.buckets))
	for i, b := range c.buckets {
		go c.run(i, b)
	}
	c.log.Info("write-behind started", Fields{
		"queue": c.name, "buckets": len(c.buckets), "batching": c.cfg.BatchingEnabled,
		"batchSize": c.cfg.BatchSize, "rateLimit": c.cfg.RateLimit,
	})
	return nil
}

// Enqueue routes op to its bucket. It fails with ErrQueueUnavailable once
// Stop has been called and with ErrRejected when the bucket is full and
// producers may not block. With SynchronousWrite it returns only after the
// operation (or the one that replaced it) was delivered or discarded; a
// discarded operation yields its *DeliveryError or ErrDrainTimeout.
func (c *Coordinator[V]) Enqueue(ctx context.Context, op Operation[V]) error {
	if !op.valid() {
		return ErrInvalidOperation
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	if c.State() >= StateDraining {
		c.hooks.Rejected(op.Key, "unavailable")
		return ErrQueueUnavailable
	}

	var done chan error
	if c.cfg.SynchronousWrite {
		done = make(chan error, 1)
	}
	b := c.buckets[bucketFor(op.Key, len(c.buckets))]
	coalesced, err := b.append(ctx, op, done)
	switch {
	case err == ErrRejected:
		c.hooks.Rejected(op.Key, "queue_full")
		return err
	case err == ErrQueueUnavailable:
		c.hooks.Rejected(op.Key, "unavailable")
		return err
	case err != nil:
		return err
	}
	if coalesced {
		c.hooks.Coalesced(op.Key)
	}
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put enqueues a write of value under key.
func (c *Coordinator[V]) Put(ctx context.Context, key string, value V) error {
	return c.Enqueue(ctx, WriteOp(key, value))
}

// Remove enqueues a delete of key.
func (c *Coordinator[V]) Remove(ctx context.Context, key string) error {
	return c.Enqueue(ctx, DeleteOp[V](key))
}

// Stop refuses new operations and gives the workers up to timeout to flush
// what is queued. A worker busy with a writer call finishes that call; after
// the timeout no further calls are started and the leftovers go to OnDiscard
// with ErrDrainTimeout. Stop(0) discards pending operations without calling
// the writer. The returned error wraps ErrDrainTimeout when anything was
// dropped. Later calls are no-ops.
func (c *Coordinator[V]) Stop(timeout time.Duration) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	switch c.State() {
	case StateStopped:
		return nil
	case StateCreated:
		c.state.Store(int32(StateStopped))
		c.sealAll()
		c.stopCancel()
		return c.stopResult(c.discardLeftovers())
	}

	c.state.Store(int32(StateDraining))
	c.sealAll()
	if timeout <= 0 {
		c.stopCancel()
	}
	close(c.draining)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	if timeout > 0 {
		t := time.NewTimer(timeout)
		select {
		case <-done:
		case <-t.C:
			c.log.Warn("write-behind drain timed out", Fields{"queue": c.name, "timeout": timeout, "pending": c.Len()})
			c.stopCancel()
		}
		t.Stop()
	}
	<-done

	dropped := c.discardLeftovers() + int(c.abandoned.Load())
	c.stopCancel()
	c.state.Store(int32(StateStopped))
	c.log.Info("write-behind stopped", Fields{"queue": c.name, "dropped": dropped})
	return c.stopResult(dropped)
}

func (c *Coordinator[V]) sealAll() {
	for _, b := range c.buckets {
		b.seal()
	}
}

func (c *Coordinator[V]) stopResult(dropped int) error {
	if dropped == 0 {
		return nil
	}
	c.hooks.DrainTimeout(dropped)
	return fmt.Errorf("%w: %d operation(s) dropped", ErrDrainTimeout, dropped)
}

// discardLeftovers empties every bucket through OnDiscard. Workers must have
// exited.
func (c *Coordinator[V]) discardLeftovers() int {
	total := 0
	for _, b := range c.buckets {
		slots := b.drainBatch(0)
		if len(slots) == 0 {
			continue
		}
		total += len(slots)
		c.abandon(buildCalls(slots, c.cfg.BatchingEnabled), ErrDrainTimeout)
	}
	return total
}

func (c *Coordinator[V]) aborted() bool { return c.stopCtx.Err() != nil }

// run is the worker of one bucket. It wakes on the WorkDelay tick, when the
// oldest pending operation reaches MaxAllowedFallBehind, or when the bucket
// nudges it (first item queued, or a full batch available).
func (c *Coordinator[V]) run(id int, b *bucket[V]) {
	defer c.wg.Done()

	tick := time.NewTicker(c.cfg.WorkDelay)
	defer tick.Stop()
	stale := time.NewTimer(c.cfg.MaxAllowedFallBehind)
	defer stale.Stop()

	for {
		c.armStale(b, stale)
		select {
		case <-c.stopCtx.Done():
			return
		case <-c.draining:
			c.drain(id, b)
			return
		case <-tick.C:
			c.flush(id, b, true)
		case <-stale.C:
			c.flush(id, b, true)
		case <-b.ready:
			c.flush(id, b, false)
		}
	}
}

// armStale points t at the moment the oldest pending operation falls
// MaxAllowedFallBehind behind; an empty bucket disarms it.
func (c *Coordinator[V]) armStale(b *bucket[V], t *time.Timer) {
	oldest, ok := b.oldestPending()
	if !ok {
		t.Stop()
		return
	}
	wait := c.cfg.MaxAllowedFallBehind - time.Since(oldest)
	if wait < 0 {
		wait = 0
	}
	t.Reset(wait)
}

// chunk is the most a single drain may take: one batch when batching,
// otherwise everything pending.
func (c *Coordinator[V]) chunk() int {
	if c.cfg.BatchingEnabled {
		return c.cfg.BatchSize
	}
	return 0
}

// flush delivers pending work. When due (tick or staleness) the bucket is
// emptied; otherwise only full batches go out unless the oldest operation
// is already stale.
func (c *Coordinator[V]) flush(id int, b *bucket[V], due bool) {
	for !c.aborted() {
		n := b.size()
		if n == 0 {
			return
		}
		if !due {
			if b.oldestPendingAge(time.Now()) >= c.cfg.MaxAllowedFallBehind {
				due = true
			} else if !c.cfg.BatchingEnabled || n < c.cfg.BatchSize {
				return
			}
		}
		c.process(id, b.drainBatch(c.chunk()))
	}
}

// drain empties the bucket during Stop until it is empty or the stop
// context is cancelled.
func (c *Coordinator[V]) drain(id int, b *bucket[V]) {
	for !c.aborted() {
		slots := b.drainBatch(c.chunk())
		if len(slots) == 0 {
			return
		}
		c.process(id, slots)
	}
}

func (c *Coordinator[V]) process(id int, slots []*slot[V]) {
	if len(slots) == 0 {
		return
	}
	c.log.Debug("write-behind processing", Fields{"queue": c.name, "bucket": id, "ops": len(slots)})
	calls := buildCalls(c.applyFilter(slots), c.cfg.BatchingEnabled)
	for i, cl := range calls {
		if err := c.admit(len(cl.slots)); err != nil {
			c.abandoned.Add(int64(c.abandon(calls[i:], ErrDrainTimeout)))
			return
		}
		err := c.bridge.deliver(context.Background(), c.stopCtx.Done(), cl)
		for _, s := range cl.slots {
			s.resolve(err)
		}
	}
}

// admit blocks until the shared token bucket grants n operations. It fails
// once the stop context is cancelled, with or without a limiter.
func (c *Coordinator[V]) admit(n int) error {
	if err := c.stopCtx.Err(); err != nil {
		return err
	}
	if c.limiter == nil {
		return nil
	}
	return c.limiter.WaitN(c.stopCtx, n)
}

// abandon discards calls without touching the writer and returns the number
// of operations dropped.
func (c *Coordinator[V]) abandon(calls []call[V], cause error) int {
	n := 0
	for _, cl := range calls {
		c.bridge.discard(cl, cause)
		for _, s := range cl.slots {
			s.resolve(cause)
		}
		n += len(cl.slots)
	}
	return n
}

// applyFilter runs the user filter over the drained chunk. Slots the filter
// leaves out count as delivered. A panicking filter is logged and the chunk
// goes out unfiltered.
func (c *Coordinator[V]) applyFilter(slots []*slot[V]) []*slot[V] {
	if c.filter == nil {
		return slots
	}
	ops := make([]Operation[V], len(slots))
	byKey := make(map[string]*slot[V], len(slots))
	for i, s := range slots {
		ops[i] = s.op
		byKey[s.op.Key] = s
	}

	filtered, err := c.runFilter(ops)
	if err != nil {
		c.log.Error("write-behind filter failed, delivering unfiltered", Fields{"queue": c.name, "ops": len(ops), "err": err})
		return slots
	}
	kept := make([]*slot[V], 0, len(slots))
	for _, op := range filtered {
		s, ok := byKey[op.Key]
		if !ok || !op.valid() {
			c.log.Warn("write-behind filter returned an unknown operation", Fields{"queue": c.name, "key": util.Digest(op.Key)})
			continue
		}
		delete(byKey, op.Key)
		s.op = op
		kept = append(kept, s)
	}
	for _, s := range byKey {
		s.resolve(nil)
	}
	return kept
}

func (c *Coordinator[V]) runFilter(ops []Operation[V]) (out []Operation[V], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writebehind: filter panicked: %v", r)
		}
	}()
	return c.filter(ops), nil
}
