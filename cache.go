package writebehind

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/unkn0wn-root/writebehind/codec"
	"github.com/unkn0wn-root/writebehind/internal/util"
	"github.com/unkn0wn-root/writebehind/provider"
	"github.com/unkn0wn-root/writebehind/snapshot"
	"github.com/unkn0wn-root/writebehind/version"
)

const (
	defaultEntryTTL      = 10 * time.Minute
	defaultStopTimeout   = 5 * time.Second
	defaultSweep         = time.Hour
	defaultVersionRetain = 30 * 24 * time.Hour
)

// CacheOptions configure a Cache. Namespace, Provider, Codec and Queue are
// required.
type CacheOptions[V any] struct {
	Namespace string // isolates keys in a shared provider, e.g. "user"
	Provider  provider.Provider
	Codec     codec.Codec[V]
	// Queue receives a Write for every Put and a Delete for every Remove.
	// The cache starts it if needed and stops it on Close.
	Queue *Coordinator[V]

	Logger           Logger        // if nil, NopLogger is used
	Versions         version.Store // nil => in-process version.Local, owned by the cache
	DefaultTTL       time.Duration // 0 => 10m; negative => entries never expire
	DefaultTTI       time.Duration // 0 => no idle expiry
	StopTimeout      time.Duration // drain budget of Close; 0 => 5s
	SweepInterval    time.Duration // local version sweep; 0 => 1h
	VersionRetention time.Duration // 0 => 30d
	// ComputeSetCost sizes an entry for cost-aware providers; nil => len(raw).
	ComputeSetCost func(key string, raw []byte) int64
	// RedactKey renders keys in log fields; nil => xxhash digest.
	RedactKey func(key string) string
}

// Cache is a write-behind cache front. Entries live in the provider as
// snapshot frames stamped with a per-key version; mutations reach the
// backing Writer asynchronously through the Queue.
//
// A read drops (self-heals) an entry whose frame is corrupt, whose TTL or
// TTI has passed, or whose version is behind the version store.
type Cache[V any] struct {
	ns          string
	provider    provider.Provider
	snaps       snapshot.Codec[V]
	queue       *Coordinator[V]
	versions    version.Store
	ownVersions bool
	log         Logger

	ttl         time.Duration
	tti         time.Duration
	stopTimeout time.Duration
	cost        func(string, []byte) int64
	redact      func(string) string

	closeOnce sync.Once
	closeErr  error
}

func NewCache[V any](opts CacheOptions[V]) (*Cache[V], error) {
	switch {
	case opts.Namespace == "":
		return nil, fmt.Errorf("writebehind: namespace is required")
	case opts.Provider == nil:
		return nil, fmt.Errorf("writebehind: provider is required")
	case opts.Codec == nil:
		return nil, fmt.Errorf("writebehind: codec is required")
	case opts.Queue == nil:
		return nil, fmt.Errorf("writebehind: queue is required")
	}

	c := &Cache[V]{
		ns:          opts.Namespace,
		provider:    opts.Provider,
		snaps:       snapshot.New(opts.Codec),
		queue:       opts.Queue,
		log:         coalesce[Logger](opts.Logger, NopLogger{}),
		ttl:         coalesce(opts.DefaultTTL, defaultEntryTTL),
		tti:         opts.DefaultTTI,
		stopTimeout: coalesce(opts.StopTimeout, defaultStopTimeout),
		cost:        opts.ComputeSetCost,
		redact:      opts.RedactKey,
	}
	if c.ttl < 0 {
		c.ttl = 0
	}
	if c.cost == nil {
		c.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if c.redact == nil {
		c.redact = util.Digest
	}
	if c.queue.State() == StateCreated {
		if err := c.queue.Start(); err != nil && err != ErrAlreadyStarted {
			return nil, err
		}
	}
	if c.queue.State() != StateRunning {
		return nil, ErrQueueUnavailable
	}

	if opts.Versions != nil {
		c.versions = opts.Versions
	} else {
		c.versions = version.NewLocal(
			coalesce(opts.SweepInterval, defaultSweep),
			coalesce(opts.VersionRetention, defaultVersionRetain),
		)
		c.ownVersions = true
	}
	return c, nil
}

// Queue exposes the underlying Coordinator (for Len, State, metrics).
func (c *Cache[V]) Queue() *Coordinator[V] { return c.queue }

// Put stores value with the default TTL and TTI and queues its write.
func (c *Cache[V]) Put(ctx context.Context, key string, value V) error {
	return c.PutWithTTL(ctx, key, value, c.ttl, c.tti)
}

// PutWithTTL stores value and queues its write. The queued value is decoded
// from the stored snapshot, so later changes to value are not seen by the
// writer. When the queue refuses the write the entry is dropped again and
// the queue's error is returned.
func (c *Cache[V]) PutWithTTL(ctx context.Context, key string, value V, ttl, tti time.Duration) error {
	if key == "" {
		return ErrInvalidOperation
	}
	k := c.storageKey(key)
	ver, err := c.versions.Bump(ctx, k)
	if err != nil {
		return fmt.Errorf("writebehind: bump version of %q: %w", key, err)
	}

	now := time.Now()
	snap, err := c.snaps.Capture(snapshot.Element[V]{
		Key:           key,
		Value:         value,
		Version:       ver,
		TTL:           ttl,
		TTI:           tti,
		CreatedAt:     now,
		LastUpdatedAt: now,
	})
	if err != nil {
		return err
	}
	queued, err := c.snaps.Restore(snap)
	if err != nil {
		return err
	}

	ok, err := c.provider.Set(ctx, k, snap, c.cost(k, snap), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("cache put rejected by provider (pressure)", Fields{"ns": c.ns, "key": c.redact(key)})
	}

	if err := c.queue.Enqueue(ctx, Operation[V]{Kind: KindWrite, Key: key, Value: queued.Value, CreatedAt: now}); err != nil {
		c.invalidate(k, key)
		return err
	}
	return nil
}

// Remove drops the entry and queues a delete of key.
func (c *Cache[V]) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidOperation
	}
	k := c.storageKey(key)
	c.invalidate(k, key)
	return c.queue.Enqueue(ctx, DeleteOp[V](key))
}

// Get returns the cached value of key.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	e, ok, err := c.GetElement(ctx, key)
	return e.Value, ok, err
}

// GetElement returns the entry of key with its metadata. On entries with a
// TTI a hit is recorded (HitCount, LastAccessedAt) and written back.
func (c *Cache[V]) GetElement(ctx context.Context, key string) (snapshot.Element[V], bool, error) {
	k := c.storageKey(key)
	e, _, ok, err := c.load(ctx, k, key)
	if err != nil || !ok {
		return snapshot.Element[V]{}, false, err
	}
	if e.TTI > 0 {
		e = c.touch(ctx, k, e)
	}
	return e, true, nil
}

// GetMany returns the live values of keys. Versions of all found entries are
// read in one round trip; missing, expired and stale keys are left out.
func (c *Cache[V]) GetMany(ctx context.Context, keys []string) (map[string]V, error) {
	out := make(map[string]V, len(keys))
	found := make(map[string]snapshot.Element[V], len(keys))
	sks := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		k := c.storageKey(key)
		if _, dup := found[k]; dup {
			continue
		}
		e, _, ok, err := c.read(ctx, k, key)
		if err != nil {
			return nil, err
		}
		if ok {
			found[k] = e
			sks = append(sks, k)
		}
	}
	if len(sks) == 0 {
		return out, nil
	}

	cur, err := c.versions.CurrentMany(ctx, sks)
	if err != nil {
		c.log.Warn("version lookup failed, treating as miss", Fields{"ns": c.ns, "keys": len(sks), "err": err})
		return out, nil
	}
	for _, k := range sks {
		e := found[k]
		if !c.current(ctx, k, e, cur[k]) {
			continue
		}
		if e.TTI > 0 {
			e = c.touch(ctx, k, e)
		}
		out[e.Key] = e.Value
	}
	return out, nil
}

// Snapshot returns the stored frame of key after validating it. The frame
// can be restored with snapshot.Codec at any later time.
func (c *Cache[V]) Snapshot(ctx context.Context, key string) (snapshot.Snapshot, bool, error) {
	_, snap, ok, err := c.load(ctx, c.storageKey(key), key)
	if err != nil || !ok {
		return nil, false, err
	}
	return snap, true, nil
}

// Version is the current version of key; 0 if it was never written.
func (c *Cache[V]) Version(ctx context.Context, key string) (uint64, error) {
	return c.versions.Current(ctx, c.storageKey(key))
}

// Close stops the queue with StopTimeout, then releases the version store
// (when the cache created it) and the provider. Only the first call does
// anything; later calls return the same error.
func (c *Cache[V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var err error
		if qerr := c.queue.Stop(c.stopTimeout); qerr != nil {
			err = multierr.Append(err, qerr)
		}
		if c.ownVersions {
			err = multierr.Append(err, c.versions.Close(ctx))
		}
		err = multierr.Append(err, c.provider.Close(ctx))
		c.closeErr = err
		c.log.Info("cache closed", Fields{"ns": c.ns, "err": err})
	})
	return c.closeErr
}

// load reads and validates the frame of k, deleting it when it is corrupt,
// expired or stale.
func (c *Cache[V]) load(ctx context.Context, k, key string) (snapshot.Element[V], snapshot.Snapshot, bool, error) {
	e, snap, ok, err := c.read(ctx, k, key)
	if err != nil || !ok {
		return snapshot.Element[V]{}, nil, false, err
	}
	cur, err := c.versions.Current(ctx, k)
	if err != nil {
		c.log.Warn("version lookup failed, treating as miss", Fields{"ns": c.ns, "key": c.redact(key), "err": err})
		return snapshot.Element[V]{}, nil, false, nil
	}
	if !c.current(ctx, k, e, cur) {
		return snapshot.Element[V]{}, nil, false, nil
	}
	return e, snap, true, nil
}

// read decodes the frame of k, deleting it when it is corrupt or expired.
// Versions are not checked.
func (c *Cache[V]) read(ctx context.Context, k, key string) (snapshot.Element[V], snapshot.Snapshot, bool, error) {
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return snapshot.Element[V]{}, nil, false, err
	}
	snap := snapshot.Snapshot(raw)
	e, err := c.snaps.Restore(snap)
	if err != nil || e.Key != key {
		c.log.Warn("cache entry corrupt, dropping", Fields{"ns": c.ns, "key": c.redact(key), "err": err})
		_ = c.provider.Del(ctx, k)
		return snapshot.Element[V]{}, nil, false, nil
	}
	if e.Expired(time.Now()) {
		_ = c.provider.Del(ctx, k)
		return snapshot.Element[V]{}, nil, false, nil
	}
	return e, snap, true, nil
}

// current reports whether e carries version cur, deleting the entry when it
// does not.
func (c *Cache[V]) current(ctx context.Context, k string, e snapshot.Element[V], cur uint64) bool {
	if e.Version == cur {
		return true
	}
	c.log.Debug("cache entry stale, dropping", Fields{"ns": c.ns, "key": c.redact(e.Key), "have": e.Version, "current": cur})
	_ = c.provider.Del(ctx, k)
	return false
}

// touch records an access and writes the entry back, best effort.
func (c *Cache[V]) touch(ctx context.Context, k string, e snapshot.Element[V]) snapshot.Element[V] {
	now := time.Now()
	e.HitCount++
	e.LastAccessedAt = now
	snap, err := c.snaps.Capture(e)
	if err != nil {
		return e
	}
	ttl := time.Duration(0)
	if e.TTL > 0 {
		if ttl = e.CreatedAt.Add(e.TTL).Sub(now); ttl <= 0 {
			return e
		}
	}
	if _, err := c.provider.Set(ctx, k, snap, c.cost(k, snap), ttl); err != nil {
		c.log.Debug("cache touch failed", Fields{"ns": c.ns, "key": c.redact(e.Key), "err": err})
	}
	return e
}

// invalidate bumps the version of k and deletes its entry, best effort.
func (c *Cache[V]) invalidate(k, key string) {
	ctx := context.Background()
	if _, err := c.versions.Bump(ctx, k); err != nil {
		c.log.Error("version bump failed", Fields{"ns": c.ns, "key": c.redact(key), "err": err})
	}
	_ = c.provider.Del(ctx, k)
}

func (c *Cache[V]) storageKey(key string) string { return "wb:" + c.ns + ":" + key }
