// Package asynchook moves hook calls off the queue's hot paths.
//
// Producers and bucket workers call Hooks synchronously; wrapping a slow sink
// (a logger, a metrics client) in asynchook.Hooks hands each event to a small
// worker pool through a bounded channel. When the channel is full the event
// is dropped and counted, so hooks never add backpressure.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{CoalescedEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker, 1000 buffered events
//	defer hooks.Close()
//
//	q, _ := writebehind.New[User](writebehind.Options[User]{
//	    Writer: writer,
//	    Hooks:  hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/writebehind"
)

type Hooks struct {
	inner   writebehind.Hooks
	q       chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ writebehind.Hooks = (*Hooks)(nil)

func New(inner writebehind.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers the buffered events and stops the workers. Events fired
// after Close are dropped.
func (h *Hooks) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.q)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped is the number of events lost to a full queue or a closed Hooks.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Rejected(k, r string) { h.try(func() { h.inner.Rejected(k, r) }) }
func (h *Hooks) Coalesced(k string)   { h.try(func() { h.inner.Coalesced(k) }) }
func (h *Hooks) Delivered(kd writebehind.Kind, n int) {
	h.try(func() { h.inner.Delivered(kd, n) })
}
func (h *Hooks) DeliveryRetry(kd writebehind.Kind, n, attempt int, err error) {
	h.try(func() { h.inner.DeliveryRetry(kd, n, attempt, err) })
}
func (h *Hooks) Discarded(kd writebehind.Kind, n int, err error) {
	h.try(func() { h.inner.Discarded(kd, n, err) })
}
func (h *Hooks) DrainTimeout(pending int) { h.try(func() { h.inner.DrainTimeout(pending) }) }
