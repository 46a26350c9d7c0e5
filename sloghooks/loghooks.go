// Package sloghooks logs queue events to a *slog.Logger. High-volume events
// can be sampled, and keys are logged as digests unless a Redact func says
// otherwise.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/writebehind"
	"github.com/unkn0wn-root/writebehind/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RejectedEvery  uint64
	CoalescedEvery uint64
	DeliveredEvery uint64
	// Optional key redactor. Defaults to a 64-bit xxhash digest.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	rejectedCtr  atomic.Uint64
	coalescedCtr atomic.Uint64
	deliveredCtr atomic.Uint64
}

var _ writebehind.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Digest(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Rejected(key, reason string) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Warn("writebehind.rejected",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) Coalesced(key string) {
	if h.l == nil || !sample(h.opts.CoalescedEvery, &h.coalescedCtr) {
		return
	}
	h.l.Debug("writebehind.coalesced", "key", h.redact(key))
}

func (h *Hooks) Delivered(kind writebehind.Kind, n int) {
	if h.l == nil || !sample(h.opts.DeliveredEvery, &h.deliveredCtr) {
		return
	}
	h.l.Debug("writebehind.delivered",
		"kind", kind.String(),
		"ops", n)
}

func (h *Hooks) DeliveryRetry(kind writebehind.Kind, n, attempt int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("writebehind.delivery_retry",
		"kind", kind.String(),
		"ops", n,
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) Discarded(kind writebehind.Kind, n int, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("writebehind.discarded",
		"kind", kind.String(),
		"ops", n,
		"err", err)
}

func (h *Hooks) DrainTimeout(pending int) {
	if h.l == nil {
		return
	}
	h.l.Warn("writebehind.drain_timeout", "pending", pending)
}
