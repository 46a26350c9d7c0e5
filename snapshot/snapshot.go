// Package snapshot captures cache entries as self-contained byte frames.
//
// A Snapshot taken at time T restores to an Element whose value, TTL, TTI,
// version, hit count and timestamps are exactly those of the entry at T, no
// matter what happened to the live entry afterwards. The value goes through
// a codec.Codec, so the frame never shares memory with it.
//
// Frames are a same-deployment representation (write-behind delivery,
// node-to-node hand-off), not a stable cross-version format.
package snapshot

import (
	"fmt"
	"math"
	"time"

	"github.com/unkn0wn-root/writebehind/codec"
	"github.com/unkn0wn-root/writebehind/internal/wire"
)

// ErrCorrupt is returned (wrapped) for frames that fail validation.
var ErrCorrupt = wire.ErrCorrupt

// Element is a cache entry with its metadata.
type Element[V any] struct {
	Key            string
	Value          V
	Version        uint64
	HitCount       uint64
	TTL            time.Duration // 0 => lives until removed
	TTI            time.Duration // 0 => no idle expiry
	CreatedAt      time.Time
	LastAccessedAt time.Time
	LastUpdatedAt  time.Time
}

// Expired reports whether e is past its TTL (from creation) or TTI (from the
// last access, falling back to the last update and then creation).
func (e Element[V]) Expired(now time.Time) bool {
	if e.TTL > 0 && !now.Before(e.CreatedAt.Add(e.TTL)) {
		return true
	}
	if e.TTI > 0 {
		last := e.LastAccessedAt
		if last.IsZero() {
			last = e.LastUpdatedAt
		}
		if last.IsZero() {
			last = e.CreatedAt
		}
		if !now.Before(last.Add(e.TTI)) {
			return true
		}
	}
	return false
}

// Snapshot is an immutable captured Element.
type Snapshot []byte

// Bytes returns a copy of the frame.
func (s Snapshot) Bytes() []byte {
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// Codec captures and restores Elements of V.
type Codec[V any] struct {
	Values codec.Codec[V]
}

func New[V any](values codec.Codec[V]) Codec[V] {
	return Codec[V]{Values: values}
}

// Capture encodes e into a new Snapshot.
func (c Codec[V]) Capture(e Element[V]) (Snapshot, error) {
	payload, err := c.Values.Encode(e.Value)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode value of %q: %w", e.Key, err)
	}
	b, err := wire.EncodeElement(wire.Element{
		Key:      e.Key,
		Version:  e.Version,
		Hits:     e.HitCount,
		TTL:      int64(e.TTL),
		TTI:      int64(e.TTI),
		Created:  toNanos(e.CreatedAt),
		Accessed: toNanos(e.LastAccessedAt),
		Updated:  toNanos(e.LastUpdatedAt),
		Payload:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: capture %q: %w", e.Key, err)
	}
	return Snapshot(b), nil
}

// Restore rebuilds the Element captured in s.
func (c Codec[V]) Restore(s Snapshot) (Element[V], error) {
	w, err := wire.DecodeElement(s)
	if err != nil {
		return Element[V]{}, fmt.Errorf("snapshot: restore: %w", err)
	}
	v, err := c.Values.Decode(w.Payload)
	if err != nil {
		return Element[V]{}, fmt.Errorf("snapshot: decode value of %q: %w", w.Key, err)
	}
	return Element[V]{
		Key:            w.Key,
		Value:          v,
		Version:        w.Version,
		HitCount:       w.Hits,
		TTL:            time.Duration(w.TTL),
		TTI:            time.Duration(w.TTI),
		CreatedAt:      fromNanos(w.Created),
		LastAccessedAt: fromNanos(w.Accessed),
		LastUpdatedAt:  fromNanos(w.Updated),
	}, nil
}

// zeroTime marks time.Time{}, which has no UnixNano representation.
const zeroTime = math.MinInt64

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return zeroTime
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == zeroTime {
		return time.Time{}
	}
	return time.Unix(0, n)
}
