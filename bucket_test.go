package writebehind

import (
	"context"
	"errors"
	"testing"
	"time"
)

func keysOf(slots []*slot[string]) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.op.Key
	}
	return out
}

func mustAppend(t *testing.T, b *bucket[string], op Operation[string]) bool {
	t.Helper()
	coalesced, err := b.append(context.Background(), op, nil)
	if err != nil {
		t.Fatalf("append(%s %s): %v", op.Kind, op.Key, err)
	}
	return coalesced
}

// ==============================
// Coalescing
// ==============================

func TestBucketCoalescesSameKey(t *testing.T) {
	b := newBucket[string](0, false, 0)

	if mustAppend(t, b, WriteOp("k", "v1")) {
		t.Fatalf("first append must not coalesce")
	}
	if !mustAppend(t, b, WriteOp("k", "v2")) {
		t.Fatalf("second append must coalesce")
	}
	if b.size() != 1 {
		t.Fatalf("size=%d want 1", b.size())
	}
	slots := b.drainBatch(0)
	if len(slots) != 1 || slots[0].op.Value != "v2" {
		t.Fatalf("expected only the latest value, got %+v", slots)
	}
}

func TestBucketKindReplacement(t *testing.T) {
	b := newBucket[string](0, false, 0)

	mustAppend(t, b, WriteOp("a", "v"))
	mustAppend(t, b, DeleteOp[string]("a"))
	mustAppend(t, b, DeleteOp[string]("b"))
	mustAppend(t, b, WriteOp("b", "w"))

	slots := b.drainBatch(0)
	if len(slots) != 2 {
		t.Fatalf("got %d slots want 2", len(slots))
	}
	if slots[0].op.Key != "a" || slots[0].op.Kind != KindDelete {
		t.Fatalf("delete must replace pending write: %+v", slots[0].op)
	}
	if slots[1].op.Key != "b" || slots[1].op.Kind != KindWrite || slots[1].op.Value != "w" {
		t.Fatalf("write must replace pending delete: %+v", slots[1].op)
	}
}

func TestBucketOrderFollowsLatestOperation(t *testing.T) {
	b := newBucket[string](0, false, 0)
	mustAppend(t, b, WriteOp("a", "1"))
	mustAppend(t, b, WriteOp("b", "1"))
	mustAppend(t, b, WriteOp("a", "2"))

	got := keysOf(b.drainBatch(0))
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("order=%v want [b a]", got)
	}
}

func TestBucketClampsCreatedAt(t *testing.T) {
	b := newBucket[string](0, false, 0)
	now := time.Now()
	mustAppend(t, b, Operation[string]{Kind: KindWrite, Key: "k", Value: "1", CreatedAt: now})
	mustAppend(t, b, Operation[string]{Kind: KindWrite, Key: "k", Value: "2", CreatedAt: now.Add(-time.Hour)})

	s := b.drainBatch(0)[0]
	if s.op.Value != "2" || !s.op.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt went backwards: %+v", s.op)
	}
}

func TestBucketWaitersCarryOver(t *testing.T) {
	b := newBucket[string](0, false, 0)
	w1, w2 := make(chan error, 1), make(chan error, 1)
	if _, err := b.append(context.Background(), WriteOp("k", "1"), w1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.append(context.Background(), WriteOp("k", "2"), w2); err != nil {
		t.Fatal(err)
	}
	s := b.drainBatch(0)[0]
	boom := errors.New("boom")
	s.resolve(boom)
	if <-w1 != boom || <-w2 != boom {
		t.Fatalf("both waiters must see the outcome of the surviving operation")
	}
}

// ==============================
// Capacity and backpressure
// ==============================

func TestBucketRejectsAtCapacity(t *testing.T) {
	b := newBucket[string](2, false, 0)
	mustAppend(t, b, WriteOp("a", "1"))
	mustAppend(t, b, WriteOp("b", "1"))

	if _, err := b.append(context.Background(), WriteOp("c", "1"), nil); err != ErrRejected {
		t.Fatalf("third distinct key: got %v want ErrRejected", err)
	}
	if !mustAppend(t, b, WriteOp("a", "2")) {
		t.Fatalf("coalescing into a pending key must succeed at capacity")
	}
	if b.size() != 2 {
		t.Fatalf("size=%d want 2", b.size())
	}
}

func TestBucketBlockingProducerResumesAfterDrain(t *testing.T) {
	b := newBucket[string](1, true, 0)
	mustAppend(t, b, WriteOp("a", "1"))

	done := make(chan error, 1)
	go func() {
		_, err := b.append(context.Background(), WriteOp("b", "1"), nil)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("append returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	b.drainBatch(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked append: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked producer was not woken by drain")
	}
	if got := keysOf(b.drainBatch(0)); len(got) != 1 || got[0] != "b" {
		t.Fatalf("pending=%v want [b]", got)
	}
}

func TestBucketBlockingHonorsContext(t *testing.T) {
	b := newBucket[string](1, true, 0)
	mustAppend(t, b, WriteOp("a", "1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.append(ctx, WriteOp("b", "1"), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v want DeadlineExceeded", err)
	}
}

func TestBucketSealWakesBlockedProducers(t *testing.T) {
	b := newBucket[string](1, true, 0)
	mustAppend(t, b, WriteOp("a", "1"))

	done := make(chan error, 1)
	go func() {
		_, err := b.append(context.Background(), WriteOp("b", "1"), nil)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	b.seal()

	select {
	case err := <-done:
		if err != ErrQueueUnavailable {
			t.Fatalf("got %v want ErrQueueUnavailable", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("seal did not wake the blocked producer")
	}
	if _, err := b.append(context.Background(), WriteOp("a", "2"), nil); err != ErrQueueUnavailable {
		t.Fatalf("sealed bucket accepted an operation: %v", err)
	}
	if b.size() != 1 {
		t.Fatalf("seal must keep pending operations for the drain")
	}
}

// ==============================
// In-flight keys and draining
// ==============================

func TestBucketInFlightKeyQueuesBehind(t *testing.T) {
	b := newBucket[string](0, false, 0)
	mustAppend(t, b, WriteOp("k", "1"))

	first := b.drainBatch(0)
	if _, ok := b.index["k"]; ok {
		t.Fatalf("drained key still indexed for coalescing")
	}
	if mustAppend(t, b, WriteOp("k", "2")) {
		t.Fatalf("an in-flight operation must not be replaced")
	}
	if first[0].op.Value != "1" {
		t.Fatalf("in-flight operation was mutated: %+v", first[0].op)
	}
	if b.index["k"] == first[0] {
		t.Fatalf("queued-behind operation reused the in-flight slot")
	}

	next := b.drainBatch(0)
	if len(next) != 1 || next[0].op.Value != "2" {
		t.Fatalf("queued-behind operation lost: %+v", next)
	}
}

func TestBucketDrainBatchLimit(t *testing.T) {
	b := newBucket[string](0, false, 0)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		mustAppend(t, b, WriteOp(k, "v"))
	}
	if got := keysOf(b.drainBatch(2)); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("first batch=%v", got)
	}
	if got := keysOf(b.drainBatch(0)); len(got) != 3 || got[0] != "c" {
		t.Fatalf("rest=%v", got)
	}
	if b.drainBatch(0) != nil {
		t.Fatalf("empty bucket must drain nil")
	}
}

func TestBucketOldestPendingAge(t *testing.T) {
	b := newBucket[string](0, false, 0)
	now := time.Now()
	if b.oldestPendingAge(now) != 0 {
		t.Fatalf("empty bucket must report age 0")
	}
	mustAppend(t, b, Operation[string]{Kind: KindWrite, Key: "a", CreatedAt: now.Add(-3 * time.Second)})
	mustAppend(t, b, Operation[string]{Kind: KindWrite, Key: "b", CreatedAt: now.Add(-time.Second)})
	if age := b.oldestPendingAge(now); age != 3*time.Second {
		t.Fatalf("age=%v want 3s", age)
	}
}

func TestBucketNudges(t *testing.T) {
	b := newBucket[string](0, false, 3)
	mustAppend(t, b, WriteOp("a", "v"))
	select {
	case <-b.ready:
	default:
		t.Fatalf("first item must nudge the worker")
	}
	mustAppend(t, b, WriteOp("b", "v"))
	select {
	case <-b.ready:
		t.Fatalf("no nudge expected below the batch size")
	default:
	}
	mustAppend(t, b, WriteOp("c", "v"))
	select {
	case <-b.ready:
	default:
		t.Fatalf("a full batch must nudge the worker")
	}
}
