package writebehind

import "context"

// Entry is one key/value pair of a WriteAll batch.
type Entry[V any] struct {
	Key   string
	Value V
}

// Writer is the backing system of record. The queue calls exactly these four
// methods; a returned error (or a panic) counts as a failed attempt.
// Calls for one bucket are sequential; calls for different buckets may run
// concurrently, so implementations must be safe for concurrent use.
type Writer[V any] interface {
	Write(ctx context.Context, key string, value V) error
	WriteAll(ctx context.Context, entries []Entry[V]) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context, keys []string) error
}

// WriterFuncs adapts plain functions to Writer. A nil WriteAll/DeleteAll
// falls back to calling Write/Delete per item; a nil Write/Delete is a no-op.
type WriterFuncs[V any] struct {
	WriteFn     func(ctx context.Context, key string, value V) error
	WriteAllFn  func(ctx context.Context, entries []Entry[V]) error
	DeleteFn    func(ctx context.Context, key string) error
	DeleteAllFn func(ctx context.Context, keys []string) error
}

var _ Writer[struct{}] = WriterFuncs[struct{}]{}

func (w WriterFuncs[V]) Write(ctx context.Context, key string, value V) error {
	if w.WriteFn == nil {
		return nil
	}
	return w.WriteFn(ctx, key, value)
}

func (w WriterFuncs[V]) WriteAll(ctx context.Context, entries []Entry[V]) error {
	if w.WriteAllFn != nil {
		return w.WriteAllFn(ctx, entries)
	}
	for _, e := range entries {
		if err := w.Write(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (w WriterFuncs[V]) Delete(ctx context.Context, key string) error {
	if w.DeleteFn == nil {
		return nil
	}
	return w.DeleteFn(ctx, key)
}

func (w WriterFuncs[V]) DeleteAll(ctx context.Context, keys []string) error {
	if w.DeleteAllFn != nil {
		return w.DeleteAllFn(ctx, keys)
	}
	for _, k := range keys {
		if err := w.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
