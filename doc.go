// Package writebehind implements an asynchronous write-behind queue for
// caches: mutations are accepted immediately and reach the backing system
// of record later, ordered per key, coalesced, optionally batched, rate
// limited and retried.
//
// Components:
//   - Coordinator[V]: owns the buckets and their workers; Enqueue, Start, Stop.
//   - bucket: one shard of the queue. FIFO of distinct pending keys; a new
//     operation for a pending key replaces it (last writer wins).
//   - Writer[V]: the backing store. Only Write, WriteAll, Delete and
//     DeleteAll are ever called.
//   - Cache[V]: an optional cache front that keeps live entries in a
//     provider.Provider as snapshot frames and feeds the Coordinator.
//
// Routing: a key always lands in bucket xxhash(key) mod Concurrency, and a
// bucket is served by exactly one worker, so operations on one key reach
// the writer in the order they were accepted.
//
// Lifecycle:
//
//	q, _ := writebehind.New[User](writebehind.Options[User]{Writer: w, Config: cfg})
//	_ = q.Start()
//	_ = q.Put(ctx, "user:1", u)   // returns at once unless SynchronousWrite
//	_ = q.Stop(5 * time.Second)   // drain, then discard what is left
//
// Operations still queued when the process dies are lost; the queue keeps
// no log of its own.
package writebehind
