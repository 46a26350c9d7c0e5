package version

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	v       uint64
	touched time.Time
}

// Local keeps versions in-process. With a positive sweep interval and
// retention a background goroutine prunes keys that have not been bumped
// for retention. A pruned key reads as 0, which only makes older snapshots
// look stale, never newer ones.
type Local struct {
	mu      sync.RWMutex
	entries map[string]localEntry

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ Store = (*Local)(nil)

func NewLocal(sweep, retention time.Duration) *Local {
	s := &Local{entries: make(map[string]localEntry)}
	if sweep > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.sweeper(sweep, retention)
	}
	return s
}

func (s *Local) sweeper(every, retention time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Current(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	return e.v, nil
}

// CurrentMany reads every key under one read lock.
func (s *Local) CurrentMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		out[k] = s.entries[k].v
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.entries[key]
	e.v++
	e.touched = now
	s.entries[key] = e
	s.mu.Unlock()
	return e.v, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.entries {
		if e.touched.Before(cutoff) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the sweeper. Safe to call more than once.
func (s *Local) Close(context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
