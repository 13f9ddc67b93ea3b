// Package dedupe collapses duplicate requests: concurrent identical calls share
// one execution, and completed results are replayed within a TTL window.
package dedupe

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   any
	expires time.Time
}

// Deduplicator combines in-flight coalescing (singleflight) with a short-lived
// result window. Expiry is time-based from completion, not sliding: a replayed
// hit does not extend the window.
type Deduplicator struct {
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	recent map[string]entry
}

// New creates a deduplicator with the given replay window.
func New(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		ttl:    ttl,
		now:    time.Now,
		recent: make(map[string]entry),
	}
}

// Do runs fn for key unless an identical call completed within the TTL window,
// in which case the stored result is returned with reused=true. Concurrent
// callers for the same key share a single fn execution. Errors are never cached.
func (d *Deduplicator) Do(key string, fn func() (any, error)) (value any, reused bool, err error) {
	if v, ok := d.lookup(key); ok {
		return v, true, nil
	}

	v, err, shared := d.group.Do(key, func() (any, error) {
		// Recheck: another caller may have finished and stored while we waited.
		if v, ok := d.lookup(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		d.store(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, shared, nil
}

// Forget drops the stored result for key so the next call executes fresh.
func (d *Deduplicator) Forget(key string) {
	d.group.Forget(key)
	d.mu.Lock()
	delete(d.recent, key)
	d.mu.Unlock()
}

func (d *Deduplicator) lookup(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.recent[key]
	if !ok {
		return nil, false
	}
	if d.now().After(e.expires) {
		delete(d.recent, key)
		return nil, false
	}
	return e.value, true
}

func (d *Deduplicator) store(key string, v any) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	// Lazy sweep keeps the map bounded without a background goroutine.
	for k, e := range d.recent {
		if now.After(e.expires) {
			delete(d.recent, k)
		}
	}
	d.recent[key] = entry{value: v, expires: now.Add(d.ttl)}
}
