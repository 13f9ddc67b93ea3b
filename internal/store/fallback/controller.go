// Package fallback provides a tiered DocStore: a primary remote backend with
// automatic demotion to a local backend on connectivity failures.
package fallback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	"github.com/noterag/noterag/internal/store"
)

// Mode identifies which backend currently serves traffic.
type Mode string

const (
	// ModePrimary means the remote backend is healthy and serving.
	ModePrimary Mode = "primary"
	// ModeDegraded means the controller has demoted to the local backend.
	// There is no automatic re-promotion within a process lifetime.
	ModeDegraded Mode = "degraded"
)

// maxAttempts bounds every operation to one primary try plus one local replay.
const maxAttempts = 2

// modeReporter receives mode transitions, typically a metrics gauge.
type modeReporter interface {
	SetStoreMode(mode string)
}

// Compile-time check: Controller implements store.DocStore.
var _ store.DocStore = (*Controller)(nil)

// Controller routes DocStore operations to the active backend and demotes the
// primary on connectivity-class errors. Demotion is one-way: once degraded, the
// controller stays on the local backend until restart.
type Controller struct {
	primary store.DocStore
	local   store.DocStore
	logger  *zap.Logger
	metrics modeReporter

	mu        sync.RWMutex
	degraded  bool
	localInit bool
}

// New creates a controller over a primary and a local backend. The metrics
// reporter may be nil.
func New(primary, local store.DocStore, logger *zap.Logger, metrics modeReporter) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		primary: primary,
		local:   local,
		logger:  logger,
		metrics: metrics,
	}
}

// Mode reports the current serving mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.degraded {
		return ModeDegraded
	}
	return ModePrimary
}

// Init initializes the active backend. A connectivity failure during primary
// init demotes immediately and initializes the local backend instead.
func (c *Controller) Init(ctx context.Context) error {
	if c.Mode() == ModeDegraded {
		return c.initLocal(ctx)
	}

	err := c.primary.Init(ctx)
	if err == nil {
		if c.metrics != nil {
			c.metrics.SetStoreMode(string(ModePrimary))
		}
		return nil
	}
	if !domain.IsConnectivity(err) {
		return err
	}

	c.demote(err)
	return c.initLocal(ctx)
}

func (c *Controller) initLocal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localInit {
		return nil
	}
	if err := c.local.Init(ctx); err != nil {
		return err
	}
	c.localInit = true
	return nil
}

// demote switches to degraded mode. Check-and-set under the lock so concurrent
// failures log the transition once.
func (c *Controller) demote(cause error) {
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	c.mu.Unlock()

	if already {
		return
	}
	c.logger.Warn("primary store unavailable, demoting to local backend",
		zap.Error(cause),
	)
	if c.metrics != nil {
		c.metrics.SetStoreMode(string(ModeDegraded))
	}
}

// run executes op against the active backend, demoting and replaying against
// the local backend at most once when the primary fails with a connectivity
// error. No recursion: the attempt loop is explicitly bounded.
func (c *Controller) run(ctx context.Context, op func(s store.DocStore) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		backend := c.active()
		err := op(backend)
		if err == nil {
			return nil
		}
		lastErr = err

		if backend != c.primary || !domain.IsConnectivity(err) {
			return err
		}
		c.demote(err)
		if err := c.initLocal(ctx); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Controller) active() store.DocStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.degraded {
		return c.local
	}
	return c.primary
}

func (c *Controller) Add(ctx context.Context, n note.Note) error {
	return c.run(ctx, func(s store.DocStore) error {
		return s.Add(ctx, n)
	})
}

func (c *Controller) Update(ctx context.Context, n note.Note) error {
	return c.run(ctx, func(s store.DocStore) error {
		return s.Update(ctx, n)
	})
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.run(ctx, func(s store.DocStore) error {
		return s.Delete(ctx, id)
	})
}

func (c *Controller) Get(ctx context.Context, id string) (note.Note, error) {
	var n note.Note
	err := c.run(ctx, func(s store.DocStore) error {
		var opErr error
		n, opErr = s.Get(ctx, id)
		return opErr
	})
	return n, err
}

func (c *Controller) All(ctx context.Context) ([]note.Note, error) {
	var notes []note.Note
	err := c.run(ctx, func(s store.DocStore) error {
		var opErr error
		notes, opErr = s.All(ctx)
		return opErr
	})
	return notes, err
}

func (c *Controller) Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]store.Hit, error) {
	var hits []store.Hit
	err := c.run(ctx, func(s store.DocStore) error {
		var opErr error
		hits, opErr = s.Query(ctx, vector, limit, threshold)
		return opErr
	})
	return hits, err
}

func (c *Controller) Count(ctx context.Context) (int, error) {
	var n int
	err := c.run(ctx, func(s store.DocStore) error {
		var opErr error
		n, opErr = s.Count(ctx)
		return opErr
	})
	return n, err
}

func (c *Controller) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.run(ctx, func(s store.DocStore) error {
		var opErr error
		ids, opErr = s.ListIDs(ctx)
		return opErr
	})
	return ids, err
}
