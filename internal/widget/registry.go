package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/common"
)

// Factory mounts a controller for an embed configuration.
type Factory func(cfg EmbedConfig) (*Controller, error)

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry holds the mounted widgets of a host server, keyed by widget
// session id. Sessions idle for longer than ttl count as unmounted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	factory Factory
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry(factory Factory, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *Registry) Mount(cfg EmbedConfig) (string, *Controller, error) {
	ctrl, err := r.factory(cfg)
	if err != nil {
		return "", nil, err
	}
	id, err := common.NewULID()
	if err != nil {
		return "", nil, fmt.Errorf("widget: session id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &registryEntry{ctrl: ctrl, lastSeen: r.now()}
	return id, ctrl, nil
}

// Get returns the controller for id and marks it active.
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.ctrl, true
}

func (r *Registry) Unmount(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep unmounts idle sessions and returns how many were dropped. A request
// still in flight for a dropped session settles into the orphaned controller.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.DebugContext(ctx, "widget sessions expired", "count", n, "active", r.Len())
			}
		}
	}
}
