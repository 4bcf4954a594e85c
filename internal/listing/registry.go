package listing

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Registry keeps one Controller per key (typically session and owner) and
// closes controllers that have been idle longer than the TTL.
type Registry[T any, K comparable] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry[T, K]
}

type registryEntry[T any, K comparable] struct {
	controller *Controller[T, K]
	lastUsed   time.Time
}

// NewRegistry constructs a Registry. A non-positive ttl defaults to 30
// minutes.
func NewRegistry[T any, K comparable](ttl time.Duration) *Registry[T, K] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry[T, K]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*registryEntry[T, K]),
	}
}

// Get returns the controller for key, building it with create when missing.
// created is true when the caller must Initialize it.
func (r *Registry[T, K]) Get(key string, create func() *Controller[T, K]) (ctrl *Controller[T, K], created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		entry.lastUsed = r.now()
		return entry.controller, false
	}
	ctrl = create()
	r.entries[key] = &registryEntry[T, K]{controller: ctrl, lastUsed: r.now()}
	return ctrl, true
}

// Lookup returns the controller for key without creating one.
func (r *Registry[T, K]) Lookup(key string) (*Controller[T, K], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	entry.lastUsed = r.now()
	return entry.controller, true
}

// Remove closes and forgets the controller for key.
func (r *Registry[T, K]) Remove(key string) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if ok {
		entry.controller.Close()
	}
}

// RemovePrefix closes and forgets every controller whose key starts with
// prefix, returning how many were removed.
func (r *Registry[T, K]) RemovePrefix(prefix string) int {
	var removed []*Controller[T, K]
	r.mu.Lock()
	for key, entry := range r.entries {
		if strings.HasPrefix(key, prefix) {
			removed = append(removed, entry.controller)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()
	for _, ctrl := range removed {
		ctrl.Close()
	}
	return len(removed)
}

// Len returns the number of live controllers.
func (r *Registry[T, K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes controllers idle for longer than the TTL and returns how many
// were evicted.
func (r *Registry[T, K]) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var evicted []*Controller[T, K]

	r.mu.Lock()
	for key, entry := range r.entries {
		if entry.lastUsed.Before(cutoff) {
			evicted = append(evicted, entry.controller)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, ctrl := range evicted {
		ctrl.Close()
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is cancelled, then closes everything.
func (r *Registry[T, K]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry[T, K]) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry[T, K])
	r.mu.Unlock()
	for _, entry := range entries {
		entry.controller.Close()
	}
}
