package listing

import (
	"context"
	"fmt"
	"sync"
)

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 50

// KeyFunc extracts the stable identity of an item.
type KeyFunc[T any, K comparable] func(T) K

// MergeFunc applies patch onto current and returns the merged item.
type MergeFunc[T any] func(current, patch T) T

// Options configure a Controller.
type Options[T any, K comparable] struct {
	PageSize int
	Key      KeyFunc[T, K]
	Merge    MergeFunc[T]
	Reporter Reporter
}

// Batch describes the outcome of a LoadMore call.
type Batch[T any] struct {
	Items   []T
	Page    int
	HasMore bool
	Fetched bool
}

// Controller owns the state of one incrementally loaded list. Every epoch
// (initialize or filter change) bumps a generation counter and cancels the
// previous epoch's fetch; responses carrying an older generation are dropped.
// Network calls run outside the lock, so at most one fetch per epoch is in
// flight and state only moves forward from the newest initiated epoch.
type Controller[T any, K comparable] struct {
	source   DataSource[T, K]
	key      KeyFunc[T, K]
	merge    MergeFunc[T]
	reporter Reporter
	pageSize int

	mu         sync.Mutex
	state      State[T]
	generation uint64
	inflight   bool
	cancel     context.CancelFunc
	closed     bool
}

// New builds a Controller over source. opts.Key is required.
func New[T any, K comparable](source DataSource[T, K], opts Options[T, K]) *Controller[T, K] {
	if opts.Key == nil {
		panic("listing: key func required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Merge == nil {
		opts.Merge = func(_, patch T) T { return patch }
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Controller[T, K]{
		source:   source,
		key:      opts.Key,
		merge:    opts.Merge,
		reporter: opts.Reporter,
		pageSize: opts.PageSize,
		state:    State[T]{Filters: Filters{}},
	}
}

// PageSize returns the configured page size.
func (c *Controller[T, K]) PageSize() int {
	return c.pageSize
}

// Initialize resets the list for ownerID and loads page 1 without filters.
func (c *Controller[T, K]) Initialize(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = State[T]{OwnerID: ownerID, Filters: Filters{}}
	fetchCtx, gen := c.beginLocked(ctx, true)
	q := Query{OwnerID: ownerID, Page: 1, PageSize: c.pageSize, Filters: Filters{}}
	c.mu.Unlock()

	_, err := c.run(fetchCtx, gen, "initialize", q, func(p Page[T]) {
		c.state.Items = cloneItems(p.Items)
		c.state.HasMore = p.HasMore
		c.state.Page = 1
	})
	return err
}

// ApplyFilters starts a new epoch with filters and replaces the loaded items
// on success. An empty filter set is ignored; use ClearFilters instead. On
// failure the previous items, page and filters stay in place.
func (c *Controller[T, K]) ApplyFilters(ctx context.Context, filters Filters) error {
	filters = filters.Normalize()
	if filters.Empty() {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fetchCtx, gen := c.beginLocked(ctx, true)
	q := Query{OwnerID: c.state.OwnerID, Page: 1, PageSize: c.pageSize, Filters: filters}
	c.mu.Unlock()

	_, err := c.run(fetchCtx, gen, "apply_filters", q, func(p Page[T]) {
		c.state.Items = cloneItems(p.Items)
		c.state.HasMore = p.HasMore
		c.state.Page = 1
		c.state.Filters = filters.Clone()
	})
	return err
}

// ClearFilters drops every filter and reloads page 1 for the current owner.
func (c *Controller[T, K]) ClearFilters(ctx context.Context) error {
	c.mu.Lock()
	owner := c.state.OwnerID
	c.mu.Unlock()
	return c.Initialize(ctx, owner)
}

// LoadMore fetches the next page of the current epoch and appends it. It is a
// no-op while a fetch is in flight or once the list is exhausted.
func (c *Controller[T, K]) LoadMore(ctx context.Context) (Batch[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Batch[T]{}, ErrClosed
	}
	if !c.state.HasMore || c.inflight {
		batch := Batch[T]{Page: c.state.Page, HasMore: c.state.HasMore}
		c.mu.Unlock()
		return batch, nil
	}
	fetchCtx, gen := c.beginLocked(ctx, false)
	next := c.state.Page + 1
	q := Query{OwnerID: c.state.OwnerID, Page: next, PageSize: c.pageSize, Filters: c.state.Filters.Clone()}
	c.mu.Unlock()

	page, err := c.run(fetchCtx, gen, "load_more", q, func(p Page[T]) {
		c.state.Items = append(c.state.Items, p.Items...)
		c.state.HasMore = p.HasMore
		c.state.Page = next
	})
	if err != nil {
		return Batch[T]{}, err
	}
	return Batch[T]{Items: cloneItems(page.Items), Page: next, HasMore: page.HasMore, Fetched: true}, nil
}

// NearEnd is the scroll intent: it loads more when vp is within 1.5 viewport
// heights of the bottom.
func (c *Controller[T, K]) NearEnd(ctx context.Context, vp Viewport) (Batch[T], error) {
	if !vp.NearEnd() {
		snap := c.Snapshot()
		return Batch[T]{Page: snap.Page, HasMore: snap.HasMore}, nil
	}
	return c.LoadMore(ctx)
}

// UpdateItem pushes patch for key and merges it into the loaded item with
// the same key once the remote call succeeds.
func (c *Controller[T, K]) UpdateItem(ctx context.Context, key K, patch T) error {
	owner, err := c.owner()
	if err != nil {
		return err
	}
	if err := c.source.UpdateItem(ctx, owner, key, patch); err != nil {
		return c.mutationFailed(ctx, "update", owner, key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.OwnerID != owner {
		return nil
	}
	for i, item := range c.state.Items {
		if c.key(item) == key {
			c.state.Items[i] = c.merge(item, patch)
		}
	}
	return nil
}

// DeleteItem removes key remotely and then from the loaded items.
func (c *Controller[T, K]) DeleteItem(ctx context.Context, key K) error {
	owner, err := c.owner()
	if err != nil {
		return err
	}
	if err := c.source.DeleteItem(ctx, owner, key); err != nil {
		return c.mutationFailed(ctx, "delete", owner, key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.OwnerID != owner {
		return nil
	}
	kept := make([]T, 0, len(c.state.Items))
	for _, item := range c.state.Items {
		if c.key(item) != key {
			kept = append(kept, item)
		}
	}
	c.state.Items = kept
	return nil
}

// AddItem creates payload remotely and reloads the list from page 1 so server
// assigned fields and counts are picked up.
func (c *Controller[T, K]) AddItem(ctx context.Context, payload T) error {
	owner, err := c.owner()
	if err != nil {
		return err
	}
	if err := c.source.CreateItem(ctx, owner, payload); err != nil {
		err = fmt.Errorf("%w: create: %w", ErrMutationFailed, err)
		c.reporter.Report(ctx, Outcome{Kind: OutcomeMutationFailed, Op: "create", OwnerID: owner, Err: err})
		return err
	}
	return c.Initialize(ctx, owner)
}

// Find returns the loaded item with key.
func (c *Controller[T, K]) Find(key K) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.state.Items {
		if c.key(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a copy of the current state safe to read concurrently.
func (c *Controller[T, K]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = cloneItems(c.state.Items)
	s.Filters = c.state.Filters.Clone()
	return s
}

// Close cancels any outstanding fetch. Responses arriving afterwards are
// discarded and further operations return ErrClosed.
func (c *Controller[T, K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inflight = false
	c.state.Loading = false
}

// beginLocked marks a fetch in flight. A new epoch bumps the generation and
// cancels the previous epoch's fetch. Callers must hold c.mu.
func (c *Controller[T, K]) beginLocked(parent context.Context, newEpoch bool) (context.Context, uint64) {
	if newEpoch {
		c.generation++
		if c.cancel != nil {
			c.cancel()
		}
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.inflight = true
	c.state.Loading = true
	return ctx, c.generation
}

// run performs the fetch and applies it under the lock if gen is still
// current.
func (c *Controller[T, K]) run(ctx context.Context, gen uint64, op string, q Query, apply func(Page[T])) (Page[T], error) {
	page, fetchErr := c.source.FetchPage(ctx, q)
	reportCtx := context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		err := fmt.Errorf("%w: %s page %d", ErrStaleResponse, op, q.Page)
		c.reporter.Report(reportCtx, Outcome{Kind: OutcomeStale, Op: op, OwnerID: q.OwnerID, Err: err})
		return Page[T]{}, err
	}
	c.inflight = false
	c.state.Loading = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if fetchErr != nil {
		c.mu.Unlock()
		err := fmt.Errorf("%w: %s page %d: %w", ErrFetchFailed, op, q.Page, fetchErr)
		c.reporter.Report(reportCtx, Outcome{Kind: OutcomeFetchFailed, Op: op, OwnerID: q.OwnerID, Err: err})
		return Page[T]{}, err
	}
	apply(page)
	c.mu.Unlock()
	return page, nil
}

func (c *Controller[T, K]) owner() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	return c.state.OwnerID, nil
}

func (c *Controller[T, K]) mutationFailed(ctx context.Context, op, owner string, key K, cause error) error {
	err := fmt.Errorf("%w: %s %v: %w", ErrMutationFailed, op, key, cause)
	c.reporter.Report(ctx, Outcome{Kind: OutcomeMutationFailed, Op: op, OwnerID: owner, Err: err})
	return err
}

func cloneItems[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
