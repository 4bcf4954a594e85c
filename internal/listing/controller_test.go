package listing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdesk/sheetdesk/internal/listing"
)

// ============================================================================
// STUB DATA SOURCE
// ============================================================================

type row struct {
	Key  int64
	Name string
	X    int
}

type fetchFunc func(ctx context.Context, q listing.Query) (listing.Page[row], error)

type stubSource struct {
	mu      sync.Mutex
	fetch   fetchFunc
	queries []listing.Query

	updateErr error
	deleteErr error
	createErr error

	updated []row
	deleted []int64
	created []row
}

func (s *stubSource) FetchPage(ctx context.Context, q listing.Query) (listing.Page[row], error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	fn := s.fetch
	s.mu.Unlock()
	return fn(ctx, q)
}

func (s *stubSource) UpdateItem(ctx context.Context, ownerID string, key int64, patch row) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, patch)
	return nil
}

func (s *stubSource) DeleteItem(ctx context.Context, ownerID string, key int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubSource) CreateItem(ctx context.Context, ownerID string, payload row) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, payload)
	return nil
}

func (s *stubSource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *stubSource) lastQuery() listing.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

type recordingReporter struct {
	mu       sync.Mutex
	outcomes []listing.Outcome
}

func (r *recordingReporter) Report(ctx context.Context, o listing.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingReporter) kinds() []listing.OutcomeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]listing.OutcomeKind, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		kinds = append(kinds, o.Kind)
	}
	return kinds
}

func makeRows(from int64, n int) []row {
	rows := make([]row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, row{Key: from + int64(i), Name: "row"})
	}
	return rows
}

// pagedBackend serves total rows starting at key 1000, and three rows for any
// name filter.
func pagedBackend(total int) fetchFunc {
	return func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		if q.Filters.Get(listing.FieldName) != "" {
			return listing.Page[row]{Items: makeRows(5000, 3), TotalCount: 3, Page: q.Page}, nil
		}
		start := (q.Page - 1) * q.PageSize
		n := q.PageSize
		if start+n > total {
			n = total - start
		}
		if n < 0 {
			n = 0
		}
		return listing.Page[row]{
			Items:      makeRows(int64(1000+start), n),
			TotalCount: total,
			HasMore:    q.Page*q.PageSize < total,
			Page:       q.Page,
		}, nil
	}
}

func newController(src *stubSource, rep listing.Reporter) *listing.Controller[row, int64] {
	return listing.New[row, int64](src, listing.Options[row, int64]{
		PageSize: 50,
		Key:      func(r row) int64 { return r.Key },
		Merge: func(current, patch row) row {
			current.X = patch.X
			return current
		},
		Reporter: rep,
	})
}

func keys(items []row) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.Key)
	}
	return out
}

// ============================================================================
// SCENARIOS
// ============================================================================

func TestInitializeLoadsFirstPage(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)

	require.NoError(t, ctrl.Initialize(context.Background(), "sheet-1"))

	state := ctrl.Snapshot()
	assert.Len(t, state.Items, 50)
	assert.True(t, state.HasMore)
	assert.Equal(t, 1, state.Page)
	assert.False(t, state.Loading)
	assert.Equal(t, "sheet-1", state.OwnerID)

	q := src.lastQuery()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 50, q.PageSize)
	assert.True(t, q.Filters.Empty())
}

func TestLoadMoreAppendsUntilExhausted(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	batch, err := ctrl.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, batch.Fetched)
	assert.Len(t, batch.Items, 50)
	assert.False(t, batch.HasMore)

	state := ctrl.Snapshot()
	assert.Len(t, state.Items, 100)
	assert.False(t, state.HasMore)
	assert.Equal(t, 2, state.Page)

	calls := src.queryCount()
	for i := 0; i < 5; i++ {
		batch, err := ctrl.LoadMore(ctx)
		require.NoError(t, err)
		assert.False(t, batch.Fetched)
	}
	assert.Equal(t, calls, src.queryCount(), "no fetch once hasMore is false")
}

func TestLoadMorePreservesFetchOrder(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(175)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	var expected []int64
	expected = append(expected, keys(makeRows(1000, 50))...)
	for {
		batch, err := ctrl.LoadMore(ctx)
		require.NoError(t, err)
		if !batch.Fetched {
			break
		}
		expected = append(expected, keys(batch.Items)...)
	}

	state := ctrl.Snapshot()
	assert.Equal(t, expected, keys(state.Items))
	assert.Equal(t, 4, state.Page)
	assert.Len(t, state.Items, 175)
}

func TestApplyFiltersReplacesItems(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	_, err := ctrl.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, ctrl.Snapshot().Items, 100)

	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "כהן"}))

	state := ctrl.Snapshot()
	assert.Equal(t, []int64{5000, 5001, 5002}, keys(state.Items))
	assert.Equal(t, 1, state.Page)
	assert.Equal(t, "כהן", state.Filters.Get(listing.FieldName))
	assert.Equal(t, "כהן", src.lastQuery().Filters.Get(listing.FieldName))
}

func TestApplyFiltersIgnoresBlankSet(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	calls := src.queryCount()

	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "   ", "unknown": "x"}))
	assert.Equal(t, calls, src.queryCount())
}

func TestLoadMoreCarriesActiveFilters(t *testing.T) {
	src := &stubSource{}
	src.fetch = func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		return listing.Page[row]{Items: makeRows(int64(q.Page*100), 2), HasMore: q.Page < 3, Page: q.Page}, nil
	}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldIDNumber: "2000"}))

	_, err := ctrl.LoadMore(ctx)
	require.NoError(t, err)

	q := src.lastQuery()
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, "2000", q.Filters.Get(listing.FieldIDNumber))
}

func TestClearFiltersReloadsUnfiltered(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "כהן"}))

	require.NoError(t, ctrl.ClearFilters(ctx))

	state := ctrl.Snapshot()
	assert.Equal(t, "sheet-1", state.OwnerID)
	assert.True(t, state.Filters.Empty())
	assert.Len(t, state.Items, 50)
	assert.True(t, state.HasMore)
	assert.True(t, src.lastQuery().Filters.Empty())
}

// ============================================================================
// FAILURES
// ============================================================================

func TestInitializeFailureReportsAndLeavesEmpty(t *testing.T) {
	boom := errors.New("network down")
	src := &stubSource{fetch: func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		return listing.Page[row]{}, boom
	}}
	rep := &recordingReporter{}
	ctrl := newController(src, rep)

	err := ctrl.Initialize(context.Background(), "sheet-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrFetchFailed)
	assert.ErrorIs(t, err, boom)

	state := ctrl.Snapshot()
	assert.Empty(t, state.Items)
	assert.False(t, state.Loading)
	assert.Equal(t, []listing.OutcomeKind{listing.OutcomeFetchFailed}, rep.kinds())
}

func TestApplyFiltersFailureKeepsPreviousEpoch(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	rep := &recordingReporter{}
	ctrl := newController(src, rep)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	before := ctrl.Snapshot()

	src.mu.Lock()
	src.fetch = func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		return listing.Page[row]{}, errors.New("502")
	}
	src.mu.Unlock()

	err := ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "לוי"})
	assert.ErrorIs(t, err, listing.ErrFetchFailed)

	after := ctrl.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, []listing.OutcomeKind{listing.OutcomeFetchFailed}, rep.kinds())
}

func TestDeleteItemByKey(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	require.NoError(t, ctrl.DeleteItem(ctx, 1042))

	state := ctrl.Snapshot()
	assert.Len(t, state.Items, 49)
	assert.NotContains(t, keys(state.Items), int64(1042))
	assert.Contains(t, keys(state.Items), int64(1041))
	assert.Contains(t, keys(state.Items), int64(1043))
	assert.Equal(t, []int64{1042}, src.deleted)
}

func TestDeleteItemFailureLeavesListUnchanged(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100), deleteErr: errors.New("connection reset")}
	rep := &recordingReporter{}
	ctrl := newController(src, rep)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	before := ctrl.Snapshot()

	err := ctrl.DeleteItem(ctx, 1042)
	assert.ErrorIs(t, err, listing.ErrMutationFailed)

	assert.Equal(t, before, ctrl.Snapshot())
	assert.Equal(t, []listing.OutcomeKind{listing.OutcomeMutationFailed}, rep.kinds())
}

func TestUpdateItemMergesOnlyMatchingKey(t *testing.T) {
	src := &stubSource{fetch: func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		return listing.Page[row]{Items: []row{{Key: 1, X: 0}, {Key: 2, X: 0}}, Page: 1}, nil
	}}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	require.NoError(t, ctrl.UpdateItem(ctx, 2, row{Key: 2, X: 5}))

	state := ctrl.Snapshot()
	assert.Equal(t, row{Key: 1, X: 0}, state.Items[0])
	assert.Equal(t, row{Key: 2, X: 5}, state.Items[1])
}

func TestUpdateItemFailureLeavesItem(t *testing.T) {
	src := &stubSource{
		fetch: func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
			return listing.Page[row]{Items: []row{{Key: 1}, {Key: 2}}, Page: 1}, nil
		},
		updateErr: errors.New("500"),
	}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	err := ctrl.UpdateItem(ctx, 2, row{Key: 2, X: 9})
	assert.ErrorIs(t, err, listing.ErrMutationFailed)

	item, ok := ctrl.Find(2)
	require.True(t, ok)
	assert.Equal(t, 0, item.X)
}

func TestAddItemReinitializes(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "כהן"}))
	calls := src.queryCount()

	require.NoError(t, ctrl.AddItem(ctx, row{Name: "new"}))

	assert.Equal(t, calls+1, src.queryCount())
	q := src.lastQuery()
	assert.Equal(t, 1, q.Page)
	assert.True(t, q.Filters.Empty())
	assert.Len(t, src.created, 1)
	assert.Len(t, ctrl.Snapshot().Items, 50)
}

func TestAddItemFailureSkipsReload(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100), createErr: errors.New("400")}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))
	calls := src.queryCount()

	err := ctrl.AddItem(ctx, row{Name: "new"})
	assert.ErrorIs(t, err, listing.ErrMutationFailed)
	assert.Equal(t, calls, src.queryCount())
}

// ============================================================================
// CONCURRENCY
// ============================================================================

func TestLoadMoreSingleFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	base := pagedBackend(500)
	src := &stubSource{}
	src.fetch = func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		if q.Page == 2 {
			started <- struct{}{}
			<-release
		}
		return base(ctx, q)
	}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.LoadMore(ctx)
		done <- err
	}()
	<-started
	assert.True(t, ctrl.Snapshot().Loading)

	calls := src.queryCount()
	for i := 0; i < 10; i++ {
		batch, err := ctrl.LoadMore(ctx)
		require.NoError(t, err)
		assert.False(t, batch.Fetched)
	}
	assert.Equal(t, calls, src.queryCount())

	close(release)
	require.NoError(t, <-done)
	state := ctrl.Snapshot()
	assert.Equal(t, 2, state.Page)
	assert.Len(t, state.Items, 100)
}

func TestSupersededEpochResponseIsDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	src := &stubSource{}
	src.fetch = func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		switch q.Filters.Get(listing.FieldName) {
		case "slow":
			started <- struct{}{}
			<-release
			return listing.Page[row]{Items: makeRows(9000, 5), HasMore: true, Page: 1}, nil
		case "fast":
			return listing.Page[row]{Items: makeRows(7000, 2), Page: 1}, nil
		}
		return listing.Page[row]{Items: makeRows(1000, 50), HasMore: true, Page: q.Page}, nil
	}
	rep := &recordingReporter{}
	ctrl := newController(src, rep)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "slow"})
	}()
	<-started

	require.NoError(t, ctrl.ApplyFilters(ctx, listing.Filters{listing.FieldName: "fast"}))
	close(release)

	err := <-slowDone
	assert.ErrorIs(t, err, listing.ErrStaleResponse)

	state := ctrl.Snapshot()
	assert.Equal(t, []int64{7000, 7001}, keys(state.Items))
	assert.Equal(t, "fast", state.Filters.Get(listing.FieldName))
	assert.False(t, state.HasMore)
	assert.Contains(t, rep.kinds(), listing.OutcomeStale)
}

func TestNewEpochCancelsOutstandingFetch(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{}, 1)
	src := &stubSource{}
	src.fetch = func(ctx context.Context, q listing.Query) (listing.Page[row], error) {
		if q.Page == 2 {
			started <- struct{}{}
			<-ctx.Done()
			close(cancelled)
			return listing.Page[row]{}, ctx.Err()
		}
		return listing.Page[row]{Items: makeRows(1000, 50), HasMore: true, Page: q.Page}, nil
	}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.LoadMore(ctx)
		done <- err
	}()
	<-started

	require.NoError(t, ctrl.Initialize(ctx, "sheet-2"))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("outstanding fetch was not cancelled")
	}
	assert.ErrorIs(t, <-done, listing.ErrStaleResponse)
	state := ctrl.Snapshot()
	assert.Equal(t, "sheet-2", state.OwnerID)
	assert.Equal(t, 1, state.Page)
}

func TestClosedControllerRejectsOperations(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	ctrl.Close()

	assert.ErrorIs(t, ctrl.Initialize(ctx, "sheet-1"), listing.ErrClosed)
	_, err := ctrl.LoadMore(ctx)
	assert.ErrorIs(t, err, listing.ErrClosed)
	assert.ErrorIs(t, ctrl.DeleteItem(ctx, 1000), listing.ErrClosed)
}

// ============================================================================
// SCROLL INTENT
// ============================================================================

func TestViewportNearEnd(t *testing.T) {
	cases := []struct {
		name string
		vp   listing.Viewport
		want bool
	}{
		{"far from bottom", listing.Viewport{ScrollTop: 0, ScrollHeight: 5000, ClientHeight: 600}, false},
		{"exactly one and a half viewports", listing.Viewport{ScrollTop: 4100, ScrollHeight: 5000, ClientHeight: 600}, true},
		{"at bottom", listing.Viewport{ScrollTop: 4400, ScrollHeight: 5000, ClientHeight: 600}, true},
		{"zero height", listing.Viewport{ScrollTop: 0, ScrollHeight: 0, ClientHeight: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.vp.NearEnd())
		})
	}
}

func TestNearEndTriggersLoadMore(t *testing.T) {
	src := &stubSource{fetch: pagedBackend(100)}
	ctrl := newController(src, nil)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, "sheet-1"))

	batch, err := ctrl.NearEnd(ctx, listing.Viewport{ScrollTop: 0, ScrollHeight: 5000, ClientHeight: 600})
	require.NoError(t, err)
	assert.False(t, batch.Fetched)

	batch, err = ctrl.NearEnd(ctx, listing.Viewport{ScrollTop: 4500, ScrollHeight: 5000, ClientHeight: 600})
	require.NoError(t, err)
	assert.True(t, batch.Fetched)
	assert.Equal(t, 2, batch.Page)
}
