package db

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby4mag/firewatch-backend/internal/models"
)

type countingStore struct {
	reports   []models.FireReport
	lists     int
	failWrite error
}

func (s *countingStore) Create(_ context.Context, r *models.FireReport) (string, error) {
	if s.failWrite != nil {
		return "", s.failWrite
	}
	r.ID = "new"
	s.reports = append([]models.FireReport{*r}, s.reports...)
	return r.ID, nil
}

func (s *countingStore) List(context.Context) ([]models.FireReport, error) {
	s.lists++
	return append([]models.FireReport(nil), s.reports...), nil
}

func (s *countingStore) Get(_ context.Context, id string) (*models.FireReport, error) {
	for _, r := range s.reports {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *countingStore) Update(_ context.Context, id string, u models.ReportUpdate) (*models.FireReport, error) {
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	for i := range s.reports {
		if s.reports[i].ID == id {
			u.Apply(&s.reports[i])
			r := s.reports[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *countingStore) Delete(_ context.Context, id string) error {
	for i, r := range s.reports {
		if r.ID == id {
			s.reports = append(s.reports[:i], s.reports[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

type mapCache struct {
	gen         int64
	entries     map[int64][]models.FireReport
	invalidated int
	readErr     error
	genErr      error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[int64][]models.FireReport)}
}

func (c *mapCache) Generation(context.Context) (int64, error) {
	return c.gen, c.genErr
}

func (c *mapCache) Get(_ context.Context, gen int64) ([]models.FireReport, bool, error) {
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	r, ok := c.entries[gen]
	return r, ok, nil
}

func (c *mapCache) Set(_ context.Context, gen int64, r []models.FireReport) error {
	c.entries[gen] = r
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.gen++
	c.invalidated++
	return nil
}

// pausingStore holds its first List call open after taking the snapshot
// until resume is closed.
type pausingStore struct {
	*countingStore
	once     sync.Once
	snapshot chan struct{}
	resume   chan struct{}
}

func (s *pausingStore) List(ctx context.Context) ([]models.FireReport, error) {
	reports, err := s.countingStore.List(ctx)
	s.once.Do(func() {
		close(s.snapshot)
		<-s.resume
	})
	return reports, err
}

func TestCachedStore_ListServedFromCache(t *testing.T) {
	inner := &countingStore{reports: []models.FireReport{{ID: "a"}}}
	cache := newMapCache()
	s := NewCachedStore(inner, cache)
	ctx := context.Background()

	first, err := s.List(ctx)
	require.NoError(t, err)
	second, err := s.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.lists)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	inner := &countingStore{reports: []models.FireReport{{ID: "a"}}}
	cache := newMapCache()
	s := NewCachedStore(inner, cache)
	ctx := context.Background()

	_, err := s.List(ctx)
	require.NoError(t, err)

	_, err = s.Create(ctx, &models.FireReport{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	reports, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Equal(t, 2, inner.lists)

	_, err = s.Update(ctx, "a", models.ReportUpdate{SetCount: true})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "a"))
	assert.Equal(t, 3, cache.invalidated)
}

func TestCachedStore_FailedWritesKeepCache(t *testing.T) {
	inner := &countingStore{failWrite: errors.New("mongo down")}
	cache := newMapCache()
	s := NewCachedStore(inner, cache)
	ctx := context.Background()

	_, err := s.Create(ctx, &models.FireReport{})
	assert.Error(t, err)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
	assert.Zero(t, cache.invalidated)
}

func TestCachedStore_CacheReadErrorFallsThrough(t *testing.T) {
	inner := &countingStore{reports: []models.FireReport{{ID: "a"}}}
	s := NewCachedStore(inner, &mapCache{entries: map[int64][]models.FireReport{}, readErr: errors.New("redis timeout")})

	reports, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, inner.lists)
}

func TestCachedStore_GetPassesThrough(t *testing.T) {
	inner := &countingStore{reports: []models.FireReport{{ID: "a"}}}
	s := NewCachedStore(inner, newMapCache())

	r, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", r.ID)
}

func TestCachedStore_WriteDuringListIsNotMasked(t *testing.T) {
	inner := &pausingStore{
		countingStore: &countingStore{},
		snapshot:      make(chan struct{}),
		resume:        make(chan struct{}),
	}
	cache := newMapCache()
	s := NewCachedStore(inner, cache)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		reports, err := s.List(ctx)
		if err == nil && len(reports) != 0 {
			err = errors.New("first listing should predate the create")
		}
		done <- err
	}()

	<-inner.snapshot
	_, err := s.Create(ctx, &models.FireReport{})
	require.NoError(t, err)
	close(inner.resume)
	require.NoError(t, <-done)

	reports, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestCachedStore_GenerationErrorBypassesCache(t *testing.T) {
	inner := &countingStore{reports: []models.FireReport{{ID: "a"}}}
	cache := newMapCache()
	cache.genErr = errors.New("redis down")
	s := NewCachedStore(inner, cache)

	for i := 0; i < 2; i++ {
		reports, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, reports, 1)
	}
	assert.Equal(t, 2, inner.lists)
	assert.Empty(t, cache.entries)
}
