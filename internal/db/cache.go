package db

import (
	"context"

	"github.com/apex/log"

	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// ListCache holds copies of the report listing, one per generation.
// Invalidate moves to a new generation; entries of older ones are never read.
type ListCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64) ([]models.FireReport, bool, error)
	Set(ctx context.Context, gen int64, reports []models.FireReport) error
	Invalidate(ctx context.Context) error
}

// CachedStore serves List from a cache and starts a new cache generation
// after every successful write. Cache failures are logged and never fail a call.
type CachedStore struct {
	Store
	cache ListCache
}

func NewCachedStore(inner Store, cache ListCache) *CachedStore {
	return &CachedStore{Store: inner, cache: cache}
}

// List reads the generation before querying the store and caches the result
// under that generation, so a write that lands mid-query makes the result
// unreachable instead of stale.
func (s *CachedStore) List(ctx context.Context) ([]models.FireReport, error) {
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		log.WithError(err).Warn("report cache unavailable")
		return s.Store.List(ctx)
	}

	reports, ok, err := s.cache.Get(ctx, gen)
	if err != nil {
		log.WithError(err).Warn("report cache read failed")
	}
	if ok {
		return reports, nil
	}

	reports, err = s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, gen, reports); err != nil {
		log.WithError(err).Warn("report cache write failed")
	}
	return reports, nil
}

func (s *CachedStore) Create(ctx context.Context, r *models.FireReport) (string, error) {
	id, err := s.Store.Create(ctx, r)
	if err == nil {
		s.invalidate(ctx)
	}
	return id, err
}

func (s *CachedStore) Update(ctx context.Context, id string, u models.ReportUpdate) (*models.FireReport, error) {
	r, err := s.Store.Update(ctx, id, u)
	if err == nil {
		s.invalidate(ctx)
	}
	return r, err
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	err := s.Store.Delete(ctx, id)
	if err == nil {
		s.invalidate(ctx)
	}
	return err
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("report cache invalidation failed")
	}
}
