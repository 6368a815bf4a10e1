package repository

import (
	"context"
	"fmt"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/cache"
)

// CachedMetricStore decorates a MetricStore with a short-TTL read cache on
// the hot Latest path. Writes pass through untouched; staleness is bounded
// by the TTL, which should stay well under the pipeline flush interval
// multiple the readers care about.
type CachedMetricStore struct {
	domrepo.MetricStore
	cache cache.Service
	ttl   time.Duration
}

// NewCachedMetricStore wraps inner with a read cache.
func NewCachedMetricStore(inner domrepo.MetricStore, c cache.Service, ttl time.Duration) *CachedMetricStore {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &CachedMetricStore{MetricStore: inner, cache: c, ttl: ttl}
}

// Latest serves from cache when possible, falling back to the inner store.
// Cache failures degrade to a direct read, never to an error.
func (s *CachedMetricStore) Latest(ctx context.Context, symbol, timeframe string, n int) ([]*models.MetricRow, error) {
	key := fmt.Sprintf("quantboard:metrics:latest:%s:%s:%d", symbol, timeframe, n)

	var cached []*models.MetricRow
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	rows, err := s.MetricStore.Latest(ctx, symbol, timeframe, n)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, rows, s.ttl)
	return rows, nil
}
