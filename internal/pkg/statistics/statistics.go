package statistics

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/cache"
)

const (
	CacheKeyOverview = "statistics:overview"
	CacheExpiration  = 5 * time.Minute
)

// Statistics serves the admin dashboard totals, cached for a few minutes.
type Statistics struct {
	stats repository.StatsRepository
	cache *cache.Cache
}

func New(stats repository.StatsRepository, c *cache.Cache) *Statistics {
	return &Statistics{stats: stats, cache: c}
}

// Overview returns the totals from cache or database. Cache errors fall
// through to the database.
func (s *Statistics) Overview(ctx context.Context) (*repository.Overview, error) {
	var cached repository.Overview
	hit, err := s.cache.GetJSON(ctx, CacheKeyOverview, &cached)
	if err != nil {
		log.Warnf("statistics cache read failed: %v", err)
	}
	if hit {
		return &cached, nil
	}

	overview, err := s.stats.Overview(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, CacheKeyOverview, overview, CacheExpiration); err != nil {
		log.Warnf("statistics cache write failed: %v", err)
	}
	return overview, nil
}

// Invalidate drops the cached totals after a write that changes them.
func (s *Statistics) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, CacheKeyOverview); err != nil {
		log.Warnf("statistics cache invalidation failed: %v", err)
	}
}
