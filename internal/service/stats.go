package service

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/cache"
	"github.com/joeblew999/plat-patch/internal/patch"
)

// StatsService answers visible-patch summaries, consulting a cache first.
type StatsService struct {
	patches   *PatchService
	cache     cache.Cache
	namespace string
}

// NewStatsService creates a stats service; a nil cache disables caching.
// Cache keys are prefixed with namespace, see cache.Namespace.
func NewStatsService(patches *PatchService, c cache.Cache, namespace string) *StatsService {
	if c == nil {
		c = cache.Nop{}
	}
	return &StatsService{patches: patches, cache: c, namespace: namespace}
}

// Visible summarises the patches rendered in a viewport under pred.
func (s *StatsService) Visible(ctx context.Context, viewport orb.Bound, zoom float64, pred patch.Predicate) patch.Summary {
	key := cache.Key(s.namespace, pred, viewport, int(viewportZoom(viewport, zoom)))
	if sum, ok := s.cache.Get(ctx, key); ok {
		return sum
	}
	sum := s.patches.Visible(viewport, zoom, pred)
	s.cache.Set(ctx, key, sum)
	return sum
}
