package repository

import (
	"context"
	"errors"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/pkg/cache"
	"SpotAgent/pkg/logger"
)

const statusKey = "status:latest"

// StatusCache keeps the last published snapshot in the shared cache so a
// restarted process can answer status before its first tick.
type StatusCache struct {
	c   cache.Service
	ttl time.Duration
	l   *logger.Logger
}

func NewStatusCache(c cache.Service, ttl time.Duration, l *logger.Logger) *StatusCache {
	if l == nil {
		l = logger.Nop()
	}
	return &StatusCache{c: c, ttl: ttl, l: l}
}

// PublishStatus is best-effort; a cache outage never reaches the agent.
func (s *StatusCache) PublishStatus(ctx context.Context, snap models.StatusSnapshot) {
	if err := s.c.Set(ctx, statusKey, snap, s.ttl); err != nil {
		s.l.Warn("cache status snapshot", logger.Error(err))
	}
}

func (s *StatusCache) LatestStatus(ctx context.Context) (models.StatusSnapshot, bool, error) {
	var snap models.StatusSnapshot
	err := s.c.Get(ctx, statusKey, &snap)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return models.StatusSnapshot{}, false, nil
	case err != nil:
		return models.StatusSnapshot{}, false, err
	}
	return snap, true, nil
}
