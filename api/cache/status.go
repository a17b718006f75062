package cache

import (
	"context"
	"fmt"
	"time"

	"mediaTranscode/api/database"
	"mediaTranscode/api/models"
)

const (
	statusKeyPrefix = "task:status:"
	cancelKeyPrefix = "task:cancel:"
	statusTTL       = 10 * time.Minute
	cancelTTL       = 24 * time.Hour
)

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) Get(ctx context.Context, taskID string) (models.TaskStatus, error) {
	data, err := sc.cache.Get(ctx, statusKeyPrefix+taskID)
	if err != nil {
		return "", err
	}
	return models.TaskStatus(data), nil
}

func (sc *StatusCache) Set(ctx context.Context, taskID string, status models.TaskStatus) error {
	return sc.cache.Set(ctx, statusKeyPrefix+taskID, string(status), statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, taskID string) error {
	return sc.cache.Del(ctx, statusKeyPrefix+taskID)
}

// RequestCancel raises the cancel flag watched by workers at every stage
// boundary. The flag expires on its own; cancelled tasks reach a terminal
// status long before that.
func (sc *StatusCache) RequestCancel(ctx context.Context, taskID string) error {
	return sc.cache.Set(ctx, cancelKeyPrefix+taskID, "1", cancelTTL)
}

func (sc *StatusCache) IsCancelRequested(ctx context.Context, taskID string) (bool, error) {
	ok, err := sc.cache.Exists(ctx, cancelKeyPrefix+taskID)
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return ok, nil
}
