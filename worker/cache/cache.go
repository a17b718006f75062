package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"mediaTranscode/worker/models"
)

const (
	statusKeyPrefix  = "task:status:"
	profileKeyPrefix = "profile:status:"
	cancelKeyPrefix  = "task:cancel:"
)

type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	return c.client.Set(ctx, statusKeyPrefix+taskID, string(status), 0).Err()
}

func (c *StatusCache) SetProfileStatus(ctx context.Context, taskID, profileID string, status models.ProfileStatus) error {
	return c.client.Set(ctx, profileKeyPrefix+taskID+":"+profileID, string(status), 0).Err()
}

// IsCancelRequested reports whether the api half raised the cancel flag for
// this task. Errors are treated as "not cancelled" by callers; cancellation
// is best-effort and the flag is re-checked at every stage boundary.
func (c *StatusCache) IsCancelRequested(ctx context.Context, taskID string) (bool, error) {
	n, err := c.client.Exists(ctx, cancelKeyPrefix+taskID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
