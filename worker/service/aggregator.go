package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mediaTranscode/worker/models"
	"mediaTranscode/worker/repository"
)

// Aggregator recomputes the task status from the full profile snapshot after
// every profile transition. It is the sole writer of task status. The
// terminal transition is applied as a compare-and-set in the store, so two
// workers finishing at the same instant cannot both claim the callback.
type Aggregator struct {
	repo      repository.Repository
	cache     StatusCache
	callbacks *CallbackDispatcher
	logger    *zap.Logger
}

func NewAggregator(repo repository.Repository, statusCache StatusCache, callbacks *CallbackDispatcher, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		repo:      repo,
		cache:     statusCache,
		callbacks: callbacks,
		logger:    logger,
	}
}

func (a *Aggregator) Recompute(ctx context.Context, taskID string) error {
	profiles, err := a.repo.ListProfiles(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	status := AggregateStatus(profiles)

	owned, err := a.repo.TransitionTaskStatus(ctx, taskID, status, status.IsTerminal())
	if err != nil {
		return fmt.Errorf("transition task status: %w", err)
	}

	if err := a.cache.SetTaskStatus(ctx, taskID, status); err != nil {
		a.logger.Warn("Failed to update task status cache",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}

	if !owned {
		return nil
	}

	a.logger.Info("Task reached terminal status",
		zap.String("task_id", taskID),
		zap.String("status", string(status)),
	)
	a.callbacks.Deliver(ctx, taskID, status, profiles)
	return nil
}

// AggregateStatus derives the task status from one profile snapshot.
func AggregateStatus(profiles []models.ProfileState) models.TaskStatus {
	if len(profiles) == 0 {
		return models.StatusPending
	}

	completed, failed := 0, 0
	for _, p := range profiles {
		switch p.Status {
		case models.ProfileCompleted:
			completed++
		case models.ProfileFailed:
			failed++
		default:
			return models.StatusProcessing
		}
	}

	switch {
	case failed == 0:
		return models.StatusCompleted
	case completed == 0:
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}
