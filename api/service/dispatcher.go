package service

import (
	"context"

	"go.uber.org/zap"

	"mediaTranscode/api/kafka"
	"mediaTranscode/api/models"
	"mediaTranscode/api/repository"
)

// Dispatcher fans a persisted task out into independent per-profile work
// messages. Failure isolation is per profile: a message that cannot be
// published marks only its own profile failed, siblings dispatch normally.
// When any publish fails, the task status is recomputed here, since no
// worker will ever write for those profiles.
type Dispatcher struct {
	producer kafka.Producer
	repo     repository.Repository
	notifier *Notifier
	topic    string
	logger   *zap.Logger
}

func NewDispatcher(producer kafka.Producer, repo repository.Repository, notifier *Notifier, topic string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		producer: producer,
		repo:     repo,
		notifier: notifier,
		topic:    topic,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task, profiles []*models.Profile, dest models.OutputDestinationConfig, faceDetection bool) {
	failures := 0
	for _, p := range profiles {
		msg := &kafka.ProfileTaskMessage{
			TaskID:        task.ID,
			TraceID:       task.TraceID,
			ProfileID:     p.ProfileID,
			SourceLocator: task.SourceLocator,
			InputType:     p.InputType,
			FaceDetection: faceDetection,
			Config:        p.Config,
			DestConfig:    dest,
		}

		if err := d.producer.SendProfileTask(ctx, d.topic, msg); err != nil {
			d.logger.Error("Failed to publish profile task",
				zap.String("task_id", task.ID),
				zap.String("profile_id", p.ProfileID),
				zap.Error(err),
			)
			// The profile must not stay silently pending forever.
			if ferr := d.repo.FailProfile(ctx, task.ID, p.ProfileID, models.ErrKindDispatch, err.Error()); ferr != nil {
				d.logger.Error("Failed to record dispatch failure",
					zap.String("task_id", task.ID),
					zap.String("profile_id", p.ProfileID),
					zap.Error(ferr),
				)
			}
			failures++
			continue
		}

		d.logger.Info("Profile task dispatched",
			zap.String("task_id", task.ID),
			zap.String("profile_id", p.ProfileID),
		)
	}

	if failures > 0 {
		d.recompute(ctx, task)
	}
}

// recompute aggregates the profile snapshot after dispatch failures. If
// every profile failed to publish the task is terminal here and the winning
// CAS write owns the callback; otherwise the dispatched profiles keep the
// task in flight and the workers take over aggregation.
func (d *Dispatcher) recompute(ctx context.Context, task *models.Task) {
	profiles, err := d.repo.ListProfiles(ctx, task.ID)
	if err != nil {
		d.logger.Error("Failed to list profiles after dispatch failure",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}

	status := aggregateStatus(profiles)
	owned, err := d.repo.TransitionTaskStatus(ctx, task.ID, status, status.IsTerminal())
	if err != nil {
		d.logger.Error("Failed to transition task status after dispatch failure",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}

	if !owned {
		return
	}

	d.logger.Warn("Task reached terminal status at dispatch",
		zap.String("task_id", task.ID),
		zap.String("status", string(status)),
	)
	d.notifier.Deliver(ctx, task, status, profiles)
}

func aggregateStatus(profiles []*models.Profile) models.TaskStatus {
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
