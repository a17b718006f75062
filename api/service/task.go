package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaTranscode/api/cache"
	"mediaTranscode/api/dto"
	"mediaTranscode/api/models"
	"mediaTranscode/api/repository"
)

// ErrTaskFinished is returned when an operation targets a task that already
// reached a terminal status.
var ErrTaskFinished = errors.New("task already reached a terminal status")

type TaskService struct {
	repo       repository.Repository
	cache      *cache.StatusCache
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewTaskService(repo repository.Repository, cache *cache.StatusCache, dispatcher *Dispatcher, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:       repo,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SubmitTask persists the task with all profiles pending, then fans it out
// into one work message per profile. The configuration snapshots taken here
// are what the workers will see; later template edits cannot reach in-flight
// work.
func (s *TaskService) SubmitTask(ctx context.Context, traceID string, req *dto.SubmitTaskRequest) (*dto.SubmitTaskResponse, error) {
	faceStatus := models.FaceDetectionNotRequested
	if req.FaceDetection {
		faceStatus = models.FaceDetectionPending
	}

	task := &models.Task{
		ID:                  uuid.New().String(),
		TraceID:             traceID,
		SourceLocator:       req.SourceURL,
		Status:              models.StatusPending,
		CallbackURL:         req.CallbackURL,
		FaceDetectionStatus: faceStatus,
	}

	profiles := make([]*models.Profile, 0, len(req.Profiles))
	for _, spec := range req.Profiles {
		profiles = append(profiles, &models.Profile{
			TaskID:    task.ID,
			ProfileID: spec.IDProfile,
			InputType: spec.InputType,
			Config:    *spec.Config,
			Status:    models.ProfilePending,
		})
	}

	if err := s.repo.CreateTaskWithProfiles(ctx, task, profiles); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	if err := s.cache.Set(ctx, task.ID, models.StatusPending); err != nil {
		s.logger.Warn("Failed to seed status cache",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}

	s.dispatcher.Dispatch(ctx, task, profiles, *req.S3OutputConfig, req.FaceDetection)

	return &dto.SubmitTaskResponse{
		TaskID:  task.ID,
		TraceID: traceID,
		Status:  string(models.StatusPending),
	}, nil
}

// GetTaskStatus always reads the store so callers see the most recently
// recorded state, including partial results while siblings are in flight.
func (s *TaskService) GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskStatusResponse, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, dto.ErrTaskNotFound
		}
		return nil, err
	}

	profiles, err := s.repo.ListProfiles(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, task.ID, task.Status)

	return s.toResponse(task, profiles), nil
}

// CancelTask raises the cancel flag for a non-terminal task. Workers pick it
// up at the next stage boundary and fail the remaining profiles.
func (s *TaskService) CancelTask(ctx context.Context, taskID string) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return dto.ErrTaskNotFound
		}
		return err
	}

	if task.Status.IsTerminal() {
		return ErrTaskFinished
	}

	if err := s.cache.RequestCancel(ctx, taskID); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}

	s.logger.Info("Task cancellation requested",
		zap.String("task_id", taskID),
	)
	return nil
}

func (s *TaskService) toResponse(task *models.Task, profiles []*models.Profile) *dto.TaskStatusResponse {
	var completedAt *string
	if task.CompletedAt != nil {
		formatted := task.CompletedAt.Format("2006-01-02T15:04:05Z")
		completedAt = &formatted
	}

	resp := &dto.TaskStatusResponse{
		TaskID:      task.ID,
		TraceID:     task.TraceID,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt.Format("2006-01-02T15:04:05Z"),
		CompletedAt: completedAt,
		Profiles:    make([]dto.ProfileStatusResponse, 0, len(profiles)),
	}
	if task.FaceDetectionStatus != models.FaceDetectionNotRequested {
		resp.FaceDetectionStatus = string(task.FaceDetectionStatus)
	}

	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, dto.ProfileStatusResponse{
			ProfileID:      p.ProfileID,
			Status:         string(p.Status),
			OutputLocation: p.OutputLocation,
			ErrorKind:      string(p.ErrorKind),
			ErrorMessage:   p.ErrorMessage,
		})
	}

	return resp
}
