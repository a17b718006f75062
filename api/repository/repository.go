package repository

import (
	"context"
	"errors"

	"mediaTranscode/api/models"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskAlreadyExists = errors.New("task already exists")
)

type Repository interface {
	// CreateTaskWithProfiles persists the task and all of its profiles in a
	// single transaction. Either everything lands or nothing does. A task id
	// collision returns ErrTaskAlreadyExists.
	CreateTaskWithProfiles(ctx context.Context, task *models.Task, profiles []*models.Profile) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListProfiles(ctx context.Context, taskID string) ([]*models.Profile, error)
	// FailProfile records a profile failure without touching profiles that
	// already reached a final state.
	FailProfile(ctx context.Context, taskID, profileID string, kind models.ErrorKind, message string) error
	// TransitionTaskStatus applies an aggregated status. When terminal is
	// true the terminal_notified latch is set in the same statement and the
	// returned bool is true only for the caller that won that write.
	TransitionTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, terminal bool) (bool, error)
}
