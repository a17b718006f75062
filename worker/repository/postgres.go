package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaTranscode/worker/models"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrProfileFinal signals that the targeted profile already reached
	// completed or failed. Redelivered messages hit this and must be
	// dropped, not reprocessed.
	ErrProfileFinal = errors.New("profile already in a final state")
)

type Repository interface {
	GetTask(ctx context.Context, taskID string) (*models.TaskInfo, error)
	// UpdateProfileStatus advances a non-final profile. Transitions out of
	// completed or failed are refused with ErrProfileFinal.
	UpdateProfileStatus(ctx context.Context, taskID, profileID string, status models.ProfileStatus) error
	CompleteProfile(ctx context.Context, taskID, profileID, outputLocation string) error
	FailProfile(ctx context.Context, taskID, profileID string, kind models.ErrorKind, message string) error
	ListProfiles(ctx context.Context, taskID string) ([]models.ProfileState, error)
	// TransitionTaskStatus applies the aggregated status. When terminal is
	// true the terminal_notified flag is set in the same statement; the
	// returned bool is true only for the single caller that won that
	// write, which is the one that owns the callback.
	TransitionTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, terminal bool) (bool, error)
	SetFaceDetectionStatus(ctx context.Context, taskID string, from, to models.FaceDetectionStatus) (bool, error)
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetTask(ctx context.Context, taskID string) (*models.TaskInfo, error) {
	query := `
		SELECT id, trace_id, status, callback_url, face_detection_status
		FROM tasks
		WHERE id = $1
	`

	var task models.TaskInfo
	err := r.db.QueryRow(ctx, query, taskID).Scan(
		&task.ID,
		&task.TraceID,
		&task.Status,
		&task.CallbackURL,
		&task.FaceDetectionStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &task, nil
}

func (r *PostgresRepo) UpdateProfileStatus(ctx context.Context, taskID, profileID string, status models.ProfileStatus) error {
	query := `
		UPDATE task_profiles
		SET status = $3, updated_at = NOW()
		WHERE task_id = $1 AND profile_id = $2 AND status NOT IN ('completed', 'failed')
	`

	result, err := r.db.Exec(ctx, query, taskID, profileID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileFinal
	}
	return nil
}

func (r *PostgresRepo) CompleteProfile(ctx context.Context, taskID, profileID, outputLocation string) error {
	query := `
		UPDATE task_profiles
		SET status = 'completed', output_location = $3, updated_at = NOW()
		WHERE task_id = $1 AND profile_id = $2 AND status NOT IN ('completed', 'failed')
	`

	result, err := r.db.Exec(ctx, query, taskID, profileID, outputLocation)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileFinal
	}
	return nil
}

func (r *PostgresRepo) FailProfile(ctx context.Context, taskID, profileID string, kind models.ErrorKind, message string) error {
	query := `
		UPDATE task_profiles
		SET status = 'failed', error_kind = $3, error_message = $4, updated_at = NOW()
		WHERE task_id = $1 AND profile_id = $2 AND status NOT IN ('completed', 'failed')
	`

	result, err := r.db.Exec(ctx, query, taskID, profileID, kind, message)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileFinal
	}
	return nil
}

func (r *PostgresRepo) ListProfiles(ctx context.Context, taskID string) ([]models.ProfileState, error) {
	query := `
		SELECT profile_id, status, output_location, error_kind, error_message
		FROM task_profiles
		WHERE task_id = $1
		ORDER BY profile_id
	`

	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.ProfileState
	for rows.Next() {
		var p models.ProfileState
		if err := rows.Scan(&p.ProfileID, &p.Status, &p.OutputLocation, &p.ErrorKind, &p.ErrorMessage); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

func (r *PostgresRepo) TransitionTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, terminal bool) (bool, error) {
	// terminal_notified doubles as the terminal latch: once set, no update
	// can move the status again, and only one concurrent caller observes
	// RowsAffected == 1 for the terminal write.
	var query string
	if terminal {
		query = `
			UPDATE tasks
			SET status = $2, terminal_notified = TRUE, completed_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND terminal_notified = FALSE
		`
	} else {
		query = `
			UPDATE tasks
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND terminal_notified = FALSE AND status <> $2
		`
	}

	result, err := r.db.Exec(ctx, query, taskID, status)
	if err != nil {
		return false, err
	}
	return terminal && result.RowsAffected() == 1, nil
}

func (r *PostgresRepo) SetFaceDetectionStatus(ctx context.Context, taskID string, from, to models.FaceDetectionStatus) (bool, error) {
	query := `
		UPDATE tasks
		SET face_detection_status = $3, updated_at = NOW()
		WHERE id = $1 AND face_detection_status = $2
	`

	result, err := r.db.Exec(ctx, query, taskID, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
