package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mediaTranscode/api/database"
	"mediaTranscode/api/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateTaskWithProfiles(ctx context.Context, task *models.Task, profiles []*models.Profile) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tasks (id, trace_id, source_locator, status, callback_url, face_detection_status, terminal_notified)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		task.ID,
		task.TraceID,
		task.SourceLocator,
		task.Status,
		task.CallbackURL,
		task.FaceDetectionStatus,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTaskAlreadyExists
		}
		return fmt.Errorf("insert task: %w", err)
	}

	for _, p := range profiles {
		cfg, err := json.Marshal(p.Config)
		if err != nil {
			return fmt.Errorf("marshal profile config: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO task_profiles (task_id, profile_id, input_type, config, status)
			VALUES ($1, $2, $3, $4, $5)
		`, task.ID, p.ProfileID, p.InputType, cfg, p.Status)
		if err != nil {
			return fmt.Errorf("insert profile %s: %w", p.ProfileID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `
		SELECT id, trace_id, source_locator, status, callback_url, face_detection_status, terminal_notified, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = $1
	`

	row := r.db.Pool.QueryRow(ctx, query, id)

	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.TraceID,
		&task.SourceLocator,
		&task.Status,
		&task.CallbackURL,
		&task.FaceDetectionStatus,
		&task.TerminalNotified,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &task, nil
}

func (r *PostgresRepo) ListProfiles(ctx context.Context, taskID string) ([]*models.Profile, error) {
	query := `
		SELECT task_id, profile_id, input_type, config, status, output_location, error_kind, error_message, updated_at
		FROM task_profiles
		WHERE task_id = $1
		ORDER BY profile_id
	`

	rows, err := r.db.Pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var p models.Profile
		var cfg []byte
		err := rows.Scan(
			&p.TaskID,
			&p.ProfileID,
			&p.InputType,
			&cfg,
			&p.Status,
			&p.OutputLocation,
			&p.ErrorKind,
			&p.ErrorMessage,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cfg, &p.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config for %s: %w", p.ProfileID, err)
		}
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

func (r *PostgresRepo) FailProfile(ctx context.Context, taskID, profileID string, kind models.ErrorKind, message string) error {
	query := `
		UPDATE task_profiles
		SET status = $3, error_kind = $4, error_message = $5, updated_at = NOW()
		WHERE task_id = $1 AND profile_id = $2 AND status NOT IN ('completed', 'failed')
	`

	_, err := r.db.Pool.Exec(ctx, query, taskID, profileID, models.ProfileFailed, kind, message)
	return err
}

func (r *PostgresRepo) TransitionTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, terminal bool) (bool, error) {
	// terminal_notified doubles as the terminal latch; only one concurrent
	// caller observes RowsAffected == 1 for the terminal write.
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

	result, err := r.db.Pool.Exec(ctx, query, taskID, status)
	if err != nil {
		return false, err
	}
	return terminal && result.RowsAffected() == 1, nil
}
