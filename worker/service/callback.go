package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mediaTranscode/worker/models"
	"mediaTranscode/worker/repository"
)

// CallbackPayload is the terminal notification body.
type CallbackPayload struct {
	TaskID  string            `json:"task_id"`
	Status  string            `json:"status"`
	Outputs map[string]string `json:"outputs"`
	Errors  map[string]string `json:"errors"`
}

// CallbackDispatcher delivers one terminal notification per task. Delivery
// failures are logged and never change task state; the aggregator's CAS
// guarantees at most one delivery attempt sequence per terminal transition.
type CallbackDispatcher struct {
	repo        repository.Repository
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

func NewCallbackDispatcher(repo repository.Repository, maxAttempts int, logger *zap.Logger) *CallbackDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CallbackDispatcher{
		repo:        repo,
		client:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		logger:      logger,
	}
}

func (d *CallbackDispatcher) Deliver(ctx context.Context, taskID string, status models.TaskStatus, profiles []models.ProfileState) {
	task, err := d.repo.GetTask(ctx, taskID)
	if err != nil {
		d.logger.Error("Failed to load task for callback",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	if task.CallbackURL == "" {
		return
	}

	payload := BuildPayload(taskID, status, profiles)
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("Failed to marshal callback payload",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = d.post(ctx, task.CallbackURL, body)
		if lastErr == nil {
			d.logger.Info("Callback delivered",
				zap.String("task_id", taskID),
				zap.String("url", task.CallbackURL),
				zap.Int("attempt", attempt),
			)
			return
		}

		if attempt < d.maxAttempts {
			select {
			case <-time.After(d.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				attempt = d.maxAttempts
			}
		}
	}

	// Non-fatal: the task keeps its terminal status, callers poll /status/.
	d.logger.Error("Callback delivery exhausted",
		zap.String("task_id", taskID),
		zap.String("url", task.CallbackURL),
		zap.Int("attempts", d.maxAttempts),
		zap.Error(lastErr),
	)
}

func (d *CallbackDispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// BuildPayload maps the profile snapshot into per-profile outputs and error
// summaries.
func BuildPayload(taskID string, status models.TaskStatus, profiles []models.ProfileState) CallbackPayload {
	payload := CallbackPayload{
		TaskID:  taskID,
		Status:  string(status),
		Outputs: make(map[string]string),
		Errors:  make(map[string]string),
	}
	for _, p := range profiles {
		switch p.Status {
		case models.ProfileCompleted:
			payload.Outputs[p.ProfileID] = p.OutputLocation
		case models.ProfileFailed:
			payload.Errors[p.ProfileID] = string(p.ErrorKind) + ": " + p.ErrorMessage
		}
	}
	return payload
}
