package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mediaTranscode/api/models"
)

// TerminalPayload is the terminal notification body. It matches what the
// worker half sends, so callers see one callback shape regardless of where
// the task died.
type TerminalPayload struct {
	TaskID  string            `json:"task_id"`
	Status  string            `json:"status"`
	Outputs map[string]string `json:"outputs"`
	Errors  map[string]string `json:"errors"`
}

// Notifier delivers the terminal callback for tasks that die before any
// worker touches them, such as a full dispatch failure. Delivery failures
// are logged and never change task state.
type Notifier struct {
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

func NewNotifier(maxAttempts int, logger *zap.Logger) *Notifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Notifier{
		client:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		logger:      logger,
	}
}

func (n *Notifier) Deliver(ctx context.Context, task *models.Task, status models.TaskStatus, profiles []*models.Profile) {
	if task.CallbackURL == "" {
		return
	}

	payload := TerminalPayload{
		TaskID:  task.ID,
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

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Failed to marshal callback payload",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		lastErr = n.post(ctx, task.CallbackURL, body)
		if lastErr == nil {
			n.logger.Info("Callback delivered",
				zap.String("task_id", task.ID),
				zap.String("url", task.CallbackURL),
				zap.Int("attempt", attempt),
			)
			return
		}
		if attempt < n.maxAttempts {
			select {
			case <-time.After(n.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				attempt = n.maxAttempts
			}
		}
	}

	n.logger.Error("Callback delivery exhausted",
		zap.String("task_id", task.ID),
		zap.String("url", task.CallbackURL),
		zap.Int("attempts", n.maxAttempts),
		zap.Error(lastErr),
	)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
