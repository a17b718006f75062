package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediaTranscode/worker/models"
	"mediaTranscode/worker/repository"
)

// FaceDetector is the external model-inference capability. The worker only
// schedules jobs and polls their status.
type FaceDetector interface {
	Schedule(ctx context.Context, taskID, sourceLocator string) (string, error)
	Status(ctx context.Context, jobID string) (string, error)
}

// FaceDetectionRunner drives the optional per-task face detection
// sub-lifecycle. It is independent of profile processing and never
// influences task status aggregation. The pending→running CAS in the store
// makes sure only one of a task's concurrent workers schedules the job.
type FaceDetectionRunner struct {
	detector FaceDetector
	repo     repository.Repository
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	scheduled map[string]bool
}

func NewFaceDetectionRunner(detector FaceDetector, repo repository.Repository, interval time.Duration, logger *zap.Logger) *FaceDetectionRunner {
	return &FaceDetectionRunner{
		detector:  detector,
		repo:      repo,
		interval:  interval,
		logger:    logger,
		scheduled: make(map[string]bool),
	}
}

// EnsureScheduled schedules face detection for the task if no other worker
// did already, then polls in the background until a final status.
func (r *FaceDetectionRunner) EnsureScheduled(ctx context.Context, taskID, sourceLocator string) {
	r.mu.Lock()
	if r.scheduled[taskID] {
		r.mu.Unlock()
		return
	}
	r.scheduled[taskID] = true
	r.mu.Unlock()

	owned, err := r.repo.SetFaceDetectionStatus(ctx, taskID, models.FaceDetectionPending, models.FaceDetectionRunning)
	if err != nil {
		r.logger.Error("Failed to claim face detection",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	if !owned {
		return
	}

	jobID, err := r.detector.Schedule(ctx, taskID, sourceLocator)
	if err != nil {
		r.logger.Error("Failed to schedule face detection",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		r.repo.SetFaceDetectionStatus(ctx, taskID, models.FaceDetectionRunning, models.FaceDetectionFailed)
		return
	}

	go r.poll(ctx, taskID, jobID)
}

func (r *FaceDetectionRunner) poll(ctx context.Context, taskID, jobID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := r.detector.Status(ctx, jobID)
		if err != nil {
			r.logger.Warn("Face detection status poll failed",
				zap.String("task_id", taskID),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			continue
		}

		switch status {
		case "done":
			r.repo.SetFaceDetectionStatus(ctx, taskID, models.FaceDetectionRunning, models.FaceDetectionDone)
			r.logger.Info("Face detection finished", zap.String("task_id", taskID))
			return
		case "failed":
			r.repo.SetFaceDetectionStatus(ctx, taskID, models.FaceDetectionRunning, models.FaceDetectionFailed)
			return
		}
	}
}

// HTTPFaceDetector talks to the face detection service over HTTP.
type HTTPFaceDetector struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFaceDetector(baseURL string) *HTTPFaceDetector {
	return &HTTPFaceDetector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPFaceDetector) Schedule(ctx context.Context, taskID, sourceLocator string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"task_id": taskID,
		"source":  sourceLocator,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("schedule face detection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("schedule face detection: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode schedule response: %w", err)
	}
	return out.JobID, nil
}

func (d *HTTPFaceDetector) Status(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("poll face detection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("poll face detection: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return out.Status, nil
}
