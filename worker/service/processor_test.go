package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"mediaTranscode/worker/converter"
	"mediaTranscode/worker/downloader"
	"mediaTranscode/worker/kafka"
	"mediaTranscode/worker/models"
)

type fakeConverter struct {
	fn func(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error
}

func (f *fakeConverter) Convert(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error {
	if f.fn != nil {
		return f.fn(ctx, inputPath, outputPath, cfg)
	}
	return os.WriteFile(outputPath, []byte("converted"), 0644)
}

type fakeUploader struct {
	fn    func(ctx context.Context, localPath, taskID, profileID string, dest models.OutputDestinationConfig) (string, error)
	paths []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, taskID, profileID string, dest models.OutputDestinationConfig) (string, error) {
	f.paths = append(f.paths, localPath)
	if f.fn != nil {
		return f.fn(ctx, localPath, taskID, profileID, dest)
	}
	return "s3://" + dest.Bucket + "/" + taskID + "/" + profileID, nil
}

type processorHarness struct {
	repo      *memRepo
	cache     *memCache
	uploader  *fakeUploader
	processor *Processor
	workDir   string
	sourceLoc string
}

func newProcessorHarness(t *testing.T, conv converter.Converter, up *fakeUploader, timeout time.Duration) *processorHarness {
	t.Helper()

	workDir := t.TempDir()
	sourcePath := filepath.Join(t.TempDir(), "source.bin")
	if err := os.WriteFile(sourcePath, []byte("source-bytes"), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}

	repo := newMemRepo("task-1", "p1", "p2")
	statusCache := newMemCache()
	logger := zaptest.NewLogger(t)

	agg := NewAggregator(repo, statusCache, newTestDispatcher(t, repo, 1), logger)
	proc := NewProcessor(
		repo,
		statusCache,
		downloader.NewSourceCache(workDir, logger),
		map[string]converter.Converter{"image": conv},
		up,
		agg,
		nil,
		workDir,
		timeout,
		logger,
	)

	return &processorHarness{
		repo:      repo,
		cache:     statusCache,
		uploader:  up,
		processor: proc,
		workDir:   workDir,
		sourceLoc: sourcePath,
	}
}

func (h *processorHarness) message(profileID string, cleanup bool) *kafka.ProfileTaskMessage {
	return &kafka.ProfileTaskMessage{
		TaskID:        "task-1",
		TraceID:       "trace-1",
		ProfileID:     profileID,
		SourceLocator: h.sourceLoc,
		InputType:     "image",
		Config:        models.ProfileConfig{OutputFormat: "jpeg"},
		DestConfig: models.OutputDestinationConfig{
			Bucket:           "media-out",
			FolderStructure:  "{task_id}/{profile_id}",
			CleanupTempFiles: cleanup,
			MaxRetries:       1,
		},
	}
}

func TestProcessor_Success(t *testing.T) {
	up := &fakeUploader{}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	p := h.repo.profiles["p1"]
	if p.Status != models.ProfileCompleted {
		t.Errorf("Expected profile completed, got %s", p.Status)
	}
	if p.OutputLocation != "s3://media-out/task-1/p1" {
		t.Errorf("Unexpected output location %q", p.OutputLocation)
	}

	wantHistory := []models.ProfileStatus{
		models.ProfileDownloading,
		models.ProfileConverting,
		models.ProfileUploading,
		models.ProfileCompleted,
	}
	got := h.repo.statusHistory["p1"]
	if len(got) != len(wantHistory) {
		t.Fatalf("Expected status history %v, got %v", wantHistory, got)
	}
	for i := range wantHistory {
		if got[i] != wantHistory[i] {
			t.Errorf("History[%d] = %s, want %s", i, got[i], wantHistory[i])
		}
	}

	// The sibling is untouched, so the task must still be processing.
	if got := h.repo.taskStatus(); got != models.StatusProcessing {
		t.Errorf("Expected task processing, got %s", got)
	}
}

func TestProcessor_TaskProcessingMidPipeline(t *testing.T) {
	var h *processorHarness
	var midPipeline models.TaskStatus
	conv := &fakeConverter{fn: func(ctx context.Context, in, out string, cfg *models.ProfileConfig) error {
		midPipeline = h.repo.taskStatus()
		return os.WriteFile(out, []byte("converted"), 0644)
	}}
	h = newProcessorHarness(t, conv, &fakeUploader{}, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if midPipeline != models.StatusProcessing {
		t.Errorf("Expected task processing during conversion, got %s", midPipeline)
	}
}

func TestProcessor_ConversionFailure(t *testing.T) {
	conv := &fakeConverter{fn: func(ctx context.Context, in, out string, cfg *models.ProfileConfig) error {
		return errors.New("encoder exploded")
	}}
	h := newProcessorHarness(t, conv, &fakeUploader{}, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process returned error for profile-scoped failure: %v", err)
	}

	p := h.repo.profiles["p1"]
	if p.Status != models.ProfileFailed {
		t.Fatalf("Expected profile failed, got %s", p.Status)
	}
	if p.ErrorKind != models.ErrKindConversion {
		t.Errorf("Expected conversion error kind, got %s", p.ErrorKind)
	}
	if len(h.uploader.paths) != 0 {
		t.Errorf("Upload must not run after conversion failure")
	}
}

func TestProcessor_ConversionTimeout(t *testing.T) {
	conv := &fakeConverter{fn: func(ctx context.Context, in, out string, cfg *models.ProfileConfig) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	h := newProcessorHarness(t, conv, &fakeUploader{}, 20*time.Millisecond)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	p := h.repo.profiles["p1"]
	if p.Status != models.ProfileFailed {
		t.Fatalf("Expected profile failed, got %s", p.Status)
	}
	if p.ErrorKind != models.ErrKindTimeout {
		t.Errorf("Expected timeout error kind, got %s", p.ErrorKind)
	}
}

func TestProcessor_UploadFailure(t *testing.T) {
	up := &fakeUploader{fn: func(ctx context.Context, localPath, taskID, profileID string, dest models.OutputDestinationConfig) (string, error) {
		return "", errors.New("upload failed after 3 attempt(s)")
	}}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	p := h.repo.profiles["p1"]
	if p.Status != models.ProfileFailed {
		t.Fatalf("Expected profile failed, got %s", p.Status)
	}
	if p.ErrorKind != models.ErrKindUpload {
		t.Errorf("Expected upload error kind, got %s", p.ErrorKind)
	}
}

func TestProcessor_FailureIsolation(t *testing.T) {
	conv := &fakeConverter{fn: func(ctx context.Context, in, out string, cfg *models.ProfileConfig) error {
		if filepath.Ext(out) == ".webp" {
			return errors.New("bad profile")
		}
		return os.WriteFile(out, []byte("converted"), 0644)
	}}
	h := newProcessorHarness(t, conv, &fakeUploader{}, time.Minute)

	bad := h.message("p1", false)
	bad.Config.OutputFormat = "webp"
	good := h.message("p2", false)

	ctx := context.Background()
	if err := h.processor.Process(ctx, bad); err != nil {
		t.Fatalf("Process(bad) failed: %v", err)
	}
	if err := h.processor.Process(ctx, good); err != nil {
		t.Fatalf("Process(good) failed: %v", err)
	}

	if h.repo.profiles["p1"].Status != models.ProfileFailed {
		t.Errorf("Expected p1 failed, got %s", h.repo.profiles["p1"].Status)
	}
	if h.repo.profiles["p2"].Status != models.ProfileCompleted {
		t.Errorf("Expected p2 completed despite sibling failure, got %s", h.repo.profiles["p2"].Status)
	}
	if got := h.repo.taskStatus(); got != models.StatusPartial {
		t.Errorf("Expected task partial, got %s", got)
	}
}

func TestProcessor_RedeliveredFinalProfile(t *testing.T) {
	up := &fakeUploader{}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)

	ctx := context.Background()
	msg := h.message("p1", false)
	if err := h.processor.Process(ctx, msg); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	uploads := len(up.paths)

	if err := h.processor.Process(ctx, msg); err != nil {
		t.Fatalf("Redelivery must be dropped cleanly: %v", err)
	}
	if len(up.paths) != uploads {
		t.Errorf("Redelivered message must not re-run the pipeline")
	}
}

func TestProcessor_CancelledTask(t *testing.T) {
	up := &fakeUploader{}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)
	h.cache.requestCancel()

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	p := h.repo.profiles["p1"]
	if p.Status != models.ProfileFailed {
		t.Fatalf("Expected profile failed, got %s", p.Status)
	}
	if p.ErrorKind != models.ErrKindCancelled {
		t.Errorf("Expected cancelled error kind, got %s", p.ErrorKind)
	}
	if len(up.paths) != 0 {
		t.Errorf("Cancelled profile must not upload")
	}
}

func TestProcessor_CleanupTempFiles(t *testing.T) {
	up := &fakeUploader{}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", true)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(up.paths) != 1 {
		t.Fatalf("Expected one upload, got %d", len(up.paths))
	}
	if _, err := os.Stat(up.paths[0]); !os.IsNotExist(err) {
		t.Errorf("Expected temp output %s removed after upload", up.paths[0])
	}
}

func TestProcessor_KeepTempFiles(t *testing.T) {
	up := &fakeUploader{}
	h := newProcessorHarness(t, &fakeConverter{}, up, time.Minute)

	if err := h.processor.Process(context.Background(), h.message("p1", false)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(up.paths) != 1 {
		t.Fatalf("Expected one upload, got %d", len(up.paths))
	}
	if _, err := os.Stat(up.paths[0]); err != nil {
		t.Errorf("Expected temp output %s kept: %v", up.paths[0], err)
	}
}
