package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediaTranscode/worker/converter"
	"mediaTranscode/worker/downloader"
	"mediaTranscode/worker/kafka"
	"mediaTranscode/worker/models"
	"mediaTranscode/worker/repository"
	"mediaTranscode/worker/uploader"
)

// StatusCache is the slice of the redis cache the services use. Cache
// failures are never fatal to a pipeline run.
type StatusCache interface {
	SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	SetProfileStatus(ctx context.Context, taskID, profileID string, status models.ProfileStatus) error
	IsCancelRequested(ctx context.Context, taskID string) (bool, error)
}

// Processor drives one profile through download, convert and upload. Every
// run ends with exactly one final profile status write followed by one
// aggregator pass; profile-scoped failures are recorded, never propagated,
// so one bad profile cannot abort its siblings.
type Processor struct {
	repo           repository.Repository
	cache          StatusCache
	sources        *downloader.SourceCache
	converters     map[string]converter.Converter
	uploader       uploader.Uploader
	aggregator     *Aggregator
	faces          *FaceDetectionRunner
	workDir        string
	convertTimeout time.Duration
	logger         *zap.Logger
}

func NewProcessor(
	repo repository.Repository,
	statusCache StatusCache,
	sources *downloader.SourceCache,
	converters map[string]converter.Converter,
	up uploader.Uploader,
	aggregator *Aggregator,
	faces *FaceDetectionRunner,
	workDir string,
	convertTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		repo:           repo,
		cache:          statusCache,
		sources:        sources,
		converters:     converters,
		uploader:       up,
		aggregator:     aggregator,
		faces:          faces,
		workDir:        workDir,
		convertTimeout: convertTimeout,
		logger:         logger,
	}
}

// Process handles one work message. A non-nil return means the outcome
// could not be recorded and the message should be redelivered.
func (p *Processor) Process(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
	log := p.logger.With(
		zap.String("trace_id", msg.TraceID),
		zap.String("task_id", msg.TaskID),
		zap.String("profile_id", msg.ProfileID),
	)

	if p.faces != nil && msg.FaceDetection {
		p.faces.EnsureScheduled(ctx, msg.TaskID, msg.SourceLocator)
	}

	outputPath, perr := p.run(ctx, msg)
	if perr == nil {
		if err := p.finishCompleted(ctx, msg, outputPath); err != nil {
			return err
		}
		log.Info("Profile completed", zap.String("output_location", outputPath))
		return nil
	}

	if errors.Is(perr, repository.ErrProfileFinal) {
		// Redelivered message for an already finished profile.
		log.Info("Profile already final, dropping message")
		return nil
	}

	var profErr *models.ProfileError
	if !errors.As(perr, &profErr) {
		// Store failure: nothing was recorded, let the broker redeliver.
		log.Error("Profile pipeline aborted without recorded outcome", zap.Error(perr))
		return perr
	}

	if err := p.finishFailed(ctx, msg, profErr); err != nil {
		return err
	}
	log.Warn("Profile failed",
		zap.String("error_kind", string(profErr.Kind)),
		zap.String("error_message", profErr.Message),
	)
	return nil
}

// run executes the pipeline stages and returns the uploaded location. A
// *models.ProfileError return is a recorded-on-profile failure; any other
// error is a store failure.
func (p *Processor) run(ctx context.Context, msg *kafka.ProfileTaskMessage) (string, error) {
	if err := p.checkCancelled(ctx, msg.TaskID); err != nil {
		return "", err
	}

	// Download.
	if err := p.advance(ctx, msg, models.ProfileDownloading); err != nil {
		return "", err
	}
	sourcePath, release, err := p.sources.Acquire(ctx, msg.TaskID, msg.SourceLocator)
	if err != nil {
		return "", &models.ProfileError{Kind: models.ErrKindDownload, Message: err.Error()}
	}
	defer release()

	if err := p.checkCancelled(ctx, msg.TaskID); err != nil {
		return "", err
	}

	// Convert, bounded by a wall-clock timeout. Encoding failures are
	// deterministic for a given input, so this stage is never retried.
	if err := p.advance(ctx, msg, models.ProfileConverting); err != nil {
		return "", err
	}

	conv, ok := p.converters[msg.InputType]
	if !ok {
		return "", &models.ProfileError{
			Kind:    models.ErrKindConversion,
			Message: fmt.Sprintf("no converter for input type %q", msg.InputType),
		}
	}

	outputPath := filepath.Join(p.workDir, fmt.Sprintf("%s_%s.%s", msg.TaskID, msg.ProfileID, converter.OutputExtension(msg.Config.OutputFormat)))

	convertCtx, cancel := context.WithTimeout(ctx, p.convertTimeout)
	err = conv.Convert(convertCtx, sourcePath, outputPath, &msg.Config)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &models.ProfileError{
				Kind:    models.ErrKindTimeout,
				Message: fmt.Sprintf("conversion exceeded %s", p.convertTimeout),
			}
		}
		return "", &models.ProfileError{Kind: models.ErrKindConversion, Message: err.Error()}
	}

	if msg.DestConfig.CleanupTempFiles {
		defer os.Remove(outputPath)
	}

	if err := p.checkCancelled(ctx, msg.TaskID); err != nil {
		return "", err
	}

	// Upload.
	if err := p.advance(ctx, msg, models.ProfileUploading); err != nil {
		return "", err
	}
	location, err := p.uploader.Upload(ctx, outputPath, msg.TaskID, msg.ProfileID, msg.DestConfig)
	if err != nil {
		return "", &models.ProfileError{Kind: models.ErrKindUpload, Message: err.Error()}
	}

	return location, nil
}

func (p *Processor) advance(ctx context.Context, msg *kafka.ProfileTaskMessage, status models.ProfileStatus) error {
	if err := p.repo.UpdateProfileStatus(ctx, msg.TaskID, msg.ProfileID, status); err != nil {
		return err
	}
	if err := p.cache.SetProfileStatus(ctx, msg.TaskID, msg.ProfileID, status); err != nil {
		p.logger.Warn("Failed to update profile status cache",
			zap.String("task_id", msg.TaskID),
			zap.String("profile_id", msg.ProfileID),
			zap.Error(err),
		)
	}
	// Every profile status write is followed by an aggregation pass, so a
	// status query during an active stage sees the task processing.
	return p.aggregator.Recompute(ctx, msg.TaskID)
}

func (p *Processor) checkCancelled(ctx context.Context, taskID string) error {
	cancelled, err := p.cache.IsCancelRequested(ctx, taskID)
	if err != nil {
		p.logger.Warn("Failed to check cancel flag",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return nil
	}
	if cancelled {
		return &models.ProfileError{Kind: models.ErrKindCancelled, Message: "task cancelled"}
	}
	return nil
}

func (p *Processor) finishCompleted(ctx context.Context, msg *kafka.ProfileTaskMessage, location string) error {
	if err := p.repo.CompleteProfile(ctx, msg.TaskID, msg.ProfileID, location); err != nil {
		if errors.Is(err, repository.ErrProfileFinal) {
			return nil
		}
		return fmt.Errorf("record profile completion: %w", err)
	}
	p.cache.SetProfileStatus(ctx, msg.TaskID, msg.ProfileID, models.ProfileCompleted)
	return p.aggregator.Recompute(ctx, msg.TaskID)
}

func (p *Processor) finishFailed(ctx context.Context, msg *kafka.ProfileTaskMessage, profErr *models.ProfileError) error {
	if err := p.repo.FailProfile(ctx, msg.TaskID, msg.ProfileID, profErr.Kind, profErr.Message); err != nil {
		if errors.Is(err, repository.ErrProfileFinal) {
			return nil
		}
		return fmt.Errorf("record profile failure: %w", err)
	}
	p.cache.SetProfileStatus(ctx, msg.TaskID, msg.ProfileID, models.ProfileFailed)
	return p.aggregator.Recompute(ctx, msg.TaskID)
}
