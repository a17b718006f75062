package uploader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"mediaTranscode/worker/models"
)

// UploadError is returned once the retry budget is exhausted or a permanent
// failure is hit. It carries the attempt count and the last underlying
// error.
type UploadError struct {
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Uploader interface {
	Upload(ctx context.Context, localPath, taskID, profileID string, dest models.OutputDestinationConfig) (string, error)
}

// objectUploader is the slice of the s3 transfer manager the uploader uses.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Uploader struct {
	client  objectUploader
	backoff time.Duration
	logger  *zap.Logger
}

func NewS3Uploader(region, accessKey, secretKey string, logger *zap.Logger) *S3Uploader {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	client := s3.New(s3.Options{
		Region:      region,
		Credentials: creds,
	})

	return &S3Uploader{
		client:  manager.NewUploader(client),
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
}

// BuildKey substitutes the {task_id} and {profile_id} tokens into the
// configured folder-structure template and appends the artifact filename.
// The key is deterministic, so a retried upload overwrites the same object
// instead of producing duplicates.
func BuildKey(dest models.OutputDestinationConfig, taskID, profileID, filename string) string {
	prefix := strings.ReplaceAll(dest.FolderStructure, "{task_id}", taskID)
	prefix = strings.ReplaceAll(prefix, "{profile_id}", profileID)
	return path.Join(dest.BasePath, prefix, filename)
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, taskID, profileID string, dest models.OutputDestinationConfig) (string, error) {
	key := BuildKey(dest, taskID, profileID, filepath.Base(localPath))

	maxAttempts := dest.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	if dest.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(dest.UploadTimeout)*time.Second)
		defer cancel()
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		err := u.putObject(ctx, localPath, dest.Bucket, key)
		if err == nil {
			location := "s3://" + dest.Bucket + "/" + key
			u.logger.Info("Artifact uploaded",
				zap.String("task_id", taskID),
				zap.String("profile_id", profileID),
				zap.String("location", location),
				zap.Int("attempt", attempt),
			)
			return location, nil
		}
		lastErr = err

		if !IsTransient(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		u.logger.Warn("Transient upload failure, retrying",
			zap.String("task_id", taskID),
			zap.String("profile_id", profileID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-time.After(u.backoff << (attempt - 1)):
		case <-ctx.Done():
			return "", &UploadError{Attempts: attempts, Err: ctx.Err()}
		}
	}

	return "", &UploadError{Attempts: attempts, Err: lastErr}
}

func (u *S3Uploader) putObject(ctx context.Context, localPath, bucket, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	_, err = u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

// permanentCodes are failures retrying cannot fix: bad credentials, missing
// bucket, malformed key.
var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"KeyTooLongError":       true,
}

// IsTransient classifies an upload failure. Timeouts and 5xx-class service
// errors are retried; authorization and malformed-key errors are not.
func IsTransient(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if permanentCodes[apiErr.ErrorCode()] {
			return false
		}
		switch apiErr.ErrorCode() {
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	// Connection-level failures without a service response.
	return true
}
