package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusPartial    TaskStatus = "partial"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further task status transitions may occur.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

type ProfileStatus string

const (
	ProfilePending     ProfileStatus = "pending"
	ProfileDownloading ProfileStatus = "downloading"
	ProfileConverting  ProfileStatus = "converting"
	ProfileUploading   ProfileStatus = "uploading"
	ProfileCompleted   ProfileStatus = "completed"
	ProfileFailed      ProfileStatus = "failed"
)

func (s ProfileStatus) IsFinal() bool {
	return s == ProfileCompleted || s == ProfileFailed
}

type FaceDetectionStatus string

const (
	FaceDetectionNotRequested FaceDetectionStatus = "not_requested"
	FaceDetectionPending      FaceDetectionStatus = "pending"
	FaceDetectionRunning      FaceDetectionStatus = "running"
	FaceDetectionDone         FaceDetectionStatus = "done"
	FaceDetectionFailed       FaceDetectionStatus = "failed"
)

type ErrorKind string

const (
	ErrKindDispatch   ErrorKind = "dispatch"
	ErrKindDownload   ErrorKind = "download"
	ErrKindConversion ErrorKind = "conversion"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindUpload     ErrorKind = "upload"
	ErrKindCancelled  ErrorKind = "cancelled"
)

type Task struct {
	ID                  string
	TraceID             string
	SourceLocator       string
	Status              TaskStatus
	CallbackURL         string
	FaceDetectionStatus FaceDetectionStatus
	TerminalNotified    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

type Profile struct {
	TaskID         string
	ProfileID      string
	InputType      string
	Config         ProfileConfig
	Status         ProfileStatus
	OutputLocation string
	ErrorKind      ErrorKind
	ErrorMessage   string
	UpdatedAt      time.Time
}

// ProfileConfig is the normalized output configuration snapshot taken at
// submission. It is never re-read from a template after dispatch.
type ProfileConfig struct {
	OutputFormat string   `json:"output_format"`
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	Crop         bool     `json:"crop,omitempty"`
	Quality      *int     `json:"quality,omitempty"`
	FPS          *int     `json:"fps,omitempty"`
	Duration     *float64 `json:"duration,omitempty"`
	StartTime    *float64 `json:"start_time,omitempty"`
	Codec        string   `json:"codec,omitempty"`
	CRF          *int     `json:"crf,omitempty"`
	Preset       string   `json:"preset,omitempty"`
	Lossless     *bool    `json:"lossless,omitempty"`
	Method       *int     `json:"method,omitempty"`
	Loop         *int     `json:"loop,omitempty"`
	JPEGQuality  *int     `json:"jpeg_quality,omitempty"`
}

// OutputDestinationConfig is the per-task upload destination, immutable once
// the task is dispatched.
type OutputDestinationConfig struct {
	Bucket           string `json:"bucket"`
	BasePath         string `json:"base_path"`
	FolderStructure  string `json:"folder_structure"`
	CleanupTempFiles bool   `json:"cleanup_temp_files"`
	UploadTimeout    int    `json:"upload_timeout"`
	MaxRetries       int    `json:"max_retries"`
}
