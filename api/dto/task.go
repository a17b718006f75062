package dto

import (
	"encoding/json"
	"errors"

	"mediaTranscode/api/models"
)

var ErrTaskNotFound = errors.New("task not found")

// ProfileSpec is one requested output unit as submitted by the caller. The
// legacy format-named sub-objects are decoded only so the validator can
// reject them explicitly.
type ProfileSpec struct {
	IDProfile string                `json:"id_profile"`
	InputType string                `json:"input_type"`
	Config    *models.ProfileConfig `json:"config,omitempty"`

	WebpConfig json.RawMessage `json:"webp_config,omitempty"`
	JpegConfig json.RawMessage `json:"jpeg_config,omitempty"`
	GifConfig  json.RawMessage `json:"gif_config,omitempty"`
	Mp4Config  json.RawMessage `json:"mp4_config,omitempty"`
}

type SubmitTaskRequest struct {
	SourceURL      string                          `json:"source_url"`
	Profiles       []ProfileSpec                   `json:"profiles"`
	S3OutputConfig *models.OutputDestinationConfig `json:"s3_output_config"`
	CallbackURL    string                          `json:"callback_url,omitempty"`
	FaceDetection  bool                            `json:"face_detection,omitempty"`
}

type SubmitTaskResponse struct {
	TaskID  string `json:"task_id"`
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
}

type ProfileStatusResponse struct {
	ProfileID      string `json:"profile_id"`
	Status         string `json:"status"`
	OutputLocation string `json:"output_location,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

type TaskStatusResponse struct {
	TaskID              string                  `json:"task_id"`
	TraceID             string                  `json:"trace_id"`
	Status              string                  `json:"status"`
	FaceDetectionStatus string                  `json:"face_detection_status,omitempty"`
	CreatedAt           string                  `json:"created_at"`
	CompletedAt         *string                 `json:"completed_at,omitempty"`
	Profiles            []ProfileStatusResponse `json:"profiles"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
