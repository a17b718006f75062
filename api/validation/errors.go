package validation

import "errors"

var (
	ErrNoSource           = errors.New("source_url is required")
	ErrNoProfiles         = errors.New("at least one profile is required")
	ErrNoProfileID        = errors.New("profile is missing id_profile")
	ErrDuplicateProfileID = errors.New("duplicate id_profile in request")
	ErrInvalidInputType   = errors.New("input_type must be video or image")
	ErrMissingConfig      = errors.New("profile is missing normalized config")
	ErrMissingFormat      = errors.New("profile config is missing output_format")
	ErrLegacyConfig       = errors.New("legacy format-named config objects are not accepted")
	ErrNoOutputConfig     = errors.New("s3_output_config is required")
	ErrNoBucket           = errors.New("s3_output_config is missing bucket")
)
