package validation

import (
	"fmt"

	"mediaTranscode/api/dto"
)

// ValidateRequest checks the submission shape before anything is persisted.
// A single bad profile rejects the whole request; partial acceptance is
// never allowed.
func ValidateRequest(req *dto.SubmitTaskRequest) error {
	if req.SourceURL == "" {
		return ErrNoSource
	}
	if len(req.Profiles) == 0 {
		return ErrNoProfiles
	}
	if req.S3OutputConfig == nil {
		return ErrNoOutputConfig
	}
	if req.S3OutputConfig.Bucket == "" {
		return ErrNoBucket
	}

	seen := make(map[string]bool, len(req.Profiles))
	for i := range req.Profiles {
		if err := validateProfile(&req.Profiles[i]); err != nil {
			return fmt.Errorf("profile %q: %w", req.Profiles[i].IDProfile, err)
		}
		if seen[req.Profiles[i].IDProfile] {
			return fmt.Errorf("profile %q: %w", req.Profiles[i].IDProfile, ErrDuplicateProfileID)
		}
		seen[req.Profiles[i].IDProfile] = true
	}
	return nil
}

func validateProfile(p *dto.ProfileSpec) error {
	if p.IDProfile == "" {
		return ErrNoProfileID
	}
	if p.InputType != "video" && p.InputType != "image" {
		return ErrInvalidInputType
	}
	// Older clients encoded the format inside format-named sub-objects.
	// Exactly one shape is authoritative now; mixed requests must fail
	// before any row is written.
	if p.WebpConfig != nil || p.JpegConfig != nil || p.GifConfig != nil || p.Mp4Config != nil {
		return ErrLegacyConfig
	}
	if p.Config == nil {
		return ErrMissingConfig
	}
	if p.Config.OutputFormat == "" {
		return ErrMissingFormat
	}
	return nil
}
