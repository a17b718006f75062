package converter

import (
	"strings"
	"testing"

	"mediaTranscode/worker/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildFFmpegArgs_Scale(t *testing.T) {
	cfg := &models.ProfileConfig{
		OutputFormat: "mp4",
		Width:        intPtr(640),
	}
	args := strings.Join(buildFFmpegArgs("in.mp4", "out.mp4", cfg), " ")

	if !strings.Contains(args, "-vf scale=640:-2") {
		t.Errorf("Expected aspect-preserving scale, got %q", args)
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Errorf("Output path must be last, got %q", args)
	}
}

func TestBuildFFmpegArgs_Trim(t *testing.T) {
	cfg := &models.ProfileConfig{
		OutputFormat: "mp4",
		StartTime:    floatPtr(1.5),
		Duration:     floatPtr(3),
	}
	args := buildFFmpegArgs("in.mp4", "out.mp4", cfg)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-ss 1.5 -i in.mp4") {
		t.Errorf("Seek must precede the input for fast seeking, got %q", joined)
	}
	if !strings.Contains(joined, "-t 3") {
		t.Errorf("Expected duration flag, got %q", joined)
	}
}

func TestBuildFFmpegArgs_Encoding(t *testing.T) {
	cfg := &models.ProfileConfig{
		OutputFormat: "mp4",
		Codec:        "libx264",
		CRF:          intPtr(23),
		Preset:       "fast",
		FPS:          intPtr(30),
	}
	joined := strings.Join(buildFFmpegArgs("in.mp4", "out.mp4", cfg), " ")

	for _, want := range []string{"-c:v libx264", "-crf 23", "-preset fast", "-r 30"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected %q in args, got %q", want, joined)
		}
	}
}

func TestBuildFFmpegArgs_WebP(t *testing.T) {
	lossless := true
	cfg := &models.ProfileConfig{
		OutputFormat: "webp",
		Quality:      intPtr(80),
		Lossless:     &lossless,
		Method:       intPtr(4),
		Loop:         intPtr(0),
	}
	joined := strings.Join(buildFFmpegArgs("in.mp4", "out.webp", cfg), " ")

	for _, want := range []string{"-quality 80", "-lossless 1", "-compression_level 4", "-loop 0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected %q in args, got %q", want, joined)
		}
	}
}

func TestBuildFFmpegArgs_Defaults(t *testing.T) {
	cfg := &models.ProfileConfig{OutputFormat: "mp4"}
	joined := strings.Join(buildFFmpegArgs("in.mp4", "out.mp4", cfg), " ")

	if strings.Contains(joined, "-vf") {
		t.Errorf("No scale filter without dimensions, got %q", joined)
	}
	if !strings.HasPrefix(joined, "-y -hide_banner -loglevel error") {
		t.Errorf("Unexpected prefix in %q", joined)
	}
}
