package converter

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"mediaTranscode/worker/models"
)

// FFmpegConverter handles video profiles by shelling out to ffmpeg. The
// command dies with the stage context, which is how conversion timeouts
// abort a single profile.
type FFmpegConverter struct {
	binary string
	logger *zap.Logger
}

func NewFFmpegConverter(logger *zap.Logger) *FFmpegConverter {
	return &FFmpegConverter{binary: "ffmpeg", logger: logger}
}

func (c *FFmpegConverter) Convert(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error {
	args := buildFFmpegArgs(inputPath, outputPath, cfg)

	c.logger.Info("Starting video conversion",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", cfg.OutputFormat),
		zap.Strings("args", args),
	)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(out, 400))
	}

	c.logger.Info("Video conversion completed",
		zap.String("output", outputPath),
	)
	return nil
}

func buildFFmpegArgs(inputPath, outputPath string, cfg *models.ProfileConfig) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	if cfg.StartTime != nil {
		args = append(args, "-ss", strconv.FormatFloat(*cfg.StartTime, 'f', -1, 64))
	}
	args = append(args, "-i", inputPath)
	if cfg.Duration != nil {
		args = append(args, "-t", strconv.FormatFloat(*cfg.Duration, 'f', -1, 64))
	}

	if cfg.Width != nil || cfg.Height != nil {
		w, h := "-2", "-2"
		if cfg.Width != nil {
			w = strconv.Itoa(*cfg.Width)
		}
		if cfg.Height != nil {
			h = strconv.Itoa(*cfg.Height)
		}
		args = append(args, "-vf", "scale="+w+":"+h)
	}

	if cfg.FPS != nil {
		args = append(args, "-r", strconv.Itoa(*cfg.FPS))
	}
	if cfg.Codec != "" {
		args = append(args, "-c:v", cfg.Codec)
	}
	if cfg.CRF != nil {
		args = append(args, "-crf", strconv.Itoa(*cfg.CRF))
	}
	if cfg.Preset != "" {
		args = append(args, "-preset", cfg.Preset)
	}

	switch cfg.OutputFormat {
	case "webp":
		if cfg.Quality != nil {
			args = append(args, "-quality", strconv.Itoa(*cfg.Quality))
		}
		if cfg.Lossless != nil && *cfg.Lossless {
			args = append(args, "-lossless", "1")
		}
		if cfg.Method != nil {
			args = append(args, "-compression_level", strconv.Itoa(*cfg.Method))
		}
		if cfg.Loop != nil {
			args = append(args, "-loop", strconv.Itoa(*cfg.Loop))
		}
	case "gif":
		if cfg.Loop != nil {
			args = append(args, "-loop", strconv.Itoa(*cfg.Loop))
		}
	}

	return append(args, outputPath)
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
