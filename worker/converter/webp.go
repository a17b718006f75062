package converter

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"mediaTranscode/worker/models"
)

// encodeWebP shells out to cwebp. Geometry is applied by the caller before
// encoding, so only quality parameters appear here. Animated outputs go
// through the ffmpeg path instead.
func encodeWebP(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error {
	cmd := exec.CommandContext(ctx, "cwebp", buildCwebpArgs(inputPath, outputPath, cfg)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("cwebp failed: %w: %s", err, tail(out, 400))
	}
	return nil
}

func buildCwebpArgs(inputPath, outputPath string, cfg *models.ProfileConfig) []string {
	quality := 75
	if cfg.Quality != nil {
		quality = *cfg.Quality
	}

	args := []string{"-quiet", "-q", strconv.Itoa(quality)}
	if cfg.Lossless != nil && *cfg.Lossless {
		args = append(args, "-lossless")
	}
	if cfg.Method != nil {
		args = append(args, "-m", strconv.Itoa(*cfg.Method))
	}

	return append(args, inputPath, "-o", outputPath)
}
