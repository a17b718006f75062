package converter

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mediaTranscode/worker/models"
)

// Converter is the external conversion capability as the pipeline sees it:
// given an input path, an output path, and a declarative parameter set,
// produce the output file or fail with a descriptive error. The pipeline
// never interprets codec internals.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error
}

// ImageConverter handles image profiles. Resizing and cropping run
// in-process; webp encoding shells out to cwebp on the already-sized frame.
type ImageConverter struct {
	logger *zap.Logger

	encodeWebP func(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error
}

func NewImageConverter(logger *zap.Logger) *ImageConverter {
	return &ImageConverter{
		logger:     logger,
		encodeWebP: encodeWebP,
	}
}

func (c *ImageConverter) Convert(ctx context.Context, inputPath, outputPath string, cfg *models.ProfileConfig) error {
	c.logger.Info("Starting image conversion",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", cfg.OutputFormat),
	)

	src, err := imaging.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var processed *image.NRGBA

	if cfg.Width != nil || cfg.Height != nil {
		width := cfg.Width
		height := cfg.Height

		if width == nil {
			w := src.Bounds().Dx()
			width = &w
		}
		if height == nil {
			h := src.Bounds().Dy()
			height = &h
		}

		if cfg.Crop {
			processed = imaging.Fill(src, *width, *height, imaging.Center, imaging.Lanczos)
		} else {
			processed = imaging.Resize(src, *width, *height, imaging.Lanczos)
		}
	} else {
		processed = imaging.Clone(src)
	}

	switch cfg.OutputFormat {
	case "jpg", "jpeg":
		quality := 85
		if cfg.JPEGQuality != nil {
			quality = *cfg.JPEGQuality
		} else if cfg.Quality != nil {
			quality = *cfg.Quality
		}
		if err := imaging.Save(processed, outputPath, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("failed to save JPEG: %w", err)
		}
	case "png", "gif":
		if err := imaging.Save(processed, outputPath); err != nil {
			return fmt.Errorf("failed to save %s: %w", cfg.OutputFormat, err)
		}
	case "webp":
		framePath := outputPath + ".frame.png"
		if err := imaging.Save(processed, framePath); err != nil {
			return fmt.Errorf("failed to save webp frame: %w", err)
		}
		defer os.Remove(framePath)
		if err := c.encodeWebP(ctx, framePath, outputPath, cfg); err != nil {
			return fmt.Errorf("failed to save WebP: %w", err)
		}
	default:
		return fmt.Errorf("unsupported image format: %s", cfg.OutputFormat)
	}

	c.logger.Info("Image conversion completed",
		zap.String("output", outputPath),
	)
	return nil
}

// OutputExtension maps an output format to the artifact file extension.
func OutputExtension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	default:
		return format
	}
}
