package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jo-hoe/roadwatch/internal/backend/detection"
)

// DetectVideo stores the upload in a temporary file and runs detection on the extracted frames
func (service *CoreService) DetectVideo(ctx context.Context, upload io.Reader, filename string) ([]detection.Detection, error) {
	tmp, err := os.CreateTemp("", "roadwatch-*"+filepath.Ext(filepath.Base(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary video file: %w", err)
	}
	defer func() {
		if rerr := os.Remove(tmp.Name()); rerr != nil {
			slog.Warn("failed to remove temporary video file", "path", tmp.Name(), "error", rerr)
		}
	}()

	_, err = io.Copy(tmp, upload)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write temporary video file: %w", err)
	}

	detections := []detection.Detection{}
	frames := 0
	err = service.extractor.Frames(ctx, tmp.Name(), func(index int, frame []byte) error {
		frames++
		found, err := service.detect(ctx, frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		detections = append(detections, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("video processed", "filename", filename, "frames", frames, "detections", len(detections))
	return detections, nil
}
