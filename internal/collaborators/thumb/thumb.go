// Package thumb implements the thumbnail-rendering collaborator: a
// fixed-size JPEG thumbnail rendered from an image or video source.
// ffmpeg is used for both, since it scales image and video frames
// through the same filter graph.
package thumb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// ErrUnavailable is returned when ffmpeg cannot be found on PATH.
var ErrUnavailable = errors.New("thumb: ffmpeg not found on PATH")

// Renderer is the thumb.render contract
type Renderer interface {
	Render(ctx context.Context, sourcePath, destPath string, maxDimension int) error
}

// FFmpeg renders thumbnails by scaling the first frame (video) or the
// whole image (stills) to fit within a maxDimension x maxDimension box,
// preserving aspect ratio, and writing atomically to destPath.
type FFmpeg struct {
	// Timeout bounds a single render; zero uses a 20s default.
	Timeout time.Duration
}

func (f FFmpeg) Render(ctx context.Context, sourcePath, destPath string, maxDimension int) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrUnavailable
	}
	if maxDimension <= 0 {
		return fmt.Errorf("thumb: maxDimension must be positive, got %d", maxDimension)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("thumb: create destination dir: %w", err)
	}

	tmp, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return fmt.Errorf("thumb: create pending file %s: %w", destPath, err)
	}
	defer func() { _ = tmp.Cleanup() }()
	tmpPath := tmp.Name()

	scale := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", maxDimension, maxDimension)
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", scale,
		"-q:v", "3",
		"-f", "image2",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("thumb: ffmpeg render failed for %s: %w", sourcePath, err)
	}

	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("thumb: finalize %s: %w", destPath, err)
	}
	return nil
}
