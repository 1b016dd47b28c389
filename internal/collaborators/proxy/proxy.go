// Package proxy implements the proxy-encoding collaborator: a
// web-playable H.264 faststart rendition of an archived video,
// produced by driving ffmpeg through os/exec.
package proxy

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
var ErrUnavailable = errors.New("proxy: ffmpeg not found on PATH")

// MaxDimension caps the proxy's longest edge; source video narrower
// than this is encoded without upscaling.
const MaxDimension = 1080

// Result is the proxy.encode contract's return shape
type Result struct {
	ProxyPath string
	Width     int
	Height    int
}

// Encoder is the proxy.encode contract
type Encoder interface {
	Encode(ctx context.Context, sourcePath, destPath string) (*Result, error)
}

// FFmpeg encodes a faststart-flagged H.264/AAC mp4, a single
// universally-playable target: the proxy exists for browser preview,
// not for quality parity.
type FFmpeg struct {
	// Timeout bounds a single encode; zero uses a 10 minute default,
	// generous because proxy jobs run at LOW priority in the
	// video-proxy queue and are not latency sensitive.
	Timeout time.Duration
}

func (f FFmpeg) Encode(ctx context.Context, sourcePath, destPath string) (*Result, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, ErrUnavailable
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("proxy: create destination dir: %w", err)
	}

	tmp, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return nil, fmt.Errorf("proxy: create pending file %s: %w", destPath, err)
	}
	defer func() { _ = tmp.Cleanup() }()
	tmpPath := tmp.Name()

	scale := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", MaxDimension, MaxDimension)
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("proxy: ffmpeg encode failed for %s: %w", sourcePath, err)
	}

	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("proxy: finalize %s: %w", destPath, err)
	}

	return &Result{ProxyPath: destPath}, nil
}
