package thumb_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/collaborators/thumb"
)

func TestFFmpeg_Render_UnavailableBinary(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		t.Skip("ffmpeg present on PATH, ErrUnavailable path not reachable")
	}

	f := thumb.FFmpeg{}
	err := f.Render(context.Background(), "testdata/sample.jpg", filepath.Join(t.TempDir(), "out.jpg"), 256)
	require.ErrorIs(t, err, thumb.ErrUnavailable)
}

func TestFFmpeg_Render_RejectsZeroDimension(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not present on PATH")
	}

	f := thumb.FFmpeg{}
	err := f.Render(context.Background(), "testdata/sample.jpg", filepath.Join(t.TempDir(), "out.jpg"), 0)
	require.Error(t, err)
}
