// Package copier selects a placement strategy once per ingest session
// and places each non-duplicate file's bytes at its archive path.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/log"
)

// Strategy is the placement technique chosen for an entire session.
type Strategy string

const (
	StrategyHardlink Strategy = "hardlink"
	StrategyReflink  Strategy = "reflink"
	StrategyCopy     Strategy = "copy"
)

// ErrArchiveConflict is returned when the destination exists with
// different content than the file being placed.
var ErrArchiveConflict = errors.New("copier: archive conflict")

const copyBufSize = 4 << 20 // 4 MiB bounded buffer for the copy fallback

// ProbeStrategy picks the placement strategy: a forced strategy is
// returned as given (its support is not probed), else hardlink, else
// reflink, else copy.
// probePath is a scratch file under the archive root used only to test
// link/clone support; it is removed after probing.
func ProbeStrategy(forced Strategy, sourceSample, archiveRoot string) (Strategy, error) {
	if forced != "" {
		return forced, nil
	}

	probeDir := filepath.Join(archiveRoot, ".strategy-probe")
	if err := os.MkdirAll(probeDir, 0o755); err != nil {
		return StrategyCopy, nil
	}
	defer os.RemoveAll(probeDir)

	probePath := filepath.Join(probeDir, "probe.tmp")
	if err := os.Link(sourceSample, probePath); err == nil {
		_ = os.Remove(probePath)
		return StrategyHardlink, nil
	}
	_ = os.Remove(probePath)

	if reflinkSupported(sourceSample, probePath) {
		_ = os.Remove(probePath)
		return StrategyReflink, nil
	}
	_ = os.Remove(probePath)

	return StrategyCopy, nil
}

// PlaceInput describes one file to place.
type PlaceInput struct {
	Source      string
	Fingerprint string
	Extension   string
	LocationID  string
	ShortID     string
	Kind        pathsvc.KindFolder
}

// Place writes src's bytes to the archive path computed by svc for
// this fingerprint/kind, using strategy. It returns the archive path
// and bytes written.
func Place(ctx context.Context, svc *pathsvc.Service, strategy Strategy, loc pathsvc.Location, in PlaceInput) (archivePath string, bytesCopied int64, err error) {
	dest := svc.ArchivePath(loc, in.Kind, in.Fingerprint, in.Extension)

	if existingOK, err := destMatches(dest, in.Source); err != nil {
		return "", 0, err
	} else if existingOK {
		info, statErr := os.Stat(dest)
		if statErr != nil {
			return "", 0, statErr
		}
		return dest, info.Size(), nil
	} else if fileExists(dest) {
		return "", 0, fmt.Errorf("%w: %s", ErrArchiveConflict, dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("copier: create parent dir: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", 0, ctx.Err()
	default:
	}

	tmp := dest + ".tmp"
	defer os.Remove(tmp) // no-op once renamed away

	var n int64
	switch strategy {
	case StrategyHardlink:
		if err := os.Link(in.Source, tmp); err != nil {
			return "", 0, fmt.Errorf("copier: hardlink: %w", err)
		}
		info, err := os.Stat(tmp)
		if err != nil {
			return "", 0, err
		}
		n = info.Size()
	case StrategyReflink:
		written, err := reflinkCopy(in.Source, tmp)
		if err != nil {
			return "", 0, fmt.Errorf("copier: reflink: %w", err)
		}
		n = written
	default:
		written, err := streamCopy(in.Source, tmp)
		if err != nil {
			return "", 0, fmt.Errorf("copier: stream copy: %w", err)
		}
		n = written
	}

	if err := fsyncFile(tmp); err != nil {
		return "", 0, fmt.Errorf("copier: fsync tmp: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", 0, ctx.Err()
	default:
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", 0, fmt.Errorf("copier: rename: %w", err)
	}
	if err := fsyncDir(filepath.Dir(dest)); err != nil {
		logger := log.WithComponent("copier")
		logger.Warn().Err(err).Str("dir", filepath.Dir(dest)).Msg("fsync parent dir failed")
	}

	return dest, n, nil
}

func streamCopy(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	buf := make([]byte, copyBufSize)
	n, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		return 0, err
	}
	return n, out.Sync()
}

func destMatches(dest, source string) (bool, error) {
	destInfo, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	srcInfo, err := os.Stat(source)
	if err != nil {
		return false, err
	}
	if destInfo.Size() != srcInfo.Size() {
		return false, nil
	}
	destFP, err := fingerprint.File(dest)
	if err != nil {
		return false, err
	}
	srcFP, err := fingerprint.File(source)
	if err != nil {
		return false, err
	}
	return destFP == srcFP, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fsyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
