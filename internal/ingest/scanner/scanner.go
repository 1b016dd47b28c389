// Package scanner walks the operator-supplied source paths and
// produces the ordered file list the rest of the ingest pipeline
// consumes
package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/archive/classify"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/log"
)

// ErrCancelled is returned when the cancellation token fires mid-scan.
var ErrCancelled = errors.New("scanner: cancelled")

// defaultBytesPerSecond is the fallback throughput estimate used when
// no historical rate has been persisted yet.
const defaultBytesPerSecond = 50 * 1024 * 1024

// Options configures one scan pass.
type Options struct {
	ArchiveRoot    string
	BytesPerSecond int64 // historical rate; 0 uses defaultBytesPerSecond
}

// Scan walks paths (files or directories) and returns the scanner's
// stage result. Symlink loops are refused, dotfiles are ignored, and
// files already under ArchiveRoot are skipped so a source accidentally
// pointed at the archive itself does not re-ingest its own output.
func Scan(ctx context.Context, paths []string, opts Options) (*model.ScanResult, error) {
	logger := log.WithComponent("scanner")
	visited := make(map[string]bool)
	var files []model.ScannedFile
	var totalBytes int64

	archiveRootAbs, _ := filepath.Abs(opts.ArchiveRoot)

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ErrCancelled
			default:
			}

			base := d.Name()
			if strings.HasPrefix(base, ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil
			}
			if archiveRootAbs != "" && strings.HasPrefix(absPath, archiveRootAbs+string(filepath.Separator)) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("scan: stat failed, skipping")
				return nil
			}
			if info.Mode()&os.ModeSymlink != 0 {
				resolved, err := filepath.EvalSymlinks(path)
				if err != nil {
					return nil
				}
				if visited[resolved] {
					return nil
				}
				visited[resolved] = true
			}

			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
			kind := classify.ForExtension(ext)

			sf := model.ScannedFile{
				ID:           uuid.NewString(),
				OriginalPath: path,
				Filename:     base,
				Extension:    ext,
				SizeBytes:    info.Size(),
				Kind:         string(kind),
				ShouldSkip:   kind.Rejected(),
				ShouldHide:   kind == classify.KindSidecar,
				ModTime:      info.ModTime(),
			}
			files = append(files, sf)
			totalBytes += info.Size()
			return nil
		})
		if errors.Is(err, ErrCancelled) {
			return nil, ErrCancelled
		}
		if err != nil {
			return nil, err
		}
	}

	rate := opts.BytesPerSecond
	if rate <= 0 {
		rate = defaultBytesPerSecond
	}
	var etaMs int64
	if totalBytes > 0 {
		etaMs = (totalBytes * 1000) / rate
	}

	return &model.ScanResult{
		Files:               files,
		TotalFiles:          len(files),
		TotalBytes:          totalBytes,
		EstimatedDurationMs: etaMs,
	}, nil
}
