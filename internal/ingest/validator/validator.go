// Package validator re-checks every successfully copied file's size
// and fingerprint against its expected value and, by default, rolls
// back any destination that disagrees
package validator

import (
	"context"
	"errors"
	"os"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/log"
)

// ErrCancelled is returned when the cancellation token fires mid-pass.
var ErrCancelled = errors.New("validator: cancelled")

// OnFileComplete is invoked once per validated file, in input order.
type OnFileComplete func(model.ValidatedFile)

// Options configures one validation pass.
type Options struct {
	AutoRollback bool // default true
}

// Run re-stats and re-fingerprints every copied file with a non-empty
// ArchivePath, reporting progress via onComplete and rolling back
// (unlinking) any invalid destination when AutoRollback is set.
func Run(ctx context.Context, files []model.CopiedFile, opts Options, onComplete OnFileComplete) (*model.ValidateResult, error) {
	logger := log.WithComponent("validator")
	results := make([]model.ValidatedFile, 0, len(files))

	for _, cf := range files {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		vf := model.ValidatedFile{CopiedFile: cf}

		if cf.ArchivePath == "" {
			// Duplicate or hash-error file: nothing was placed, nothing
			// to re-check. Not a validation failure.
			vf.Valid = true
			results = append(results, vf)
			if onComplete != nil {
				onComplete(vf)
			}
			continue
		}

		vf.Valid = checkOne(&vf)
		if !vf.Valid && opts.AutoRollback {
			if err := os.Remove(cf.ArchivePath); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", cf.ArchivePath).Msg("rollback: failed to remove invalid destination")
			} else {
				vf.RolledBack = true
			}
		}

		results = append(results, vf)
		if onComplete != nil {
			onComplete(vf)
		}
	}

	return &model.ValidateResult{Files: results}, nil
}

// checkOne re-stats and re-fingerprints one destination, setting
// ValidateError and returning whether it matched the expected size and
// fingerprint.
func checkOne(vf *model.ValidatedFile) bool {
	info, err := os.Stat(vf.ArchivePath)
	if err != nil {
		vf.ValidateError = err.Error()
		return false
	}
	if info.Size() != vf.BytesCopied {
		vf.ValidateError = "size mismatch"
		return false
	}

	gotFP, err := fingerprint.File(vf.ArchivePath)
	if err != nil {
		vf.ValidateError = err.Error()
		return false
	}
	if gotFP != vf.Fingerprint {
		vf.ValidateError = "fingerprint mismatch"
		return false
	}
	return true
}
