// Package fingerprinter hashes scanned files in a bounded parallel
// pool and marks duplicates against the Index and the current batch,
//
package fingerprinter

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

// OnFileComplete is invoked once per file, in scan order, as each
// file's hash result becomes available — work is dispatched in
// parallel but callbacks are serialized for the stream
type OnFileComplete func(model.HashedFile)

// DuplicateChecker looks up whether a fingerprint already exists in
// the Index's matching kind table.
type DuplicateChecker interface {
	FindMediaByFingerprint(ctx context.Context, kind store.MediaKind, fingerprint string) (*store.Media, error)
}

// concurrencyLimit returns cpu_count-1, floored at 1
func concurrencyLimit() int64 {
	n := int64(runtime.NumCPU() - 1)
	if n < 1 {
		return 1
	}
	return n
}

// Run hashes every scanned file, in parallel up to the CPU-bound
// limit, then serializes results back into scan order so duplicate
// detection against earlier files in the same batch is deterministic.
func Run(ctx context.Context, files []model.ScannedFile, checker DuplicateChecker, onComplete OnFileComplete) (*model.HashResult, error) {
	sem := semaphore.NewWeighted(concurrencyLimit())
	results := make([]model.HashedFile, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		if f.ShouldSkip {
			results[i] = model.HashedFile{ScannedFile: f}
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(idx int, sf model.ScannedFile) {
			defer sem.Release(1)
			defer wg.Done()
			results[idx] = hashOne(sf)
		}(i, f)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seenInBatch := make(map[string]bool)
	for i := range results {
		hf := &results[i]
		if !hf.ScannedFile.ShouldSkip && hf.HashError == "" {
			kind := mediaKindFor(hf.Kind)
			if kind != "" {
				if existing, err := checker.FindMediaByFingerprint(ctx, kind, hf.Fingerprint); err == nil && existing != nil {
					hf.IsDuplicate = true
				}
			}
			if !hf.IsDuplicate {
				if seenInBatch[hf.Fingerprint] {
					hf.IsDuplicate = true
				} else {
					seenInBatch[hf.Fingerprint] = true
				}
			}
		}
		if onComplete != nil {
			onComplete(*hf)
		}
	}

	return &model.HashResult{Files: results}, nil
}

func hashOne(sf model.ScannedFile) model.HashedFile {
	hf := model.HashedFile{ScannedFile: sf, CaptureTime: sf.ModTime}
	fp, err := fingerprint.File(sf.OriginalPath)
	if err != nil {
		hf.HashError = err.Error()
		return hf
	}
	hf.Fingerprint = fp
	return hf
}

func mediaKindFor(kind string) store.MediaKind {
	switch kind {
	case "image":
		return store.MediaImage
	case "video":
		return store.MediaVideo
	case "document":
		return store.MediaDocument
	case "map":
		return store.MediaMap
	default:
		return ""
	}
}
