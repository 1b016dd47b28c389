package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

// reconcileLocation walks every kind folder under loc, registering any
// payload file not already present in the Index under its
// fingerprint. Files already known (by fingerprint, within that kind)
// are left untouched — this is additive reconciliation, not a re-copy
// or overwrite. It returns the number of files added and their
// fingerprints, for the caller's checksum.
func reconcileLocation(ctx context.Context, st *store.Store, paths *pathsvc.Service, loc *store.Location, dryRun bool, logger zerolog.Logger) (int, []string, error) {
	svcLoc := pathsvc.Location{ShortID: loc.ShortID, State: loc.State, Type: loc.Type, ShortName: loc.ShortName}

	var added int
	var fps []string

	for folder, kind := range kindFolders {
		kindFolder := paths.KindFolder(svcLoc, folder)

		err := filepath.WalkDir(kindFolder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				// The BagIt service owns _archive/; never ingest its
				// sidecar files as media.
				if d.Name() == "_archive" {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}

			fp, err := fingerprint.File(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("archive-migrate: skipping unreadable file")
				return nil
			}

			if _, err := st.FindMediaByFingerprint(ctx, kind, fp); err == nil {
				return nil // already known
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if dryRun {
				added++
				fps = append(fps, fp)
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			m := &store.Media{
				Fingerprint:      fp,
				Kind:             kind,
				OriginalFilename: d.Name(),
				ArchiveFilename:  d.Name(),
				OriginalPath:     path,
				ArchivePath:      path,
				LocationID:       loc.ID,
				Importer:         "archive-migrate",
				SizeBytes:        info.Size(),
			}
			if err := st.PutMedia(ctx, m); err != nil {
				return err
			}

			added++
			fps = append(fps, fp)
			return nil
		})
		if err != nil {
			return added, fps, err
		}
	}

	if !dryRun && added > 0 {
		if err := st.RefreshLocationStats(ctx, loc.ID); err != nil {
			return added, fps, err
		}
	}

	return added, fps, nil
}
