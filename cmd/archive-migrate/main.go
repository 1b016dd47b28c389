// archive-migrate reconciles a location's on-disk kind folders against
// the Index, recording a migration_history entry for the pass. It is
// the recovery path for an archive whose filesystem was populated (or
// repaired) outside the normal ingest pipeline: a restored backup, a
// manually copied payload, a pre-Index archive root being brought
// under management for the first time.
package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/config"
	applog "github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

const migrationModule = "filesystem-reconcile"

var kindFolders = map[pathsvc.KindFolder]store.MediaKind{
	pathsvc.KindImage:    store.MediaImage,
	pathsvc.KindVideo:    store.MediaVideo,
	pathsvc.KindDocument: store.MediaDocument,
	pathsvc.KindMap:      store.MediaMap,
}

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	locationShortID := flag.String("location", "", "reconcile a single location by short id; empty reconciles every location")
	dryRun := flag.Bool("dry-run", false, "report what would be added without writing to the Index")
	flag.Parse()

	applog.Configure(applog.Config{Level: "info", Service: "archive-migrate"})
	logger := applog.WithComponent("archive-migrate")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open index")
	}
	defer st.Close()

	paths := pathsvc.New(cfg.ArchiveRoot)
	ctx := context.Background()

	var locations []*store.Location
	if *locationShortID != "" {
		loc, err := st.GetLocationByShortID(ctx, *locationShortID)
		if err != nil {
			logger.Fatal().Err(err).Str("short_id", *locationShortID).Msg("location not found")
		}
		locations = []*store.Location{loc}
	} else {
		locations, err = st.ListLocations(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to list locations")
		}
	}

	fmt.Printf("🔍 Reconciling %d location(s) against %s (dry-run=%v)\n", len(locations), cfg.ArchiveRoot, *dryRun)

	var added int
	var fingerprints []string
	for _, loc := range locations {
		n, fps, err := reconcileLocation(ctx, st, paths, loc, *dryRun, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("location_id", loc.ID).Msg("reconciliation failed")
		}
		added += n
		fingerprints = append(fingerprints, fps...)
		fmt.Printf("📂 %s (%s): %d file(s) added\n", loc.DisplayName, loc.ShortID, n)
	}

	if *dryRun {
		fmt.Printf("✅ Dry run complete: %d file(s) would be added.\n", added)
		return
	}

	sort.Strings(fingerprints)
	checksum := fingerprint.Bytes([]byte(strings.Join(fingerprints, ",")))
	if err := st.RecordMigration(store.MigrationRecord{
		Module:       migrationModule,
		SourceType:   "filesystem",
		SourcePath:   cfg.ArchiveRoot,
		MigratedAtMs: time.Now().UnixMilli(),
		RecordCount:  added,
		Checksum:     checksum,
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to record migration history")
	}

	fmt.Printf("✅ Reconciliation complete: %d file(s) added (checksum %s).\n", added, checksum)
}

