// Package finalizer commits a completed ingest session's valid copies
// into the Index in a single transaction, refreshes the location's
// BagIt sidecar, and enqueues the post-copy background jobs
package finalizer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/archive/classify"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/bagit"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

// Input bundles everything the finalizer needs to commit one session.
type Input struct {
	SessionID      string
	LocationID     string
	Importer       string
	CopyStrategy   string
	ValidateResult *model.ValidateResult
}

// Finalizer wires the Index, the BagIt service, and the job queue
// together for the finalize stage.
type Finalizer struct {
	Store *store.Store
	Queue *queue.Queue
	Paths *pathsvc.Service
}

// New returns a Finalizer bound to the given collaborators.
func New(st *store.Store, q *queue.Queue, paths *pathsvc.Service) *Finalizer {
	return &Finalizer{Store: st, Queue: q, Paths: paths}
}

// Finalize runs the media/import inserts inside one Index transaction
// (steps 1-2), then refreshes the bag (step 4) and enqueues follow-up
// jobs (step 5) once the transaction has committed, since neither of
// those touches the Index's row-level invariants directly.
func (f *Finalizer) Finalize(ctx context.Context, in Input) (*model.FinalizeResult, error) {
	logger := log.WithComponent("finalizer")

	loc, err := f.Store.GetLocation(ctx, in.LocationID)
	if err != nil {
		return nil, fmt.Errorf("finalizer: get location: %w", err)
	}

	tx, err := f.Store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := &model.FinalizeResult{ImportID: uuid.NewString()}
	now := time.Now().UTC()

	for _, vf := range in.ValidateResult.Files {
		if vf.CopyError != "" || vf.ArchivePath == "" {
			if vf.IsDuplicate {
				result.DuplicateCount++
			} else if vf.ShouldSkip {
				// Flagged at scan; intentionally not placed, not an error.
			} else if vf.CopyError != "" || vf.HashError != "" || vf.ValidateError != "" {
				result.ErrorCount++
			}
			continue
		}
		if !vf.Valid {
			result.ErrorCount++
			continue
		}

		kind := classify.ForExtension(vf.Extension)
		mediaKind, hidden, hiddenReason := mediaKindFor(kind, vf.Extension)

		m := &store.Media{
			Fingerprint:      vf.Fingerprint,
			Kind:             mediaKind,
			OriginalFilename: vf.Filename,
			ArchiveFilename:  filepath.Base(vf.ArchivePath),
			OriginalPath:     vf.OriginalPath,
			ArchivePath:      vf.ArchivePath,
			LocationID:       in.LocationID,
			Importer:         in.Importer,
			ImportedAt:       now,
			SizeBytes:        vf.BytesCopied,
			Hidden:           hidden,
			HiddenReason:     hiddenReason,
			IsLivePhoto:      vf.IsLivePhoto,
		}
		if err := tx.PutMedia(ctx, m); err != nil {
			return nil, fmt.Errorf("finalizer: put media %s: %w", vf.Fingerprint, err)
		}
		result.FileCount++
		result.ByteCount += vf.BytesCopied
	}

	imp := &store.Import{
		ID:             result.ImportID,
		SessionID:      in.SessionID,
		LocationID:     in.LocationID,
		Importer:       in.Importer,
		CopyStrategy:   in.CopyStrategy,
		FileCount:      result.FileCount,
		ByteCount:      result.ByteCount,
		DuplicateCount: result.DuplicateCount,
		ErrorCount:     result.ErrorCount,
		CreatedAt:      now,
	}
	if err := tx.RecordImport(ctx, imp); err != nil {
		return nil, fmt.Errorf("finalizer: record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("finalizer: commit: %w", err)
	}

	if err := f.RefreshBag(ctx, loc); err != nil {
		logger.Warn().Err(err).Str("location_id", loc.ID).Msg("finalize: bag refresh failed, will retry via queue")
	}

	jobIDs, err := f.enqueueFollowups(ctx, loc, in)
	if err != nil {
		return nil, fmt.Errorf("finalizer: enqueue follow-ups: %w", err)
	}
	result.EnqueuedJobIDs = jobIDs

	return result, nil
}

// mediaKindFor maps a classifier kind to the media table it lands in
// and whether it must be force-hidden: only the
// srt/lrf/thm sidecar extensions are filed as hidden documents; xmp/aae
// sidecars classify as KindSidecar too but stay visible.
func mediaKindFor(kind classify.Kind, ext string) (store.MediaKind, bool, string) {
	switch kind {
	case classify.KindImage:
		return store.MediaImage, false, ""
	case classify.KindVideo:
		return store.MediaVideo, false, ""
	case classify.KindMap:
		return store.MediaMap, false, ""
	case classify.KindSidecar:
		if classify.SidecarExts[strings.ToLower(strings.TrimPrefix(ext, "."))] {
			return store.MediaDocument, true, store.HiddenReasonMetadataSidecar
		}
		return store.MediaDocument, false, ""
	default:
		return store.MediaDocument, false, ""
	}
}

// RefreshBag regenerates bag-info.txt and manifest-sha256.txt for the
// location by summing every media row currently indexed under it.
// Exported so the bagit queue job handler can rerun it outside the
// finalize transaction.
func (f *Finalizer) RefreshBag(ctx context.Context, loc *store.Location) error {
	payload, err := f.collectPayload(ctx, loc)
	if err != nil {
		return err
	}

	ploc := pathsvc.Location{ShortID: loc.ShortID, State: loc.State, Type: loc.Type, ShortName: loc.ShortName}
	bagDir := f.Paths.BagFolder(ploc)

	info := bagit.Info{
		SourceOrganization:  "au-archive",
		BaggingDate:         time.Now().UTC(),
		BagSoftwareAgent:    "au-archive/finalizer",
		ExternalIdentifier:  loc.ShortID,
		ExternalDescription: loc.DisplayName,
		LocationState:       loc.State,
		LocationType:        loc.Type,
	}
	if err := bagit.Write(bagDir, info, payload); err != nil {
		return fmt.Errorf("finalizer: write bag: %w", err)
	}

	result := bagit.Validate(bagDir, f.payloadDirs(ploc))
	return f.Store.UpdateBagStatus(ctx, loc.ID, string(result.Status), result.Error, time.Now().UTC())
}

func (f *Finalizer) payloadDirs(ploc pathsvc.Location) []string {
	return []string{
		f.Paths.KindFolder(ploc, pathsvc.KindImage),
		f.Paths.KindFolder(ploc, pathsvc.KindVideo),
		f.Paths.KindFolder(ploc, pathsvc.KindDocument),
		f.Paths.KindFolder(ploc, pathsvc.KindMap),
	}
}

func (f *Finalizer) collectPayload(ctx context.Context, loc *store.Location) ([]bagit.PayloadFile, error) {
	ploc := pathsvc.Location{ShortID: loc.ShortID, State: loc.State, Type: loc.Type, ShortName: loc.ShortName}
	bagDir := f.Paths.BagFolder(ploc)

	var payload []bagit.PayloadFile
	for _, kind := range []store.MediaKind{store.MediaImage, store.MediaVideo, store.MediaDocument, store.MediaMap} {
		rows, err := f.Store.ListMediaByLocation(ctx, kind, loc.ID)
		if err != nil {
			return nil, fmt.Errorf("finalizer: list %s media: %w", kind, err)
		}
		for _, m := range rows {
			rel, err := filepath.Rel(bagDir, m.ArchivePath)
			if err != nil {
				rel = m.ArchivePath
			}
			payload = append(payload, bagit.PayloadFile{
				Fingerprint:  m.Fingerprint,
				RelativePath: rel,
				SizeBytes:    m.SizeBytes,
			})
		}
	}
	return payload, nil
}

// enqueueFollowups creates the post-copy background jobs, wiring
// their dependency (thumb depends on exif for orientation) and
// priority.
func (f *Finalizer) enqueueFollowups(ctx context.Context, loc *store.Location, in Input) ([]string, error) {
	var inputs []queue.EnqueueInput
	var fingerprints []string

	for _, vf := range in.ValidateResult.Files {
		if vf.ArchivePath == "" || !vf.Valid {
			continue
		}
		switch classify.ForExtension(vf.Extension) {
		case classify.KindImage:
			inputs = append(inputs, queue.EnqueueInput{Queue: "exiftool", Priority: queue.PriorityNormal, Payload: jobPayload(loc, vf)})
			fingerprints = append(fingerprints, vf.Fingerprint)
		case classify.KindVideo:
			inputs = append(inputs, queue.EnqueueInput{Queue: "ffprobe", Priority: queue.PriorityNormal, Payload: jobPayload(loc, vf)})
			fingerprints = append(fingerprints, vf.Fingerprint)
		}
	}

	ids, err := f.Queue.Enqueue(ctx, inputs)
	if err != nil {
		return nil, err
	}

	// Enqueue returns job IDs in input order, so zipping fingerprints
	// against ids here gives the exiftool/ffprobe job each placed file
	// landed under, for thumbnail/video-proxy to depend on.
	jobByFingerprint := make(map[string]string, len(fingerprints))
	for i, fp := range fingerprints {
		jobByFingerprint[fp] = ids[i]
	}

	var thumbInputs []queue.EnqueueInput
	for _, vf := range filterPlacedByKind(in.ValidateResult.Files, classify.KindImage) {
		thumbInputs = append(thumbInputs, queue.EnqueueInput{
			Queue: "thumbnail", Priority: queue.PriorityNormal, Payload: jobPayload(loc, vf),
			DependsOn: jobByFingerprint[vf.Fingerprint],
		})
	}
	thumbIDs, err := f.Queue.Enqueue(ctx, thumbInputs)
	if err != nil {
		return nil, err
	}
	ids = append(ids, thumbIDs...)

	var videoInputs []queue.EnqueueInput
	for _, vf := range filterPlacedByKind(in.ValidateResult.Files, classify.KindVideo) {
		videoInputs = append(videoInputs, queue.EnqueueInput{
			Queue: "video-proxy", Priority: queue.PriorityLow, Payload: jobPayload(loc, vf),
			DependsOn: jobByFingerprint[vf.Fingerprint],
		})
	}
	videoIDs, err := f.Queue.Enqueue(ctx, videoInputs)
	if err != nil {
		return nil, err
	}
	ids = append(ids, videoIDs...)

	livePhotoIDs, err := f.Queue.Enqueue(ctx, []queue.EnqueueInput{{
		Queue: "live-photo", Priority: queue.PriorityLow,
		Payload: map[string]string{"session_id": in.SessionID, "location_id": loc.ID},
	}})
	if err != nil {
		return nil, err
	}
	ids = append(ids, livePhotoIDs...)

	bagIDs, err := f.Queue.Enqueue(ctx, []queue.EnqueueInput{{
		Queue: "bagit", Priority: queue.PriorityHigh,
		Payload: map[string]string{"location_id": loc.ID},
	}})
	if err != nil {
		return nil, err
	}
	ids = append(ids, bagIDs...)

	statsIDs, err := f.Queue.Enqueue(ctx, []queue.EnqueueInput{{
		Queue: "location-stats", Priority: queue.PriorityNormal,
		Payload: map[string]string{"location_id": loc.ID},
		DependsOn: firstOrEmpty(bagIDs),
	}})
	if err != nil {
		return nil, err
	}
	ids = append(ids, statsIDs...)

	return ids, nil
}

func filterPlacedByKind(files []model.ValidatedFile, kind classify.Kind) []model.ValidatedFile {
	var out []model.ValidatedFile
	for _, vf := range files {
		if vf.ArchivePath == "" || !vf.Valid {
			continue
		}
		if classify.ForExtension(vf.Extension) == kind {
			out = append(out, vf)
		}
	}
	return out
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func jobPayload(loc *store.Location, vf model.ValidatedFile) map[string]string {
	return map[string]string{
		"location_id": loc.ID,
		"fingerprint": vf.Fingerprint,
		"path":        vf.ArchivePath,
	}
}
