package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	var mode string
	if err := s.DB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil || mode != "wal" {
		t.Errorf("expected WAL mode, got %q (err: %v)", mode, err)
	}

	var fk int
	if err := s.DB.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Errorf("expected foreign_keys=ON, got %d (err: %v)", fk, err)
	}
}

func TestMigrate_ReconcilesDroppedIndex(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.DB.Exec(`DROP INDEX idx_locations_state`); err != nil {
		t.Fatalf("drop index: %v", err)
	}

	if err := migrate(s.DB); err != nil {
		t.Fatalf("migrate() after drop: %v", err)
	}

	var name string
	err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_locations_state'`).Scan(&name)
	if err != nil {
		t.Fatalf("expected idx_locations_state to be recreated: %v", err)
	}
}

func insertTestLocation(t *testing.T, s *Store, id string) *Location {
	t.Helper()
	loc := &Location{
		ID:          id,
		ShortID:     id[:8],
		DisplayName: "Test Location",
		ShortName:   "test",
		State:       "NY",
		Type:        "house",
	}
	if err := s.PutLocation(context.Background(), loc); err != nil {
		t.Fatalf("PutLocation() failed: %v", err)
	}
	return loc
}

func TestPutLocation_RejectsBadState(t *testing.T) {
	s := openTestStore(t)
	loc := &Location{ID: uuid.NewString(), ShortID: "bad1", DisplayName: "x", ShortName: "x", State: "ny", Type: "house"}
	if err := s.PutLocation(context.Background(), loc); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPutLocation_RejectsOutOfRangeGPS(t *testing.T) {
	s := openTestStore(t)
	bad := 999.0
	loc := &Location{ID: uuid.NewString(), ShortID: "bad2", DisplayName: "x", ShortName: "x", Type: "house", GPSLat: &bad}
	if err := s.PutLocation(context.Background(), loc); err != ErrInvalidGPS {
		t.Fatalf("expected ErrInvalidGPS, got %v", err)
	}
}

func TestLocation_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	want := insertTestLocation(t, s, id)

	got, err := s.GetLocation(ctx, id)
	if err != nil {
		t.Fatalf("GetLocation() failed: %v", err)
	}
	if got.DisplayName != want.DisplayName || got.State != want.State {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}

	byShort, err := s.GetLocationByShortID(ctx, want.ShortID)
	if err != nil {
		t.Fatalf("GetLocationByShortID() failed: %v", err)
	}
	if byShort.ID != want.ID {
		t.Errorf("GetLocationByShortID returned wrong row: %s", byShort.ID)
	}

	if _, err := s.GetLocation(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMedia_UpsertIsIdempotentByFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())

	m := &Media{
		Fingerprint:      "abcdef0123456789",
		Kind:             MediaImage,
		OriginalFilename: "IMG_0001.jpg",
		ArchiveFilename:  "abcdef0123456789.jpg",
		OriginalPath:     "/src/IMG_0001.jpg",
		ArchivePath:      "/archive/ny/house/org-img/ab/abcdef0123456789.jpg",
		LocationID:       loc.ID,
		Importer:         "cli",
		SizeBytes:        1024,
	}
	if err := s.PutMedia(ctx, m); err != nil {
		t.Fatalf("PutMedia() insert failed: %v", err)
	}

	m.ArchivePath = "/archive/ny/house/org-img/ab/abcdef0123456789-renamed.jpg"
	if err := s.PutMedia(ctx, m); err != nil {
		t.Fatalf("PutMedia() update failed: %v", err)
	}

	got, err := s.FindMediaByFingerprint(ctx, MediaImage, m.Fingerprint)
	if err != nil {
		t.Fatalf("FindMediaByFingerprint() failed: %v", err)
	}
	if got.ArchivePath != m.ArchivePath {
		t.Errorf("expected updated archive path, got %s", got.ArchivePath)
	}

	count, err := s.CountByLocation(ctx, loc.ID)
	if err != nil {
		t.Fatalf("CountByLocation() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one media row after upsert, got %d", count)
	}
}

func TestRefreshLocationStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())

	img := &Media{
		Fingerprint:      "abcdef0123456789",
		Kind:             MediaImage,
		OriginalFilename: "IMG_0001.jpg",
		ArchiveFilename:  "abcdef0123456789.jpg",
		OriginalPath:     "/src/IMG_0001.jpg",
		ArchivePath:      "/archive/ny/house/org-img/ab/abcdef0123456789.jpg",
		LocationID:       loc.ID,
		Importer:         "cli",
		SizeBytes:        1024,
	}
	vid := &Media{
		Fingerprint:      "fedcba9876543210",
		Kind:             MediaVideo,
		OriginalFilename: "MOV_0001.mov",
		ArchiveFilename:  "fedcba9876543210.mov",
		OriginalPath:     "/src/MOV_0001.mov",
		ArchivePath:      "/archive/ny/house/org-vid/fe/fedcba9876543210.mov",
		LocationID:       loc.ID,
		Importer:         "cli",
		SizeBytes:        2048,
	}
	if err := s.PutMedia(ctx, img); err != nil {
		t.Fatalf("PutMedia(image) failed: %v", err)
	}
	if err := s.PutMedia(ctx, vid); err != nil {
		t.Fatalf("PutMedia(video) failed: %v", err)
	}

	if err := s.RefreshLocationStats(ctx, loc.ID); err != nil {
		t.Fatalf("RefreshLocationStats() failed: %v", err)
	}

	got, err := s.GetLocation(ctx, loc.ID)
	if err != nil {
		t.Fatalf("GetLocation() failed: %v", err)
	}
	if got.StatsImageCount != 1 || got.StatsVideoCount != 1 {
		t.Errorf("expected 1 image and 1 video, got image=%d video=%d", got.StatsImageCount, got.StatsVideoCount)
	}
	if got.StatsTotalBytes != 1024+2048 {
		t.Errorf("expected total bytes 3072, got %d", got.StatsTotalBytes)
	}
	if got.StatsRefreshedAt == nil {
		t.Error("expected StatsRefreshedAt to be set")
	}
}

func TestSetHidden(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())
	m := &Media{
		Fingerprint: "fedcba9876543210", Kind: MediaVideo,
		OriginalFilename: "clip.mov", ArchiveFilename: "fedcba9876543210.mov",
		OriginalPath: "/src/clip.mov", ArchivePath: "/archive/clip.mov",
		LocationID: loc.ID, Importer: "cli", SizeBytes: 2048,
	}
	if err := s.PutMedia(ctx, m); err != nil {
		t.Fatalf("PutMedia() failed: %v", err)
	}

	if err := s.SetHidden(ctx, MediaVideo, m.Fingerprint, true, HiddenReasonLivePhoto); err != nil {
		t.Fatalf("SetHidden() failed: %v", err)
	}

	got, err := s.FindMediaByFingerprint(ctx, MediaVideo, m.Fingerprint)
	if err != nil {
		t.Fatalf("FindMediaByFingerprint() failed: %v", err)
	}
	if !got.Hidden || got.HiddenReason != HiddenReasonLivePhoto {
		t.Errorf("expected hidden=true reason=live_photo, got hidden=%v reason=%s", got.Hidden, got.HiddenReason)
	}
}

func TestImportSession_ResumeLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())

	sess := &ImportSession{
		SessionID:   uuid.NewString(),
		LocationID:  loc.ID,
		Status:      SessionHashing,
		SourcePaths: []string{"/src/a", "/src/b"},
		LastStep:    1,
		Resumable:   true,
	}
	if err := s.PutImportSession(ctx, sess); err != nil {
		t.Fatalf("PutImportSession() failed: %v", err)
	}

	resumable, err := s.ListResumable(ctx)
	if err != nil {
		t.Fatalf("ListResumable() failed: %v", err)
	}
	if len(resumable) != 1 || resumable[0].SessionID != sess.SessionID {
		t.Fatalf("expected session to be listed as resumable, got %d results", len(resumable))
	}
	if len(resumable[0].SourcePaths) != 2 {
		t.Errorf("expected 2 source paths round-tripped, got %d", len(resumable[0].SourcePaths))
	}

	if err := s.MarkSessionTerminal(ctx, sess.SessionID, SessionCompleted, ""); err != nil {
		t.Fatalf("MarkSessionTerminal() failed: %v", err)
	}

	resumable, err = s.ListResumable(ctx)
	if err != nil {
		t.Fatalf("ListResumable() after completion failed: %v", err)
	}
	if len(resumable) != 0 {
		t.Errorf("expected no resumable sessions after completion, got %d", len(resumable))
	}
}

func TestReferencePoint_LinkUnlink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())

	rm := &ReferenceMap{ID: uuid.NewString(), FilePath: "/refs/abandoned.kml", Kind: "kml", PointCount: 1}
	if err := s.PutReferenceMap(ctx, rm); err != nil {
		t.Fatalf("PutReferenceMap() failed: %v", err)
	}

	pt := &ReferencePoint{ID: uuid.NewString(), MapID: rm.ID, Name: "Old Mill", Lat: 42.1, Lng: -74.2}
	if err := s.PutReferencePoint(ctx, pt); err != nil {
		t.Fatalf("PutReferencePoint() failed: %v", err)
	}

	unlinked, err := s.UnlinkedReferencePoints(ctx, rm.ID)
	if err != nil {
		t.Fatalf("UnlinkedReferencePoints() failed: %v", err)
	}
	if len(unlinked) != 1 {
		t.Fatalf("expected 1 unlinked point, got %d", len(unlinked))
	}

	if err := s.LinkReferencePoint(ctx, pt.ID, loc.ID); err != nil {
		t.Fatalf("LinkReferencePoint() failed: %v", err)
	}

	unlinked, err = s.UnlinkedReferencePoints(ctx, rm.ID)
	if err != nil {
		t.Fatalf("UnlinkedReferencePoints() after link failed: %v", err)
	}
	if len(unlinked) != 0 {
		t.Errorf("expected 0 unlinked points after linking, got %d", len(unlinked))
	}
}
