package finalizer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/ingest/finalizer"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

func newTestFinalizer(t *testing.T) (*finalizer.Finalizer, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st.DB)
	paths := pathsvc.New(dir)

	loc := &store.Location{ID: "loc-1", ShortID: "ab12cd", DisplayName: "Test Site", State: "CA", Type: "house"}
	require.NoError(t, st.PutLocation(context.Background(), loc))

	return finalizer.New(st, q, paths), st, dir
}

func writeArchivedFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFinalizeCommitsMediaAndImportRow(t *testing.T) {
	f, st, _ := newTestFinalizer(t)
	ploc := pathsvc.Location{ShortID: "ab12cd", State: "CA", Type: "house", ShortName: "Test Site"}
	imgPath := writeArchivedFile(t, f.Paths.ArchivePath(ploc, pathsvc.KindImage, "aaaaaaaaaaaaaaaa", "jpg"), "hello image")

	vr := &model.ValidateResult{Files: []model.ValidatedFile{
		{
			CopiedFile: model.CopiedFile{
				HashedFile: model.HashedFile{
					ScannedFile: model.ScannedFile{
						OriginalPath: "/src/img.jpg",
						Filename:     "img.jpg",
						Extension:    "jpg",
						SizeBytes:    int64(len("hello image")),
					},
					Fingerprint: "aaaaaaaaaaaaaaaa",
				},
				ArchivePath: imgPath,
				BytesCopied: int64(len("hello image")),
			},
			Valid: true,
		},
	}}

	result, err := f.Finalize(context.Background(), finalizer.Input{
		SessionID:      "sess-1",
		LocationID:     "loc-1",
		Importer:       "tester",
		CopyStrategy:   "copy",
		ValidateResult: vr,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FileCount)
	require.Equal(t, int64(len("hello image")), result.ByteCount)
	require.NotEmpty(t, result.EnqueuedJobIDs)

	media, err := st.FindMediaByFingerprint(context.Background(), store.MediaImage, "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	require.Equal(t, "loc-1", media.LocationID)
	require.False(t, media.Hidden)
}

func TestFinalizeHidesSidecarFiles(t *testing.T) {
	f, st, _ := newTestFinalizer(t)
	ploc := pathsvc.Location{ShortID: "ab12cd", State: "CA", Type: "house", ShortName: "Test Site"}
	sidecarPath := writeArchivedFile(t, f.Paths.ArchivePath(ploc, pathsvc.KindDocument, "bbbbbbbbbbbbbbbb", "srt"), "1\n00:00:00")

	vr := &model.ValidateResult{Files: []model.ValidatedFile{
		{
			CopiedFile: model.CopiedFile{
				HashedFile: model.HashedFile{
					ScannedFile: model.ScannedFile{
						OriginalPath: "/src/clip.srt",
						Filename:     "clip.srt",
						Extension:    "srt",
						SizeBytes:    int64(len("1\n00:00:00")),
					},
					Fingerprint: "bbbbbbbbbbbbbbbb",
				},
				ArchivePath: sidecarPath,
				BytesCopied: int64(len("1\n00:00:00")),
			},
			Valid: true,
		},
	}}

	result, err := f.Finalize(context.Background(), finalizer.Input{
		SessionID:      "sess-2",
		LocationID:     "loc-1",
		Importer:       "tester",
		CopyStrategy:   "copy",
		ValidateResult: vr,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FileCount)

	media, err := st.FindMediaByFingerprint(context.Background(), store.MediaDocument, "bbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	require.True(t, media.Hidden)
	require.Equal(t, store.HiddenReasonMetadataSidecar, media.HiddenReason)
}

// TestFinalizeDoesNotHideNonSidecarExtSidecarKind exercises the
// sidecar-hiding boundary: xmp/aae classify as classify.KindSidecar but are not
// in classify.SidecarExts, so they must land as visible documents.
func TestFinalizeDoesNotHideNonSidecarExtSidecarKind(t *testing.T) {
	f, st, _ := newTestFinalizer(t)
	ploc := pathsvc.Location{ShortID: "ab12cd", State: "CA", Type: "house", ShortName: "Test Site"}
	archivePath := writeArchivedFile(t, f.Paths.ArchivePath(ploc, pathsvc.KindDocument, "cccccccccccccccc", "xmp"), "<xmp/>")

	vr := &model.ValidateResult{Files: []model.ValidatedFile{
		{
			CopiedFile: model.CopiedFile{
				HashedFile: model.HashedFile{
					ScannedFile: model.ScannedFile{
						OriginalPath: "/src/photo.xmp",
						Filename:     "photo.xmp",
						Extension:    "xmp",
						SizeBytes:    int64(len("<xmp/>")),
					},
					Fingerprint: "cccccccccccccccc",
				},
				ArchivePath: archivePath,
				BytesCopied: int64(len("<xmp/>")),
			},
			Valid: true,
		},
	}}

	result, err := f.Finalize(context.Background(), finalizer.Input{
		SessionID:      "sess-3",
		LocationID:     "loc-1",
		Importer:       "tester",
		CopyStrategy:   "copy",
		ValidateResult: vr,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FileCount)

	media, err := st.FindMediaByFingerprint(context.Background(), store.MediaDocument, "cccccccccccccccc")
	require.NoError(t, err)
	require.False(t, media.Hidden)
	require.Empty(t, media.HiddenReason)
}

func TestFinalizeCountsDuplicatesAndErrorsWithoutIndexing(t *testing.T) {
	f, _, _ := newTestFinalizer(t)

	vr := &model.ValidateResult{Files: []model.ValidatedFile{
		{
			CopiedFile: model.CopiedFile{
				HashedFile: model.HashedFile{IsDuplicate: true},
				CopyError:  "duplicate",
			},
		},
		{
			CopiedFile: model.CopiedFile{
				HashedFile: model.HashedFile{HashError: "read error"},
			},
		},
	}}

	result, err := f.Finalize(context.Background(), finalizer.Input{
		SessionID:      "sess-3",
		LocationID:     "loc-1",
		Importer:       "tester",
		CopyStrategy:   "copy",
		ValidateResult: vr,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.FileCount)
	require.Equal(t, 1, result.DuplicateCount)
	require.Equal(t, 1, result.ErrorCount)
}

// TestRefreshBagFoldersByShortNameNotDisplayName proves the store-to-pathsvc
// conversion in RefreshBag keys the location folder slug off ShortName, not
// the unrelated DisplayName field.
func TestRefreshBagFoldersByShortNameNotDisplayName(t *testing.T) {
	f, st, dir := newTestFinalizer(t)
	loc := &store.Location{
		ID:          "loc-slug",
		ShortID:     "zz99yy",
		DisplayName: "The Grand Old Mill On The River",
		ShortName:   "grandmill",
		State:       "OH",
		Type:        "mill",
	}
	require.NoError(t, st.PutLocation(context.Background(), loc))

	require.NoError(t, f.RefreshBag(context.Background(), loc))

	expectedDir := filepath.Join(dir, "locations", "OH-mill", "grandmill-zz99yy", "org-doc-zz99yy", "_archive")
	_, err := os.Stat(filepath.Join(expectedDir, "bag-info.txt"))
	require.NoError(t, err, "expected bag written under ShortName-derived folder %s", expectedDir)

	wrongDir := filepath.Join(dir, "locations", "OH-mill", "the-grand-old-mill-on-the-river-zz99yy")
	_, err = os.Stat(wrongDir)
	require.True(t, os.IsNotExist(err), "bag folder must not be keyed by DisplayName")
}
