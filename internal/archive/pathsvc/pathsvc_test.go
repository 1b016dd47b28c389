package pathsvc_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
)

func TestSlugRules(t *testing.T) {
	require.Equal(t, "old-factory", pathsvc.Slug("Old Factory"))
	require.Equal(t, "a-b-c", pathsvc.Slug("A!!B??C"))
	require.Equal(t, "abandoned-mill", pathsvc.Slug("  Abandoned Mill  "))
	require.Equal(t, "", pathsvc.Slug("###"))

	long := strings.Repeat("a", 60)
	slug := pathsvc.Slug(long)
	require.Len(t, slug, 50)
}

func TestStateCode(t *testing.T) {
	require.Equal(t, "NY", pathsvc.StateCode("ny"))
	require.Equal(t, "XX", pathsvc.StateCode(""))
}

func TestBucket(t *testing.T) {
	require.Equal(t, "ab", pathsvc.Bucket("ab12cd34ef56gh78"))
	require.Equal(t, "00", pathsvc.Bucket("a"))
}

func TestLocationFolderLayout(t *testing.T) {
	svc := pathsvc.New("/archive")
	loc := pathsvc.Location{ShortID: "ABC123", State: "NY", Type: "Factory", ShortName: "Old Factory"}

	got := svc.LocationFolder(loc)
	want := filepath.Join("/archive", "locations", "NY-factory", "old-factory-ABC123")
	require.Equal(t, want, got)
}

func TestLocationFolderMissingState(t *testing.T) {
	svc := pathsvc.New("/archive")
	loc := pathsvc.Location{ShortID: "ABC123", Type: "Factory", ShortName: "Old Factory"}

	got := svc.LocationFolder(loc)
	require.True(t, strings.HasPrefix(got, filepath.Join("/archive", "locations", "XX-factory")))
}

func TestKindFolderAndArchivePath(t *testing.T) {
	svc := pathsvc.New("/archive")
	loc := pathsvc.Location{ShortID: "ABC123", State: "NY", Type: "Factory", ShortName: "Old Factory"}

	kindDir := svc.KindFolder(loc, pathsvc.KindImage)
	require.Equal(t, filepath.Join(svc.LocationFolder(loc), "org-img-ABC123"), kindDir)

	archivePath := svc.ArchivePath(loc, pathsvc.KindImage, "0123456789abcdef", "jpg")
	require.Equal(t, filepath.Join(kindDir, "0123456789abcdef.jpg"), archivePath)
}

func TestBagFolderUnderDocumentKind(t *testing.T) {
	svc := pathsvc.New("/archive")
	loc := pathsvc.Location{ShortID: "ABC123", State: "NY", Type: "Factory", ShortName: "Old Factory"}

	got := svc.BagFolder(loc)
	want := filepath.Join(svc.KindFolder(loc, pathsvc.KindDocument), "_archive")
	require.Equal(t, want, got)
}

func TestDerivedArtifactPaths(t *testing.T) {
	svc := pathsvc.New("/archive")
	fp := "0123456789abcdef"

	require.Equal(t, filepath.Join("/archive", ".thumbnails", "01", fp+"_400.jpg"), svc.ThumbnailPath(fp, 400))
	require.Equal(t, filepath.Join("/archive", ".thumbnails", "01", fp+"_1920.jpg"), svc.ThumbnailPath(fp, 1920))
	require.Equal(t, filepath.Join("/archive", ".previews", "01", fp+".jpg"), svc.PreviewPath(fp))
	require.Equal(t, filepath.Join("/archive", ".posters", "01", fp+".jpg"), svc.PosterPath(fp))
	require.Equal(t, filepath.Join("/archive", ".video-proxies", "01", fp+".mp4"), svc.VideoProxyPath(fp))
}
