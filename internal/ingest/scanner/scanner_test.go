package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/ingest/scanner"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFlattensAndClassifies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "a.jpg"), "image bytes")
	writeFile(t, filepath.Join(src, "nested", "b.mp4"), "video bytes!")
	writeFile(t, filepath.Join(src, "c.exe"), "unknown")

	result, err := scanner.Scan(context.Background(), []string{src}, scanner.Options{ArchiveRoot: filepath.Join(dir, "archive")})
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalFiles)

	byName := map[string]bool{}
	for _, f := range result.Files {
		byName[f.Filename] = f.ShouldSkip
	}
	require.False(t, byName["a.jpg"])
	require.False(t, byName["b.mp4"])
	require.True(t, byName["c.exe"])
}

func TestScanIgnoresDotfilesAndDotDirs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, ".hidden.jpg"), "x")
	writeFile(t, filepath.Join(src, ".git", "config"), "x")
	writeFile(t, filepath.Join(src, "visible.jpg"), "x")

	result, err := scanner.Scan(context.Background(), []string{src}, scanner.Options{ArchiveRoot: filepath.Join(dir, "archive")})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalFiles)
	require.Equal(t, "visible.jpg", result.Files[0].Filename)
}

func TestScanIgnoresArchiveRoot(t *testing.T) {
	dir := t.TempDir()
	archiveRoot := filepath.Join(dir, "archive")
	writeFile(t, filepath.Join(archiveRoot, "already-ingested.jpg"), "x")
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "new.jpg"), "x")

	result, err := scanner.Scan(context.Background(), []string{archiveRoot, src}, scanner.Options{ArchiveRoot: archiveRoot})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalFiles)
	require.Equal(t, "new.jpg", result.Files[0].Filename)
}

func TestScanComputesByteTotalsAndETA(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	content := "0123456789"
	writeFile(t, filepath.Join(src, "a.jpg"), content)
	writeFile(t, filepath.Join(src, "b.jpg"), content)

	result, err := scanner.Scan(context.Background(), []string{src}, scanner.Options{
		ArchiveRoot:    filepath.Join(dir, "archive"),
		BytesPerSecond: 10,
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), result.TotalBytes)
	require.Equal(t, int64(2000), result.EstimatedDurationMs)
}

func TestScanUsesDefaultRateWhenUnset(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "a.jpg"), "x")

	result, err := scanner.Scan(context.Background(), []string{src}, scanner.Options{ArchiveRoot: filepath.Join(dir, "archive")})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.EstimatedDurationMs, int64(0))
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	for i := 0; i < 50; i++ {
		writeFile(t, filepath.Join(src, string(rune('a'+i%26))+".jpg"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.Scan(ctx, []string{src}, scanner.Options{ArchiveRoot: filepath.Join(dir, "archive")})
	require.ErrorIs(t, err, scanner.ErrCancelled)
}

func TestScanMarksSidecarsShouldHide(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "clip.srt"), "1\n00:00:00")

	result, err := scanner.Scan(context.Background(), []string{src}, scanner.Options{ArchiveRoot: filepath.Join(dir, "archive")})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	require.True(t, result.Files[0].ShouldHide)
	require.False(t, result.Files[0].ShouldSkip)
}
