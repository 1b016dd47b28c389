package validator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/ingest/validator"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunValidPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeFile(t, path, "hello world")
	fp, err := fingerprint.File(path)
	require.NoError(t, err)

	files := []model.CopiedFile{{
		HashedFile:  model.HashedFile{Fingerprint: fp},
		ArchivePath: path,
		BytesCopied: int64(len("hello world")),
	}}

	var completed []model.ValidatedFile
	result, err := validator.Run(context.Background(), files, validator.Options{AutoRollback: true}, func(vf model.ValidatedFile) {
		completed = append(completed, vf)
	})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	require.True(t, result.Files[0].Valid)
	require.False(t, result.Files[0].RolledBack)
	require.Len(t, completed, 1)
	require.FileExists(t, path)
}

func TestRunRollsBackOnFingerprintMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeFile(t, path, "actual content")

	files := []model.CopiedFile{{
		HashedFile:  model.HashedFile{Fingerprint: "0000000000000000"},
		ArchivePath: path,
		BytesCopied: int64(len("actual content")),
	}}

	result, err := validator.Run(context.Background(), files, validator.Options{AutoRollback: true}, nil)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	require.False(t, result.Files[0].Valid)
	require.True(t, result.Files[0].RolledBack)
	require.NoFileExists(t, path)
}

func TestRunSkipsRollbackWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeFile(t, path, "actual content")

	files := []model.CopiedFile{{
		HashedFile:  model.HashedFile{Fingerprint: "0000000000000000"},
		ArchivePath: path,
		BytesCopied: int64(len("actual content")),
	}}

	result, err := validator.Run(context.Background(), files, validator.Options{AutoRollback: false}, nil)
	require.NoError(t, err)
	require.False(t, result.Files[0].Valid)
	require.False(t, result.Files[0].RolledBack)
	require.FileExists(t, path)
}

func TestRunPassesThroughDuplicates(t *testing.T) {
	files := []model.CopiedFile{{
		HashedFile: model.HashedFile{Fingerprint: "abc", IsDuplicate: true},
		CopyError:  "Duplicate",
	}}
	result, err := validator.Run(context.Background(), files, validator.Options{AutoRollback: true}, nil)
	require.NoError(t, err)
	require.True(t, result.Files[0].Valid)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := validator.Run(ctx, []model.CopiedFile{{ArchivePath: "x"}}, validator.Options{}, nil)
	require.ErrorIs(t, err, validator.ErrCancelled)
}
