package fingerprint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
)

func TestFileAndBytesAgree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	content := []byte("test content")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fromFile, err := fingerprint.File(path)
	require.NoError(t, err)
	fromBytes := fingerprint.Bytes(content)

	require.Equal(t, fromBytes, fromFile)
	require.True(t, fingerprint.Valid(fromFile))
	require.Len(t, fromFile, fingerprint.Length)
}

func TestFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("same bytes"), 0o644))

	a, err := fingerprint.File(path)
	require.NoError(t, err)
	b, err := fingerprint.File(path)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBytesDiffersOnDifferentContent(t *testing.T) {
	a := fingerprint.Bytes([]byte("content A"))
	b := fingerprint.Bytes([]byte("content B"))
	require.NotEqual(t, a, b)
}

func TestFileMissingReturnsIOError(t *testing.T) {
	_, err := fingerprint.File("/nonexistent/path/does-not-exist.jpg")
	require.Error(t, err)
	var ioErr *fingerprint.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestValid(t *testing.T) {
	require.True(t, fingerprint.Valid("0123456789abcdef"))
	require.False(t, fingerprint.Valid("0123456789ABCDEF")) // uppercase rejected
	require.False(t, fingerprint.Valid("short"))
	require.False(t, fingerprint.Valid("0123456789abcdefff")) // too long
	require.False(t, fingerprint.Valid("ghijklmno0123456"))   // non-hex
}

func TestSumPadsShortDigests(t *testing.T) {
	// Sum must remain total (never panic) even on a pathologically
	// short digest, per the package's documented invariant.
	require.Len(t, fingerprint.Sum([]byte{1, 2, 3}), fingerprint.Length)
}
