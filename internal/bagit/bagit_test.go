package bagit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWrite_PayloadOxumMatchesFiles(t *testing.T) {
	root := t.TempDir()
	payloadDir := filepath.Join(root, "org-img-ABC123")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		t.Fatalf("mkdir payload dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(payloadDir, "aaaaaaaaaaaaaaaa.jpg"), []byte("hello world!"), 0o644); err != nil {
		t.Fatalf("write payload file: %v", err)
	}

	bagDir := filepath.Join(root, "_archive")
	info := Info{
		SourceOrganization: "au-archive",
		BaggingDate:        time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		BagSoftwareAgent:   "au-archive/test",
		ExternalIdentifier: "ABC123",
	}
	payload := []PayloadFile{{Fingerprint: "aaaaaaaaaaaaaaaa", RelativePath: "../org-img-ABC123/aaaaaaaaaaaaaaaa.jpg", SizeBytes: 12}}

	if err := Write(bagDir, info, payload); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	declaration, err := os.ReadFile(filepath.Join(bagDir, bagitFile))
	if err != nil {
		t.Fatalf("read bagit.txt: %v", err)
	}
	if string(declaration) != bagitDeclaration {
		t.Errorf("unexpected bagit.txt contents: %q", declaration)
	}

	bagInfo, err := os.ReadFile(filepath.Join(bagDir, bagInfoFile))
	if err != nil {
		t.Fatalf("read bag-info.txt: %v", err)
	}
	if !strings.Contains(string(bagInfo), "Payload-Oxum: 12.1") {
		t.Errorf("expected Payload-Oxum: 12.1 in bag-info.txt, got:\n%s", bagInfo)
	}

	result := QuickValidate(bagDir, []string{payloadDir})
	if result.Status != StatusValid {
		t.Errorf("expected valid quick-validate result, got %s (%s)", result.Status, result.Error)
	}
}

func TestQuickValidate_DetectsSizeMismatch(t *testing.T) {
	root := t.TempDir()
	payloadDir := filepath.Join(root, "org-img-ABC123")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(payloadDir, "a.jpg"), []byte("12 bytes!!!!"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	bagDir := filepath.Join(root, "_archive")
	if err := Write(bagDir, Info{BaggingDate: time.Now()}, []PayloadFile{{Fingerprint: "a", RelativePath: "a", SizeBytes: 12}}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	// Mutate the payload after the bag was written.
	if err := os.WriteFile(filepath.Join(payloadDir, "b.jpg"), []byte("extra"), 0o644); err != nil {
		t.Fatalf("write extra file: %v", err)
	}

	result := QuickValidate(bagDir, []string{payloadDir})
	if result.Status != StatusIncomplete {
		t.Errorf("expected incomplete result after payload drift, got %s", result.Status)
	}
}

func TestQuickValidate_NoneWhenArchiveAbsent(t *testing.T) {
	result := QuickValidate(filepath.Join(t.TempDir(), "missing"), nil)
	if result.Status != StatusNone {
		t.Errorf("expected none status for missing bag dir, got %s", result.Status)
	}
}

func TestValidate_ValidForUntouchedBag(t *testing.T) {
	root := t.TempDir()
	payloadDir := filepath.Join(root, "org-img-ABC123")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(payloadDir, "aaaaaaaaaaaaaaaa.jpg"), []byte("hello world!"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	bagDir := filepath.Join(root, "_archive")
	payload := []PayloadFile{{Fingerprint: "aaaaaaaaaaaaaaaa", RelativePath: "../org-img-ABC123/aaaaaaaaaaaaaaaa.jpg", SizeBytes: 12}}
	if err := Write(bagDir, Info{BaggingDate: time.Now()}, payload); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	result := Validate(bagDir, []string{payloadDir})
	if result.Status != StatusValid {
		t.Errorf("expected valid, got %s (%s)", result.Status, result.Error)
	}
}

// TestValidate_DeletedPayloadFileNamesIt covers out-of-band drift:
// deleting a payload file out-of-band makes QuickValidate report
// "incomplete" with the oxum count mismatch, while Validate goes further
// and names the specific missing file via its manifest-entry loop.
func TestValidate_DeletedPayloadFileNamesIt(t *testing.T) {
	root := t.TempDir()
	payloadDir := filepath.Join(root, "org-img-ABC123")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	payloadPath := filepath.Join(payloadDir, "aaaaaaaaaaaaaaaa.jpg")
	if err := os.WriteFile(payloadPath, []byte("hello world!"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	bagDir := filepath.Join(root, "_archive")
	payload := []PayloadFile{{Fingerprint: "aaaaaaaaaaaaaaaa", RelativePath: "../org-img-ABC123/aaaaaaaaaaaaaaaa.jpg", SizeBytes: 12}}
	if err := Write(bagDir, Info{BaggingDate: time.Now()}, payload); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	if err := os.Remove(payloadPath); err != nil {
		t.Fatalf("remove payload file: %v", err)
	}

	quick := QuickValidate(bagDir, []string{payloadDir})
	if quick.Status != StatusIncomplete {
		t.Errorf("expected quick-validate incomplete after deletion, got %s", quick.Status)
	}

	result := Validate(bagDir, []string{payloadDir})
	if result.Status != StatusInvalid {
		t.Errorf("expected validate invalid after deletion, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "aaaaaaaaaaaaaaaa.jpg") {
		t.Errorf("expected error to reference the deleted file, got %q", result.Error)
	}

	// Neither check mutates the filesystem.
	if _, err := os.Stat(bagDir); err != nil {
		t.Errorf("bag dir should still exist: %v", err)
	}
}
