// Package bagit implements the RFC 8493 bag sidecar written alongside
// every location's document folder: bagit.txt,
// bag-info.txt, manifest-sha256.txt, and tagmanifest-sha256.txt.
package bagit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/bizzlechizzle/au-archive/internal/archive/fingerprint"
)

const (
	bagitFile        = "bagit.txt"
	bagInfoFile      = "bag-info.txt"
	manifestFile     = "manifest-sha256.txt"
	tagManifestFile  = "tagmanifest-sha256.txt"
	bagitDeclaration = "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"
)

// PayloadFile is one file recorded in the bag's manifest: a media
// artifact's content fingerprint paired with its path relative to the
// _archive/ directory it is bagged from.
type PayloadFile struct {
	Fingerprint  string
	RelativePath string
	SizeBytes    int64
}

// Info holds the ordered bag-info.txt fields, rendered in a fixed key
// order. Optional fields are omitted from the rendered file when empty.
type Info struct {
	SourceOrganization        string
	BaggingDate               time.Time
	BagSoftwareAgent          string
	ExternalIdentifier        string // shortid
	ExternalDescription       string // locnam
	LocationState             string
	LocationType              string
	GPSLat                    string
	GPSLng                    string
	RegionName                string
	RegionDivision            string
	InternalSenderDescription string
}

// Write renders and atomically writes all four bag files into dir
// (the location's `_archive/` folder), computing Payload-Oxum from
// payload. Parent directories are created if absent. Writes use
// tmp-then-rename (via renameio) per file.
func Write(dir string, info Info, payload []PayloadFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bagit: create bag dir: %w", err)
	}

	sorted := make([]PayloadFile, len(payload))
	copy(sorted, payload)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelativePath < sorted[j].RelativePath })

	var totalBytes int64
	for _, p := range sorted {
		totalBytes += p.SizeBytes
	}
	payloadOxum := fmt.Sprintf("%d.%d", totalBytes, len(sorted))

	if err := writeAtomic(filepath.Join(dir, bagitFile), []byte(bagitDeclaration)); err != nil {
		return err
	}

	bagInfoBody := renderBagInfo(info, payloadOxum, len(sorted))
	if err := writeAtomic(filepath.Join(dir, bagInfoFile), []byte(bagInfoBody)); err != nil {
		return err
	}

	manifestBody := renderManifest(sorted)
	if err := writeAtomic(filepath.Join(dir, manifestFile), []byte(manifestBody)); err != nil {
		return err
	}

	tagManifestBody, err := renderTagManifest(dir)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, tagManifestFile), []byte(tagManifestBody)); err != nil {
		return err
	}

	return nil
}

func renderBagInfo(info Info, payloadOxum string, count int) string {
	var b strings.Builder
	line := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	line("Source-Organization", info.SourceOrganization)
	line("Bagging-Date", info.BaggingDate.Format("2006-01-02"))
	line("Bag-Software-Agent", info.BagSoftwareAgent)
	line("External-Identifier", info.ExternalIdentifier)
	line("External-Description", info.ExternalDescription)
	line("Location-State", info.LocationState)
	line("Location-Type", info.LocationType)
	line("GPS-Lat", info.GPSLat)
	line("GPS-Lng", info.GPSLng)
	line("Region-Name", info.RegionName)
	line("Region-Division", info.RegionDivision)
	line("Payload-Oxum", payloadOxum)
	line("Bag-Count", fmt.Sprintf("%d", count))
	line("Internal-Sender-Description", info.InternalSenderDescription)
	return b.String()
}

func renderManifest(payload []PayloadFile) string {
	var b strings.Builder
	for _, p := range payload {
		fmt.Fprintf(&b, "%s  %s\n", p.Fingerprint, p.RelativePath)
	}
	return b.String()
}

// renderTagManifest fingerprints the three tag files just written. The
// filename says sha256 (RFC 8493's conventional manifest naming); the
// digest underneath is the same BLAKE3 construction every other
// fingerprint in this archive uses.
func renderTagManifest(dir string) (string, error) {
	var b strings.Builder
	for _, name := range []string{bagitFile, bagInfoFile, manifestFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("bagit: read %s for tagmanifest: %w", name, err)
		}
		fmt.Fprintf(&b, "%s  %s\n", fingerprint.Bytes(data), name)
	}
	return b.String(), nil
}

func writeAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("bagit: create pending file %s: %w", path, err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("bagit: write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("bagit: atomically replace %s: %w", path, err)
	}
	return nil
}
