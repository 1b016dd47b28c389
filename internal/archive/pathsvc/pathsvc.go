// Package pathsvc computes the deterministic, bucketed on-disk layout
// for archive artifacts.
package pathsvc

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// KindFolder maps a media kind to its archive folder prefix.
type KindFolder string

const (
	KindImage    KindFolder = "org-img"
	KindVideo    KindFolder = "org-vid"
	KindDocument KindFolder = "org-doc"
	KindMap      KindFolder = "org-map"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
var dashRuns = regexp.MustCompile(`-+`)

const maxSlugLen = 50

// Slug lowercases s, replaces runs of non-alphanumeric characters with
// a single hyphen, trims leading/trailing hyphens, and truncates to 50
// characters
func Slug(s string) string {
	lower := strings.ToLower(s)
	replaced := nonAlnum.ReplaceAllString(lower, "-")
	collapsed := dashRuns.ReplaceAllString(replaced, "-")
	trimmed := strings.Trim(collapsed, "-")
	if len(trimmed) > maxSlugLen {
		trimmed = strings.Trim(trimmed[:maxSlugLen], "-")
	}
	return trimmed
}

// StateCode uppercases a 2-letter state code, or returns "XX" if state
// is empty
func StateCode(state string) string {
	if state == "" {
		return "XX"
	}
	return strings.ToUpper(state)
}

// Bucket returns the 2-hex-character directory prefix for a
// fingerprint, bounding any single directory's entry count.
func Bucket(fingerprintHex string) string {
	if len(fingerprintHex) < 2 {
		return "00"
	}
	return fingerprintHex[:2]
}

// Location carries the fields pathsvc needs from a location record;
// internal/store.Location satisfies this via a thin projection.
type Location struct {
	ShortID   string
	State     string
	Type      string
	ShortName string // short-name used for the folder slug
}

// Service computes archive-root-relative (and absolute, given a root)
// paths. It holds no state beyond the archive root.
type Service struct {
	Root string
}

// New returns a Service rooted at archiveRoot.
func New(archiveRoot string) *Service {
	return &Service{Root: archiveRoot}
}

// LocationFolder returns the absolute path of a location's folder:
// <root>/locations/<STATE>-<type-slug>/<slocnam-slug>-<shortid>/
func (s *Service) LocationFolder(loc Location) string {
	stateTypeDir := StateCode(loc.State) + "-" + Slug(loc.Type)
	nameDir := Slug(loc.ShortName) + "-" + loc.ShortID
	return filepath.Join(s.Root, "locations", stateTypeDir, nameDir)
}

// KindFolder returns the absolute path of a location's per-kind
// payload folder, e.g. org-img-<shortid>/.
func (s *Service) KindFolder(loc Location, kind KindFolder) string {
	return filepath.Join(s.LocationFolder(loc), string(kind)+"-"+loc.ShortID)
}

// ArchivePath returns the destination path for a payload file of the
// given kind and fingerprint, with the source extension preserved
// (already lowercased by the caller).
func (s *Service) ArchivePath(loc Location, kind KindFolder, fingerprintHex, ext string) string {
	return filepath.Join(s.KindFolder(loc, kind), fingerprintHex+"."+ext)
}

// BagFolder returns the `_archive/` folder beneath the document kind
// folder, the only folder the BagIt service may write into.
func (s *Service) BagFolder(loc Location) string {
	return filepath.Join(s.KindFolder(loc, KindDocument), "_archive")
}

// derivedRoot returns <root>/.<name>/<bucket>/
func (s *Service) derivedRoot(name, fingerprintHex string) string {
	return filepath.Join(s.Root, "."+name, Bucket(fingerprintHex))
}

// ThumbnailPath returns the path for a generated thumbnail of the
// given pixel size (400, 800, or 1920)
func (s *Service) ThumbnailPath(fingerprintHex string, size int) string {
	return filepath.Join(s.derivedRoot("thumbnails", fingerprintHex),
		fingerprintHex+"_"+strconv.Itoa(size)+".jpg")
}

// PreviewPath returns the path for a generated full-size preview.
func (s *Service) PreviewPath(fingerprintHex string) string {
	return filepath.Join(s.derivedRoot("previews", fingerprintHex), fingerprintHex+".jpg")
}

// PosterPath returns the path for a generated video poster frame.
func (s *Service) PosterPath(fingerprintHex string) string {
	return filepath.Join(s.derivedRoot("posters", fingerprintHex), fingerprintHex+".jpg")
}

// VideoProxyPath returns the path for a generated H.264 faststart proxy.
func (s *Service) VideoProxyPath(fingerprintHex string) string {
	return filepath.Join(s.derivedRoot("video-proxies", fingerprintHex), fingerprintHex+".mp4")
}
