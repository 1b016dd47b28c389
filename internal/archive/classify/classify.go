// Package classify maps file extensions to archive media kinds and
// detects live-photo pairings.
package classify

import (
	"strings"
	"time"
)

// Kind is the archive media kind a scanned file belongs to.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindMap      Kind = "map"
	KindSidecar  Kind = "sidecar"
	KindUnknown  Kind = "unknown"
)

var extToKind = buildExtTable()

func buildExtTable() map[string]Kind {
	m := make(map[string]Kind)
	add := func(kind Kind, exts ...string) {
		for _, e := range exts {
			m[e] = kind
		}
	}
	add(KindImage,
		"jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp",
		"nef", "cr2", "cr3", "arw", "dng", "orf", "raf", "rw2", "pef",
	)
	add(KindVideo, "mp4", "mov", "avi", "mkv", "wmv", "flv", "webm")
	add(KindDocument, "pdf", "doc", "docx", "txt", "rtf", "odt")
	add(KindMap, "kml", "gpx", "geojson")
	add(KindSidecar, "srt", "lrf", "thm", "xmp", "aae")
	return m
}

// SidecarExts names the extensions that finalize as hidden document
// sidecars.
var SidecarExts = map[string]bool{"srt": true, "lrf": true, "thm": true}

// ForExtension returns the kind for a case-insensitive extension
// (without the leading dot). Unknown extensions return KindUnknown.
func ForExtension(ext string) Kind {
	clean := strings.ToLower(strings.TrimPrefix(ext, "."))
	if kind, ok := extToKind[clean]; ok {
		return kind
	}
	return KindUnknown
}

// Rejected reports whether a kind should be skipped entirely by the
// scanner: unknown extensions are rejected outright; sidecars
// are scanned but hidden, not rejected.
func (k Kind) Rejected() bool {
	return k == KindUnknown
}

// LivePhotoThreshold bounds the capture-time delta between a still and
// a motion file sharing a base filename: they are paired as a live
// photo only when the delta is below it
const LivePhotoThreshold = 2 * time.Second

// LivePhotoCandidate describes one scanned file's identity for the
// purpose of live-photo pairing within a single scan batch.
type LivePhotoCandidate struct {
	ID          string
	BaseName    string // filename without extension, case-folded
	Kind        Kind
	CaptureTime time.Time // zero if unknown; unknown capture times never pair
}

// PairLivePhotos scans a batch of candidates from the same session and
// returns the set of candidate IDs that should be marked
// is_live_photo=true: a still/video pair sharing a base filename whose
// capture-time delta is below LivePhotoThreshold. Pairing never crosses
// a session boundary.
func PairLivePhotos(candidates []LivePhotoCandidate) map[string]bool {
	byBase := make(map[string][]LivePhotoCandidate)
	for _, c := range candidates {
		byBase[c.BaseName] = append(byBase[c.BaseName], c)
	}

	paired := make(map[string]bool)
	for _, group := range byBase {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Kind == b.Kind {
					continue
				}
				if !isStillVideoPair(a.Kind, b.Kind) {
					continue
				}
				if a.CaptureTime.IsZero() || b.CaptureTime.IsZero() {
					continue
				}
				delta := a.CaptureTime.Sub(b.CaptureTime)
				if delta < 0 {
					delta = -delta
				}
				if delta < LivePhotoThreshold {
					paired[a.ID] = true
					paired[b.ID] = true
				}
			}
		}
	}
	return paired
}

func isStillVideoPair(a, b Kind) bool {
	return (a == KindImage && b == KindVideo) || (a == KindVideo && b == KindImage)
}
