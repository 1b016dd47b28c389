package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bizzlechizzle/au-archive/internal/archive/classify"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/geocode"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/metadata"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/probe"
	"github.com/bizzlechizzle/au-archive/internal/collaborators/thumb"
	proxycol "github.com/bizzlechizzle/au-archive/internal/collaborators/proxy"
	"github.com/bizzlechizzle/au-archive/internal/ingest/finalizer"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

// Thumbnail sizes rendered for every image
const (
	thumbSmallPx = 400
	thumbLargePx = 1920
)

// Handlers bundles every collaborator and store dependency the
// named-queue jobs need, and builds the Pool slice Runtime drives.
// It consumes the same job payloads the finalizer enqueues.
type Handlers struct {
	Store     *store.Store
	Paths     *pathsvc.Service
	Finalizer *finalizer.Finalizer

	Metadata metadata.Extractor
	Probe    probe.Extractor
	Thumb    thumb.Renderer
	Proxy    proxycol.Encoder
	Geocode  *geocode.Service
}

// Pools returns one Pool per named queue, wired to this Handlers'
// collaborators, at the concurrency the caller picks per queue.
func (h *Handlers) Pools(concurrency map[string]int) []Pool {
	return []Pool{
		{Queue: "exiftool", Concurrency: concurrency["exiftool"], Handler: h.handleExiftool},
		{Queue: "ffprobe", Concurrency: concurrency["ffprobe"], Handler: h.handleFFProbe},
		{Queue: "thumbnail", Concurrency: concurrency["thumbnail"], Handler: h.handleThumbnail},
		{Queue: "video-proxy", Concurrency: concurrency["video-proxy"], Handler: h.handleVideoProxy},
		{Queue: "live-photo", Concurrency: concurrency["live-photo"], Handler: h.handleLivePhoto},
		{Queue: "bagit", Concurrency: concurrency["bagit"], Handler: h.handleBagit},
		{Queue: "location-stats", Concurrency: concurrency["location-stats"], Handler: h.handleLocationStats},
		{Queue: "geocode", Concurrency: concurrency["geocode"], Handler: h.handleGeocode},
	}
}

func decodePayload(job *queue.Job) (map[string]string, error) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("worker: decode job %s payload: %w", job.ID, err)
	}
	return payload, nil
}

func (h *Handlers) handleExiftool(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	fingerprint, path := payload["fingerprint"], payload["path"]

	result, err := h.Metadata.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("worker: exiftool extract %s: %w", fingerprint, err)
	}

	var width, height *int
	if result.Width > 0 {
		w := result.Width
		width = &w
	}
	if result.Height > 0 {
		ht := result.Height
		height = &ht
	}
	capturePtr := pointerToTimeOrNil(result.DateTaken)
	var lat, lng *float64
	if result.GPS != nil {
		lat, lng = &result.GPS.Lat, &result.GPS.Lng
	}

	if err := h.Store.UpdateImageMetadata(ctx, fingerprint, width, height, capturePtr, lat, lng, result.Camera); err != nil {
		return nil, fmt.Errorf("worker: persist image metadata %s: %w", fingerprint, err)
	}
	return result, nil
}

func (h *Handlers) handleFFProbe(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	fingerprint, path := payload["fingerprint"], payload["path"]

	result, err := h.Probe.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("worker: ffprobe extract %s: %w", fingerprint, err)
	}

	var width, height *int
	if result.Width > 0 {
		w := result.Width
		width = &w
	}
	if result.Height > 0 {
		ht := result.Height
		height = &ht
	}
	var duration *float64
	if result.DurationSeconds > 0 {
		d := result.DurationSeconds
		duration = &d
	}
	var lat, lng *float64
	if result.GPS != nil {
		lat, lng = &result.GPS.Lat, &result.GPS.Lng
	}

	if err := h.Store.UpdateVideoMetadata(ctx, fingerprint, width, height, duration, result.Codec, lat, lng); err != nil {
		return nil, fmt.Errorf("worker: persist video metadata %s: %w", fingerprint, err)
	}
	return result, nil
}

// handleThumbnail renders an image's small and large thumbnails plus
// its preview; the preview is bounded at the large thumbnail's size.
func (h *Handlers) handleThumbnail(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	fingerprint, path := payload["fingerprint"], payload["path"]

	small := h.Paths.ThumbnailPath(fingerprint, thumbSmallPx)
	large := h.Paths.ThumbnailPath(fingerprint, thumbLargePx)
	preview := h.Paths.PreviewPath(fingerprint)

	if err := h.Thumb.Render(ctx, path, small, thumbSmallPx); err != nil {
		return nil, fmt.Errorf("worker: render small thumbnail %s: %w", fingerprint, err)
	}
	if err := h.Thumb.Render(ctx, path, large, thumbLargePx); err != nil {
		return nil, fmt.Errorf("worker: render large thumbnail %s: %w", fingerprint, err)
	}
	if err := h.Thumb.Render(ctx, path, preview, thumbLargePx); err != nil {
		return nil, fmt.Errorf("worker: render preview %s: %w", fingerprint, err)
	}

	if err := h.Store.UpdateImageThumbPaths(ctx, fingerprint, small, large, preview); err != nil {
		return nil, fmt.Errorf("worker: persist thumb paths %s: %w", fingerprint, err)
	}
	return map[string]string{"thumb_small": small, "thumb_large": large, "preview": preview}, nil
}

// handleVideoProxy encodes a web-playable proxy and renders the video's
// poster frame, persisting both paths on the video row.
func (h *Handlers) handleVideoProxy(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	fingerprint, path := payload["fingerprint"], payload["path"]

	proxyDest := h.Paths.VideoProxyPath(fingerprint)
	posterDest := h.Paths.PosterPath(fingerprint)

	result, err := h.Proxy.Encode(ctx, path, proxyDest)
	if err != nil {
		return nil, fmt.Errorf("worker: encode proxy %s: %w", fingerprint, err)
	}
	if err := h.Thumb.Render(ctx, path, posterDest, thumbLargePx); err != nil {
		return nil, fmt.Errorf("worker: render poster %s: %w", fingerprint, err)
	}

	if err := h.Store.UpdateVideoDerived(ctx, fingerprint, posterDest, result.ProxyPath); err != nil {
		return nil, fmt.Errorf("worker: persist video derived paths %s: %w", fingerprint, err)
	}
	return result, nil
}

// handleLivePhoto re-pairs a location's still/video files using the
// capture times recorded by the exiftool/ffprobe jobs, and hides each
// paired video's row with reason live_photo. The live-photo job does
// not depend on those jobs, so a file whose capture time has not been
// recorded yet when it runs is not paired.
func (h *Handlers) handleLivePhoto(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	locationID := payload["location_id"]

	images, err := h.Store.ListMediaByLocation(ctx, store.MediaImage, locationID)
	if err != nil {
		return nil, fmt.Errorf("worker: list images for live-photo pairing: %w", err)
	}
	videos, err := h.Store.ListMediaByLocation(ctx, store.MediaVideo, locationID)
	if err != nil {
		return nil, fmt.Errorf("worker: list videos for live-photo pairing: %w", err)
	}

	byFingerprint := make(map[string]*store.Media, len(images)+len(videos))
	var candidates []classify.LivePhotoCandidate
	for _, m := range images {
		byFingerprint[m.Fingerprint] = m
		candidates = append(candidates, mediaToCandidate(m, classify.KindImage))
	}
	for _, m := range videos {
		byFingerprint[m.Fingerprint] = m
		candidates = append(candidates, mediaToCandidate(m, classify.KindVideo))
	}

	paired := classify.PairLivePhotos(candidates)
	for fp := range paired {
		m, ok := byFingerprint[fp]
		if !ok {
			continue
		}
		if err := h.Store.SetLivePhoto(ctx, m.Kind, fp, true); err != nil {
			return nil, fmt.Errorf("worker: set live photo %s: %w", fp, err)
		}
		if m.Kind == store.MediaVideo {
			if err := h.Store.SetHidden(ctx, store.MediaVideo, fp, true, store.HiddenReasonLivePhoto); err != nil {
				return nil, fmt.Errorf("worker: hide live-photo video component %s: %w", fp, err)
			}
		}
	}
	return map[string]int{"paired": len(paired)}, nil
}

func mediaToCandidate(m *store.Media, kind classify.Kind) classify.LivePhotoCandidate {
	base := strings.TrimSuffix(strings.ToLower(m.OriginalFilename), filepath.Ext(m.OriginalFilename))
	c := classify.LivePhotoCandidate{ID: m.Fingerprint, BaseName: base, Kind: kind}
	if m.CaptureDate != nil {
		c.CaptureTime = *m.CaptureDate
	}
	return c
}

// handleBagit reruns the finalizer's bag-info/manifest refresh outside
// the finalize transaction, the retry path for a bag write that
// failed inline.
func (h *Handlers) handleBagit(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	locationID := payload["location_id"]

	loc, err := h.Store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("worker: get location %s: %w", locationID, err)
	}
	if err := h.Finalizer.RefreshBag(ctx, loc); err != nil {
		return nil, fmt.Errorf("worker: refresh bag %s: %w", locationID, err)
	}
	return map[string]string{"location_id": locationID, "bag_status": loc.BagStatus}, nil
}

func (h *Handlers) handleLocationStats(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	locationID := payload["location_id"]

	if err := h.Store.RefreshLocationStats(ctx, locationID); err != nil {
		return nil, fmt.Errorf("worker: refresh location stats %s: %w", locationID, err)
	}
	return map[string]string{"location_id": locationID}, nil
}

// handleGeocode resolves a location's GPS coordinate to an address via
// the geocode.reverse collaborator and persists the result. A nil
// address (no upstream match, or a Disabled fetcher) is a no-op, not
// a failure.
func (h *Handlers) handleGeocode(ctx context.Context, job *queue.Job) (any, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	locationID := payload["location_id"]
	lat, err := strconv.ParseFloat(payload["lat"], 64)
	if err != nil {
		return nil, fmt.Errorf("worker: geocode job %s: invalid lat: %w", job.ID, err)
	}
	lng, err := strconv.ParseFloat(payload["lng"], 64)
	if err != nil {
		return nil, fmt.Errorf("worker: geocode job %s: invalid lng: %w", job.ID, err)
	}

	addr, err := h.Geocode.Reverse(ctx, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("worker: reverse geocode %s: %w", locationID, err)
	}
	if addr == nil {
		return map[string]string{"location_id": locationID, "match": "none"}, nil
	}

	if err := h.Store.UpdateLocationAddress(ctx, locationID, addr.City, addr.State, "geocoded", time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("worker: persist geocoded address %s: %w", locationID, err)
	}
	return addr, nil
}

func pointerToTimeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
