// Package metadata implements the metadata-extraction collaborator:
// exif-like extraction of capture metadata from an image file. The core depends only on this package's Extract
// signature, never on exiftool's wire format directly, so a future
// swap to another extractor only touches this file.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// GPS is a coordinate pair recovered from EXIF tags, if present.
type GPS struct {
	Lat float64
	Lng float64
}

// Result is the metadata.extract contract's return shape
type Result struct {
	Width      int
	Height     int
	DateTaken  time.Time
	Camera     string
	GPS        *GPS
	RawBlobJSON string
}

// ErrUnavailable is returned when the exiftool binary cannot be found
// on PATH; callers (the exiftool queue handler) treat this as a
// retryable job failure rather than a permanent one, since an operator
// may install exiftool after the engine starts.
var ErrUnavailable = errors.New("metadata: exiftool not found on PATH")

// Extractor is the metadata.extract contract
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// ExifTool shells out to the exiftool binary with its `-j` JSON flag
// under a bounded context.
type ExifTool struct {
	// Timeout bounds a single extraction; zero uses a 15s default.
	Timeout time.Duration
}

// exifToolTags mirrors the subset of exiftool's JSON tag output this
// extractor consumes; exiftool prints an array with one object.
type exifToolTags struct {
	ImageWidth    int    `json:"ImageWidth"`
	ImageHeight   int    `json:"ImageHeight"`
	DateTimeOrig  string `json:"DateTimeOriginal"`
	Model         string `json:"Model"`
	GPSLatitude   float64 `json:"GPSLatitude"`
	GPSLongitude  float64 `json:"GPSLongitude"`
}

func (e ExifTool) Extract(ctx context.Context, path string) (*Result, error) {
	if _, err := exec.LookPath("exiftool"); err != nil {
		return nil, ErrUnavailable
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "exiftool", "-j", "-n", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("metadata: exiftool failed for %s: %w", path, err)
	}

	var tags []exifToolTags
	if err := json.Unmarshal(stdout.Bytes(), &tags); err != nil {
		return nil, fmt.Errorf("metadata: parse exiftool output for %s: %w", path, err)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("metadata: exiftool returned no tags for %s", path)
	}

	t := tags[0]
	result := &Result{
		Width:       t.ImageWidth,
		Height:      t.ImageHeight,
		Camera:      t.Model,
		RawBlobJSON: stdout.String(),
	}
	if t.DateTimeOrig != "" {
		if parsed, err := time.Parse("2006:01:02 15:04:05", t.DateTimeOrig); err == nil {
			result.DateTaken = parsed
		}
	}
	if t.GPSLatitude != 0 || t.GPSLongitude != 0 {
		result.GPS = &GPS{Lat: t.GPSLatitude, Lng: t.GPSLongitude}
	}
	return result, nil
}
