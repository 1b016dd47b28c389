// Package model holds the shared value types passed between ingest
// stages: the orchestrator threads these through scan → hash → copy →
// validate → finalize and persists them as the session's per-stage
// result JSON for resume
package model

import "time"

// ScannedFile is one entry produced by the scanner
type ScannedFile struct {
	ID           string
	OriginalPath string
	Filename     string
	Extension    string
	SizeBytes    int64
	Kind         string
	ShouldSkip   bool
	ShouldHide   bool
	ModTime      time.Time // filesystem mtime, the live-photo pairing heuristic's capture-time fallback until exif lands
}

// ScanResult is the scanner's stage output.
type ScanResult struct {
	Files               []ScannedFile
	TotalFiles          int
	TotalBytes          int64
	EstimatedDurationMs int64
}

// HashedFile augments a scanned file with its fingerprint and
// duplicate/error classification
type HashedFile struct {
	ScannedFile
	Fingerprint string
	IsDuplicate bool
	HashError   string
	CaptureTime time.Time
	IsLivePhoto bool
}

// HashResult is the fingerprinter's stage output.
type HashResult struct {
	Files []HashedFile
}

// CopiedFile records the outcome of placing one file's bytes
type CopiedFile struct {
	HashedFile
	ArchivePath  string
	BytesCopied  int64
	CopyStrategy string
	CopyError    string
}

// CopyResult is the copier's stage output.
type CopyResult struct {
	Strategy string
	Files    []CopiedFile
}

// ValidatedFile marks whether a copied file's destination passed
// re-verification
type ValidatedFile struct {
	CopiedFile
	Valid         bool
	ValidateError string
	RolledBack    bool
}

// ValidateResult is the validator's stage output.
type ValidateResult struct {
	Files []ValidatedFile
}

// FinalizeResult summarizes the finalizer's single Index transaction.
type FinalizeResult struct {
	ImportID       string
	FileCount      int
	ByteCount      int64
	DuplicateCount int
	ErrorCount     int
	EnqueuedJobIDs []string
}

// Stage weights, summing to 100, used to compute overall progress
//
const (
	WeightScan     = 5
	WeightHash     = 35
	WeightCopy     = 40
	WeightValidate = 15
	WeightFinalize = 5
)

// StageIndex names the five ordered stages by their last_step value.
type StageIndex int

const (
	StageScan StageIndex = iota + 1
	StageHash
	StageCopy
	StageValidate
	StageFinalize
)

// Progress computes overall 0-100 progress given the index of the
// last fully completed stage and the fractional completion (0..1) of
// the stage currently in flight (0 if none is in flight).
func Progress(completedThrough StageIndex, currentStageFraction float64) float64 {
	weights := []float64{WeightScan, WeightHash, WeightCopy, WeightValidate, WeightFinalize}
	var total float64
	for i := 0; i < int(completedThrough) && i < len(weights); i++ {
		total += weights[i]
	}
	if int(completedThrough) < len(weights) {
		total += weights[completedThrough] * currentStageFraction
	}
	return total
}
