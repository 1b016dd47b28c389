// Package orchestrator sequences the five ingest stages into one
// durable, resumable session: scan, hash, copy, validate, finalize,
// Every stage's result is checkpointed into the session
// row as it completes, so a crash mid-run picks back up at
// last_step+1 instead of restarting from scratch.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/archive/classify"
	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	"github.com/bizzlechizzle/au-archive/internal/ingest/copier"
	"github.com/bizzlechizzle/au-archive/internal/ingest/finalizer"
	"github.com/bizzlechizzle/au-archive/internal/ingest/fingerprinter"
	"github.com/bizzlechizzle/au-archive/internal/ingest/model"
	"github.com/bizzlechizzle/au-archive/internal/ingest/scanner"
	"github.com/bizzlechizzle/au-archive/internal/ingest/validator"
	"github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/store"
	"github.com/bizzlechizzle/au-archive/internal/telemetry"
)

// ErrResumeMissingBlob is returned when a session's last_step claims a
// stage completed but that stage's result JSON column is empty —
// the checkpoint was lost or never written, so the only safe recovery
// is to restart from scan.
var ErrResumeMissingBlob = errors.New("orchestrator: resume checkpoint missing, restart required")

// ErrNotResumable is returned by Resume for a session that was never
// marked resumable, or that already reached a terminal status.
var ErrNotResumable = errors.New("orchestrator: session is not resumable")

// ErrCancelled wraps any stage's cancellation into one sentinel the
// caller can match with errors.Is regardless of which stage was
// in flight when the token fired.
var ErrCancelled = errors.New("orchestrator: cancelled")

// ProgressFunc is invoked after every checkpoint and, within the hash
// and copy stages, after every file — percent is 0..100 under the
// weighted progress model (model.Progress).
type ProgressFunc func(percent float64, stage model.StageIndex)

// Input describes one ingest run.
type Input struct {
	SessionID      string // optional; generated if empty
	LocationID     string
	SourcePaths    []string
	Importer       string
	ForcedStrategy copier.Strategy // "" lets the copier probe
	BytesPerSecond int64           // historical scan ETA rate, 0 uses the scanner default
	OnProgress     ProgressFunc
}

// defaultETAWindow is how many recent completed sessions feed the
// historical throughput average when ScannerETAWindow isn't configured.
const defaultETAWindow = 20

// Orchestrator wires the five ingest stages to the Index, the path
// service, and the finalizer's collaborators.
type Orchestrator struct {
	Store     *store.Store
	Paths     *pathsvc.Service
	Finalizer *finalizer.Finalizer

	// ETAWindow is the number of recent completed sessions averaged
	// into the scanner's historical bytes-per-second estimate
	// (config.ScannerETAWindow). Zero uses defaultETAWindow.
	ETAWindow int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New returns an Orchestrator bound to its collaborators.
func New(st *store.Store, paths *pathsvc.Service, fin *finalizer.Finalizer) *Orchestrator {
	return &Orchestrator{Store: st, Paths: paths, Finalizer: fin, ETAWindow: defaultETAWindow, cancels: make(map[string]context.CancelFunc)}
}

// Cancel requests cancellation of a running session by id. It returns
// false if no session with that id is currently running under this
// Orchestrator instance (it may be running elsewhere, or already
// finished).
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) register(sessionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[sessionID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	delete(o.cancels, sessionID)
	o.mu.Unlock()
}

// Run starts a brand-new session from scratch.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*model.FinalizeResult, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &store.ImportSession{
		SessionID:    sessionID,
		LocationID:   in.LocationID,
		Status:       store.SessionPending,
		SourcePaths:  in.SourcePaths,
		CopyStrategy: string(in.ForcedStrategy),
		Resumable:    true,
	}
	if err := o.Store.PutImportSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("orchestrator: create session: %w", err)
	}
	in.SessionID = sessionID
	return o.runFrom(ctx, sess, in)
}

// Resume picks a previously checkpointed session back up at
// last_step+1.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*model.FinalizeResult, error) {
	sess, err := o.Store.GetImportSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Resumable {
		return nil, ErrNotResumable
	}
	in := Input{
		SessionID:      sess.SessionID,
		LocationID:     sess.LocationID,
		SourcePaths:    sess.SourcePaths,
		ForcedStrategy: copier.Strategy(sess.CopyStrategy),
	}
	return o.runFrom(ctx, sess, in)
}

func (o *Orchestrator) runFrom(ctx context.Context, sess *store.ImportSession, in Input) (*model.FinalizeResult, error) {
	logger := log.WithComponent("orchestrator").With().Str("session_id", sess.SessionID).Logger()

	runCtx, cancel := context.WithCancel(ctx)
	o.register(sess.SessionID, cancel)
	defer func() {
		o.unregister(sess.SessionID)
		cancel()
	}()

	scanResult, err := o.scanStage(runCtx, sess, in)
	if err != nil {
		return nil, o.terminal(ctx, sess, err)
	}

	hashResult, err := o.hashStage(runCtx, sess, in, scanResult)
	if err != nil {
		return nil, o.terminal(ctx, sess, err)
	}

	copyResult, err := o.copyStage(runCtx, sess, in, scanResult, hashResult)
	if err != nil {
		return nil, o.terminal(ctx, sess, err)
	}

	validateResult, err := o.validateStage(runCtx, sess, in, copyResult)
	if err != nil {
		return nil, o.terminal(ctx, sess, err)
	}

	result, err := o.finalizeStage(runCtx, sess, in, validateResult)
	if err != nil {
		return nil, o.terminal(ctx, sess, err)
	}

	if err := o.Store.MarkSessionTerminal(ctx, sess.SessionID, store.SessionCompleted, ""); err != nil {
		logger.Warn().Err(err).Msg("failed to mark session completed")
	}
	o.report(in, 100, model.StageFinalize)
	return result, nil
}

func (o *Orchestrator) scanStage(ctx context.Context, sess *store.ImportSession, in Input) (*model.ScanResult, error) {
	ctx, span := telemetry.StartStage(ctx, telemetry.StageScan, sess.SessionID)
	defer span.End()

	if model.StageIndex(sess.LastStep) >= model.StageScan {
		if sess.ScanResultJSON == "" {
			return nil, ErrResumeMissingBlob
		}
		var r model.ScanResult
		if err := json.Unmarshal([]byte(sess.ScanResultJSON), &r); err != nil {
			return nil, fmt.Errorf("orchestrator: unmarshal scan result: %w", err)
		}
		return &r, nil
	}

	sess.Status = store.SessionScanning
	if err := o.Store.PutImportSession(ctx, sess); err != nil {
		return nil, err
	}

	rate := in.BytesPerSecond
	if rate <= 0 {
		if historical, ok, err := o.Store.RecentThroughput(ctx, o.ETAWindow); err == nil && ok {
			rate = historical
		}
	}
	result, err := scanner.Scan(ctx, in.SourcePaths, scanner.Options{ArchiveRoot: o.Paths.Root, BytesPerSecond: rate})
	if err != nil {
		return nil, normalizeCancel(err, scanner.ErrCancelled)
	}

	sess.TotalFiles = result.TotalFiles
	sess.TotalBytes = result.TotalBytes
	if err := o.checkpoint(ctx, sess, model.StageScan, store.SessionHashing, result); err != nil {
		return nil, err
	}
	o.report(in, model.Progress(model.StageScan, 0), model.StageHash)
	return result, nil
}

func (o *Orchestrator) hashStage(ctx context.Context, sess *store.ImportSession, in Input, scanResult *model.ScanResult) (*model.HashResult, error) {
	ctx, span := telemetry.StartStage(ctx, telemetry.StageHash, sess.SessionID)
	defer span.End()

	if model.StageIndex(sess.LastStep) >= model.StageHash {
		if sess.HashResultJSON == "" {
			return nil, ErrResumeMissingBlob
		}
		var r model.HashResult
		if err := json.Unmarshal([]byte(sess.HashResultJSON), &r); err != nil {
			return nil, fmt.Errorf("orchestrator: unmarshal hash result: %w", err)
		}
		return &r, nil
	}

	total := len(scanResult.Files)
	done := 0
	result, err := fingerprinter.Run(ctx, scanResult.Files, o.Store, func(model.HashedFile) {
		done++
		if total > 0 {
			o.report(in, model.Progress(model.StageScan, float64(done)/float64(total)), model.StageHash)
		}
	})
	if err != nil {
		return nil, normalizeCancel(err, context.Canceled)
	}

	if err := o.checkpoint(ctx, sess, model.StageHash, store.SessionCopying, result); err != nil {
		return nil, err
	}
	o.report(in, model.Progress(model.StageHash, 0), model.StageCopy)
	return result, nil
}

func (o *Orchestrator) copyStage(ctx context.Context, sess *store.ImportSession, in Input, scanResult *model.ScanResult, hashResult *model.HashResult) (*model.CopyResult, error) {
	ctx, span := telemetry.StartStage(ctx, telemetry.StageCopy, sess.SessionID)
	defer span.End()

	if model.StageIndex(sess.LastStep) >= model.StageCopy {
		if sess.CopyResultJSON == "" {
			return nil, ErrResumeMissingBlob
		}
		var r model.CopyResult
		if err := json.Unmarshal([]byte(sess.CopyResultJSON), &r); err != nil {
			return nil, fmt.Errorf("orchestrator: unmarshal copy result: %w", err)
		}
		return &r, nil
	}

	strategy, err := o.resolveStrategy(sess, in, scanResult)
	if err != nil {
		return nil, err
	}

	loc, err := o.Store.GetLocation(ctx, sess.LocationID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get location: %w", err)
	}
	ploc := pathsvc.Location{ShortID: loc.ShortID, State: loc.State, Type: loc.Type, ShortName: loc.ShortName}

	files := make([]model.CopiedFile, len(hashResult.Files))
	total := len(hashResult.Files)
	for i, hf := range hashResult.Files {
		cf := model.CopiedFile{HashedFile: hf, CopyStrategy: string(strategy)}

		switch {
		case hf.ScannedFile.ShouldSkip:
			// Rejected kind: nothing to place, nothing to count.
			cf.CopyError = "Skipped: unsupported extension"
		case hf.HashError != "":
			cf.CopyError = hf.HashError
		case hf.IsDuplicate:
			// Already indexed or repeated within this batch: no placement.
			cf.CopyError = "Duplicate"
		default:
			select {
			case <-ctx.Done():
				return nil, normalizeCancel(ctx.Err(), context.Canceled)
			default:
			}
			archivePath, bytesCopied, placeErr := copier.Place(ctx, o.Paths, strategy, ploc, copier.PlaceInput{
				Source:      hf.OriginalPath,
				Fingerprint: hf.Fingerprint,
				Extension:   hf.Extension,
				LocationID:  sess.LocationID,
				ShortID:     loc.ShortID,
				Kind:        kindFolderFor(classify.ForExtension(hf.Extension)),
			})
			if placeErr != nil {
				cf.CopyError = placeErr.Error()
			} else {
				cf.ArchivePath = archivePath
				cf.BytesCopied = bytesCopied
			}
		}

		files[i] = cf
		if total > 0 {
			o.report(in, model.Progress(model.StageHash, float64(i+1)/float64(total)), model.StageCopy)
		}
	}

	result := &model.CopyResult{Strategy: string(strategy), Files: files}
	if err := o.checkpoint(ctx, sess, model.StageCopy, store.SessionValidating, result); err != nil {
		return nil, err
	}
	o.report(in, model.Progress(model.StageCopy, 0), model.StageValidate)
	return result, nil
}

// resolveStrategy reuses a previously probed strategy (so a resumed
// session never mixes placement techniques mid-run) or probes once
// using the first placeable file as the sample.
func (o *Orchestrator) resolveStrategy(sess *store.ImportSession, in Input, scanResult *model.ScanResult) (copier.Strategy, error) {
	if sess.CopyStrategy != "" {
		return copier.Strategy(sess.CopyStrategy), nil
	}

	sample := ""
	for _, f := range scanResult.Files {
		if !f.ShouldSkip {
			sample = f.OriginalPath
			break
		}
	}
	if sample == "" {
		sess.CopyStrategy = string(copier.StrategyCopy)
		return copier.StrategyCopy, nil
	}

	strategy, err := copier.ProbeStrategy(in.ForcedStrategy, sample, o.Paths.Root)
	if err != nil {
		return "", err
	}
	sess.CopyStrategy = string(strategy)
	return strategy, nil
}

func (o *Orchestrator) validateStage(ctx context.Context, sess *store.ImportSession, in Input, copyResult *model.CopyResult) (*model.ValidateResult, error) {
	ctx, span := telemetry.StartStage(ctx, telemetry.StageValidate, sess.SessionID)
	defer span.End()

	if model.StageIndex(sess.LastStep) >= model.StageValidate {
		if sess.ValidateResultJSON == "" {
			return nil, ErrResumeMissingBlob
		}
		var r model.ValidateResult
		if err := json.Unmarshal([]byte(sess.ValidateResultJSON), &r); err != nil {
			return nil, fmt.Errorf("orchestrator: unmarshal validate result: %w", err)
		}
		return &r, nil
	}

	result, err := validator.Run(ctx, copyResult.Files, validator.Options{AutoRollback: true}, nil)
	if err != nil {
		return nil, normalizeCancel(err, validator.ErrCancelled)
	}

	if err := o.checkpoint(ctx, sess, model.StageValidate, store.SessionFinalizing, result); err != nil {
		return nil, err
	}
	o.report(in, model.Progress(model.StageValidate, 0), model.StageFinalize)
	return result, nil
}

func (o *Orchestrator) finalizeStage(ctx context.Context, sess *store.ImportSession, in Input, validateResult *model.ValidateResult) (*model.FinalizeResult, error) {
	ctx, span := telemetry.StartStage(ctx, telemetry.StageFinalize, sess.SessionID)
	defer span.End()

	return o.Finalizer.Finalize(ctx, finalizer.Input{
		SessionID:      sess.SessionID,
		LocationID:     sess.LocationID,
		Importer:       in.Importer,
		CopyStrategy:   sess.CopyStrategy,
		ValidateResult: validateResult,
	})
}

// checkpoint persists a completed stage's result JSON into the
// session row and advances last_step/status: every stage's output is
// safe on disk before the next stage starts.
func (o *Orchestrator) checkpoint(ctx context.Context, sess *store.ImportSession, stage model.StageIndex, nextStatus store.SessionStatus, result any) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal stage %d result: %w", stage, err)
	}

	sess.LastStep = int(stage)
	sess.Status = nextStatus
	switch stage {
	case model.StageScan:
		sess.ScanResultJSON = string(blob)
	case model.StageHash:
		sess.HashResultJSON = string(blob)
	case model.StageCopy:
		sess.CopyResultJSON = string(blob)
	case model.StageValidate:
		sess.ValidateResultJSON = string(blob)
	}

	return o.Store.PutImportSession(ctx, sess)
}

// terminal marks a session failed or cancelled, using the caller's
// (not the stage's) context, since the stage context may itself be
// the one that just got cancelled.
func (o *Orchestrator) terminal(ctx context.Context, sess *store.ImportSession, err error) error {
	status := store.SessionFailed
	msg := err.Error()
	if errors.Is(err, ErrCancelled) {
		status = store.SessionCancelled
		msg = "cancelled"
	}
	if markErr := o.Store.MarkSessionTerminal(ctx, sess.SessionID, status, msg); markErr != nil {
		logger := log.WithComponent("orchestrator")
		logger.Warn().Err(markErr).Str("session_id", sess.SessionID).Msg("failed to mark session terminal")
	}
	return err
}

func (o *Orchestrator) report(in Input, percent float64, stage model.StageIndex) {
	if in.OnProgress != nil {
		in.OnProgress(percent, stage)
	}
}

// normalizeCancel maps a stage-specific cancellation error to the
// package-level ErrCancelled so terminal() can classify it uniformly.
func normalizeCancel(err, stageSentinel error) error {
	if errors.Is(err, stageSentinel) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return err
}

func kindFolderFor(kind classify.Kind) pathsvc.KindFolder {
	switch kind {
	case classify.KindImage:
		return pathsvc.KindImage
	case classify.KindVideo:
		return pathsvc.KindVideo
	case classify.KindMap:
		return pathsvc.KindMap
	default:
		return pathsvc.KindDocument
	}
}
