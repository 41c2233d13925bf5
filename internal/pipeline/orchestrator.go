package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
	"github.com/mnemosyne/server/internal/session"
)

// Broadcaster receives the orchestrator's live events. The stream
// gateway implements it; tests substitute recorders.
type Broadcaster interface {
	BroadcastStatus(sessionID, message string)
	BroadcastSegment(sessionID string, segment entities.Segment)
	BroadcastError(sessionID, message string)
}

// Orchestrator drives an audio file through the ordered inference
// stages and streams the finalized segments.
//
// The resident models behind the engine are expensive and not
// re-entrant under one loaded instance, so runs are single-flight
// across ALL sessions: a second Run queues behind the first rather
// than interleaving. Interleaving would not reduce wall-clock time on
// a single accelerator anyway.
type Orchestrator struct {
	engine      repositories.InferenceEngine
	sessions    *session.Service
	broadcaster Broadcaster
	bounds      repositories.DiarizationBounds
	logger      *zap.Logger

	runMu sync.Mutex
}

// NewOrchestrator creates the pipeline orchestrator.
func NewOrchestrator(
	engine repositories.InferenceEngine,
	sessions *session.Service,
	broadcaster Broadcaster,
	bounds repositories.DiarizationBounds,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:      engine,
		sessions:    sessions,
		broadcaster: broadcaster,
		bounds:      bounds,
		logger:      logger,
	}
}

// Engine exposes the shared inference handle for lifecycle endpoints.
func (o *Orchestrator) Engine() repositories.InferenceEngine {
	return o.engine
}

// Run transcribes audioPath under the given session. It blocks until
// the run completes or fails; callers wanting a background run launch
// it on a goroutine. Stage failures abort the run, mark the session
// error and are never retried automatically: they are typically
// resource exhaustion, which retrying does not fix.
func (o *Orchestrator) Run(ctx context.Context, audioPath, sessionID string) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != entities.SessionStatusProcessing {
		if _, err := o.sessions.Transition(ctx, sessionID, entities.SessionStatusProcessing); err != nil {
			return err
		}
	}

	o.broadcaster.BroadcastStatus(sessionID, "Loading models...")
	if err := o.engine.Load(ctx); err != nil {
		return o.fail(ctx, sessionID, fmt.Errorf("loading inference models: %w", err))
	}

	o.broadcaster.BroadcastStatus(sessionID, "Transcribing...")
	o.logger.Info("Pipeline run started",
		zap.String("sessionID", sessionID),
		zap.String("audio", audioPath))

	drafts, err := o.engine.Recognize(ctx, audioPath)
	if err != nil {
		return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageRecognize, Err: err})
	}

	o.broadcaster.BroadcastStatus(sessionID, "Aligning timestamps...")
	aligned, err := o.engine.Align(ctx, audioPath, drafts)
	if err != nil {
		return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageAlign, Err: err})
	}

	o.broadcaster.BroadcastStatus(sessionID, "Diarizing...")
	turns, err := o.engine.Diarize(ctx, audioPath, o.bounds)
	if err != nil {
		return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageDiarize, Err: err})
	}

	segments := AssignSpeakers(aligned, turns)
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	// Inference is complete; the assign-speaker stage owns persisting
	// its output. Swap out any previous transcript now, then emit
	// segment by segment so observers see transcription "live".
	if _, err := o.sessions.SetTranscript(ctx, sessionID, nil); err != nil {
		return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageAssignSpeaker, Err: err})
	}
	for _, seg := range segments {
		if _, err := o.sessions.AppendSegment(ctx, sessionID, seg); err != nil {
			return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageAssignSpeaker, Err: err})
		}
		o.broadcaster.BroadcastSegment(sessionID, seg)
	}

	// Recompute participants over the full transcript.
	if _, err := o.sessions.SetTranscript(ctx, sessionID, segments); err != nil {
		return o.fail(ctx, sessionID, &entities.StageError{Stage: entities.StageAssignSpeaker, Err: err})
	}
	if _, err := o.sessions.Transition(ctx, sessionID, entities.SessionStatusCompleted); err != nil {
		return o.fail(ctx, sessionID, err)
	}

	o.broadcaster.BroadcastStatus(sessionID, "Transcription complete")
	o.logger.Info("Pipeline run completed",
		zap.String("sessionID", sessionID),
		zap.Int("segments", len(segments)))
	return nil
}

// fail marks the session error and reports the failure to observers.
// Segments already persisted stay in place; an errored session keeps
// whatever transcript and audio it had.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, runErr error) error {
	o.logger.Error("Pipeline run failed",
		zap.String("sessionID", sessionID),
		zap.Error(runErr))
	if _, err := o.sessions.Transition(ctx, sessionID, entities.SessionStatusError); err != nil {
		o.logger.Error("Failed to mark session errored",
			zap.String("sessionID", sessionID),
			zap.Error(err))
	}
	o.broadcaster.BroadcastError(sessionID, runErr.Error())
	return runErr
}
