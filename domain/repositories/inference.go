package repositories

import (
	"context"

	"github.com/mnemosyne/server/domain/entities"
)

// DiarizationBounds constrains the number of speakers the diarizer may
// report.
type DiarizationBounds struct {
	MinSpeakers int `json:"min_speakers"`
	MaxSpeakers int `json:"max_speakers"`
}

// InferenceEngine abstracts the speech models behind the transcription
// pipeline. Implementations are stateless per call; loading and
// unloading the expensive resident models is exposed so the
// orchestrator can own their lifecycle.
type InferenceEngine interface {
	// Load brings the resident models up. Idempotent.
	Load(ctx context.Context) error
	// Unload frees the resident models and any accelerator memory.
	Unload(ctx context.Context) error
	// IsLoaded reports whether the resident models are up.
	IsLoaded() bool

	// Recognize produces a draft transcript with approximate chunk
	// timestamps.
	Recognize(ctx context.Context, audioPath string) ([]entities.DraftSegment, error)
	// Align refines draft chunks to word-level timestamps by forced
	// alignment against the audio.
	Align(ctx context.Context, audioPath string, drafts []entities.DraftSegment) ([]entities.Segment, error)
	// Diarize derives speaker turns from the audio signal alone.
	Diarize(ctx context.Context, audioPath string, bounds DiarizationBounds) ([]entities.SpeakerTurn, error)
}
