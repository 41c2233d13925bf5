package whisperx

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

// MockEngine is an in-process InferenceEngine for tests and for
// development without a sidecar. Stage behavior is overridable per
// function field; unset stages return canned two-speaker output.
type MockEngine struct {
	RecognizeFunc func(ctx context.Context, audioPath string) ([]entities.DraftSegment, error)
	AlignFunc     func(ctx context.Context, audioPath string, drafts []entities.DraftSegment) ([]entities.Segment, error)
	DiarizeFunc   func(ctx context.Context, audioPath string, bounds repositories.DiarizationBounds) ([]entities.SpeakerTurn, error)

	logger *zap.Logger

	mu     sync.Mutex
	loaded bool
}

// NewMockEngine creates a mock inference engine.
func NewMockEngine(logger *zap.Logger) *MockEngine {
	return &MockEngine{logger: logger}
}

func (m *MockEngine) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	return nil
}

func (m *MockEngine) Unload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return nil
}

func (m *MockEngine) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockEngine) Recognize(ctx context.Context, audioPath string) ([]entities.DraftSegment, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, audioPath)
	}
	return []entities.DraftSegment{
		{Text: "Hello there.", Start: 0.0, End: 2.0},
		{Text: "Hi, good to see you.", Start: 2.0, End: 5.0},
	}, nil
}

func (m *MockEngine) Align(ctx context.Context, audioPath string, drafts []entities.DraftSegment) ([]entities.Segment, error) {
	if m.AlignFunc != nil {
		return m.AlignFunc(ctx, audioPath, drafts)
	}
	segments := make([]entities.Segment, 0, len(drafts))
	for _, d := range drafts {
		segments = append(segments, entities.Segment{
			Text:  d.Text,
			Start: d.Start,
			End:   d.End,
			Words: []entities.Word{
				{Word: d.Text, Start: d.Start, End: d.End, Score: 0.9},
			},
		})
	}
	return segments, nil
}

func (m *MockEngine) Diarize(ctx context.Context, audioPath string, bounds repositories.DiarizationBounds) ([]entities.SpeakerTurn, error) {
	if m.DiarizeFunc != nil {
		return m.DiarizeFunc(ctx, audioPath, bounds)
	}
	return []entities.SpeakerTurn{
		{Speaker: "SPEAKER_00", Start: 0.0, End: 2.0},
		{Speaker: "SPEAKER_01", Start: 2.0, End: 5.0},
	}, nil
}
