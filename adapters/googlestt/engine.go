package googlestt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

// Engine implements the inference contract on Google Cloud Speech.
// Recognition, word timing and diarization all come from the one
// recognize call; the response is cached per audio path so the align
// and diarize stages reuse it instead of paying for a second pass.
type Engine struct {
	sampleRate int
	logger     *zap.Logger

	mu     sync.Mutex
	client *speech.Client

	cacheMu   sync.Mutex
	cachePath string
	cached    *speechpb.RecognizeResponse
}

// NewEngine creates a Google Cloud Speech backed inference engine.
// Credentials come from the usual GOOGLE_APPLICATION_CREDENTIALS
// environment.
func NewEngine(sampleRate int, logger *zap.Logger) *Engine {
	return &Engine{sampleRate: sampleRate, logger: logger}
}

// Load creates the API client. Idempotent.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return nil
	}
	client, err := speech.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create speech client: %w", err)
	}
	e.client = client
	e.logger.Info("Google Speech client created")
	return nil
}

// Unload closes the API client.
func (e *Engine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	e.clearCache()
	return err
}

// IsLoaded reports whether the API client exists.
func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client != nil
}

// Recognize produces draft segments, one per recognition result.
func (e *Engine) Recognize(ctx context.Context, audioPath string) ([]entities.DraftSegment, error) {
	resp, err := e.recognize(ctx, audioPath, nil)
	if err != nil {
		return nil, err
	}

	drafts := make([]entities.DraftSegment, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if len(alt.Words) == 0 {
			continue
		}
		drafts = append(drafts, entities.DraftSegment{
			Text:  strings.TrimSpace(alt.Transcript),
			Start: alt.Words[0].StartTime.AsDuration().Seconds(),
			End:   alt.Words[len(alt.Words)-1].EndTime.AsDuration().Seconds(),
		})
	}
	return drafts, nil
}

// Align builds word-level segments. Google word offsets are already
// exact, so alignment is a projection of the cached recognition.
func (e *Engine) Align(ctx context.Context, audioPath string, drafts []entities.DraftSegment) ([]entities.Segment, error) {
	resp, err := e.recognize(ctx, audioPath, nil)
	if err != nil {
		return nil, err
	}

	segments := make([]entities.Segment, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if len(alt.Words) == 0 {
			continue
		}
		words := make([]entities.Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			words = append(words, entities.Word{
				Word:  w.Word,
				Start: w.StartTime.AsDuration().Seconds(),
				End:   w.EndTime.AsDuration().Seconds(),
				Score: float64(alt.Confidence),
			})
		}
		segments = append(segments, entities.Segment{
			Text:  strings.TrimSpace(alt.Transcript),
			Start: words[0].Start,
			End:   words[len(words)-1].End,
			Words: words,
		})
	}
	return segments, nil
}

// Diarize derives speaker turns from word-level speaker tags.
func (e *Engine) Diarize(ctx context.Context, audioPath string, bounds repositories.DiarizationBounds) ([]entities.SpeakerTurn, error) {
	resp, err := e.recognize(ctx, audioPath, &speechpb.SpeakerDiarizationConfig{
		EnableSpeakerDiarization: true,
		MinSpeakerCount:          int32(bounds.MinSpeakers),
		MaxSpeakerCount:          int32(bounds.MaxSpeakers),
	})
	if err != nil {
		return nil, err
	}

	// Diarized words arrive on the final result with per-word tags;
	// collapse consecutive same-tag words into turns.
	var turns []entities.SpeakerTurn
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		for _, w := range result.Alternatives[0].Words {
			start := w.StartTime.AsDuration().Seconds()
			end := w.EndTime.AsDuration().Seconds()
			label := fmt.Sprintf("SPEAKER_%02d", w.SpeakerTag)
			if n := len(turns); n > 0 && turns[n-1].Speaker == label {
				turns[n-1].End = end
				continue
			}
			turns = append(turns, entities.SpeakerTurn{Speaker: label, Start: start, End: end})
		}
	}
	return turns, nil
}

func (e *Engine) recognize(ctx context.Context, audioPath string, diarization *speechpb.SpeakerDiarizationConfig) (*speechpb.RecognizeResponse, error) {
	// Reuse the cached response for the non-diarized stages.
	if diarization == nil {
		e.cacheMu.Lock()
		if e.cachePath == audioPath && e.cached != nil {
			resp := e.cached
			e.cacheMu.Unlock()
			return resp, nil
		}
		e.cacheMu.Unlock()
	}

	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("speech client is not loaded")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("reading audio file: %w", err)
	}

	config := &speechpb.RecognitionConfig{
		Encoding:              encodingFor(audioPath),
		SampleRateHertz:       int32(e.sampleRate),
		LanguageCode:          "en-US",
		EnableWordTimeOffsets: true,
		DiarizationConfig:     diarization,
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: config,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognize failed: %w", err)
	}

	if diarization == nil {
		e.cacheMu.Lock()
		e.cachePath = audioPath
		e.cached = resp
		e.cacheMu.Unlock()
	}
	return resp, nil
}

func (e *Engine) clearCache() {
	e.cacheMu.Lock()
	e.cachePath = ""
	e.cached = nil
	e.cacheMu.Unlock()
}

func encodingFor(path string) speechpb.RecognitionConfig_AudioEncoding {
	switch {
	case strings.HasSuffix(path, ".ogg"), strings.HasSuffix(path, ".opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
