package whisperx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

// Engine talks to the WhisperX inference sidecar over HTTP. The
// sidecar holds the resident models; this adapter owns nothing but the
// connection and the loaded/unloaded bookkeeping.
type Engine struct {
	baseURL   string
	batchSize int
	client    *http.Client
	logger    *zap.Logger

	mu     sync.Mutex
	loaded bool
}

// NewEngine creates a WhisperX sidecar client. Requests are
// deliberately time-unbounded beyond the caller's context: large
// models can legitimately take minutes per stage.
func NewEngine(baseURL string, batchSize int, logger *zap.Logger) *Engine {
	return &Engine{
		baseURL:   strings.TrimRight(baseURL, "/"),
		batchSize: batchSize,
		client:    &http.Client{Timeout: 0},
		logger:    logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Load brings the sidecar's models up. Idempotent.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	e.logger.Info("Loading inference models", zap.String("sidecar", e.baseURL))
	start := time.Now()
	if err := e.post(ctx, "/load", map[string]interface{}{"batch_size": e.batchSize}, nil); err != nil {
		return err
	}
	e.loaded = true
	e.logger.Info("Inference models loaded", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Unload frees the sidecar's models and accelerator memory.
func (e *Engine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	if err := e.post(ctx, "/unload", nil, nil); err != nil {
		return err
	}
	e.loaded = false
	e.logger.Info("Inference models unloaded")
	return nil
}

// IsLoaded reports whether the sidecar's models are up.
func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Recognize produces the draft transcript.
func (e *Engine) Recognize(ctx context.Context, audioPath string) ([]entities.DraftSegment, error) {
	var out struct {
		Segments []entities.DraftSegment `json:"segments"`
	}
	err := e.post(ctx, "/recognize", map[string]interface{}{
		"audio_path": audioPath,
		"batch_size": e.batchSize,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// Align refines draft chunks to word-level timestamps.
func (e *Engine) Align(ctx context.Context, audioPath string, drafts []entities.DraftSegment) ([]entities.Segment, error) {
	var out struct {
		Segments []entities.Segment `json:"segments"`
	}
	err := e.post(ctx, "/align", map[string]interface{}{
		"audio_path": audioPath,
		"segments":   drafts,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// Diarize derives speaker turns from the audio signal.
func (e *Engine) Diarize(ctx context.Context, audioPath string, bounds repositories.DiarizationBounds) ([]entities.SpeakerTurn, error) {
	var out struct {
		Turns []entities.SpeakerTurn `json:"turns"`
	}
	err := e.post(ctx, "/diarize", map[string]interface{}{
		"audio_path":   audioPath,
		"min_speakers": bounds.MinSpeakers,
		"max_speakers": bounds.MaxSpeakers,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (e *Engine) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		msg := er.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if isResourceExhaustion(msg) {
			return fmt.Errorf("%w: %s", entities.ErrResourceExhausted, msg)
		}
		return fmt.Errorf("inference sidecar returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// isResourceExhaustion recognizes accelerator memory failures so
// callers can reduce batch size and retry by hand.
func isResourceExhaustion(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "out of memory") ||
		strings.Contains(lower, "cuda error") ||
		strings.Contains(lower, "resource exhausted")
}
