package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

func TestEngineLoadUnload(t *testing.T) {
	var loadCalls, unloadCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/load":
			loadCalls++
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["batch_size"].(float64) != 16 {
				t.Errorf("Expected batch_size 16, got %v", body["batch_size"])
			}
		case "/unload":
			unloadCalls++
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewEngine(server.URL, 16, zap.NewNop())

	if engine.IsLoaded() {
		t.Error("Expected engine to start unloaded")
	}

	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !engine.IsLoaded() {
		t.Error("Expected engine loaded")
	}

	// Second load is a no-op.
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Repeat load failed: %v", err)
	}
	if loadCalls != 1 {
		t.Errorf("Expected one sidecar load call, got %d", loadCalls)
	}

	if err := engine.Unload(context.Background()); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}
	if engine.IsLoaded() {
		t.Error("Expected engine unloaded")
	}
	if unloadCalls != 1 {
		t.Errorf("Expected one sidecar unload call, got %d", unloadCalls)
	}
}

func TestEngineStages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/recognize":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"segments": []entities.DraftSegment{{Text: "hello", Start: 0, End: 2}},
			})
		case "/align":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"segments": []entities.Segment{{Text: "hello", Start: 0, End: 2,
					Words: []entities.Word{{Word: "hello", Start: 0.1, End: 0.6, Score: 0.95}}}},
			})
		case "/diarize":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["min_speakers"].(float64) != 1 || body["max_speakers"].(float64) != 4 {
				t.Errorf("Diarization bounds not forwarded: %v", body)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"turns": []entities.SpeakerTurn{{Speaker: "SPEAKER_00", Start: 0, End: 2}},
			})
		}
	}))
	defer server.Close()

	engine := NewEngine(server.URL, 16, zap.NewNop())
	ctx := context.Background()

	drafts, err := engine.Recognize(ctx, "/data/audio.ogg")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Text != "hello" {
		t.Errorf("Unexpected drafts %+v", drafts)
	}

	segments, err := engine.Align(ctx, "/data/audio.ogg", drafts)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if len(segments) != 1 || len(segments[0].Words) != 1 {
		t.Errorf("Unexpected segments %+v", segments)
	}

	turns, err := engine.Diarize(ctx, "/data/audio.ogg", repositories.DiarizationBounds{MinSpeakers: 1, MaxSpeakers: 4})
	if err != nil {
		t.Fatalf("Diarize failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != "SPEAKER_00" {
		t.Errorf("Unexpected turns %+v", turns)
	}
}

func TestEngineResourceExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "CUDA error: out of memory"})
	}))
	defer server.Close()

	engine := NewEngine(server.URL, 16, zap.NewNop())

	_, err := engine.Recognize(context.Background(), "/data/audio.ogg")
	if !errors.Is(err, entities.ErrResourceExhausted) {
		t.Errorf("Expected ErrResourceExhausted, got %v", err)
	}
}

func TestEngineSidecarUnreachable(t *testing.T) {
	engine := NewEngine("http://127.0.0.1:1", 16, zap.NewNop())

	if err := engine.Load(context.Background()); err == nil {
		t.Error("Expected load against dead sidecar to fail")
	}
	if engine.IsLoaded() {
		t.Error("Engine must not report loaded after a failed load")
	}
}
