package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/adapters/memory"
	"github.com/mnemosyne/server/internal/session"
)

type recordedRun struct {
	audioPath string
	sessionID string
}

// stubRunner records pipeline invocations.
type stubRunner struct {
	mu   sync.Mutex
	runs []recordedRun
	done chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, audioPath, sessionID string) error {
	s.mu.Lock()
	s.runs = append(s.runs, recordedRun{audioPath: audioPath, sessionID: sessionID})
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func TestWatcherIngestsDroppedAudio(t *testing.T) {
	dir := t.TempDir()
	sessions := session.NewService(memory.NewSessionRepository(),
		func(id string) string { return filepath.Join(dir, "rec", id) }, zap.NewNop())
	runner := &stubRunner{done: make(chan struct{}, 4)}
	w := New(dir, sessions, runner, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	// Give the watcher time to attach before dropping the file.
	time.Sleep(100 * time.Millisecond)

	dropped := filepath.Join(dir, "meeting.ogg")
	if err := os.WriteFile(dropped, []byte("not real opus but nonempty"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runner.done:
	case <-time.After(10 * time.Second):
		t.Fatal("Dropped file never ingested")
	}

	runner.mu.Lock()
	run := runner.runs[0]
	runner.mu.Unlock()

	if run.audioPath != dropped {
		t.Errorf("Expected audio path %s, got %s", dropped, run.audioPath)
	}

	sess, err := sessions.Get(context.Background(), run.sessionID)
	if err != nil {
		t.Fatalf("Session not created: %v", err)
	}
	if sess.Name != "meeting" {
		t.Errorf("Expected session named after file, got %q", sess.Name)
	}
	if sess.AudioFile != dropped {
		t.Errorf("Expected audio file recorded, got %q", sess.AudioFile)
	}
}

func TestWatcherIgnoresNonAudioFiles(t *testing.T) {
	dir := t.TempDir()
	sessions := session.NewService(memory.NewSessionRepository(),
		func(id string) string { return filepath.Join(dir, "rec", id) }, zap.NewNop())
	runner := &stubRunner{done: make(chan struct{}, 4)}
	w := New(dir, sessions, runner, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runner.done:
		t.Error("Non-audio file was ingested")
	case <-time.After(3 * time.Second):
	}
}

func TestIsAudioFile(t *testing.T) {
	cases := map[string]bool{
		"a.wav":      true,
		"a.OGG":      true,
		"a.opus":     true,
		"a.mp3":      true,
		"a.flac":     true,
		"a.m4a":      true,
		"a.txt":      false,
		"a.wav.part": false,
		"noext":      false,
	}
	for path, want := range cases {
		if got := isAudioFile(path); got != want {
			t.Errorf("isAudioFile(%q): expected %v, got %v", path, want, got)
		}
	}
}
