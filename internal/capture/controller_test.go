package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/adapters/ffmpegx"
	"github.com/mnemosyne/server/adapters/memory"
	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/internal/mixer"
	"github.com/mnemosyne/server/internal/session"
)

// stubRegistry serves a fixed device list.
type stubRegistry struct {
	devices []entities.Device
	err     error
}

func (s *stubRegistry) ListDevices(ctx context.Context) ([]entities.Device, error) {
	return s.devices, s.err
}

func testDevices() []entities.Device {
	return []entities.Device{
		{ID: 1, Name: "mic", Class: entities.DeviceClassInput},
		{ID: 2, Name: "speakers", Class: entities.DeviceClassOutput, IsMonitor: true},
	}
}

// recordingFactory copies a prepared WAV into place and then lingers
// like a real recorder until signalled.
func recordingFactory(srcWAV string) CommandFactory {
	return func(ctx context.Context, device entities.Device, outputPath string) *exec.Cmd {
		script := fmt.Sprintf("cp %s %s; sleep 30", srcWAV, outputPath)
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
}

func setupController(t *testing.T, registry *stubRegistry, factory CommandFactory) (*Controller, *session.Service, string) {
	t.Helper()
	return setupControllerWith(t, registry, factory, ffmpegx.NewEncoder("64k", zap.NewNop()))
}

func setupControllerWith(t *testing.T, registry *stubRegistry, factory CommandFactory, enc mixer.Encoder) (*Controller, *session.Service, string) {
	t.Helper()
	logger := zap.NewNop()
	dir := t.TempDir()
	recordingsDir := func(sessionID string) string { return filepath.Join(dir, sessionID) }

	sessions := session.NewService(memory.NewSessionRepository(), recordingsDir, logger)
	mix := mixer.New(48000, enc, logger)

	controller := NewController(sessions, registry, mix, recordingsDir, factory, logger)
	t.Cleanup(controller.Shutdown)
	return controller, sessions, dir
}

// failingEncoder rejects every encode like a broken ffmpeg install.
type failingEncoder struct{}

func (failingEncoder) EncodeOpus(ctx context.Context, inputPath string) (string, error) {
	return "", &entities.EncodingError{Output: "Unknown encoder 'libopus'", Err: errors.New("exit status 1")}
}

func (failingEncoder) EncodePCM(ctx context.Context, pcm []byte, sampleRate int, outputPath string) error {
	return &entities.EncodingError{Output: "Unknown encoder 'libopus'", Err: errors.New("exit status 1")}
}

func writeSourceWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.wav")
	pcm := make([]int16, 4800)
	for i := range pcm {
		pcm[i] = int16(i % 1000)
	}
	if err := mixer.WriteWAV(path, pcm, 48000); err != nil {
		t.Fatalf("writing source WAV: %v", err)
	}
	return path
}

func TestStartRequiresDevices(t *testing.T) {
	controller, _, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory("/dev/null"))

	_, err := controller.Start(context.Background(), nil, "")
	if !errors.Is(err, entities.ErrNoDeviceSelected) {
		t.Errorf("Expected ErrNoDeviceSelected, got %v", err)
	}
}

func TestStartUnknownDevice(t *testing.T) {
	controller, sessions, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory("/dev/null"))

	sess, _ := sessions.Create(context.Background(), "unknown device")
	_, err := controller.Start(context.Background(), []int{99}, sess.ID)

	var startErr *entities.CaptureStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Expected CaptureStartError, got %v", err)
	}
	if startErr.DeviceID != 99 {
		t.Errorf("Expected device 99 in error, got %d", startErr.DeviceID)
	}
}

func TestStartIsAllOrNothing(t *testing.T) {
	src := writeSourceWAV(t)
	factory := func(ctx context.Context, device entities.Device, outputPath string) *exec.Cmd {
		if device.ID == 2 {
			return exec.CommandContext(ctx, "/nonexistent/recorder")
		}
		return recordingFactory(src)(ctx, device, outputPath)
	}
	controller, sessions, dir := setupController(t, &stubRegistry{devices: testDevices()}, factory)

	sess, _ := sessions.Create(context.Background(), "all or nothing")
	_, err := controller.Start(context.Background(), []int{1, 2}, sess.ID)

	var startErr *entities.CaptureStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Expected CaptureStartError, got %v", err)
	}

	// The sibling that did start must be torn down and its partial
	// file removed.
	entries, _ := os.ReadDir(filepath.Join(dir, sess.ID))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".wav") {
			t.Errorf("Partial capture file left behind: %s", e.Name())
		}
	}

	got, _ := sessions.Get(context.Background(), sess.ID)
	if got.Status != entities.SessionStatusCreated {
		t.Errorf("Expected session to stay created, got %s", got.Status)
	}
	if controller.Status(sess.ID).IsRecording {
		t.Error("Expected no active recording after failed start")
	}
}

func TestStartRejectsDoubleRecord(t *testing.T) {
	src := writeSourceWAV(t)
	controller, sessions, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory(src))

	sess, _ := sessions.Create(context.Background(), "double")
	if _, err := controller.Start(context.Background(), []int{1}, sess.ID); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	if _, err := controller.Start(context.Background(), []int{1}, sess.ID); err == nil {
		t.Error("Expected second start on the same session to fail")
	}
}

func TestStartSerializesConcurrentDuplicates(t *testing.T) {
	src := writeSourceWAV(t)
	controller, sessions, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory(src))

	sess, _ := sessions.Create(context.Background(), "concurrent start")

	// Duplicate starts racing on one session must not both spawn; a
	// second job would overwrite the first in the active set and orphan
	// its subprocesses.
	start := make(chan struct{})
	var wg sync.WaitGroup
	var started int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := controller.Start(context.Background(), []int{1}, sess.ID); err == nil {
				atomic.AddInt32(&started, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if started != 1 {
		t.Errorf("Expected exactly one start to win, got %d", started)
	}
	if status := controller.Status(sess.ID); !status.IsRecording || status.DeviceCount != 1 {
		t.Errorf("Expected one active single-device recording, got %+v", status)
	}
}

func TestStopEncodeFailureRetainsRawAudio(t *testing.T) {
	src := writeSourceWAV(t)
	controller, sessions, dir := setupControllerWith(t,
		&stubRegistry{devices: testDevices()}, recordingFactory(src), failingEncoder{})

	handle, err := controller.Start(context.Background(), []int{1, 2}, "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForFiles(t, filepath.Join(dir, handle.SessionID), 2)

	_, err = controller.Stop(context.Background(), handle.SessionID)
	var encErr *entities.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Expected EncodingError, got %v", err)
	}

	got, _ := sessions.Get(context.Background(), handle.SessionID)
	if got.Status != entities.SessionStatusError {
		t.Errorf("Expected error status, got %s", got.Status)
	}

	// The raw captures must survive a broken encoder; they are the only
	// copy of the audio.
	raw := 0
	entries, _ := os.ReadDir(filepath.Join(dir, handle.SessionID))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".wav") {
			raw++
		}
	}
	if raw != 2 {
		t.Errorf("Expected 2 raw capture files retained, got %d", raw)
	}
}

// waitForFiles polls until dir holds at least n entries.
func waitForFiles(t *testing.T, dir string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d files in %s", n, dir)
}

func TestStopWithoutRecording(t *testing.T) {
	controller, sessions, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory("/dev/null"))

	sess, _ := sessions.Create(context.Background(), "never started")
	_, err := controller.Stop(context.Background(), sess.ID)
	if !errors.Is(err, entities.ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	logger := zap.NewNop()
	if !ffmpegx.NewEncoder("64k", logger).Available() {
		t.Skip("ffmpeg not installed")
	}

	src := writeSourceWAV(t)
	controller, sessions, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory(src))

	handle, err := controller.Start(context.Background(), []int{1, 2}, "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if handle.DeviceCount != 2 {
		t.Errorf("Expected 2 devices, got %d", handle.DeviceCount)
	}

	status := controller.Status(handle.SessionID)
	if !status.IsRecording || status.DeviceCount != 2 {
		t.Errorf("Expected active 2-device recording, got %+v", status)
	}

	got, _ := sessions.Get(context.Background(), handle.SessionID)
	if got.Status != entities.SessionStatusRecording {
		t.Errorf("Expected recording status, got %s", got.Status)
	}

	result, err := controller.Stop(context.Background(), handle.SessionID)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !strings.HasSuffix(result.MergedFile, "_mixed.ogg") {
		t.Errorf("Unexpected merged file name %s", result.MergedFile)
	}
	if _, err := os.Stat(result.MergedFile); err != nil {
		t.Errorf("Merged file missing: %v", err)
	}
	if len(result.PerDeviceFiles) != 2 {
		t.Errorf("Expected 2 per-device files, got %d", len(result.PerDeviceFiles))
	}

	got, _ = sessions.Get(context.Background(), handle.SessionID)
	if got.Status != entities.SessionStatusProcessing {
		t.Errorf("Expected processing status, got %s", got.Status)
	}
	if got.AudioFile != result.MergedFile {
		t.Errorf("Expected audio file %s, got %s", result.MergedFile, got.AudioFile)
	}

	if controller.Status(handle.SessionID).IsRecording {
		t.Error("Expected recording to be inactive after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	logger := zap.NewNop()
	if !ffmpegx.NewEncoder("64k", logger).Available() {
		t.Skip("ffmpeg not installed")
	}

	src := writeSourceWAV(t)
	controller, _, _ := setupController(t, &stubRegistry{devices: testDevices()}, recordingFactory(src))

	handle, err := controller.Start(context.Background(), []int{1}, "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Concurrent stops race on the same job; all must converge on one
	// result.
	var wg sync.WaitGroup
	results := make([]*StopResult, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := controller.Stop(context.Background(), handle.SessionID)
			if err != nil {
				t.Errorf("Stop %d failed: %v", i, err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	for i := 1; i < 3; i++ {
		if results[i] == nil || results[0] == nil {
			t.Fatal("Missing stop result")
		}
		if results[i].MergedFile != results[0].MergedFile {
			t.Errorf("Stop %d diverged: %s vs %s", i, results[i].MergedFile, results[0].MergedFile)
		}
	}

	// A later sequential stop still returns the memoized result.
	again, err := controller.Stop(context.Background(), handle.SessionID)
	if err != nil {
		t.Fatalf("Repeat stop failed: %v", err)
	}
	if again.MergedFile != results[0].MergedFile {
		t.Errorf("Repeat stop diverged: %s", again.MergedFile)
	}
}
