package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
	"github.com/mnemosyne/server/internal/mixer"
	"github.com/mnemosyne/server/internal/session"
)

// stopGrace is how long a capture subprocess gets to exit after
// SIGTERM before being killed.
const stopGrace = 5 * time.Second

// CommandFactory builds the capture subprocess for one device. The
// default records via pw-record; tests substitute plain executables.
type CommandFactory func(ctx context.Context, device entities.Device, outputPath string) *exec.Cmd

// PipeWireCommand returns the production factory spawning pw-record
// with mono s16 output at the given rate. Output sinks are captured
// through their monitor source.
func PipeWireCommand(sampleRate int) CommandFactory {
	return func(ctx context.Context, device entities.Device, outputPath string) *exec.Cmd {
		return exec.CommandContext(ctx, "pw-record",
			fmt.Sprintf("--rate=%d", sampleRate),
			"--channels=1",
			"--format=s16",
			"--target", device.CaptureTarget(),
			outputPath,
		)
	}
}

// Handle identifies a started multi-device capture.
type Handle struct {
	SessionID   string `json:"session_id"`
	RecordingID string `json:"recording_id"`
	DeviceCount int    `json:"device_count"`
}

// StopResult is the outcome of stopping a capture. Warnings carry
// non-fatal per-device failures observed during the recording.
type StopResult struct {
	SessionID      string   `json:"session_id"`
	RecordingID    string   `json:"recording_id"`
	MergedFile     string   `json:"merged_file"`
	PerDeviceFiles []string `json:"per_device_files"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Status is a point-in-time view of a session's capture.
type Status struct {
	IsRecording bool `json:"is_recording"`
	DeviceCount int  `json:"device_count"`
}

type deviceStream struct {
	device    entities.Device
	cmd       *exec.Cmd
	path      string
	startedAt time.Time

	exited  chan struct{}
	exitErr error
}

type captureJob struct {
	sessionID   string
	recordingID string
	streams     []*deviceStream
	startedAt   time.Time

	mu       sync.Mutex
	stopping bool
	warnings []string

	stopOnce sync.Once
	done     chan struct{}
	result   *StopResult
	stopErr  error
}

// Controller owns capture subprocesses. Start is all-or-nothing across
// the selected devices; stop is idempotent per session.
type Controller struct {
	sessions      *session.Service
	registry      repositories.DeviceRegistry
	mixer         *mixer.Mixer
	recordingsDir func(sessionID string) string
	newCommand    CommandFactory
	logger        *zap.Logger

	// startMu is held from the duplicate-start check through job
	// registration, so concurrent starts for one session cannot both
	// spawn subprocesses.
	startMu sync.Mutex

	mu      sync.Mutex
	active  map[string]*captureJob
	results map[string]*StopResult
}

// NewController creates a capture controller.
func NewController(
	sessions *session.Service,
	registry repositories.DeviceRegistry,
	mix *mixer.Mixer,
	recordingsDir func(string) string,
	newCommand CommandFactory,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		sessions:      sessions,
		registry:      registry,
		mixer:         mix,
		recordingsDir: recordingsDir,
		newCommand:    newCommand,
		logger:        logger,
		active:        make(map[string]*captureJob),
		results:       make(map[string]*StopResult),
	}
}

// Start spawns one capture subprocess per device. If sessionID is
// empty a new session is created. Any single device failing to start
// tears the whole call down: a partial multi-device recording cannot
// be mixed against its declared sources, so it is worse than none.
func (c *Controller) Start(ctx context.Context, deviceIDs []int, sessionID string) (*Handle, error) {
	if len(deviceIDs) == 0 {
		return nil, entities.ErrNoDeviceSelected
	}

	var sess *entities.Session
	var err error
	if sessionID == "" {
		sess, err = c.sessions.Create(ctx, "")
	} else {
		sess, err = c.sessions.Get(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if _, exists := c.active[sess.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("session %s is already recording", sess.ID)
	}
	c.mu.Unlock()

	devices, err := c.registry.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]entities.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	dir := c.recordingsDir(sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recordings dir: %w", err)
	}

	recordingID := uuid.NewString()[:8]
	job := &captureJob{
		sessionID:   sess.ID,
		recordingID: recordingID,
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}

	for _, id := range deviceIDs {
		device, ok := byID[id]
		if !ok {
			c.teardown(job)
			return nil, &entities.CaptureStartError{DeviceID: id, Err: fmt.Errorf("device not found")}
		}

		path := fmt.Sprintf("%s/%s_device_%d.wav", dir, recordingID, id)
		cmd := c.newCommand(ctx, device, path)
		// Own process group, so abnormal shutdown can kill captures
		// wholesale without per-child tracking.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		stream := &deviceStream{
			device: device,
			cmd:    cmd,
			path:   path,
			exited: make(chan struct{}),
		}
		if err := cmd.Start(); err != nil {
			c.teardown(job)
			return nil, &entities.CaptureStartError{DeviceID: id, Err: err}
		}
		stream.startedAt = time.Now()
		job.streams = append(job.streams, stream)
		go c.monitor(job, stream)
	}

	if _, err := c.sessions.Transition(ctx, sess.ID, entities.SessionStatusRecording); err != nil {
		c.teardown(job)
		return nil, err
	}

	c.mu.Lock()
	c.active[sess.ID] = job
	delete(c.results, sess.ID)
	c.mu.Unlock()

	c.logger.Info("Capture started",
		zap.String("sessionID", sess.ID),
		zap.String("recordingID", recordingID),
		zap.Int("devices", len(job.streams)))

	return &Handle{
		SessionID:   sess.ID,
		RecordingID: recordingID,
		DeviceCount: len(job.streams),
	}, nil
}

// monitor observes a capture subprocess. A child dying before stop is
// a degradation, not an abort: its stream simply stops advancing and
// the mixer treats the tail as silence.
func (c *Controller) monitor(job *captureJob, stream *deviceStream) {
	stream.exitErr = stream.cmd.Wait()
	close(stream.exited)

	job.mu.Lock()
	defer job.mu.Unlock()
	if !job.stopping {
		msg := fmt.Sprintf("capture on device %d (%s) exited early", stream.device.ID, stream.device.Name)
		if stream.exitErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, stream.exitErr)
		}
		job.warnings = append(job.warnings, msg)
		c.logger.Warn("Capture subprocess exited early",
			zap.String("sessionID", job.sessionID),
			zap.Int("deviceID", stream.device.ID),
			zap.Error(stream.exitErr))
	}
}

// Stop terminates all capture subprocesses for the session, merges the
// per-device files and transitions the session to processing.
// Duplicate stops, concurrent or sequential, return the prior result.
func (c *Controller) Stop(ctx context.Context, sessionID string) (*StopResult, error) {
	c.mu.Lock()
	job, recording := c.active[sessionID]
	if !recording {
		result, done := c.results[sessionID]
		c.mu.Unlock()
		if done {
			return result, nil
		}
		return nil, entities.ErrNotRecording
	}
	c.mu.Unlock()

	job.stopOnce.Do(func() {
		job.result, job.stopErr = c.doStop(ctx, job)
		c.mu.Lock()
		delete(c.active, sessionID)
		if job.result != nil {
			c.results[sessionID] = job.result
		}
		c.mu.Unlock()
		close(job.done)
	})

	<-job.done
	return job.result, job.stopErr
}

func (c *Controller) doStop(ctx context.Context, job *captureJob) (*StopResult, error) {
	job.mu.Lock()
	job.stopping = true
	job.mu.Unlock()

	inputs := make([]mixer.Input, 0, len(job.streams))
	for _, stream := range job.streams {
		c.terminate(stream)
		if info, err := os.Stat(stream.path); err == nil && info.Size() > 0 {
			inputs = append(inputs, mixer.Input{Path: stream.path, StartedAt: stream.startedAt})
		}
	}

	job.mu.Lock()
	warnings := append([]string(nil), job.warnings...)
	job.mu.Unlock()

	if len(inputs) == 0 {
		_, _ = c.sessions.Transition(ctx, job.sessionID, entities.SessionStatusError)
		return nil, fmt.Errorf("no audio captured for session %s", job.sessionID)
	}

	base := fmt.Sprintf("%s/%s", c.recordingsDir(job.sessionID), job.recordingID)
	merged, err := c.mixer.Merge(ctx, inputs, base)
	if err != nil {
		// Raw WAV files stay on disk; only the compressed copies are
		// missing.
		_, _ = c.sessions.Transition(ctx, job.sessionID, entities.SessionStatusError)
		return nil, err
	}

	if _, err := c.sessions.SetAudioFile(ctx, job.sessionID, merged.MixedFile); err != nil {
		return nil, err
	}
	if _, err := c.sessions.Transition(ctx, job.sessionID, entities.SessionStatusProcessing); err != nil {
		return nil, err
	}

	c.logger.Info("Capture stopped",
		zap.String("sessionID", job.sessionID),
		zap.String("mergedFile", merged.MixedFile),
		zap.Int("files", len(merged.PerDeviceFiles)),
		zap.Int("warnings", len(warnings)))

	return &StopResult{
		SessionID:      job.sessionID,
		RecordingID:    job.recordingID,
		MergedFile:     merged.MixedFile,
		PerDeviceFiles: merged.PerDeviceFiles,
		Warnings:       warnings,
	}, nil
}

// terminate asks one subprocess to exit, escalating to SIGKILL after
// the grace period.
func (c *Controller) terminate(stream *deviceStream) {
	select {
	case <-stream.exited:
		return
	default:
	}

	_ = stream.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-stream.exited:
	case <-time.After(stopGrace):
		_ = stream.cmd.Process.Kill()
		<-stream.exited
	}
}

// Status reports whether a session is recording. Never blocks on
// subprocesses.
func (c *Controller) Status(sessionID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.active[sessionID]
	if !ok {
		return Status{}
	}
	return Status{IsRecording: true, DeviceCount: len(job.streams)}
}

// Shutdown kills every active capture process group. Used on abnormal
// shutdown of the whole system so no orphaned recorders survive.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	jobs := make([]*captureJob, 0, len(c.active))
	for _, job := range c.active {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()

	for _, job := range jobs {
		job.mu.Lock()
		job.stopping = true
		job.mu.Unlock()
		for _, stream := range job.streams {
			if stream.cmd.Process != nil {
				// Negative pid signals the whole process group.
				_ = syscall.Kill(-stream.cmd.Process.Pid, syscall.SIGKILL)
			}
		}
	}
}

// teardown kills any already-started siblings of a failed start and
// removes their partial files.
func (c *Controller) teardown(job *captureJob) {
	job.mu.Lock()
	job.stopping = true
	job.mu.Unlock()
	for _, stream := range job.streams {
		if stream.cmd.Process != nil {
			_ = stream.cmd.Process.Kill()
			<-stream.exited
		}
		os.Remove(stream.path)
	}
}
