package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceEnumeration indicates the host audio server could not be
	// reached for device listing.
	ErrDeviceEnumeration = errors.New("audio device enumeration failed")

	// ErrNoDeviceSelected is returned when a capture is started with an
	// empty device list.
	ErrNoDeviceSelected = errors.New("no capture devices selected")

	// ErrNotRecording is returned when stop is called for a session with
	// no active capture.
	ErrNotRecording = errors.New("session is not recording")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a session is deleted while a
	// capture or pipeline run still owns it.
	ErrSessionBusy = errors.New("session has an active recording or pipeline run")

	// ErrResourceExhausted marks an inference failure caused by
	// insufficient accelerator memory. Callers may reduce batch size and
	// retry; the pipeline never retries on its own.
	ErrResourceExhausted = errors.New("inference resources exhausted")
)

// CaptureStartError reports an all-or-nothing multi-device start that
// failed; any sibling captures already running were torn down.
type CaptureStartError struct {
	DeviceID int
	Err      error
}

func (e *CaptureStartError) Error() string {
	return fmt.Sprintf("capture failed to start on device %d: %v", e.DeviceID, e.Err)
}

func (e *CaptureStartError) Unwrap() error { return e.Err }

// EncodingError reports a failed external encoder invocation. The raw
// uncompressed capture is retained so no audio is lost.
type EncodingError struct {
	Output string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("audio encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// PipelineStage identifies one of the ordered inference stages.
type PipelineStage string

const (
	StageRecognize     PipelineStage = "recognize"
	StageAlign         PipelineStage = "align"
	StageDiarize       PipelineStage = "diarize"
	StageAssignSpeaker PipelineStage = "assign_speaker"
)

// StageError reports the failing stage of an aborted pipeline run.
type StageError struct {
	Stage PipelineStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
