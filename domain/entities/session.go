package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle status of a session
type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusRecording  SessionStatus = "recording"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusError      SessionStatus = "error"
)

// allowedTransitions encodes the session lifecycle:
// created → recording → processing → {completed, error}.
// Completed and error sessions may start a fresh recording,
// or go straight to processing when audio is supplied from outside.
var allowedTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreated:    {SessionStatusRecording, SessionStatusProcessing},
	SessionStatusRecording:  {SessionStatusProcessing, SessionStatusError},
	SessionStatusProcessing: {SessionStatusCompleted, SessionStatusError},
	SessionStatusCompleted:  {SessionStatusRecording, SessionStatusProcessing},
	SessionStatusError:      {SessionStatusRecording, SessionStatusProcessing},
}

// Session is the root aggregate tying a recording to its transcript,
// summary and notes.
type Session struct {
	ID           string        `json:"id" bson:"_id"`
	Name         string        `json:"name" bson:"name"`
	Status       SessionStatus `json:"status" bson:"status"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" bson:"updated_at"`
	AudioFile    string        `json:"audio_file" bson:"audio_file"`
	Transcript   []Segment     `json:"transcript" bson:"transcript"`
	Summary      string        `json:"summary" bson:"summary"`
	Notes        string        `json:"notes" bson:"notes"`
	Participants []string      `json:"participants" bson:"participants"`
}

// NewSession creates a session in the created state.
func NewSession(name string) *Session {
	if name == "" {
		name = "Untitled Session"
	}
	now := time.Now()
	return &Session{
		ID:           uuid.NewString()[:8],
		Name:         name,
		Status:       SessionStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
		Transcript:   make([]Segment, 0),
		Participants: make([]string, 0),
	}
}

// CanTransitionTo reports whether moving to the given status is a legal
// lifecycle transition.
func (s *Session) CanTransitionTo(status SessionStatus) bool {
	for _, next := range allowedTransitions[s.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// IsActive reports whether a capture or pipeline run may currently own
// this session.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusRecording || s.Status == SessionStatusProcessing
}

// AppendSegment appends one finalized segment to the transcript.
// Segments are immutable once appended.
func (s *Session) AppendSegment(seg Segment) {
	s.Transcript = append(s.Transcript, seg)
	s.UpdatedAt = time.Now()
}

// SetTranscript replaces the transcript wholesale and derives the
// participant list from the distinct speaker labels.
func (s *Session) SetTranscript(segments []Segment) {
	s.Transcript = segments
	seen := make(map[string]bool)
	participants := make([]string, 0)
	for _, seg := range segments {
		if seg.Speaker == SpeakerUnknown || seen[seg.Speaker] {
			continue
		}
		seen[seg.Speaker] = true
		participants = append(participants, seg.Speaker)
	}
	s.Participants = participants
	s.UpdatedAt = time.Now()
}

// Validate validates the session data.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	switch s.Status {
	case SessionStatusCreated, SessionStatusRecording, SessionStatusProcessing,
		SessionStatusCompleted, SessionStatusError:
	default:
		return errors.New("invalid session status")
	}
	return nil
}
