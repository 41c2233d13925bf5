package entities

import (
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("Weekly standup")

	if session.Name != "Weekly standup" {
		t.Errorf("Expected name Weekly standup, got %s", session.Name)
	}

	if session.Status != SessionStatusCreated {
		t.Errorf("Expected status %s, got %s", SessionStatusCreated, session.Status)
	}

	if len(session.ID) != 8 {
		t.Errorf("Expected 8-character id, got %q", session.ID)
	}

	if len(session.Transcript) != 0 {
		t.Errorf("Expected empty transcript, got %d segments", len(session.Transcript))
	}
}

func TestSessionCreationDefaultName(t *testing.T) {
	session := NewSession("")

	if session.Name != "Untitled Session" {
		t.Errorf("Expected default name, got %s", session.Name)
	}
}

func TestSessionTransitions(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionStatusCreated, SessionStatusRecording, true},
		{SessionStatusCreated, SessionStatusProcessing, true},
		{SessionStatusCreated, SessionStatusCompleted, false},
		{SessionStatusRecording, SessionStatusProcessing, true},
		{SessionStatusRecording, SessionStatusError, true},
		{SessionStatusRecording, SessionStatusCompleted, false},
		{SessionStatusRecording, SessionStatusCreated, false},
		{SessionStatusProcessing, SessionStatusCompleted, true},
		{SessionStatusProcessing, SessionStatusError, true},
		{SessionStatusProcessing, SessionStatusRecording, false},
		{SessionStatusCompleted, SessionStatusRecording, true},
		{SessionStatusCompleted, SessionStatusProcessing, true},
		{SessionStatusError, SessionStatusRecording, true},
		{SessionStatusError, SessionStatusProcessing, true},
		{SessionStatusCompleted, SessionStatusCreated, false},
	}

	for _, tc := range cases {
		session := NewSession("transitions")
		session.Status = tc.from
		if got := session.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("Transition %s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestSessionIsActive(t *testing.T) {
	session := NewSession("active")

	if session.IsActive() {
		t.Error("Created session should not be active")
	}

	session.Status = SessionStatusRecording
	if !session.IsActive() {
		t.Error("Recording session should be active")
	}

	session.Status = SessionStatusProcessing
	if !session.IsActive() {
		t.Error("Processing session should be active")
	}

	session.Status = SessionStatusCompleted
	if session.IsActive() {
		t.Error("Completed session should not be active")
	}
}

func TestAppendSegment(t *testing.T) {
	session := NewSession("segments")
	before := session.UpdatedAt

	time.Sleep(time.Millisecond)
	session.AppendSegment(Segment{Text: "hello", Speaker: "SPEAKER_00", Start: 0, End: 1.5})

	if len(session.Transcript) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(session.Transcript))
	}
	if session.Transcript[0].Text != "hello" {
		t.Errorf("Expected text hello, got %s", session.Transcript[0].Text)
	}
	if !session.UpdatedAt.After(before) {
		t.Error("Expected UpdatedAt to advance on append")
	}
}

func TestSetTranscriptDerivesParticipants(t *testing.T) {
	session := NewSession("participants")
	session.SetTranscript([]Segment{
		{Text: "hi", Speaker: "SPEAKER_00", Start: 0, End: 1},
		{Text: "hello", Speaker: "SPEAKER_01", Start: 1, End: 2},
		{Text: "again", Speaker: "SPEAKER_00", Start: 2, End: 3},
		{Text: "hum", Speaker: SpeakerUnknown, Start: 3, End: 4},
	})

	if len(session.Participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d: %v", len(session.Participants), session.Participants)
	}
	if session.Participants[0] != "SPEAKER_00" || session.Participants[1] != "SPEAKER_01" {
		t.Errorf("Unexpected participants %v", session.Participants)
	}
}

func TestSetTranscriptReplacesWholesale(t *testing.T) {
	session := NewSession("replace")
	session.SetTranscript([]Segment{
		{Text: "old", Speaker: "SPEAKER_00", Start: 0, End: 1},
	})
	session.SetTranscript([]Segment{
		{Text: "new", Speaker: "SPEAKER_01", Start: 0, End: 1},
	})

	if len(session.Transcript) != 1 || session.Transcript[0].Text != "new" {
		t.Errorf("Expected transcript to be replaced, got %+v", session.Transcript)
	}
	if len(session.Participants) != 1 || session.Participants[0] != "SPEAKER_01" {
		t.Errorf("Expected participants to be rederived, got %v", session.Participants)
	}
}

func TestSessionValidate(t *testing.T) {
	session := NewSession("valid")
	if err := session.Validate(); err != nil {
		t.Errorf("Expected valid session, got %v", err)
	}

	session.ID = ""
	if err := session.Validate(); err == nil {
		t.Error("Expected error for empty id")
	}

	session = NewSession("invalid status")
	session.Status = SessionStatus("bogus")
	if err := session.Validate(); err == nil {
		t.Error("Expected error for invalid status")
	}
}
