package llm

import (
	"strings"
	"testing"

	"github.com/mnemosyne/server/domain/entities"
)

func TestFormatTranscript(t *testing.T) {
	segments := []entities.Segment{
		{Text: " Hello everyone. ", Speaker: "SPEAKER_00", Start: 0, End: 2},
		{Text: "Hi.", Speaker: "SPEAKER_01", Start: 3725.4, End: 3727},
	}

	out := FormatTranscript(segments)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "[00:00:00 SPEAKER_00] Hello everyone." {
		t.Errorf("Unexpected first line %q", lines[0])
	}
	if lines[1] != "[01:02:05 SPEAKER_01] Hi." {
		t.Errorf("Unexpected second line %q", lines[1])
	}
}

func TestFormatTranscriptEmpty(t *testing.T) {
	if out := FormatTranscript(nil); out != "" {
		t.Errorf("Expected empty output, got %q", out)
	}
}
