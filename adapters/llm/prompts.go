package llm

import (
	"fmt"
	"strings"

	"github.com/mnemosyne/server/domain/entities"
)

// SystemPrompt is the shared summarization instruction given to every
// provider.
const SystemPrompt = `You are a meeting assistant. Summarize the following transcript as concise markdown.
Include: a one-paragraph overview, key discussion points, decisions made, and action items with owners where identifiable.
Refer to speakers by their labels. Do not invent content that is not in the transcript.`

// FormatTranscript renders segments as speaker-labelled lines with
// timestamps for the LLM.
func FormatTranscript(segments []entities.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%s %s] %s\n", formatTimestamp(seg.Start), seg.Speaker, strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
