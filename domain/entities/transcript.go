package entities

// SpeakerUnknown labels a segment the diarizer could not attribute.
const SpeakerUnknown = "UNKNOWN"

// Word is one word of a segment with refined timestamps.
type Word struct {
	Word  string  `json:"word" bson:"word"`
	Start float64 `json:"start" bson:"start"`
	End   float64 `json:"end" bson:"end"`
	Score float64 `json:"score" bson:"score"`
}

// Segment is one finalized, speaker-attributed unit of transcript
// output. Immutable once emitted.
type Segment struct {
	Text    string  `json:"text" bson:"text"`
	Speaker string  `json:"speaker" bson:"speaker"`
	Start   float64 `json:"start" bson:"start"`
	End     float64 `json:"end" bson:"end"`
	Words   []Word  `json:"words,omitempty" bson:"words,omitempty"`
}

// DraftSegment is a recognized chunk with approximate timestamps,
// before forced alignment.
type DraftSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeakerTurn is one diarized turn: a span of audio attributed to a
// distinct, unidentified speaker.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}
