package pipeline

import (
	"math"

	"github.com/mnemosyne/server/domain/entities"
)

// AssignSpeakers merges aligned segments with diarization turns by
// temporal overlap. A word falling in a gap between turns is assigned
// to the nearest turn rather than left unlabeled; a best-guess label
// beats no label. With no turns at all, segments stay UNKNOWN.
func AssignSpeakers(segments []entities.Segment, turns []entities.SpeakerTurn) []entities.Segment {
	out := make([]entities.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		out[i].Speaker = speakerFor(seg, turns)
	}
	return out
}

// speakerFor picks the label whose turns cover the most word time in
// the segment. Word-less segments fall back to the segment span.
func speakerFor(seg entities.Segment, turns []entities.SpeakerTurn) string {
	if len(turns) == 0 {
		return entities.SpeakerUnknown
	}

	if len(seg.Words) == 0 {
		return labelForSpan(seg.Start, seg.End, turns)
	}

	coverage := make(map[string]float64)
	for _, w := range seg.Words {
		label := labelForSpan(w.Start, w.End, turns)
		coverage[label] += w.End - w.Start
	}

	best := entities.SpeakerUnknown
	bestTime := -1.0
	for label, t := range coverage {
		if t > bestTime {
			best = label
			bestTime = t
		}
	}
	return best
}

// labelForSpan returns the turn with maximal overlap against the span,
// or the nearest turn when nothing overlaps.
func labelForSpan(start, end float64, turns []entities.SpeakerTurn) string {
	bestLabel := ""
	bestOverlap := 0.0
	for _, turn := range turns {
		if o := overlap(start, end, turn.Start, turn.End); o > bestOverlap {
			bestOverlap = o
			bestLabel = turn.Speaker
		}
	}
	if bestLabel != "" {
		return bestLabel
	}

	nearest := entities.SpeakerUnknown
	nearestDist := math.Inf(1)
	for _, turn := range turns {
		if d := distance(start, end, turn.Start, turn.End); d < nearestDist {
			nearestDist = d
			nearest = turn.Speaker
		}
	}
	return nearest
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	return math.Max(0, math.Min(aEnd, bEnd)-math.Max(aStart, bStart))
}

// distance is the gap between two non-overlapping spans.
func distance(aStart, aEnd, bStart, bEnd float64) float64 {
	if bStart > aEnd {
		return bStart - aEnd
	}
	if aStart > bEnd {
		return aStart - bEnd
	}
	return 0
}
