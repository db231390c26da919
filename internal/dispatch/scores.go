package dispatch

import "github.com/rzbill/labeld/internal/docstore"

// ScoreFuncs supplies the priority functions for both queues. They are
// externally pluggable; the engine only requires monotonicity consistent
// with each queue's read order (MCQ: higher score drawn first; text: lower
// score drawn first).
type ScoreFuncs struct {
	// MCQ scores a datapoint for the multiple-choice queue.
	MCQ func(d *docstore.Datapoint) float64
	// Txt scores a flagged question from its current text-answer count, so
	// least-answered questions are drawn first.
	Txt func(textAnswerCount int) float64
}

// DefaultScores uses the datapoint's stored priority for the MCQ queue and
// the raw answer count for the text queue.
func DefaultScores() ScoreFuncs {
	return ScoreFuncs{
		MCQ: func(d *docstore.Datapoint) float64 { return d.Priority },
		Txt: func(textAnswerCount int) float64 { return float64(textAnswerCount) },
	}
}
