package docstore

// Status is a datapoint's position in the labeling pipeline.
type Status string

const (
	// StatusLiveLabelMCQ: collecting multiple-choice answers.
	StatusLiveLabelMCQ Status = "live-label-mcq"
	// StatusLiveLabelText: ambiguous questions flagged, collecting free text.
	StatusLiveLabelText Status = "live-label-txt"
	// StatusConsensus: all required answers collected, downstream aggregation may run.
	StatusConsensus Status = "consensus"
)

// Answer is one worker's response to a question.
type Answer struct {
	Text     string `json:"text"`
	WorkerID string `json:"worker_id"`
}

// Question is one sub-item of a datapoint.
type Question struct {
	Text        string   `json:"q"`
	MCQAnswers  []Answer `json:"mcq_answers,omitempty"`
	TextAnswers []Answer `json:"text_answers,omitempty"`
	IsFlagged   bool     `json:"is_flagged"`
}

// PreLabel carries the labeling payload of a datapoint.
type PreLabel struct {
	Questions    []Question `json:"questions"`
	Keywords     []string   `json:"keywords,omitempty"`
	MapPlacement string     `json:"map_placement,omitempty"`
}

// Datapoint is the canonical record a labeling task is attached to.
type Datapoint struct {
	ID               string   `json:"id"`
	MediaURL         string   `json:"media_url,omitempty"`
	Priority         float64  `json:"priority"`
	PreLabel         PreLabel `json:"pre_label"`
	ProcessingStatus Status   `json:"processing_status"`
}

// HasQuestion reports whether a question exists at idx.
func (d *Datapoint) HasQuestion(idx int) bool {
	return idx >= 0 && idx < len(d.PreLabel.Questions)
}
