package controllers

// Request and response DTOs for the labeling HTTP surface.

type drawReq struct {
	Count int `json:"count" validate:"omitempty,min=1,max=100"`
}

type mcqSubmission struct {
	DatapointID string         `json:"datapoint_id" validate:"required"`
	Answers     map[int]string `json:"answers" validate:"required,min=1"`
}

// mcqSubmitReq carries either a single submission (datapoint_id + answers)
// or a batch (submissions). Exactly one form must be present.
type mcqSubmitReq struct {
	WorkerID    string          `json:"worker_id" validate:"required"`
	DatapointID string          `json:"datapoint_id"`
	Answers     map[int]string  `json:"answers"`
	Submissions []mcqSubmission `json:"submissions" validate:"omitempty,min=1,dive"`
}

type txtSubmitReq struct {
	WorkerID      string `json:"worker_id" validate:"required"`
	DatapointID   string `json:"datapoint_id" validate:"required"`
	QuestionIndex *int   `json:"question_index" validate:"required,min=0"`
	Answer        string `json:"answer" validate:"required"`
}

type datapointQuestion struct {
	Text string `json:"q" validate:"required"`
}

type datapointCreateReq struct {
	ID           string              `json:"id"`
	MediaURL     string              `json:"media_url" validate:"required,url"`
	Priority     float64             `json:"priority"`
	Questions    []datapointQuestion `json:"questions" validate:"required,min=1,dive"`
	Keywords     []string            `json:"keywords"`
	MapPlacement string              `json:"map_placement"`
}
